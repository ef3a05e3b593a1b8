//go:build !unix

package procutil

import "os/exec"

// SetNewProcessGroup is a no-op on platforms without POSIX process groups;
// KillTree falls back to killing the direct child only.
func SetNewProcessGroup(cmd *exec.Cmd) {}

// KillTree kills cmd's direct child process.
func KillTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
