//go:build unix

package procutil

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// SetNewProcessGroup arranges for cmd's child to become the leader of a new
// process group, so KillTree can take down anything it forks without also
// reaching back up to the supervisor.
func SetNewProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// KillTree sends SIGKILL to cmd's entire process group. If the group lookup
// fails (the process may have already exited), it falls back to killing the
// direct child.
func KillTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Kill()
	}
	return unix.Kill(-pgid, unix.SIGKILL)
}
