package supervisor

import (
	"io"
	"os/exec"

	"github.com/ocx/slimlo/internal/procutil"
)

// process abstracts the subset of *exec.Cmd a Supervisor needs, so tests
// can substitute an in-process fake worker for a real subprocess.
type process interface {
	Wait() error
	Kill() error
	ExitCode() int
}

// spawnFunc starts a worker and returns its stdin/stdout/stderr pipes
// alongside a process handle. hints are environment overrides layered on
// top of the worker's library search path.
type spawnFunc func(cfg Config, hints map[string]string) (proc process, stdin io.WriteCloser, stdout io.Reader, stderr io.Reader, err error)

// Process and SpawnFunc are exported aliases of the unexported types above,
// letting other packages within this module (notably pkg/slimlo's tests)
// inject an in-process fake worker via NewWithSpawn without this package
// needing a public subprocess-replacement API.
type Process = process

// SpawnFunc is the exported alias of spawnFunc; see Process.
type SpawnFunc = spawnFunc

// NewWithSpawn constructs a Supervisor that uses spawn instead of execing
// cfg.WorkerPath, for tests that stand in a fake worker.
func NewWithSpawn(cfg Config, spawn SpawnFunc) *Supervisor {
	s := New(cfg)
	s.spawn = spawn
	return s
}

// realSpawn execs cfg.WorkerPath as a child with binary-mode stdio pipes,
// library-lookup paths extended to cover both the worker's and the
// engine's directories, and its own process group so KillTree can take
// down anything it forks.
func realSpawn(cfg Config, hints map[string]string) (process, io.WriteCloser, io.Reader, io.Reader, error) {
	cmd := exec.Command(cfg.WorkerPath)
	cmd.Env = procutil.BuildChildEnv(workerDirOf(cfg.WorkerPath), cfg.EngineDir, hints)
	procutil.SetNewProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, nil, err
	}
	return &execProcess{cmd: cmd}, stdin, stdout, stderr, nil
}

// execProcess adapts *exec.Cmd to the process interface, killing the whole
// process tree rather than just the direct child.
type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error { return p.cmd.Wait() }

func (p *execProcess) Kill() error { return procutil.KillTree(p.cmd) }

func (p *execProcess) ExitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}
