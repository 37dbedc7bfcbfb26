package service

import (
	"context"
	"os/exec"
	"syscall"

	"github.com/corevisor/corevisor/internal/unit"
)

// Runner is the thin process-spawning shim the sub-state-machine drives
// through. Kept behind an interface (SPEC_FULL.md §4.5 expansion) so the
// state machine itself is unit-testable without forking real processes;
// realRunner is the only implementation that actually calls exec.Cmd.
type Runner interface {
	// Start forks cmd and returns its PID without waiting for it to exit.
	Start(ctx context.Context, cmd unit.ExecCommand) (pid int, err error)
	// Run forks cmd and blocks until it exits, reporting whether it
	// exited with status 0, or true regardless when cmd.IgnoreFailure is
	// set (used for the short-lived ExecStartPre/ExecStartPost/ExecStop/
	// ExecReload/oneshot ExecStart commands).
	Run(ctx context.Context, cmd unit.ExecCommand) (exitedCleanly bool, err error)
	// Signal delivers sig to pid's process group.
	Signal(pid int, sig syscall.Signal) error
}

// realRunner spawns real OS processes via os/exec.
type realRunner struct{}

// NewRunner returns the production Runner.
func NewRunner() Runner { return realRunner{} }

func (realRunner) Start(ctx context.Context, cmd unit.ExecCommand) (int, error) {
	c := buildCmd(cmd)
	if err := c.Start(); err != nil {
		return 0, err
	}
	return c.Process.Pid, nil
}

func (realRunner) Run(ctx context.Context, cmd unit.ExecCommand) (bool, error) {
	c := buildCmd(cmd)
	err := c.Run()
	if err == nil {
		return true, nil
	}
	if cmd.IgnoreFailure {
		return true, nil
	}
	return false, err
}

func (realRunner) Signal(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

func buildCmd(cmd unit.ExecCommand) *exec.Cmd {
	var c *exec.Cmd
	if len(cmd.Argv) > 1 {
		c = exec.Command(cmd.Path, cmd.Argv[1:]...)
	} else {
		c = exec.Command(cmd.Path)
	}
	c.Dir = cmd.WorkingDirectory
	c.Env = cmd.Env
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return c
}
