package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// execRunner is the default CommandRunner backed by os/exec. Children run in
// their own process group so a kill takes the whole process tree, not just
// the direct child.
type execRunner struct{}

func (execRunner) Start(_ context.Context, spec CommandSpec) (Process, error) {
	cmd := exec.Command(spec.Name, spec.Args...) //nolint:gosec // binary path comes from config
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }

func (p *execProcess) Wait() error { return p.cmd.Wait() }

// Kill hard-kills the process group. The agent CLI has no cancellation API,
// so there is no graceful shutdown step on deadline expiry.
func (p *execProcess) Kill() {
	if p.cmd.Process == nil {
		return
	}
	pgid := -p.cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		// fall back to killing the direct child only
		_ = p.cmd.Process.Kill()
	}
}
