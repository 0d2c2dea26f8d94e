package launch

import (
	"os/exec"
	"sync"
	"syscall"
)

// Process is one spawned application the orchestrator watches for an early
// exit.
type Process interface {
	PID() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// ExitCode is valid only after Done is closed.
	ExitCode() int
}

// Spawner starts application processes.
type Spawner interface {
	Spawn(executable string, args []string, workingDir string) (Process, error)
}

// ExecSpawner launches via os/exec in a new process group, so the daemon's
// own lifetime and signals never propagate to restored applications.
type ExecSpawner struct{}

func (ExecSpawner) Spawn(executable string, args []string, workingDir string) (Process, error) {
	cmd := exec.Command(executable, args...)
	cmd.Dir = workingDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu   sync.Mutex
	code int
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()

	p.mu.Lock()
	if err == nil {
		p.code = 0
	} else if exitErr, ok := err.(*exec.ExitError); ok {
		p.code = exitErr.ExitCode()
	} else {
		p.code = -1
	}
	p.mu.Unlock()

	close(p.done)
}

func (p *execProcess) PID() int { return p.cmd.Process.Pid }

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}
