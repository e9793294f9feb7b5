package conn

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// PipeConnection is a Connection backed by the stdin/stdout pipes of a locally
// spawned VM process, generalizing the teacher's plugin-process spawning
// (exec.Command plus StdinPipe/StdoutPipe) to a debuggee rather than a plugin.
type PipeConnection struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	closeOnce sync.Once
	stdioOnce sync.Once
	done      chan struct{}
}

// SpawnPipe starts path with args and wires a PipeConnection to its stdio.
func SpawnPipe(path string, args ...string) (*PipeConnection, error) {
	cmd := exec.Command(path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdin pipe for %s: %w", path, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdout pipe for %s: %w", path, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", path, err)
	}

	pc := &PipeConnection{cmd: cmd, stdin: stdin, stdout: stdout, done: make(chan struct{})}
	go pc.waitForExit()
	return pc, nil
}

func (p *PipeConnection) waitForExit() {
	_ = p.cmd.Wait()
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *PipeConnection) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *PipeConnection) Write(b []byte) (int, error) { return p.stdin.Write(b) }

func (p *PipeConnection) Close() error {
	var err error
	p.stdioOnce.Do(func() {
		stdinErr := p.stdin.Close()
		stdoutErr := p.stdout.Close()
		killErr := p.cmd.Process.Kill()
		p.closeOnce.Do(func() { close(p.done) })
		if stdinErr != nil {
			err = stdinErr
		} else if stdoutErr != nil {
			err = stdoutErr
		} else {
			err = killErr
		}
	})
	return err
}

func (p *PipeConnection) Done() <-chan struct{} { return p.done }

func (p *PipeConnection) Description() string {
	return fmt.Sprintf("pipe(%s)", p.cmd.Path)
}
