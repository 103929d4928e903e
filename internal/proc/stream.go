package proc

import (
	"bufio"
	"fmt"
	"os/exec"
	"sync"
)

// Stream is a long-running background process whose stdout is consumed line
// by line. Lines() is closed when the process exits or is stopped; receivers
// distinguish the two by whether they called Stop.
type Stream interface {
	// Lines yields stdout lines. Closed on process exit.
	Lines() <-chan string
	// Stop terminates the process and reaps it. Safe to call more than
	// once and after the process has already exited.
	Stop()
}

// Starter launches a background streaming process.
type Starter interface {
	Start(name string, args ...string) (Stream, error)
}

// ExecStarter is the production Starter.
type ExecStarter struct{}

// NewExecStarter creates an ExecStarter.
func NewExecStarter() *ExecStarter {
	return &ExecStarter{}
}

// Start implements Starter.
func (s *ExecStarter) Start(name string, args ...string) (Stream, error) {
	cmd := exec.Command(name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	es := &execStream{
		cmd:   cmd,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			select {
			case es.lines <- scanner.Text():
			case <-es.done:
				// Stopped: nobody is reading any more.
				return
			}
		}
		close(es.lines)
	}()
	return es, nil
}

type execStream struct {
	cmd   *exec.Cmd
	lines chan string
	done  chan struct{}

	stopOnce sync.Once
}

func (es *execStream) Lines() <-chan string {
	return es.lines
}

func (es *execStream) Stop() {
	es.stopOnce.Do(func() {
		close(es.done)
		if es.cmd.Process != nil {
			es.cmd.Process.Kill()
		}
		go es.cmd.Wait()
	})
}
