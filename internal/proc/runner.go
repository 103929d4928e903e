// Package proc executes external tool processes (adb, the vendor flashing
// tool, the IQxel console) with their output streamed to the run logger
// while being collected line by line for inspection.
package proc

import (
	"bufio"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/harrison/ct1/internal/logger"
)

// Result captures the collected output of a finished command.
type Result struct {
	Stdout   []string
	Stderr   []string
	ExitCode int
}

// StdoutContains reports whether any stdout line contains substr.
func (r Result) StdoutContains(substr string) bool {
	return linesContain(r.Stdout, substr)
}

// StderrContains reports whether any stderr line contains substr.
func (r Result) StderrContains(substr string) bool {
	return linesContain(r.Stderr, substr)
}

// OutputContains reports whether any line of either stream contains substr.
func (r Result) OutputContains(substr string) bool {
	return r.StdoutContains(substr) || r.StderrContains(substr)
}

func linesContain(lines []string, substr string) bool {
	for _, line := range lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// Runner runs a command to completion. dir may be empty for the current
// working directory. A non-zero exit status is reported in Result.ExitCode,
// not as an error; errors mean the process could not be run at all.
type Runner interface {
	Run(dir string, name string, args ...string) (Result, error)
}

// ExecRunner is the production Runner. One reader goroutine per output
// stream copies lines into an append-only buffer and echoes them to the
// logger; the readers make no decisions beyond that.
type ExecRunner struct {
	log logger.Logger
}

// NewExecRunner creates an ExecRunner echoing output to log.
func NewExecRunner(log logger.Logger) *ExecRunner {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &ExecRunner{log: log}
}

// Run implements Runner.
func (r *ExecRunner) Run(dir string, name string, args ...string) (Result, error) {
	r.log.Debugf("Executing command: %s %s", name, strings.Join(args, " "))

	cmd := exec.Command(name, args...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("failed to start %s: %w", name, err)
	}

	var res Result
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			r.log.Debugf("%s", line)
			mu.Lock()
			res.Stdout = append(res.Stdout, line)
			mu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			r.log.Debugf("stderr: %s", line)
			mu.Lock()
			res.Stderr = append(res.Stderr, line)
			mu.Unlock()
		}
	}()

	wg.Wait()
	err = cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			return res, fmt.Errorf("%s: %w", name, err)
		}
	}
	return res, nil
}
