package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/ct1/internal/adb"
	"github.com/harrison/ct1/internal/proc"
)

type fakeRunner struct {
	handler func(name string, args []string) (proc.Result, error)
	mu      sync.Mutex
	calls   [][]string
}

func (f *fakeRunner) Run(dir, name string, args ...string) (proc.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if f.handler != nil {
		return f.handler(name, args)
	}
	return proc.Result{}, nil
}

func (f *fakeRunner) callContaining(parts ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		joined := strings.Join(call, " ")
		all := true
		for _, p := range parts {
			if !strings.Contains(joined, p) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// fakeStream feeds canned logcat lines and records Stop calls.
type fakeStream struct {
	lines   chan string
	stopped bool
	mu      sync.Mutex
}

func newFakeStream(lines ...string) *fakeStream {
	ch := make(chan string, len(lines)+1)
	for _, l := range lines {
		ch <- l
	}
	return &fakeStream{lines: ch}
}

func (s *fakeStream) Lines() <-chan string { return s.lines }

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *fakeStream) wasStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeStarter struct {
	stream *fakeStream
}

func (f *fakeStarter) Start(name string, args ...string) (proc.Stream, error) {
	return f.stream, nil
}

// defaultHandler answers the readiness poll and the happy-path shell calls.
func defaultHandler(name string, args []string) (proc.Result, error) {
	joined := strings.Join(args, " ")
	switch {
	case len(args) > 0 && args[0] == "devices":
		return proc.Result{Stdout: []string{"List of devices attached", "ABC123\tdevice"}}, nil
	case strings.Contains(joined, "am broadcast"):
		return proc.Result{Stdout: []string{"Broadcast completed: result=0"}}, nil
	case strings.Contains(joined, "test -e"):
		return proc.Result{Stdout: []string{"EXISTS"}}, nil
	case len(args) > 2 && args[2] == "pull":
		return proc.Result{Stderr: []string{"1 file pulled, 0 skipped."}}, nil
	}
	return proc.Result{}, nil
}

func newMonitor(t *testing.T, runner *fakeRunner, stream *fakeStream, timeout time.Duration) *Monitor {
	t.Helper()
	client := adb.NewClient("ABC123", runner, &fakeStarter{stream: stream}, nil)
	client.SetSleep(func(time.Duration) {})
	m := New(client, nil, t.TempDir(), timeout)
	m.SetSleep(func(time.Duration) {})
	return m
}

func TestRunSucceedsOnCompletionMarker(t *testing.T) {
	runner := &fakeRunner{handler: defaultHandler}
	stream := newFakeStream(
		"08-28 10:00:00.000 D/CT1Broadcast( 1234): test started",
		"08-28 10:01:00.000 D/CT1Broadcast( 1234): ATP Test Finish!!",
	)
	m := newMonitor(t, runner, stream, 5*time.Second)

	ok := m.Run(context.Background(), "SN001", "SARF")
	require.True(t, ok)

	assert.True(t, stream.wasStopped())
	assert.True(t, runner.callContaining("pull", "SARF.txt"))
	assert.True(t, runner.callContaining("logcat", "-c"))
}

func TestRunFailsWithoutBroadcastAck(t *testing.T) {
	runner := &fakeRunner{handler: func(name string, args []string) (proc.Result, error) {
		if strings.Contains(strings.Join(args, " "), "am broadcast") {
			return proc.Result{Stdout: []string{"Error: receiver not found"}}, nil
		}
		return defaultHandler(name, args)
	}}
	stream := newFakeStream()
	m := newMonitor(t, runner, stream, 5*time.Second)

	ok := m.Run(context.Background(), "SN001", "SARF")
	require.False(t, ok)
	assert.True(t, stream.wasStopped())
}

func TestRunTimesOutWithoutMarker(t *testing.T) {
	runner := &fakeRunner{handler: defaultHandler}
	stream := newFakeStream("08-28 10:00:00.000 D/CT1Broadcast( 1234): still running")
	m := newMonitor(t, runner, stream, 50*time.Millisecond)

	ok := m.Run(context.Background(), "SN001", "SARF")
	require.False(t, ok)
	assert.True(t, stream.wasStopped())
}

func TestRunCancelledContext(t *testing.T) {
	runner := &fakeRunner{handler: defaultHandler}
	stream := newFakeStream()
	m := newMonitor(t, runner, stream, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := m.Run(ctx, "SN001", "SARF")
	require.False(t, ok)
	assert.True(t, stream.wasStopped())
}

func TestRunFailsWhenResultFileMissing(t *testing.T) {
	runner := &fakeRunner{handler: func(name string, args []string) (proc.Result, error) {
		if strings.Contains(strings.Join(args, " "), "test -e") {
			return proc.Result{Stdout: []string{"NOT_FOUND"}}, nil
		}
		return defaultHandler(name, args)
	}}
	stream := newFakeStream("D/CT1Broadcast: ATP Test Finish!!")
	m := newMonitor(t, runner, stream, 5*time.Second)

	ok := m.Run(context.Background(), "SN001", "ATPFWDL")
	require.False(t, ok)
}

func TestRunFailsWhenPullNotAcknowledged(t *testing.T) {
	runner := &fakeRunner{handler: func(name string, args []string) (proc.Result, error) {
		if len(args) > 2 && args[2] == "pull" {
			return proc.Result{}, nil
		}
		return defaultHandler(name, args)
	}}
	stream := newFakeStream("D/CT1Broadcast: ATP Test Finish!!")
	m := newMonitor(t, runner, stream, 5*time.Second)

	ok := m.Run(context.Background(), "SN001", "ATPFWDL")
	require.False(t, ok)
}

func TestRunDefaultsEmptySerial(t *testing.T) {
	runner := &fakeRunner{handler: defaultHandler}
	stream := newFakeStream("D/CT1Broadcast: ATP Test Finish!!")
	m := newMonitor(t, runner, stream, 5*time.Second)

	ok := m.Run(context.Background(), "", "SARF")
	require.True(t, ok)
	assert.True(t, runner.callContaining("SerialNumber", "00000000000"))
}

func TestRunFailsImmediatelyWhenLogStreamDies(t *testing.T) {
	runner := &fakeRunner{handler: defaultHandler}
	stream := newFakeStream()
	close(stream.lines)
	m := newMonitor(t, runner, stream, 10*time.Second)

	start := time.Now()
	ok := m.Run(context.Background(), "SN001", "SARF")
	elapsed := time.Since(start)

	require.False(t, ok)
	// A dead logcat must not stall the run until the completion timeout.
	assert.Less(t, elapsed, 2*time.Second)
	assert.True(t, stream.wasStopped())
}

func TestRunFailsWhenLogcatClearFails(t *testing.T) {
	broadcastSent := false
	runner := &fakeRunner{handler: func(name string, args []string) (proc.Result, error) {
		joined := strings.Join(args, " ")
		if strings.Contains(joined, "logcat -c") {
			return proc.Result{ExitCode: 1}, nil
		}
		if strings.Contains(joined, "am broadcast") {
			broadcastSent = true
		}
		return defaultHandler(name, args)
	}}
	// An uncleared buffer would replay a previous run's marker; with the
	// result file still on the device that would read as a pass.
	stream := newFakeStream("D/CT1Broadcast: ATP Test Finish!!")
	m := newMonitor(t, runner, stream, 5*time.Second)

	ok := m.Run(context.Background(), "SN001", "SARF")
	require.False(t, ok)
	assert.False(t, broadcastSent)
}
