// Package monitor drives a test run on the device-resident ATP app and
// waits for its completion marker in logcat, then retrieves the result file.
package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/ct1/internal/adb"
	"github.com/harrison/ct1/internal/logger"
)

const (
	// appComponent receives the test-start broadcast.
	appComponent = "com.rtk.ct1atptest/.domain.TestControlReceiver"
	// appAction is the intent action the app listens for.
	appAction = "com.rtk.ct1atptest.PCATP"
	// logcatTag is the tag the app logs progress under.
	logcatTag = "CT1Broadcast"
	// completionMarker is the literal line fragment the app emits when the
	// test sequence has finished.
	completionMarker = "ATP Test Finish!!"
	// resultDir is where the app writes its per-station result file.
	resultDir = "/storage/emulated/0/Android/data/com.rtk.ct1atptest/files/Logs"

	// defaultSerial stands in when no serial number was scanned.
	defaultSerial = "00000000000"

	// settleDelay gives the app time to flush the result file after the
	// completion marker appears.
	settleDelay = 2 * time.Second
	// heartbeatInterval spaces the "still waiting" progress lines.
	heartbeatInterval = 30 * time.Second
)

// Monitor runs the on-device test app and watches for its completion.
type Monitor struct {
	// LogDir receives the pulled result file.
	LogDir string
	// Timeout bounds the wait for the completion marker.
	Timeout time.Duration

	adb   *adb.Client
	log   logger.Logger
	sleep func(time.Duration)
}

// New creates a completion monitor pulling results into logDir.
func New(c *adb.Client, log logger.Logger, logDir string, timeout time.Duration) *Monitor {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Monitor{
		LogDir:  logDir,
		Timeout: timeout,
		adb:     c,
		log:     log,
		sleep:   time.Sleep,
	}
}

// SetSleep replaces the settle sleep. Intended for tests.
func (m *Monitor) SetSleep(sleep func(time.Duration)) {
	m.sleep = sleep
}

// Run starts the app test for the given station and waits for completion.
// It returns true only when the completion marker appeared in logcat and the
// result file was pulled with an acknowledged transfer. Context cancellation,
// a failed logcat clear, a missing broadcast acknowledgement, a dead logcat
// stream, the timeout, and a missing result file all return false. The
// logcat stream is stopped on every path.
func (m *Monitor) Run(ctx context.Context, serialNumber, stationName string) bool {
	if serialNumber == "" {
		serialNumber = defaultSerial
	}

	m.log.Infof("=== Starting ATP Test (Station: %s, SN: %s) ===", stationName, serialNumber)

	if !m.adb.Await(0, 0) {
		m.log.Errorf("Cannot start test: no ADB device available")
		return false
	}

	m.adb.EnableRadios()

	// The tag stream replays whatever is buffered; a stale completion
	// marker from a previous run must not satisfy this one.
	if err := m.adb.LogcatClear(); err != nil {
		m.log.Errorf("Failed to clear logcat: %v", err)
		return false
	}

	stream, err := m.adb.StreamLogcat(logcatTag)
	if err != nil {
		m.log.Errorf("Failed to start logcat monitor: %v", err)
		return false
	}
	defer stream.Stop()

	if out := m.adb.Broadcast(appComponent, appAction, serialNumber, stationName); !out.OK() {
		m.log.Errorf("Failed to start test: %s", out.Reason())
		return false
	}
	m.log.Infof("Test broadcast sent, waiting for completion (timeout: %v)...", m.Timeout)

	if !m.awaitMarker(ctx, stream.Lines()) {
		return false
	}

	// The marker can beat the file flush.
	m.sleep(settleDelay)
	return m.pullResult(stationName)
}

// awaitMarker consumes logcat lines until the completion marker, the
// timeout, or cancellation.
func (m *Monitor) awaitMarker(ctx context.Context, lines <-chan string) bool {
	deadline := time.NewTimer(m.Timeout)
	defer deadline.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			m.log.Errorf("Test monitoring cancelled: %v", ctx.Err())
			return false
		case <-deadline.C:
			m.log.Errorf("Timeout: test did not complete within %v", m.Timeout)
			return false
		case <-heartbeat.C:
			m.log.Infof("Still waiting for test completion... (%v elapsed)", time.Since(start).Round(time.Second))
		case line, ok := <-lines:
			if !ok {
				m.log.Errorf("Logcat process terminated unexpectedly")
				return false
			}
			m.log.Debugf("logcat: %s", line)
			if strings.Contains(line, completionMarker) {
				m.log.Infof("Test completed: found completion marker")
				return true
			}
		}
	}
}

// pullResult retrieves the station's result file from the device. Success
// requires the file to exist and the transfer to be acknowledged.
func (m *Monitor) pullResult(stationName string) bool {
	remote := fmt.Sprintf("%s/%s.txt", resultDir, stationName)
	if !m.adb.FileExists(remote) {
		m.log.Errorf("Result file not found on device: %s", remote)
		return false
	}

	local := filepath.Join(m.LogDir, stationName+".txt")
	out := m.adb.Pull(remote, local)
	if !out.OK() {
		m.log.Errorf("Failed to pull result file: %s", out.Reason())
		return false
	}
	m.log.Infof("Result file saved to %s", out.Value())
	return true
}
