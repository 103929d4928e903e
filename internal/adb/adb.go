// Package adb wraps the Android Debug Bridge operations a station run
// needs: waiting for a device to appear, running shell commands, pulling
// result files, and streaming filtered logcat output.
package adb

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrison/ct1/internal/logger"
	"github.com/harrison/ct1/internal/outcome"
	"github.com/harrison/ct1/internal/proc"
)

const (
	// DefaultMaxRetries bounds the readiness poll (one poll per second).
	DefaultMaxRetries = 30
	// DefaultPollInterval is the gap between readiness polls.
	DefaultPollInterval = time.Second
)

// Client issues adb commands against one device. DeviceID may start empty;
// Await resolves it to the first non-emulator device found and it is used
// for every subsequent command.
type Client struct {
	DeviceID string

	runner  proc.Runner
	starter proc.Starter
	log     logger.Logger

	sleep func(time.Duration)
}

// NewClient creates an adb client. deviceID may be empty for auto-detection
// during Await.
func NewClient(deviceID string, runner proc.Runner, starter proc.Starter, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Client{
		DeviceID: deviceID,
		runner:   runner,
		starter:  starter,
		log:      log,
		sleep:    time.Sleep,
	}
}

// SetSleep replaces the inter-poll sleep. Intended for tests.
func (c *Client) SetSleep(sleep func(time.Duration)) {
	c.sleep = sleep
}

// args prepends the device selector when one is known.
func (c *Client) args(rest ...string) []string {
	if c.DeviceID == "" {
		return rest
	}
	return append([]string{"-s", c.DeviceID}, rest...)
}

// Await polls `adb devices` until the configured device appears, or, with no
// device pinned, until any non-emulator device shows up; that device becomes
// the client's DeviceID for the rest of the run. It polls at most maxRetries
// times and returns false when the device never appears; callers must treat
// that as fatal for any device-dependent step.
func (c *Client) Await(maxRetries int, interval time.Duration) bool {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	c.log.Infof("Waiting for device to be available on ADB...")
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(interval)
		}
		res, err := c.runner.Run("", "adb", "devices")
		if err != nil {
			c.log.Warnf("Error checking ADB device: %v", err)
			continue
		}
		if c.deviceListed(res.Stdout) {
			c.log.Infof("Device is available on ADB")
			return true
		}
	}
	c.log.Errorf("Device not available on ADB after waiting")
	return false
}

// deviceListed scans `adb devices` output for our device, resolving an
// auto-detected ID when none is pinned.
func (c *Client) deviceListed(lines []string) bool {
	for i, line := range lines {
		if i == 0 && strings.Contains(line, "List of devices") {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if c.DeviceID != "" {
			if strings.Contains(line, c.DeviceID) {
				return true
			}
			continue
		}
		if strings.Contains(line, "device") && !strings.Contains(line, "emulator") {
			c.DeviceID = strings.Fields(line)[0]
			c.log.Infof("Auto-detected device: %s", c.DeviceID)
			return true
		}
	}
	return false
}

// Shell runs `adb shell <args...>` and returns the collected result.
func (c *Client) Shell(args ...string) (proc.Result, error) {
	return c.runner.Run("", "adb", c.args(append([]string{"shell"}, args...)...)...)
}

// Root restarts adbd with root privileges. Root access is required for the
// radio driver commands; failures are reported by the individual commands.
func (c *Client) Root() (proc.Result, error) {
	return c.runner.Run("", "adb", c.args("root")...)
}

// Push copies a local file onto the device.
func (c *Client) Push(local, remote string) (proc.Result, error) {
	return c.runner.Run("", "adb", c.args("push", local, remote)...)
}

// EnableRadios defensively switches the WiFi and Bluetooth services on.
// The on-device test app needs both; missing acks are ignored.
func (c *Client) EnableRadios() {
	c.Shell("svc", "wifi", "enable")
	c.Shell("svc", "bluetooth", "enable")
}

// FileExists checks for a file on the device via `test -e`.
func (c *Client) FileExists(path string) bool {
	res, err := c.Shell(fmt.Sprintf(`test -e "%s" && echo "EXISTS" || echo "NOT_FOUND"`, path))
	if err != nil {
		return false
	}
	return res.StdoutContains("EXISTS")
}

// Pull copies a file off the device. Success requires the transfer
// acknowledgement ("1 file pulled") in the command's own output; a silent
// exit is not trusted.
func (c *Client) Pull(remote, local string) outcome.Outcome {
	res, err := c.runner.Run("", "adb", c.args("pull", remote, local)...)
	if err != nil {
		return outcome.Failure(fmt.Sprintf("adb pull failed: %v", err))
	}
	if !res.OutputContains("1 file pulled") {
		return outcome.Failure(fmt.Sprintf("pull not acknowledged: %s", strings.Join(res.Stderr, " ")))
	}
	return outcome.Success(local)
}

// Broadcast sends the test-start intent to the device-resident app, carrying
// the serial number and station name as extras. Success requires the
// dispatch acknowledgement ("Broadcast completed") in the command output.
func (c *Client) Broadcast(component, action, serialNumber, stationName string) outcome.Outcome {
	res, err := c.Shell(
		"am", "broadcast",
		"-n", component,
		"-a", action,
		"--es", "SerialNumber", serialNumber,
		"--es", "StationName", stationName,
	)
	if err != nil {
		return outcome.Failure(fmt.Sprintf("broadcast failed: %v", err))
	}
	if !res.StdoutContains("Broadcast completed") {
		return outcome.Failure(fmt.Sprintf("broadcast not acknowledged: %s", strings.Join(res.Stdout, " ")))
	}
	return outcome.Success("")
}

// LogcatClear empties the device's rolling log buffer so the completion
// marker can only come from this run.
func (c *Client) LogcatClear() error {
	res, err := c.runner.Run("", "adb", c.args("logcat", "-c")...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("logcat -c exited with %d", res.ExitCode)
	}
	return nil
}

// StreamLogcat starts a background logcat limited to the given tag at debug
// level, silencing everything else.
func (c *Client) StreamLogcat(tag string) (proc.Stream, error) {
	return c.starter.Start("adb", c.args("logcat", "-v", "time", tag+":D", "*:S")...)
}
