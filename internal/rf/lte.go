package rf

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/harrison/ct1/internal/adb"
	"github.com/harrison/ct1/internal/logger"
	"github.com/harrison/ct1/internal/outcome"
)

const (
	// modemDevice is the modem AT command tty on the device.
	modemDevice = "/dev/ttyUSB2"
	// rxCaptureLog collects modem responses while an RX test runs.
	rxCaptureLog = "/data/local/tmp/rxlog.txt"
	// rxMaxAttempts bounds the RX measurement retry loop.
	rxMaxAttempts = 3
)

// lteBand holds the AT command parameters for one supported band. Adding a
// band means adding a table entry; bands are not user-extensible at runtime.
type lteBand struct {
	txArm   string // AT+QRFTEST arming command
	rxProbe string // AT+QRXFTM measurement command
}

var lteBands = map[int]lteBand{
	1: {
		txArm:   `AT+QRFTEST=\"LTE BAND1\",18300,\"ON\",70,1`,
		rxProbe: `AT+QRXFTM=1,1,300,0,0,3`,
	},
	26: {
		txArm:   `AT+QRFTEST=\"LTE BAND26\",26865,\"ON\",70,1`,
		rxProbe: `AT+QRXFTM=1,18,8865,0,0,3`,
	},
}

// qrxftmPattern matches a "+QRXFTM: <chain>, <value>" modem result line.
var qrxftmPattern = regexp.MustCompile(`\+QRXFTM:\s*(-?\d+),\s*(-?\d+)`)

// LTE drives the modem's RF test mode over AT commands written to its tty
// through the adb shell.
type LTE struct {
	adb   *adb.Client
	log   logger.Logger
	sleep func(time.Duration)
}

// NewLTE creates an LTE test driver on the given adb client.
func NewLTE(c *adb.Client, log logger.Logger) *LTE {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &LTE{adb: c, log: log, sleep: time.Sleep}
}

// SetSleep replaces the settle sleeps. Intended for tests.
func (l *LTE) SetSleep(sleep func(time.Duration)) {
	l.sleep = sleep
}

// SupportedBands returns the bands present in the table, for validation.
func SupportedBands() []int {
	return []int{1, 26}
}

// SetupTX puts the modem into RF test mode and arms continuous TX on the
// given band. A band without a table entry is a Failure.
func (l *LTE) SetupTX(band int) outcome.Outcome {
	b, ok := lteBands[band]
	if !ok {
		return outcome.Failure(fmt.Sprintf("unsupported LTE band %d", band))
	}

	l.log.Infof("=== Setting LTE Band %d TX Test Mode ===", band)
	if !l.adb.Await(0, 0) {
		return outcome.Failure("cannot configure LTE test mode: no ADB device available")
	}

	l.adb.Root()
	l.sleep(time.Second)

	// Capture modem chatter for the later RX parse.
	l.adb.Shell(fmt.Sprintf("rm -f %s", rxCaptureLog))
	l.adb.Shell(fmt.Sprintf("nohup cat %s > %s 2>&1 &", modemDevice, rxCaptureLog))
	l.sleep(time.Second)

	l.log.Infof("Entering RF test mode...")
	res, err := l.adb.Shell(fmt.Sprintf(`echo "AT+QRFTESTMODE=1\r\n" > %s`, modemDevice))
	if err != nil || res.ExitCode != 0 {
		return outcome.Failure("failed to enter RF test mode")
	}
	l.sleep(time.Second)

	res, err = l.adb.Shell(fmt.Sprintf(`echo "%s\r\n" > %s`, b.txArm, modemDevice))
	if err != nil || res.ExitCode != 0 {
		return outcome.Failure(fmt.Sprintf("failed to configure LTE band %d", band))
	}

	l.log.Infof("LTE Band %d TX test mode configuration completed", band)
	return outcome.Success("")
}

// RXResult measures RX signal power on the given band. Each attempt re-arms
// the band, issues the RX probe, waits for the modem to answer, and parses
// the most recent result line from the capture log; the value is accepted
// only when it meets the threshold. After rxMaxAttempts failures there is no
// result and ok is false. The modem capture is torn down on every path.
func (l *LTE) RXResult(band int, threshold float64) (value float64, ok bool) {
	b, known := lteBands[band]
	if !known {
		l.log.Errorf("Unsupported LTE band %d", band)
		return 0, false
	}

	l.log.Infof("=== Getting LTE Band %d RX Test Result ===", band)
	if !l.adb.Await(0, 0) {
		l.log.Errorf("Cannot get LTE RX test result: no ADB device available")
		return 0, false
	}

	defer func() {
		l.adb.Shell(fmt.Sprintf(`pkill -f "cat %s"`, modemDevice))
		l.adb.Shell(fmt.Sprintf("rm -f %s", rxCaptureLog))
	}()

	for attempt := 0; attempt < rxMaxAttempts; attempt++ {
		l.adb.Shell(fmt.Sprintf(`echo "%s\r\n" > %s`, b.txArm, modemDevice))
		l.sleep(time.Second)
		l.adb.Shell(fmt.Sprintf(`printf "%s\r\n" > %s`, b.rxProbe, modemDevice))
		l.sleep(2 * time.Second)

		res, err := l.adb.Shell("cat", rxCaptureLog)
		if err != nil {
			l.log.Warnf("Failed to read RX capture log: %v", err)
			continue
		}

		measured, found := parseLatestQRXFTM(res.Stdout)
		if !found {
			l.log.Warnf("No valid +QRXFTM result found")
		} else {
			l.log.Infof("Parsed LTE RX value (latest): %v dBm", measured)
			if measured >= threshold {
				l.log.Infof("PASS: %v >= %v", measured, threshold)
				return measured, true
			}
			l.log.Infof("RETRY: %v < %v", measured, threshold)
		}
		l.sleep(time.Second)
	}

	l.log.Errorf("FAILED: Exceeded maximum retries (%d) without valid result", rxMaxAttempts)
	return 0, false
}

// parseLatestQRXFTM returns the value of the most recent +QRXFTM result in
// the capture output.
func parseLatestQRXFTM(lines []string) (float64, bool) {
	matches := qrxftmPattern.FindAllStringSubmatch(strings.Join(lines, "\n"), -1)
	if len(matches) == 0 {
		return 0, false
	}
	last := matches[len(matches)-1]
	value, err := strconv.ParseFloat(last[2], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
