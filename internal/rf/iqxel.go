package rf

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/harrison/ct1/internal/logger"
	"github.com/harrison/ct1/internal/proc"
)

// IQxel measurement modes.
const (
	IQxelWiFi = "WiFi"
	IQxelBT   = "BT"
)

// IQxel invokes the vendor signal analyzer console and parses its signal
// power readout.
type IQxel struct {
	// Path is the directory containing the console executable.
	Path string
	// Binary is the console executable name.
	Binary string

	runner proc.Runner
	log    logger.Logger
}

// NewIQxel creates an IQxel wrapper rooted at path. An empty binary selects
// the vendor default.
func NewIQxel(path, binary string, runner proc.Runner, log logger.Logger) *IQxel {
	if binary == "" {
		binary = "Console.exe"
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &IQxel{Path: path, Binary: binary, runner: runner, log: log}
}

// SignalPower runs a measurement in the given mode (IQxelWiFi or IQxelBT)
// and returns the parsed signal power in dBm. A missing or unparsable
// readout is an error: the analyzer answered with something the station
// cannot trust.
func (q *IQxel) SignalPower(mode string) (float64, error) {
	q.log.Infof("=== Get IQxel Test Result ===")

	isWiFi := "false"
	if mode == IQxelWiFi {
		isWiFi = "true"
	}

	res, err := q.runner.Run(q.Path, filepath.Join(q.Path, q.Binary), "-isWiFiTest", isWiFi)
	if err != nil {
		return 0, fmt.Errorf("IQxel console failed: %w", err)
	}
	if res.ExitCode != 0 {
		q.log.Warnf("IQxel command returned non-zero code: %d", res.ExitCode)
	}

	power, err := ParseSignalPower(res.Stdout)
	if err != nil {
		return 0, err
	}
	q.log.Infof("Found signal power: %v dBm", power)
	return power, nil
}

// ParseSignalPower extracts the first "Signal power: <value>dBm" readout
// from console output.
func ParseSignalPower(lines []string) (float64, error) {
	for _, line := range lines {
		idx := strings.Index(line, "Signal power:")
		if idx < 0 {
			continue
		}
		value := strings.TrimSpace(line[idx+len("Signal power:"):])
		value = strings.TrimSpace(strings.Replace(value, "dBm", "", 1))
		power, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("error parsing signal power value %q: %w", value, err)
		}
		return power, nil
	}
	return 0, fmt.Errorf("no signal power readout in console output")
}
