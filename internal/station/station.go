// Package station implements the production-test procedures. Each station is
// a fixed sequence of fixture commands, device configuration, instrument
// measurements, and a completion wait, with guaranteed teardown.
package station

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/ct1/internal/logger"
	"github.com/harrison/ct1/internal/outcome"
	"github.com/harrison/ct1/internal/rf"
	"github.com/harrison/ct1/internal/uart"
)

// Known station names. Any other name runs the generic completion-wait
// procedure.
const (
	StationATPFWDL = "ATPFWDL"
	StationSARF    = "SARF"
)

// Station identifies one unit under test on one fixture.
type Station struct {
	Name         string
	SerialNumber string
	DeviceID     string
	PortName     string
}

// Result is the outcome of a full station run.
type Result struct {
	Passed   bool
	Duration time.Duration
}

// StepError records which procedure step failed and whether the failure
// aborted the run.
type StepError struct {
	Station   string
	Step      string
	Fatal     bool
	Err       error
	Timestamp time.Time
}

// NewStepError creates a StepError stamped with the current time.
func NewStepError(station, step string, fatal bool, err error) *StepError {
	return &StepError{
		Station:   station,
		Step:      step,
		Fatal:     fatal,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface.
func (e *StepError) Error() string {
	severity := "warning"
	if e.Fatal {
		severity = "fatal"
	}
	if e.Err != nil {
		return fmt.Sprintf("station %s: step %s (%s): %v", e.Station, e.Step, severity, e.Err)
	}
	return fmt.Sprintf("station %s: step %s (%s)", e.Station, e.Step, severity)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// FixtureSender issues a fixture command and reports the fixture's answer.
type FixtureSender interface {
	Send(cmd uart.Command) outcome.Outcome
}

// Flasher drives the firmware download tool.
type Flasher interface {
	Preflight() error
	CheckConnection() outcome.Outcome
	Update() outcome.Outcome
}

// Analyzer reads signal power from the RF analyzer.
type Analyzer interface {
	SignalPower(mode string) (float64, error)
}

// LTEDriver arms LTE band TX test modes and measures RX results.
type LTEDriver interface {
	SetupTX(band int) outcome.Outcome
	RXResult(band int, threshold float64) (float64, bool)
}

// CompletionWaiter runs the on-device test and waits for its completion.
type CompletionWaiter interface {
	Run(ctx context.Context, serialNumber, stationName string) bool
}

// Deps carries the collaborators a procedure drives. Every field is an
// interface or function so test runs need no hardware.
type Deps struct {
	Log         logger.Logger
	Fixture     FixtureSender
	Flash       Flasher
	Analyzer    Analyzer
	LTE         LTEDriver
	Instruments rf.ResourceManager
	Monitor     CompletionWaiter

	// SetupWiFi and SetupBT put the device radios into their TX test
	// modes. Wired to the rf package in production.
	SetupWiFi func() outcome.Outcome
	SetupBT   func() outcome.Outcome

	// Timing knobs, configurable so fixtures with different settle
	// characteristics can be accommodated.
	CommandGap   time.Duration // pause between consecutive fixture commands
	PowerSettle  time.Duration // pause after a power rail command takes effect
	MaskromWait  time.Duration // DC applied -> maskrom mode settle
	BootWait     time.Duration // power applied -> Android boot settle
	RebootWait   time.Duration // flash done -> reboot settle
	LTEBands     []int
	LTEThreshold float64

	Sleep func(time.Duration)
}

// normalized fills defaults so procedures can assume sane deps.
func (d Deps) normalized() Deps {
	if d.Log == nil {
		d.Log = logger.NewNoOpLogger()
	}
	if d.Sleep == nil {
		d.Sleep = time.Sleep
	}
	if d.CommandGap <= 0 {
		d.CommandGap = 500 * time.Millisecond
	}
	if d.PowerSettle <= 0 {
		d.PowerSettle = time.Second
	}
	if d.MaskromWait <= 0 {
		d.MaskromWait = 2 * time.Second
	}
	if d.BootWait <= 0 {
		d.BootWait = 15 * time.Second
	}
	if d.RebootWait <= 0 {
		d.RebootWait = 90 * time.Second
	}
	if len(d.LTEBands) == 0 {
		d.LTEBands = []int{1, 26}
	}
	if d.LTEThreshold == 0 {
		d.LTEThreshold = -50
	}
	return d
}

// Run dispatches the station by name. Unknown names run the generic
// completion-wait procedure.
func Run(ctx context.Context, st Station, deps Deps) (Result, error) {
	switch st.Name {
	case StationATPFWDL:
		return ATPFWDL(ctx, st, deps)
	case StationSARF:
		return SARF(ctx, st, deps)
	default:
		return Generic(ctx, st, deps)
	}
}

// fixtureStep sends one fixture command. A fatal step's failure aborts the
// procedure; a warning step's failure is logged and the run continues, since
// some fixtures do not implement every command.
func fixtureStep(deps Deps, st Station, cmd uart.Command, fatal bool) error {
	out := deps.Fixture.Send(cmd)
	if out.OK() {
		return nil
	}
	err := NewStepError(st.Name, string(cmd), fatal, fmt.Errorf("%s", out.Reason()))
	if !fatal {
		deps.Log.Warnf("Fixture command %s failed (continuing): %s", cmd, out.Reason())
		return nil
	}
	deps.Log.Errorf("Fixture command %s failed: %s", cmd, out.Reason())
	return err
}

// connectionRetries bounds the maskrom connection check.
const connectionRetries = 3

// awaitMaskrom polls the flash tool until the device shows up in maskrom
// mode, with a fixed backoff between attempts.
func awaitMaskrom(deps Deps, st Station) error {
	var last outcome.Outcome
	for attempt := 1; attempt <= connectionRetries; attempt++ {
		last = deps.Flash.CheckConnection()
		if last.OK() {
			return nil
		}
		deps.Log.Warnf("Device not in maskrom mode (attempt %d/%d): %s", attempt, connectionRetries, last.Reason())
		if attempt < connectionRetries {
			deps.Sleep(2 * time.Second)
		}
	}
	return NewStepError(st.Name, "connection check", true, fmt.Errorf("%s", last.Reason()))
}
