package station

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/ct1/internal/rf"
	"github.com/harrison/ct1/internal/uart"
)

// SARF runs the RF measurement station: power the unit, put each radio into
// its TX test mode, read power from the analyzer, run the LTE band sweep
// against the GPIB instrument, then run the on-device test. The instrument
// link is closed and the fixture reset exactly once on every exit path.
func SARF(ctx context.Context, st Station, deps Deps) (Result, error) {
	deps = deps.normalized()
	start := time.Now()

	deps.Log.Infof("=== Station %s: starting run (SN: %s) ===", st.Name, st.SerialNumber)

	var instrument rf.Instrument
	defer func() {
		if instrument != nil {
			if err := instrument.Close(); err != nil {
				deps.Log.Warnf("Closing instrument failed: %v", err)
			}
		}
		deps.Log.Infof("Returning fixture to initial state")
		if out := deps.Fixture.Send(uart.ReqInit); !out.OK() {
			deps.Log.Warnf("Fixture init on teardown failed: %s", out.Reason())
		}
	}()

	// Power rail commands get a longer settle than the init handshake; the
	// rails need to stabilize before the next command lands.
	powerUp := []struct {
		cmd    uart.Command
		fatal  bool
		settle time.Duration
	}{
		{uart.ReqInit, false, deps.CommandGap},
		{uart.ReqPowerOn, true, deps.PowerSettle},
		{uart.ReqDCIn, true, deps.PowerSettle},
	}
	for _, step := range powerUp {
		if err := ctx.Err(); err != nil {
			return Result{Duration: time.Since(start)}, NewStepError(st.Name, "power-up", true, err)
		}
		if err := fixtureStep(deps, st, step.cmd, step.fatal); err != nil {
			return Result{Duration: time.Since(start)}, err
		}
		deps.Sleep(step.settle)
	}

	deps.Log.Infof("Waiting %v for Android boot...", deps.BootWait)
	deps.Sleep(deps.BootWait)

	if out := deps.SetupWiFi(); !out.OK() {
		return Result{Duration: time.Since(start)}, NewStepError(st.Name, "wifi setup", true, fmt.Errorf("%s", out.Reason()))
	}
	wifiPower, err := deps.Analyzer.SignalPower(rf.IQxelWiFi)
	if err != nil {
		return Result{Duration: time.Since(start)}, NewStepError(st.Name, "wifi measurement", true, err)
	}
	deps.Log.Infof("WiFi signal power: %v dBm", wifiPower)

	if out := deps.SetupBT(); !out.OK() {
		return Result{Duration: time.Since(start)}, NewStepError(st.Name, "bt setup", true, fmt.Errorf("%s", out.Reason()))
	}
	btPower, err := deps.Analyzer.SignalPower(rf.IQxelBT)
	if err != nil {
		return Result{Duration: time.Since(start)}, NewStepError(st.Name, "bt measurement", true, err)
	}
	deps.Log.Infof("Bluetooth signal power: %v dBm", btPower)

	// The band sweep needs the instrument; discovery failure aborts before
	// any LTE configuration touches the modem.
	instrument, err = rf.Discover(deps.Instruments, deps.Log)
	if err != nil {
		return Result{Duration: time.Since(start)}, NewStepError(st.Name, "instrument discovery", true, err)
	}

	for _, band := range deps.LTEBands {
		if err := ctx.Err(); err != nil {
			return Result{Duration: time.Since(start)}, NewStepError(st.Name, "lte sweep", true, err)
		}
		if err := sweepBand(deps, st, instrument, band); err != nil {
			return Result{Duration: time.Since(start)}, err
		}
	}

	passed := deps.Monitor.Run(ctx, st.SerialNumber, st.Name)
	return Result{Passed: passed, Duration: time.Since(start)}, nil
}

// sweepBand runs the TX measurement and RX check for one LTE band.
func sweepBand(deps Deps, st Station, instrument rf.Instrument, band int) error {
	step := fmt.Sprintf("lte band %d", band)

	if out := deps.LTE.SetupTX(band); !out.OK() {
		return NewStepError(st.Name, step, true, fmt.Errorf("%s", out.Reason()))
	}

	if err := instrument.Write(fmt.Sprintf("BAND %d", band)); err != nil {
		return NewStepError(st.Name, step, true, fmt.Errorf("selecting instrument band: %w", err))
	}
	power, err := instrument.Query("POWER? AVG")
	if err != nil {
		return NewStepError(st.Name, step, true, fmt.Errorf("reading TX power: %w", err))
	}
	deps.Log.Infof("LTE band %d TX power: %s", band, power)

	rx, ok := deps.LTE.RXResult(band, deps.LTEThreshold)
	if !ok {
		return NewStepError(st.Name, step, true,
			fmt.Errorf("no RX result above %v dBm threshold", deps.LTEThreshold))
	}
	deps.Log.Infof("LTE band %d RX result: %v dBm", band, rx)
	return nil
}
