package station

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/ct1/internal/uart"
)

// ATPFWDL runs the firmware download station: power the unit up through the
// fixture, flash the firmware image in maskrom mode, then run the on-device
// test and wait for completion. The fixture is returned to its initial state
// exactly once on every exit path.
func ATPFWDL(ctx context.Context, st Station, deps Deps) (Result, error) {
	deps = deps.normalized()
	start := time.Now()

	deps.Log.Infof("=== Station %s: starting run (SN: %s) ===", st.Name, st.SerialNumber)

	defer func() {
		deps.Log.Infof("Returning fixture to initial state")
		if out := deps.Fixture.Send(uart.ReqInit); !out.OK() {
			deps.Log.Warnf("Fixture init on teardown failed: %s", out.Reason())
		}
	}()

	if err := deps.Flash.Preflight(); err != nil {
		return Result{Duration: time.Since(start)}, NewStepError(st.Name, "preflight", true, err)
	}

	powerUp := []struct {
		cmd   uart.Command
		fatal bool
	}{
		{uart.ReqInit, false},
		{uart.ReqBootOn, true},
		{uart.ReqPowerOn, true},
		{uart.ReqDCIn, true},
	}
	for i, step := range powerUp {
		if err := ctx.Err(); err != nil {
			return Result{Duration: time.Since(start)}, NewStepError(st.Name, "power-up", true, err)
		}
		if err := fixtureStep(deps, st, step.cmd, step.fatal); err != nil {
			return Result{Duration: time.Since(start)}, err
		}
		if i < len(powerUp)-1 {
			deps.Sleep(deps.CommandGap)
		}
	}

	deps.Log.Infof("Waiting %v for maskrom mode...", deps.MaskromWait)
	deps.Sleep(deps.MaskromWait)

	if err := awaitMaskrom(deps, st); err != nil {
		return Result{Duration: time.Since(start)}, err
	}

	// Boot strap released before flashing; the fixture may not implement it.
	if err := fixtureStep(deps, st, uart.ReqBootOff, false); err != nil {
		return Result{Duration: time.Since(start)}, err
	}
	deps.Sleep(time.Second)

	if err := ctx.Err(); err != nil {
		return Result{Duration: time.Since(start)}, NewStepError(st.Name, "flash", true, err)
	}
	deps.Log.Infof("Flashing firmware image...")
	if out := deps.Flash.Update(); !out.OK() {
		return Result{Duration: time.Since(start)}, NewStepError(st.Name, "flash", true, fmt.Errorf("%s", out.Reason()))
	}

	deps.Log.Infof("Firmware flashed, waiting %v for reboot...", deps.RebootWait)
	deps.Sleep(deps.RebootWait)

	passed := deps.Monitor.Run(ctx, st.SerialNumber, st.Name)
	return Result{Passed: passed, Duration: time.Since(start)}, nil
}
