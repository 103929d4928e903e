package station

import (
	"context"
	"time"
)

// Generic runs a station with no fixture or instrument choreography of its
// own: it starts the on-device test and waits for completion. Stations whose
// setup happens entirely inside the device-resident app run this way.
func Generic(ctx context.Context, st Station, deps Deps) (Result, error) {
	deps = deps.normalized()
	start := time.Now()

	deps.Log.Infof("=== Station %s: starting run (SN: %s) ===", st.Name, st.SerialNumber)

	passed := deps.Monitor.Run(ctx, st.SerialNumber, st.Name)
	return Result{Passed: passed, Duration: time.Since(start)}, nil
}
