// Package logger provides the logging sinks for a CT1 station run.
//
// Every run produces two interleaved views of the same transcript: live
// console output for the operator and a persistent log file for the factory
// records. Implementations are thread-safe. Components receive the Logger
// interface; they never write to os.Stdout directly, so a run's entire
// transcript can be captured by a scoped sink instead of a process-wide
// stream substitution.
package logger

// Logger is the printf-style logging interface consumed by every component
// of a station run.
type Logger interface {
	// Debugf logs verbose diagnostic detail (individual shell commands,
	// raw response bytes).
	Debugf(format string, args ...interface{})
	// Infof logs normal progress (step banners, command results).
	Infof(format string, args ...interface{})
	// Warnf logs non-fatal problems (a best-effort command that failed).
	Warnf(format string, args ...interface{})
	// Errorf logs fatal problems that abort the running procedure.
	Errorf(format string, args ...interface{})
}

// MultiLogger fans log calls out to several sinks, typically the console
// logger and the run transcript file.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger creates a MultiLogger delegating to the given sinks.
// Nil sinks are skipped.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	ml := &MultiLogger{}
	for _, s := range sinks {
		if s != nil {
			ml.sinks = append(ml.sinks, s)
		}
	}
	return ml
}

// Debugf forwards to all sinks.
func (ml *MultiLogger) Debugf(format string, args ...interface{}) {
	for _, s := range ml.sinks {
		s.Debugf(format, args...)
	}
}

// Infof forwards to all sinks.
func (ml *MultiLogger) Infof(format string, args ...interface{}) {
	for _, s := range ml.sinks {
		s.Infof(format, args...)
	}
}

// Warnf forwards to all sinks.
func (ml *MultiLogger) Warnf(format string, args ...interface{}) {
	for _, s := range ml.sinks {
		s.Warnf(format, args...)
	}
}

// Errorf forwards to all sinks.
func (ml *MultiLogger) Errorf(format string, args ...interface{}) {
	for _, s := range ml.sinks {
		s.Errorf(format, args...)
	}
}

// NoOpLogger discards all log messages. Useful for tests.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// Debugf is a no-op implementation.
func (n *NoOpLogger) Debugf(format string, args ...interface{}) {}

// Infof is a no-op implementation.
func (n *NoOpLogger) Infof(format string, args ...interface{}) {}

// Warnf is a no-op implementation.
func (n *NoOpLogger) Warnf(format string, args ...interface{}) {}

// Errorf is a no-op implementation.
func (n *NoOpLogger) Errorf(format string, args ...interface{}) {}
