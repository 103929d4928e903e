// Package outcome defines the result type returned by every transport call.
//
// Hardware frequently fails to answer: a device that is powered off, a port
// with nothing listening, a tool that prints no confirmation line. Those are
// expected conditions, so transports report them as a Failure value instead
// of an error. Errors are reserved for conditions the caller cannot retry
// around (a port that cannot be opened, a process that cannot be spawned).
package outcome

// Outcome is the result of a single command exchange with the device or an
// instrument. It is either a Success carrying an optional value (the
// accumulated response text, a parsed measurement) or a Failure carrying a
// human-readable reason.
type Outcome struct {
	ok     bool
	value  string
	reason string
}

// Success returns a passing Outcome. value may be empty when the command has
// no meaningful payload.
func Success(value string) Outcome {
	return Outcome{ok: true, value: value}
}

// Failure returns a failing Outcome with the given reason.
func Failure(reason string) Outcome {
	return Outcome{reason: reason}
}

// OK reports whether the command succeeded.
func (o Outcome) OK() bool {
	return o.ok
}

// Value returns the payload of a successful Outcome. Empty for failures.
func (o Outcome) Value() string {
	return o.value
}

// Reason returns the failure reason. Empty for successes.
func (o Outcome) Reason() string {
	return o.reason
}
