package uart

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/harrison/ct1/internal/logger"
	"github.com/harrison/ct1/internal/outcome"
)

const (
	// quietPeriod is the settle window after data starts arriving: once the
	// device has answered and stays silent this long, the exchange is over.
	quietPeriod = 500 * time.Millisecond

	// readPoll bounds a single blocking read so the overall timeout and the
	// quiet period are both checked frequently.
	readPoll = 50 * time.Millisecond
)

// OpenFunc opens a serial port. Production code uses serial.Open; tests
// substitute a fake port.
type OpenFunc func(name string, mode *serial.Mode) (serial.Port, error)

// Client sends single-token commands over the UART control link and matches
// the accumulated response against the expected token. The port is opened
// per command and closed on every exit path, so a station procedure never
// holds the port between steps.
type Client struct {
	PortName string
	BaudRate int
	Timeout  time.Duration

	log  logger.Logger
	open OpenFunc
}

// NewClient creates a UART client for the given port. baudRate and timeout
// of zero select the protocol defaults (115200, 5s).
func NewClient(portName string, baudRate int, timeout time.Duration, log logger.Logger) *Client {
	if baudRate == 0 {
		baudRate = 115200
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Client{
		PortName: portName,
		BaudRate: baudRate,
		Timeout:  timeout,
		log:      log,
		open:     serial.Open,
	}
}

// SetOpener replaces the port opener. Intended for tests.
func (c *Client) SetOpener(open OpenFunc) {
	c.open = open
}

// Send writes the command token and reads until the expected response token
// is observed, a quiet period follows the device's answer, or the timeout
// elapses. Absence of the expected token is a Failure, not an error: callers
// decide whether it is fatal. The port is closed before returning on every
// path.
func (c *Client) Send(cmd Command) outcome.Outcome {
	expected, known := ExpectedResponse(cmd)
	if !known {
		return outcome.Failure(fmt.Sprintf("unknown command token %q", cmd))
	}

	c.log.Infof("Sending UART command: %s", cmd)

	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := c.open(c.PortName, mode)
	if err != nil {
		return outcome.Failure(fmt.Sprintf("error opening %s: %v", c.PortName, err))
	}
	defer port.Close()

	// Discard stale input so the match window only covers this exchange.
	if err := port.ResetInputBuffer(); err != nil {
		return outcome.Failure(fmt.Sprintf("error resetting input buffer: %v", err))
	}
	if _, err := port.Write([]byte(cmd)); err != nil {
		return outcome.Failure(fmt.Sprintf("error writing command: %v", err))
	}
	if err := port.SetReadTimeout(readPoll); err != nil {
		return outcome.Failure(fmt.Sprintf("error setting read timeout: %v", err))
	}

	var received strings.Builder
	buf := make([]byte, 256)
	deadline := time.Now().Add(c.Timeout)
	var lastData time.Time

	for time.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil {
			return outcome.Failure(fmt.Sprintf("error reading from %s: %v", c.PortName, err))
		}
		if n > 0 {
			chunk := string(buf[:n])
			received.WriteString(chunk)
			lastData = time.Now()
			c.log.Debugf("UART rx: %q", chunk)
			if strings.Contains(received.String(), expected) {
				c.log.Infof("Success: Received expected response: %s", expected)
				return outcome.Success(received.String())
			}
			continue
		}
		// Some data arrived but the device has gone quiet: the answer is
		// complete, whatever it was.
		if received.Len() > 0 && time.Since(lastData) >= quietPeriod {
			break
		}
	}

	if strings.Contains(received.String(), expected) {
		c.log.Infof("Success: Received expected response: %s", expected)
		return outcome.Success(received.String())
	}
	return outcome.Failure(fmt.Sprintf("expected response %q not found in command output", expected))
}
