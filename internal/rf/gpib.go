package rf

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/harrison/ct1/internal/logger"
)

// Instrument is a connected measurement instrument that accepts SCPI-style
// commands.
type Instrument interface {
	// Write sends a command that expects no reply.
	Write(cmd string) error
	// Query sends a command and returns the instrument's one-line reply.
	Query(cmd string) (string, error)
	Close() error
}

// ResourceManager enumerates and opens instrument resources.
type ResourceManager interface {
	// Resources lists the visible resource names.
	Resources() ([]string, error)
	// Open connects to a resource by name.
	Open(name string) (Instrument, error)
}

// Discover opens the first GPIB instrument the manager can see and confirms
// the link with an identification query. No GPIB resource is an error; the
// callers treat it as fatal before any band test starts.
func Discover(rm ResourceManager, log logger.Logger) (Instrument, error) {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	names, err := rm.Resources()
	if err != nil {
		return nil, fmt.Errorf("listing instrument resources: %w", err)
	}
	log.Infof("Available instrument resources: %v", names)

	for _, name := range names {
		if !strings.HasPrefix(name, "GPIB") {
			continue
		}
		inst, err := rm.Open(name)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		idn, err := inst.Query("*IDN?")
		if err != nil {
			inst.Close()
			return nil, fmt.Errorf("identifying %s: %w", name, err)
		}
		log.Infof("Connected to instrument %s: %s", name, strings.TrimSpace(idn))
		return inst, nil
	}
	return nil, fmt.Errorf("no GPIB instrument found among %d resources", len(names))
}

// StaticManager serves a fixed resource list, each name mapping to a SCPI
// gateway address. Enumeration over the GPIB bus itself needs a vendor VISA
// stack; stations instead pin their instrument addresses in config.
type StaticManager struct {
	// Gateways maps resource names (e.g. "GPIB0::14::INSTR") to TCP
	// addresses of the SCPI gateway fronting that instrument.
	Gateways map[string]string

	// Timeout applies to dialing and to each query round trip.
	Timeout time.Duration
}

// Resources lists the configured resource names.
func (m *StaticManager) Resources() ([]string, error) {
	names := make([]string, 0, len(m.Gateways))
	for name := range m.Gateways {
		names = append(names, name)
	}
	return names, nil
}

// Open dials the gateway behind the named resource.
func (m *StaticManager) Open(name string) (Instrument, error) {
	addr, ok := m.Gateways[name]
	if !ok {
		return nil, fmt.Errorf("unknown instrument resource %q", name)
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing instrument gateway %s: %w", addr, err)
	}
	return &scpiConn{conn: conn, reader: bufio.NewReader(conn), timeout: timeout}, nil
}

// scpiConn speaks newline-terminated SCPI over a raw TCP socket.
type scpiConn struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

func (s *scpiConn) Write(cmd string) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	_, err := s.conn.Write([]byte(cmd + "\n"))
	return err
}

func (s *scpiConn) Query(cmd string) (string, error) {
	if err := s.Write(cmd); err != nil {
		return "", err
	}
	s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *scpiConn) Close() error {
	return s.conn.Close()
}
