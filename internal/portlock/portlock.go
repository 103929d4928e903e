// Package portlock serializes access to serial ports across runs. A station
// procedure owns its COM port for the whole run; a second process grabbing
// the same port mid-sequence would corrupt the fixture command exchange.
package portlock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// PortLock is an exclusive, process-wide lock on one serial port, backed by
// a flock file under the lock directory.
type PortLock struct {
	flock *flock.Flock
	path  string
}

// New creates a lock for the named serial port. Lock files live under
// lockDir, one per port; the directory is created on first use.
func New(lockDir, portName string) (*PortLock, error) {
	if portName == "" {
		return nil, fmt.Errorf("port name is required")
	}
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory %s: %w", lockDir, err)
	}
	path := filepath.Join(lockDir, sanitize(portName)+".lock")
	return &PortLock{flock: flock.New(path), path: path}, nil
}

// TryAcquire attempts to take the port without blocking. It returns an error
// when another run already holds the port; waiting would only stall the
// operator behind a run of unknown length.
func (p *PortLock) TryAcquire() error {
	acquired, err := p.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock port via %s: %w", p.path, err)
	}
	if !acquired {
		return fmt.Errorf("serial port is in use by another run (lock %s held)", p.path)
	}
	return nil
}

// Release gives the port back.
func (p *PortLock) Release() error {
	if err := p.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release port lock %s: %w", p.path, err)
	}
	return nil
}

// Path returns the lock file location.
func (p *PortLock) Path() string {
	return p.path
}

// sanitize maps a port name to a safe file name. Device paths like
// /dev/ttyUSB0 contain separators.
func sanitize(portName string) string {
	replaced := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(portName)
	return strings.Trim(replaced, "_")
}
