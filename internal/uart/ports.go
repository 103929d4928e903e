package uart

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo holds details about a serial port.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
}

// listPorts is swappable for tests.
var listPorts = func() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	var result []PortInfo
	for _, p := range ports {
		result = append(result, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
		})
	}
	return result, nil
}

// ListPorts returns the serial ports available on this machine.
func ListPorts() ([]PortInfo, error) {
	return listPorts()
}

// PortByNumber resolves a COM port number (e.g. 3) to its device name
// (e.g. COM3), case-insensitively. Returns an error when no such port is
// attached.
func PortByNumber(n int) (string, error) {
	want := fmt.Sprintf("COM%d", n)
	ports, err := listPorts()
	if err != nil {
		return "", fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	for _, p := range ports {
		if strings.EqualFold(p.Name, want) {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("%s not found", want)
}
