// Package flash drives the vendor upgrade tool that reflashes the device
// over USB. The tool only talks to a device sitting in Maskrom mode, so the
// boot sequence must have completed before any of these calls.
package flash

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/ct1/internal/logger"
	"github.com/harrison/ct1/internal/outcome"
	"github.com/harrison/ct1/internal/proc"
)

// Tool invokes the vendor upgrade tool from its installation directory.
type Tool struct {
	// Path is the directory containing the upgrade tool binary.
	Path string
	// Binary is the tool's executable name.
	Binary string

	runner proc.Runner
	log    logger.Logger
}

// NewTool creates a Tool rooted at path. An empty binary selects the vendor
// default name.
func NewTool(path, binary string, runner proc.Runner, log logger.Logger) *Tool {
	if binary == "" {
		binary = "upgrade_tool"
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Tool{Path: path, Binary: binary, runner: runner, log: log}
}

// Preflight verifies the tool binary and the firmware image exist before a
// run starts. imagePath is resolved against the tool directory unless
// absolute.
func (t *Tool) Preflight(imagePath string) error {
	binary := filepath.Join(t.Path, t.Binary)
	if _, err := os.Stat(binary); err != nil {
		// The Windows deployment ships the tool with an .exe suffix.
		if _, exeErr := os.Stat(binary + ".exe"); exeErr != nil {
			return fmt.Errorf("upgrade tool not found at %s", t.Path)
		}
	}
	img := t.resolveImage(imagePath)
	if _, err := os.Stat(img); err != nil {
		return fmt.Errorf("update image not found at %s", img)
	}
	return nil
}

// CheckConnection lists attached devices and reports whether one is present
// in Maskrom mode. The device is connected when a listing line carries both
// the device-number marker and the Maskrom mode marker.
func (t *Tool) CheckConnection() outcome.Outcome {
	t.log.Infof("=== Checking Device Connection ===")
	res, err := t.runner.Run(t.Path, filepath.Join(t.Path, t.Binary), "LD")
	if err != nil {
		return outcome.Failure(fmt.Sprintf("upgrade tool failed: %v", err))
	}
	for _, line := range res.Stdout {
		if containsAll(line, "DevNo=", "Mode=Maskrom") {
			t.log.Infof("Device connection normal, ready for firmware update")
			return outcome.Success(line)
		}
	}
	return outcome.Failure("no device detected or device not in Maskrom mode")
}

// Update flashes the firmware image. Success requires the tool's own
// confirmation line; the exit status alone is not trusted.
func (t *Tool) Update(imagePath string) outcome.Outcome {
	t.log.Infof("=== Starting Firmware Update ===")
	img := t.resolveImage(imagePath)
	res, err := t.runner.Run(t.Path, filepath.Join(t.Path, t.Binary), "UF", img)
	if err != nil {
		return outcome.Failure(fmt.Sprintf("upgrade tool failed: %v", err))
	}
	for _, line := range res.Stdout {
		if containsAll(line, "Upgrade firmware ok") {
			t.log.Infof("Firmware update successful!")
			return outcome.Success(line)
		}
	}
	return outcome.Failure("firmware update failed")
}

// resolveImage makes a relative image path absolute against the tool dir.
func (t *Tool) resolveImage(imagePath string) string {
	if filepath.IsAbs(imagePath) {
		return imagePath
	}
	return filepath.Join(t.Path, imagePath)
}

func containsAll(line string, substrs ...string) bool {
	for _, s := range substrs {
		if !strings.Contains(line, s) {
			return false
		}
	}
	return true
}
