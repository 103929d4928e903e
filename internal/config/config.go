// Package config loads the station configuration for a CT1 run.
//
// Configuration lives in .ct1/config.yaml (or an explicit --config path).
// A missing file is not an error: every field has a default matching the
// factory deployment, and CLI flags override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents CT1 station configuration options.
type Config struct {
	// ToolPath is the directory containing the vendor upgrade tool.
	ToolPath string `yaml:"tool_path"`

	// ImagePath is the firmware image flashed by the ATPFWDL station,
	// relative to ToolPath unless absolute.
	ImagePath string `yaml:"image_path"`

	// IQxelPath is the directory containing the IQxel Console executable.
	IQxelPath string `yaml:"iqxel_path"`

	// LogDir is the directory for run transcripts and pulled result files.
	LogDir string `yaml:"log_dir"`

	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// BaudRate is the UART control link speed.
	BaudRate int `yaml:"baud_rate"`

	// UARTTimeout is the per-command UART response window.
	UARTTimeout time.Duration `yaml:"uart_timeout"`

	// CompletionTimeout is the wall-clock budget for the on-device test to
	// report completion.
	CompletionTimeout time.Duration `yaml:"completion_timeout"`

	// BootWait is how long SARF waits for the device to boot after DC in.
	BootWait time.Duration `yaml:"boot_wait"`

	// MaskromWait is how long ATPFWDL waits for Maskrom mode after DC in.
	MaskromWait time.Duration `yaml:"maskrom_wait"`

	// RebootWait is how long ATPFWDL waits after flashing before the
	// completion broadcast. Chosen to exceed observed boot time.
	RebootWait time.Duration `yaml:"reboot_wait"`

	// LTEBands lists the LTE bands exercised by the SARF station.
	LTEBands []int `yaml:"lte_bands"`

	// LTERXThreshold is the minimum acceptable LTE RX measurement in dBm.
	LTERXThreshold float64 `yaml:"lte_rx_threshold"`

	// GPIBAddress pins the GPIB instrument address. Empty means discover
	// the first GPIB* resource.
	GPIBAddress string `yaml:"gpib_address"`

	// GPIBGateway is the host:port of the SCPI gateway fronting the GPIB
	// bus.
	GPIBGateway string `yaml:"gpib_gateway"`
}

// DefaultConfig returns a Config with the factory default values.
func DefaultConfig() *Config {
	return &Config{
		ToolPath:          "upgrade_tool_v2.33_for_window",
		ImagePath:         "update.img",
		IQxelPath:         "IQxel",
		LogDir:            "CT1_LOG",
		LogLevel:          "info",
		BaudRate:          115200,
		UARTTimeout:       5 * time.Second,
		CompletionTimeout: 300 * time.Second,
		BootWait:          15 * time.Second,
		MaskromWait:       2 * time.Second,
		RebootWait:        90 * time.Second,
		LTEBands:          []int{1, 26},
		LTERXThreshold:    -50,
		GPIBAddress:       "",
		GPIBGateway:       "localhost:1234",
	}
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations come in as strings ("90s", "5m"), so unmarshal through a
	// shadow struct and parse them explicitly.
	type yamlConfig struct {
		ToolPath          string  `yaml:"tool_path"`
		ImagePath         string  `yaml:"image_path"`
		IQxelPath         string  `yaml:"iqxel_path"`
		LogDir            string  `yaml:"log_dir"`
		LogLevel          string  `yaml:"log_level"`
		BaudRate          int     `yaml:"baud_rate"`
		UARTTimeout       string  `yaml:"uart_timeout"`
		CompletionTimeout string  `yaml:"completion_timeout"`
		BootWait          string  `yaml:"boot_wait"`
		MaskromWait       string  `yaml:"maskrom_wait"`
		RebootWait        string  `yaml:"reboot_wait"`
		LTEBands          []int   `yaml:"lte_bands"`
		LTERXThreshold    *float64 `yaml:"lte_rx_threshold"`
		GPIBAddress       string  `yaml:"gpib_address"`
		GPIBGateway       string  `yaml:"gpib_gateway"`
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yc.ToolPath != "" {
		cfg.ToolPath = yc.ToolPath
	}
	if yc.ImagePath != "" {
		cfg.ImagePath = yc.ImagePath
	}
	if yc.IQxelPath != "" {
		cfg.IQxelPath = yc.IQxelPath
	}
	if yc.LogDir != "" {
		cfg.LogDir = yc.LogDir
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.BaudRate != 0 {
		cfg.BaudRate = yc.BaudRate
	}
	if len(yc.LTEBands) > 0 {
		cfg.LTEBands = yc.LTEBands
	}
	if yc.LTERXThreshold != nil {
		cfg.LTERXThreshold = *yc.LTERXThreshold
	}
	if yc.GPIBAddress != "" {
		cfg.GPIBAddress = yc.GPIBAddress
	}
	if yc.GPIBGateway != "" {
		cfg.GPIBGateway = yc.GPIBGateway
	}

	for _, d := range []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{yc.UARTTimeout, &cfg.UARTTimeout, "uart_timeout"},
		{yc.CompletionTimeout, &cfg.CompletionTimeout, "completion_timeout"},
		{yc.BootWait, &cfg.BootWait, "boot_wait"},
		{yc.MaskromWait, &cfg.MaskromWait, "maskrom_wait"},
		{yc.RebootWait, &cfg.RebootWait, "reboot_wait"},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.name, d.raw, err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

// LoadConfigFromDir loads .ct1/config.yaml relative to the given directory,
// falling back to defaults when the file is absent.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".ct1", "config.yaml"))
}

// MergeWithFlags overlays CLI flag values onto the configuration.
// Nil pointers mean the flag was not set and the config value stands.
func (c *Config) MergeWithFlags(timeout *time.Duration, logDir *string, logLevel *string) {
	if timeout != nil {
		c.CompletionTimeout = *timeout
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
}

// Validate checks the merged configuration for values no run could work with.
func (c *Config) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", c.BaudRate)
	}
	if c.UARTTimeout <= 0 {
		return fmt.Errorf("uart_timeout must be positive, got %s", c.UARTTimeout)
	}
	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("completion_timeout must be positive, got %s", c.CompletionTimeout)
	}
	if len(c.LTEBands) == 0 {
		return fmt.Errorf("lte_bands must not be empty")
	}
	for _, band := range c.LTEBands {
		if band <= 0 {
			return fmt.Errorf("invalid LTE band %d", band)
		}
	}
	return nil
}
