package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harrison/ct1/internal/adb"
	"github.com/harrison/ct1/internal/config"
	"github.com/harrison/ct1/internal/flash"
	"github.com/harrison/ct1/internal/logger"
	"github.com/harrison/ct1/internal/monitor"
	"github.com/harrison/ct1/internal/outcome"
	"github.com/harrison/ct1/internal/portlock"
	"github.com/harrison/ct1/internal/proc"
	"github.com/harrison/ct1/internal/rf"
	"github.com/harrison/ct1/internal/station"
	"github.com/harrison/ct1/internal/uart"
)

// boundFlasher fixes the image path so procedures see a zero-argument
// flashing interface.
type boundFlasher struct {
	tool  *flash.Tool
	image string
}

func (b boundFlasher) Preflight() error { return b.tool.Preflight(b.image) }

func (b boundFlasher) CheckConnection() outcome.Outcome { return b.tool.CheckConnection() }

func (b boundFlasher) Update() outcome.Outcome { return b.tool.Update(b.image) }

// defaultGPIBResource names the pinned instrument when no address override
// is configured.
const defaultGPIBResource = "GPIB0::14::INSTR"

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one station procedure against the unit under test",
		Long: `Run one station procedure for the unit on the fixture.

The station name selects the procedure: ATPFWDL flashes firmware and runs
the on-device test, SARF configures the radios and measures RF power before
the on-device test, any other name runs the on-device test directly.

Configuration is loaded from .ct1/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  ct1 run --StationName ATPFWDL --SerialNumber A123 --comport 3
  ct1 run --StationName SARF --SerialNumber A123 --comport 3 --device 0123456789ABCDEF
  ct1 run --StationName FINAL --SerialNumber A123 --timeout 900`,
		RunE: runCommand,
	}

	cmd.Flags().String("StationName", "", "Station procedure to run (required)")
	cmd.Flags().String("SerialNumber", "", "Serial number of the unit under test")
	cmd.Flags().String("device", "", "ADB device ID (default: first non-emulator device)")
	cmd.Flags().Int("comport", 0, "COM port number of the fixture control link")
	cmd.Flags().Int("timeout", 600, "On-device test completion timeout in seconds")
	cmd.Flags().String("config", "", "Path to config file (default: .ct1/config.yaml)")
	cmd.Flags().String("log-dir", "", "Directory for result files and run transcripts")
	cmd.Flags().Bool("verbose", false, "Show debug-level output")
	cmd.MarkFlagRequired("StationName")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	stationName, _ := cmd.Flags().GetString("StationName")
	serialNumber, _ := cmd.Flags().GetString("SerialNumber")
	deviceID, _ := cmd.Flags().GetString("device")
	comPort, _ := cmd.Flags().GetInt("comport")
	timeoutSec, _ := cmd.Flags().GetInt("timeout")
	logDir, _ := cmd.Flags().GetString("log-dir")
	verbose, _ := cmd.Flags().GetBool("verbose")

	var timeoutFlag *time.Duration
	if cmd.Flags().Changed("timeout") {
		timeout := time.Duration(timeoutSec) * time.Second
		timeoutFlag = &timeout
	}
	var logDirFlag *string
	if cmd.Flags().Changed("log-dir") {
		logDirFlag = &logDir
	}
	var logLevelFlag *string
	if verbose {
		debug := "debug"
		logLevelFlag = &debug
	}
	cfg.MergeWithFlags(timeoutFlag, logDirFlag, logLevelFlag)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runID := uuid.New().String()
	console := logger.NewConsoleLogger(os.Stdout, cfg.LogLevel)
	transcript, err := logger.NewFileLogger(cfg.LogDir, serialNumber, runID, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create run transcript: %w", err)
	}
	defer transcript.Close()
	log := logger.NewMultiLogger(console, transcript)

	log.Infof("CT1 run %s: station %s, serial %q", runID, stationName, serialNumber)

	// SIGINT cancels the run; the procedures treat cancellation as failure
	// and still run their teardown.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	portName := ""
	if comPort > 0 {
		portName, err = uart.PortByNumber(comPort)
		if err != nil {
			return fmt.Errorf("failed to resolve COM port %d: %w", comPort, err)
		}
		lock, err := portlock.New(cfg.LogDir, portName)
		if err != nil {
			return err
		}
		if err := lock.TryAcquire(); err != nil {
			return err
		}
		defer lock.Release()
	}

	runner := proc.NewExecRunner(log)
	starter := proc.NewExecStarter()
	adbClient := adb.NewClient(deviceID, runner, starter, log)

	gpibName := cfg.GPIBAddress
	if gpibName == "" {
		gpibName = defaultGPIBResource
	}

	st := station.Station{
		Name:         stationName,
		SerialNumber: serialNumber,
		DeviceID:     deviceID,
		PortName:     portName,
	}
	lte := rf.NewLTE(adbClient, log)
	deps := station.Deps{
		Log:      log,
		Fixture:  uart.NewClient(portName, cfg.BaudRate, cfg.UARTTimeout, log),
		Flash:    boundFlasher{tool: flash.NewTool(cfg.ToolPath, "", runner, log), image: cfg.ImagePath},
		Analyzer: rf.NewIQxel(cfg.IQxelPath, "", runner, log),
		LTE:      lte,
		Instruments: &rf.StaticManager{
			Gateways: map[string]string{gpibName: cfg.GPIBGateway},
		},
		Monitor: monitor.New(adbClient, log, cfg.LogDir, cfg.CompletionTimeout),
		SetupWiFi: func() outcome.Outcome {
			return rf.SetupWiFi11GChannel7(adbClient, log, nil)
		},
		SetupBT: func() outcome.Outcome {
			return rf.SetupBluetoothTX(adbClient, log, nil)
		},
		MaskromWait:  cfg.MaskromWait,
		BootWait:     cfg.BootWait,
		RebootWait:   cfg.RebootWait,
		LTEBands:     cfg.LTEBands,
		LTEThreshold: cfg.LTERXThreshold,
	}

	result, err := station.Run(ctx, st, deps)
	if err != nil {
		log.Errorf("Station run aborted: %v", err)
	}
	log.Infof("Run finished in %s", result.Duration.Round(time.Second))

	if result.Passed && err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Result: PASS")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Result: FAIL")
	return fmt.Errorf("station %s failed", stationName)
}
