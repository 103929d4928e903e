// Package rf configures the device's radios for factory test modes and
// reads RF measurements from the lab instruments. WiFi and Bluetooth are
// driven through shell-level radio driver commands, LTE through AT commands
// on the modem's tty, and measurements come from the IQxel console and
// GPIB-addressed equipment.
package rf

import (
	"time"

	"github.com/harrison/ct1/internal/adb"
	"github.com/harrison/ct1/internal/logger"
	"github.com/harrison/ct1/internal/outcome"
)

// wifiTestCommands is the fixed wl sequence that puts the 2.4GHz radio into
// continuous packet transmit on channel 7. Order matters: the radio must be
// down before mpc/country changes and up before rate/chanspec. A leading
// "sleep" entry pauses instead of running a command; a leading "root"
// restarts adbd as root.
var wifiTestCommands = [][]string{
	{"root"},
	{"shell", "svc", "wifi", "enable"},
	{"sleep", "2"},
	{"shell", "ifconfig", "wlan0", "up"},
	{"shell", "wl", "down"},
	{"shell", "wl", "mpc", "0"},
	{"shell", "wl", "country", "ALL"},
	{"shell", "wl", "band", "b"},
	{"shell", "wl", "up"},
	{"shell", "wl", "2g_rate", "-h", "7", "-b", "20"},
	{"shell", "wl", "chanspec", "7/20"},
	{"shell", "wl", "phy_watchdog", "0"},
	{"shell", "wl", "scansuppress", "1"},
	{"shell", "wl", "phy_watchdog", "0"},
	{"shell", "wl", "phy_forcecal", "1"},
	{"shell", "wl", "phy_txpwrctrl", "1"},
	{"shell", "wl", "txpwr1", "-1"},
	{"shell", "wl", "pkteng_start", "00:90:4c:14:43:19", "tx", "100", "1000", "0"},
}

// SetupWiFi11GChannel7 puts the WiFi radio into 11G channel 7 TX test mode.
// Individual wl command failures are warnings (some drivers reject a subset
// harmlessly); only an unreachable device fails the setup.
func SetupWiFi11GChannel7(c *adb.Client, log logger.Logger, sleep func(time.Duration)) outcome.Outcome {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if sleep == nil {
		sleep = time.Sleep
	}

	log.Infof("=== Setting WiFi to 2.4GHz (11G) Channel 7 (Test Mode) ===")
	if !c.Await(0, 0) {
		return outcome.Failure("cannot configure WiFi: no ADB device available")
	}

	for _, cmd := range wifiTestCommands {
		switch cmd[0] {
		case "sleep":
			d, _ := time.ParseDuration(cmd[1] + "s")
			sleep(d)
		case "root":
			if _, err := c.Root(); err != nil {
				log.Warnf("adb root failed: %v", err)
			}
		default:
			res, err := c.Shell(cmd[1:]...)
			if err != nil {
				return outcome.Failure("device unreachable while configuring WiFi: " + err.Error())
			}
			if res.ExitCode != 0 {
				log.Warnf("Command may have failed: %v", cmd)
			}
		}
	}

	log.Infof("WiFi 2.4GHz Channel 7 test mode configuration completed")
	return outcome.Success("")
}
