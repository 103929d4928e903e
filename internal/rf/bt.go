package rf

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrison/ct1/internal/adb"
	"github.com/harrison/ct1/internal/logger"
	"github.com/harrison/ct1/internal/outcome"
)

const (
	// btScriptLocal is the host-side Bluetooth test script shipped next to
	// the binary.
	btScriptLocal = "./bt_script.sh"
	// btScriptRemote is where the script runs on the device.
	btScriptRemote = "/data/local/tmp/bt_script.sh"
)

// SetupBluetoothTX puts the Bluetooth radio into TX test mode by pushing
// and running the vendor test script on the device. The WiFi radio is taken
// down first; it would otherwise desense the BT measurement.
func SetupBluetoothTX(c *adb.Client, log logger.Logger, sleep func(time.Duration)) outcome.Outcome {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if sleep == nil {
		sleep = time.Sleep
	}

	log.Infof("=== Setting Bluetooth TX Test Mode ===")
	if !c.Await(0, 0) {
		return outcome.Failure("cannot configure Bluetooth: no ADB device available")
	}

	if _, err := c.Root(); err != nil {
		log.Warnf("adb root failed: %v", err)
	}
	sleep(time.Second)

	c.Shell("svc", "bluetooth", "disable")
	c.Shell("wl", "down")

	res, err := c.Push(btScriptLocal, "/data/local/tmp/")
	if err != nil || res.ExitCode != 0 {
		return outcome.Failure(fmt.Sprintf("failed to push Bluetooth script to device: %s", strings.Join(res.Stderr, " ")))
	}

	c.Shell("chmod", "777", btScriptRemote)
	runRes, err := c.Shell(btScriptRemote)
	if err != nil {
		return outcome.Failure("device unreachable while running Bluetooth script: " + err.Error())
	}
	if len(runRes.Stderr) > 0 {
		log.Warnf("Bluetooth script execution may have issues: %s", strings.Join(runRes.Stderr, " "))
	}
	c.Shell("rm", btScriptRemote)

	log.Infof("Bluetooth TX test mode configuration completed")
	return outcome.Success("")
}
