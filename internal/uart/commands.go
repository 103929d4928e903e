// Package uart implements the serial control link to the device's test
// firmware. Commands are plain-text request tokens; success is defined as
// the expected response token appearing as a substring of everything
// received within the timeout window. The protocol is newline-agnostic and
// tolerant of noise, so responses are never parsed as structured frames.
package uart

// Command is a known request token understood by the test firmware.
type Command string

// Request tokens for power and boot sequencing.
const (
	ReqInit     Command = "REQ_INIT"
	ReqBootOn   Command = "REQ_BOOT_ON"
	ReqBootOff  Command = "REQ_BOOT_OFF"
	ReqPowerOn  Command = "REQ_POWER_ON"
	ReqPowerOff Command = "REQ_POWER_OFF"
	ReqDCIn     Command = "REQ_DC_IN"
	ReqDCOut    Command = "REQ_DC_OUT"
)

// expectedResponses maps each request token to the exactly one response
// token that defines its success.
var expectedResponses = map[Command]string{
	ReqInit:     "RES_INIT_OK",
	ReqBootOn:   "RES_BOOT_ON_OK",
	ReqBootOff:  "RES_BOOT_OFF_OK",
	ReqPowerOn:  "RES_POWER_ON_OK",
	ReqPowerOff: "RES_POWER_OFF_OK",
	ReqDCIn:     "RES_DC_IN_OK",
	ReqDCOut:    "RES_DC_OUT_OK",
}

// ExpectedResponse returns the response token that defines success for cmd,
// and whether cmd is a known token.
func ExpectedResponse(cmd Command) (string, bool) {
	resp, ok := expectedResponses[cmd]
	return resp, ok
}

// KnownCommands returns every request token the firmware understands.
func KnownCommands() []Command {
	return []Command{ReqInit, ReqBootOn, ReqBootOff, ReqPowerOn, ReqPowerOff, ReqDCIn, ReqDCOut}
}
