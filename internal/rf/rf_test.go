package rf

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/ct1/internal/adb"
	"github.com/harrison/ct1/internal/proc"
)

// fakeRunner answers adb invocations from a handler and records every call.
type fakeRunner struct {
	handler func(name string, args []string) (proc.Result, error)
	calls   [][]string
}

func (f *fakeRunner) Run(dir, name string, args ...string) (proc.Result, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.handler != nil {
		return f.handler(name, args)
	}
	return proc.Result{}, nil
}

func (f *fakeRunner) callContaining(parts ...string) bool {
	for _, call := range f.calls {
		joined := strings.Join(call, " ")
		all := true
		for _, p := range parts {
			if !strings.Contains(joined, p) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func deviceListedResult() proc.Result {
	return proc.Result{Stdout: []string{"List of devices attached", "ABC123\tdevice"}}
}

func newFakeClient(t *testing.T, handler func(name string, args []string) (proc.Result, error)) (*adb.Client, *fakeRunner) {
	t.Helper()
	runner := &fakeRunner{handler: handler}
	client := adb.NewClient("ABC123", runner, nil, nil)
	client.SetSleep(func(time.Duration) {})
	return client, runner
}

func noSleep(time.Duration) {}

func TestSetupWiFiRunsFullSequence(t *testing.T) {
	client, runner := newFakeClient(t, func(name string, args []string) (proc.Result, error) {
		if len(args) > 0 && args[0] == "devices" {
			return deviceListedResult(), nil
		}
		return proc.Result{}, nil
	})

	out := SetupWiFi11GChannel7(client, nil, noSleep)
	require.True(t, out.OK())

	assert.True(t, runner.callContaining("shell", "wl", "chanspec", "7/20"))
	assert.True(t, runner.callContaining("shell", "wl", "pkteng_start", "00:90:4c:14:43:19"))
	assert.True(t, runner.callContaining("root"))
}

func TestSetupWiFiNonZeroExitIsNotFatal(t *testing.T) {
	client, _ := newFakeClient(t, func(name string, args []string) (proc.Result, error) {
		if len(args) > 0 && args[0] == "devices" {
			return deviceListedResult(), nil
		}
		return proc.Result{ExitCode: 1}, nil
	})

	out := SetupWiFi11GChannel7(client, nil, noSleep)
	if !out.OK() {
		t.Fatalf("expected success despite non-zero wl exits, got failure: %s", out.Reason())
	}
}

func TestSetupWiFiUnreachableDeviceFails(t *testing.T) {
	client, _ := newFakeClient(t, func(name string, args []string) (proc.Result, error) {
		if len(args) > 0 && args[0] == "devices" {
			return deviceListedResult(), nil
		}
		return proc.Result{}, errors.New("device offline")
	})

	out := SetupWiFi11GChannel7(client, nil, noSleep)
	require.False(t, out.OK())
	assert.Contains(t, out.Reason(), "unreachable")
}

func TestSetupWiFiNoDeviceFails(t *testing.T) {
	client, _ := newFakeClient(t, func(name string, args []string) (proc.Result, error) {
		return proc.Result{Stdout: []string{"List of devices attached"}}, nil
	})

	out := SetupWiFi11GChannel7(client, nil, noSleep)
	require.False(t, out.OK())
	assert.Contains(t, out.Reason(), "no ADB device")
}

func TestSetupBluetoothPushFailureIsFatal(t *testing.T) {
	client, _ := newFakeClient(t, func(name string, args []string) (proc.Result, error) {
		if len(args) > 0 && args[0] == "devices" {
			return deviceListedResult(), nil
		}
		for _, a := range args {
			if a == "push" {
				return proc.Result{ExitCode: 1, Stderr: []string{"no such file"}}, nil
			}
		}
		return proc.Result{}, nil
	})

	out := SetupBluetoothTX(client, nil, noSleep)
	require.False(t, out.OK())
	assert.Contains(t, out.Reason(), "push")
}

func TestSetupBluetoothRunsAndRemovesScript(t *testing.T) {
	client, runner := newFakeClient(t, func(name string, args []string) (proc.Result, error) {
		if len(args) > 0 && args[0] == "devices" {
			return deviceListedResult(), nil
		}
		return proc.Result{}, nil
	})

	out := SetupBluetoothTX(client, nil, noSleep)
	require.True(t, out.OK())

	assert.True(t, runner.callContaining("push", btScriptLocal))
	assert.True(t, runner.callContaining("chmod", "777", btScriptRemote))
	assert.True(t, runner.callContaining("rm", btScriptRemote))
}

func TestParseSignalPower(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		want    float64
		wantErr bool
	}{
		{
			name:  "plain readout",
			lines: []string{"connecting...", "Signal power: -12.5dBm", "done"},
			want:  -12.5,
		},
		{
			name:  "spaced value without unit",
			lines: []string{"Signal power:  3.25"},
			want:  3.25,
		},
		{
			name:    "no readout",
			lines:   []string{"connecting...", "done"},
			wantErr: true,
		},
		{
			name:    "garbage value",
			lines:   []string{"Signal power: n/a"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSignalPower(tt.lines)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIQxelSignalPowerModes(t *testing.T) {
	var seenArgs []string
	runner := &fakeRunner{handler: func(name string, args []string) (proc.Result, error) {
		seenArgs = args
		return proc.Result{Stdout: []string{"Signal power: -7dBm"}}, nil
	}}
	iq := NewIQxel("/opt/iqxel", "", runner, nil)

	power, err := iq.SignalPower(IQxelWiFi)
	require.NoError(t, err)
	assert.Equal(t, -7.0, power)
	assert.Equal(t, []string{"-isWiFiTest", "true"}, seenArgs)

	_, err = iq.SignalPower(IQxelBT)
	require.NoError(t, err)
	assert.Equal(t, []string{"-isWiFiTest", "false"}, seenArgs)
}

func TestParseLatestQRXFTM(t *testing.T) {
	lines := []string{
		"+QRXFTM: 1, -80",
		"noise",
		"+QRXFTM: 1, -42",
	}
	v, ok := parseLatestQRXFTM(lines)
	require.True(t, ok)
	assert.Equal(t, -42.0, v)

	_, ok = parseLatestQRXFTM([]string{"nothing here"})
	assert.False(t, ok)
}

func TestLTESetupTXUnsupportedBand(t *testing.T) {
	client, _ := newFakeClient(t, nil)
	lte := NewLTE(client, nil)
	lte.SetSleep(noSleep)

	out := lte.SetupTX(7)
	require.False(t, out.OK())
	assert.Contains(t, out.Reason(), "unsupported")
}

func TestLTESetupTXSendsATCommands(t *testing.T) {
	client, runner := newFakeClient(t, func(name string, args []string) (proc.Result, error) {
		if len(args) > 0 && args[0] == "devices" {
			return deviceListedResult(), nil
		}
		return proc.Result{}, nil
	})
	lte := NewLTE(client, nil)
	lte.SetSleep(noSleep)

	out := lte.SetupTX(1)
	require.True(t, out.OK())

	assert.True(t, runner.callContaining("AT+QRFTESTMODE=1"))
	assert.True(t, runner.callContaining("LTE BAND1", "18300"))
	assert.True(t, runner.callContaining("nohup cat", modemDevice))
}

func TestLTERXResultPassesOnThreshold(t *testing.T) {
	client, _ := newFakeClient(t, func(name string, args []string) (proc.Result, error) {
		if len(args) > 0 && args[0] == "devices" {
			return deviceListedResult(), nil
		}
		joined := strings.Join(args, " ")
		if strings.Contains(joined, "cat "+rxCaptureLog) {
			return proc.Result{Stdout: []string{"+QRXFTM: 1, -40"}}, nil
		}
		return proc.Result{}, nil
	})
	lte := NewLTE(client, nil)
	lte.SetSleep(noSleep)

	v, ok := lte.RXResult(1, -50)
	require.True(t, ok)
	assert.Equal(t, -40.0, v)
}

func TestLTERXResultRetriesThenFails(t *testing.T) {
	probes := 0
	client, runner := newFakeClient(t, func(name string, args []string) (proc.Result, error) {
		if len(args) > 0 && args[0] == "devices" {
			return deviceListedResult(), nil
		}
		joined := strings.Join(args, " ")
		if strings.Contains(joined, "AT+QRXFTM") {
			probes++
		}
		if strings.Contains(joined, "cat "+rxCaptureLog) {
			return proc.Result{Stdout: []string{"+QRXFTM: 1, -90"}}, nil
		}
		return proc.Result{}, nil
	})
	lte := NewLTE(client, nil)
	lte.SetSleep(noSleep)

	_, ok := lte.RXResult(26, -50)
	require.False(t, ok)
	assert.Equal(t, rxMaxAttempts, probes)

	// Capture teardown runs even when every attempt fails.
	assert.True(t, runner.callContaining("pkill"))
	assert.True(t, runner.callContaining("rm -f "+rxCaptureLog))
}

// fixedInstrument records commands and answers queries from a canned map.
type fixedInstrument struct {
	writes  []string
	answers map[string]string
	closed  bool
}

func (f *fixedInstrument) Write(cmd string) error {
	f.writes = append(f.writes, cmd)
	return nil
}

func (f *fixedInstrument) Query(cmd string) (string, error) {
	f.writes = append(f.writes, cmd)
	if ans, ok := f.answers[cmd]; ok {
		return ans, nil
	}
	return "", fmt.Errorf("unexpected query %q", cmd)
}

func (f *fixedInstrument) Close() error {
	f.closed = true
	return nil
}

// listManager serves a fixed name list and a shared instrument.
type listManager struct {
	names  []string
	inst   *fixedInstrument
	opened []string
}

func (m *listManager) Resources() ([]string, error) { return m.names, nil }

func (m *listManager) Open(name string) (Instrument, error) {
	m.opened = append(m.opened, name)
	return m.inst, nil
}

func TestDiscoverPicksFirstGPIBResource(t *testing.T) {
	inst := &fixedInstrument{answers: map[string]string{"*IDN?": "ACME,MODEL1,0,1.0"}}
	rm := &listManager{
		names: []string{"ASRL1::INSTR", "GPIB0::14::INSTR", "GPIB0::15::INSTR"},
		inst:  inst,
	}

	got, err := Discover(rm, nil)
	require.NoError(t, err)
	assert.Same(t, Instrument(inst), got)
	assert.Equal(t, []string{"GPIB0::14::INSTR"}, rm.opened)
	assert.Contains(t, inst.writes, "*IDN?")
}

func TestDiscoverNoGPIBResource(t *testing.T) {
	rm := &listManager{names: []string{"ASRL1::INSTR", "TCPIP0::1.2.3.4::INSTR"}}

	_, err := Discover(rm, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no GPIB instrument")
}

func TestStaticManagerUnknownResource(t *testing.T) {
	m := &StaticManager{Gateways: map[string]string{"GPIB0::14::INSTR": "localhost:1234"}}

	names, err := m.Resources()
	require.NoError(t, err)
	assert.Equal(t, []string{"GPIB0::14::INSTR"}, names)

	_, err = m.Open("GPIB0::99::INSTR")
	require.Error(t, err)
}
