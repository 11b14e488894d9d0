// Package adb wraps the device-bridge command line tool. All device
// interaction in the repository goes through Tool; nothing else shells out.
package adb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loykin/droidbg/internal/execx"
	"github.com/loykin/droidbg/internal/fault"
	"github.com/loykin/droidbg/internal/metrics"
)

// DeviceState is the bridge-reported connectivity state of one device.
type DeviceState string

const (
	StateDevice       DeviceState = "device"
	StateOffline      DeviceState = "offline"
	StateUnauthorized DeviceState = "unauthorized"
	StateUnknown      DeviceState = "unknown"
)

// Device is one row of the bridge device list. Discovered, never persisted.
type Device struct {
	Serial string
	State  DeviceState
}

// Tool invokes the bridge binary, optionally pinned to one device serial.
type Tool struct {
	runner  execx.Runner
	path    string
	serial  string
	timeout time.Duration // default per-command bound
	logger  *slog.Logger
}

const defaultCommandTimeout = 30 * time.Second

func NewTool(runner execx.Runner, path, serial string) *Tool {
	if path == "" {
		path = "adb"
	}
	return &Tool{
		runner:  runner,
		path:    path,
		serial:  serial,
		timeout: defaultCommandTimeout,
		logger:  slog.Default().With("component", "adb"),
	}
}

// SetTimeout overrides the default per-command timeout.
func (t *Tool) SetTimeout(d time.Duration) {
	if d > 0 {
		t.timeout = d
	}
}

// Command runs `adb [-s serial] args...` bounded by timeout (the tool default
// when <= 0). A timed-out or unspawnable invocation is a ToolInvocationFailed
// fault; a non-zero exit is returned to the caller for interpretation.
func (t *Tool) Command(ctx context.Context, timeout time.Duration, args ...string) (execx.Result, error) {
	if timeout <= 0 {
		timeout = t.timeout
	}
	full := args
	if t.serial != "" {
		full = append([]string{"-s", t.serial}, args...)
	}
	t.logger.Debug("exec", "cmd", t.path, "args", strings.Join(full, " "))
	res, err := t.runner.Run(ctx, timeout, t.path, full...)
	metrics.IncToolInvocation(t.path, err == nil && !res.TimedOut && res.ExitCode == 0)
	if err != nil {
		return res, fault.Wrap(fault.KindToolInvocationFailed, "adb."+args[0], err)
	}
	if res.TimedOut {
		return res, &fault.Error{
			Kind:   fault.KindToolInvocationFailed,
			Op:     "adb." + args[0],
			Detail: fmt.Sprintf("timed out after %s", timeout),
			Stdout: res.Stdout,
			Stderr: res.Stderr,
		}
	}
	return res, nil
}

// Shell runs a command on the device via `adb shell`.
func (t *Tool) Shell(ctx context.Context, timeout time.Duration, args ...string) (execx.Result, error) {
	return t.Command(ctx, timeout, append([]string{"shell"}, args...)...)
}

// Devices lists attached devices. The first output line is a header the
// bridge always prints; remaining lines are "<serial>\t<state>".
func (t *Tool) Devices(ctx context.Context) ([]Device, error) {
	res, err := t.Command(ctx, 0, "devices")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &fault.Error{
			Kind: fault.KindToolInvocationFailed, Op: "adb.devices",
			Detail: fmt.Sprintf("exit %d", res.ExitCode),
			Stdout: res.Stdout, Stderr: res.Stderr,
		}
	}
	return parseDeviceList(res.Stdout), nil
}

func parseDeviceList(out string) []Device {
	var devices []Device
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if i == 0 || line == "" {
			continue // header
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		state := DeviceState(fields[1])
		switch state {
		case StateDevice, StateOffline, StateUnauthorized:
		default:
			state = StateUnknown
		}
		devices = append(devices, Device{Serial: fields[0], State: state})
	}
	return devices
}

// ShellDetached launches `adb shell args...` as a detached host process that
// outlives the call. The bridge keeps the device-side command alive for as
// long as the connection stands; used for the debug server listener.
func (t *Tool) ShellDetached(ctx context.Context, args ...string) error {
	full := append([]string{"shell"}, args...)
	if t.serial != "" {
		full = append([]string{"-s", t.serial}, full...)
	}
	t.logger.Debug("exec detached", "cmd", t.path, "args", strings.Join(full, " "))
	return t.runner.Start(ctx, t.path, full...)
}

// Forward maps local tcp:<local> to the device's tcp:<remote>.
func (t *Tool) Forward(ctx context.Context, local, remote int) error {
	res, err := t.Command(ctx, 0, "forward", fmt.Sprintf("tcp:%d", local), fmt.Sprintf("tcp:%d", remote))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &fault.Error{
			Kind: fault.KindToolInvocationFailed, Op: "adb.forward",
			Detail: fmt.Sprintf("exit %d", res.ExitCode),
			Stdout: res.Stdout, Stderr: res.Stderr,
		}
	}
	return nil
}

// RemoveForward releases a previously established local forward. Best-effort:
// a missing forward is not an error.
func (t *Tool) RemoveForward(ctx context.Context, local int) error {
	res, err := t.Command(ctx, 0, "forward", "--remove", fmt.Sprintf("tcp:%d", local))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 && !strings.Contains(res.Stderr, "not found") {
		t.logger.Warn("forward remove failed", "local", local, "stderr", strings.TrimSpace(res.Stderr))
	}
	return nil
}
