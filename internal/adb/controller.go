package adb

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/droidbg/internal/clockx"
	"github.com/loykin/droidbg/internal/fault"
)

// Controller performs device-level checks and actions on top of Tool.
type Controller struct {
	tool  *Tool
	clock clockx.Clock

	// ReadyTimeout bounds the round-trip probe in IsDeviceReady.
	ReadyTimeout time.Duration
	// AppStartTimeout bounds the pid poll after the launch intent.
	AppStartTimeout time.Duration
	// DebugWait launches the app suspended until a debugger attaches.
	DebugWait bool

	logger *slog.Logger
}

const (
	defaultReadyTimeout    = 5 * time.Second
	defaultAppStartTimeout = 10 * time.Second
	pidPollInterval        = 200 * time.Millisecond
	devicePollInterval     = time.Second
)

func NewController(tool *Tool, clock clockx.Clock) *Controller {
	if clock == nil {
		clock = clockx.Real()
	}
	return &Controller{
		tool:            tool,
		clock:           clock,
		ReadyTimeout:    defaultReadyTimeout,
		AppStartTimeout: defaultAppStartTimeout,
		logger:          slog.Default().With("component", "device"),
	}
}

// Tool exposes the underlying bridge tool for components that need raw
// shell access (resolver, ui driver, debug server).
func (c *Controller) Tool() *Tool { return c.tool }

// IsDeviceReady reports whether at least one device is in the "device" state
// and answers a trivial shell round-trip. Distinguishes "no device" from
// "device present but wedged": both return false, but the latter is logged.
func (c *Controller) IsDeviceReady(ctx context.Context) bool {
	devices, err := c.tool.Devices(ctx)
	if err != nil {
		c.logger.Debug("device list failed", "error", err)
		return false
	}
	ready := false
	for _, d := range devices {
		if d.State == StateDevice {
			ready = true
			break
		}
	}
	if !ready {
		return false
	}
	res, err := c.tool.Shell(ctx, c.ReadyTimeout, "echo", "ready")
	if err != nil || res.ExitCode != 0 || !strings.Contains(res.Stdout, "ready") {
		c.logger.Warn("device listed but unresponsive", "error", err)
		return false
	}
	return true
}

// WaitForDevice polls readiness until timeout. Used after an emulator start.
func (c *Controller) WaitForDevice(ctx context.Context, timeout time.Duration) error {
	deadline := c.clock.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return fault.Wrap(fault.KindDeviceUnavailable, "device.wait", err)
		}
		if c.IsDeviceReady(ctx) {
			return nil
		}
		if !c.clock.Now().Before(deadline) {
			return fault.New(fault.KindDeviceUnavailable, "device.wait",
				fmt.Sprintf("no ready device within %s", timeout))
		}
		c.clock.Sleep(devicePollInterval)
	}
}

// GetProcessID resolves the pid for a package name from the device process
// table. Returns ok=false when no process matches. When several match it
// returns the first; multi-process apps make any other choice
// application-specific, so the ambiguity is documented rather than resolved.
func (c *Controller) GetProcessID(ctx context.Context, pkg string) (int, bool, error) {
	res, err := c.tool.Shell(ctx, 0, "pidof", pkg)
	if err != nil {
		return 0, false, err
	}
	// pidof exits non-zero when nothing matches; that is an absent pid,
	// not a tool failure.
	fields := strings.Fields(res.Stdout)
	if len(fields) == 0 {
		return 0, false, nil
	}
	if len(fields) > 1 {
		c.logger.Debug("multiple pids for package, using first", "package", pkg, "pids", res.Stdout)
	}
	pid, perr := strconv.Atoi(fields[0])
	if perr != nil {
		return 0, false, &fault.Error{
			Kind: fault.KindToolInvocationFailed, Op: "device.pidof",
			Detail: fmt.Sprintf("unparsable pid %q", fields[0]),
			Stdout: res.Stdout, Stderr: res.Stderr,
		}
	}
	return pid, true, nil
}

// StartApp issues the launch intent and polls for the app pid until
// AppStartTimeout. A verifiable condition (pid appears) exists, so the
// wait is a poll rather than a fixed settle.
func (c *Controller) StartApp(ctx context.Context, pkg, activity string) (int, error) {
	args := []string{"am", "start"}
	if c.DebugWait {
		// -D makes the app wait for a debugger before running any code.
		args = append(args, "-D")
	}
	args = append(args, "-n", pkg+"/"+activity)
	res, err := c.tool.Shell(ctx, 0, args...)
	if err != nil {
		return 0, err
	}
	// am exits zero and reports failures like "Error: Activity class ...
	// does not exist" on stdout, so both streams need checking.
	if res.ExitCode != 0 || strings.Contains(res.Stdout, "Error") || strings.Contains(res.Stderr, "Error") {
		return 0, &fault.Error{
			Kind: fault.KindAppLaunchFailed, Op: "device.start-app",
			Detail: "launch intent rejected",
			Stdout: res.Stdout, Stderr: res.Stderr,
		}
	}
	deadline := c.clock.Now().Add(c.AppStartTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return 0, fault.Wrap(fault.KindAppLaunchFailed, "device.start-app", err)
		}
		pid, ok, perr := c.GetProcessID(ctx, pkg)
		if perr != nil {
			return 0, perr
		}
		if ok {
			c.logger.Info("app started", "package", pkg, "pid", pid)
			return pid, nil
		}
		if !c.clock.Now().Before(deadline) {
			return 0, fault.New(fault.KindAppLaunchFailed, "device.start-app",
				fmt.Sprintf("%s: no pid within %s", pkg, c.AppStartTimeout))
		}
		c.clock.Sleep(pidPollInterval)
	}
}

// StopApp force-stops the package. Best-effort: termination is not verified,
// the force-stop intent has no completion signal worth polling for.
func (c *Controller) StopApp(ctx context.Context, pkg string) error {
	res, err := c.tool.Shell(ctx, 0, "am", "force-stop", pkg)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		c.logger.Warn("force-stop returned non-zero", "package", pkg, "exit", res.ExitCode)
	}
	return nil
}

// ClearLogs clears the device log buffer. Failures are swallowed; the log
// buffer is a diagnostic convenience, never a scenario dependency.
func (c *Controller) ClearLogs(ctx context.Context) {
	if _, err := c.tool.Command(ctx, 0, "logcat", "-c"); err != nil {
		c.logger.Debug("log clear failed", "error", err)
	}
}

// LogExcerpt returns the most recent device log lines for the given pid,
// captured as a scenario artifact. Best-effort.
func (c *Controller) LogExcerpt(ctx context.Context, pid, lines int) string {
	res, err := c.tool.Command(ctx, 0, "logcat", "-d", "-t", strconv.Itoa(lines), "--pid", strconv.Itoa(pid))
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	return res.Stdout
}

// StartEmulator launches the named AVD detached; the emulator outlives the
// orchestrator. Callers follow up with WaitForDevice.
func (c *Controller) StartEmulator(ctx context.Context, emulatorPath, avd string) error {
	if emulatorPath == "" {
		emulatorPath = "emulator"
	}
	if err := c.tool.runner.Start(ctx, emulatorPath, "-avd", avd); err != nil {
		return fault.Wrap(fault.KindDeviceUnavailable, "device.start-emulator", err)
	}
	c.logger.Info("emulator starting", "avd", avd)
	return nil
}
