package orchestrator

import (
	"context"
	"fmt"

	"github.com/loykin/droidbg/internal/fault"
	"github.com/loykin/droidbg/pkg/template"
)

// stepEnsureDevice fails with DeviceUnavailable when no ready device exists.
// When an AVD is configured it boots the emulator first and waits for it.
func (o *Orchestrator) stepEnsureDevice() Step {
	return Step{Name: "ensure-device", Run: func(ctx context.Context, _ *Artifacts) error {
		if o.device.IsDeviceReady(ctx) {
			return nil
		}
		if o.cfg.AVD == "" {
			return fault.New(fault.KindDeviceUnavailable, "ensure-device", "no ready device attached")
		}
		if err := o.device.StartEmulator(ctx, o.cfg.EmulatorPath, o.cfg.AVD); err != nil {
			return err
		}
		return o.device.WaitForDevice(ctx, o.cfg.Timeouts.DeviceWait)
	}}
}

// stepEnsureApp resolves the app pid, launching the app when it is not
// running. The resolved pid is fixed for the rest of the scenario; a later
// app restart invalidates it and requires a fresh resolve, never reuse.
func (o *Orchestrator) stepEnsureApp() Step {
	return Step{Name: "ensure-app", Run: func(ctx context.Context, a *Artifacts) error {
		if o.cfg.Package == "" {
			return fault.New(fault.KindAppLaunchFailed, "ensure-app", "no package configured")
		}
		pid, ok, err := o.device.GetProcessID(ctx, o.cfg.Package)
		if err != nil {
			return err
		}
		if ok {
			a.PID = pid
			return nil
		}
		if o.cfg.Activity == "" {
			return fault.New(fault.KindAppLaunchFailed, "ensure-app",
				fmt.Sprintf("%s not running and no activity configured to launch it", o.cfg.Package))
		}
		pid, err = o.device.StartApp(ctx, o.cfg.Package, o.cfg.Activity)
		if err != nil {
			return err
		}
		a.PID = pid
		return nil
	}}
}

func (o *Orchestrator) stepClearLogs() Step {
	return Step{Name: "clear-logs", Run: func(ctx context.Context, _ *Artifacts) error {
		o.device.ClearLogs(ctx) // best-effort, never aborts
		return nil
	}}
}

func (o *Orchestrator) stepStartServer() Step {
	return Step{Name: "start-server", Run: func(ctx context.Context, _ *Artifacts) error {
		return o.server.Start(ctx, o.cfg.Port)
	}}
}

func (o *Orchestrator) stepForwardPort() Step {
	return Step{Name: "forward-port", Run: func(ctx context.Context, _ *Artifacts) error {
		if err := o.tool.Forward(ctx, o.cfg.Port, o.cfg.Port); err != nil {
			return err
		}
		o.mu.Lock()
		o.forwardedPort = o.cfg.Port
		o.mu.Unlock()
		return nil
	}}
}

func (o *Orchestrator) stepResolveLibrary() Step {
	return Step{Name: "resolve-library", Run: func(ctx context.Context, a *Artifacts) error {
		if o.cfg.Library == "" {
			return nil // nothing to resolve for this configuration
		}
		addr, err := o.resolver.WaitForLibraryBase(ctx, a.PID, o.cfg.Library)
		if err != nil {
			a.LogExcerpt = o.device.LogExcerpt(ctx, a.PID, 50)
			return err
		}
		a.Address = addr
		return nil
	}}
}

// stepWriteDebuggerScript generates the debugger command file. The
// orchestrator's responsibility ends here: a valid pid, an optional base
// address, and a script the external debugger consumes.
func (o *Orchestrator) stepWriteDebuggerScript() Step {
	return Step{Name: "write-debugger-script", Run: func(_ context.Context, a *Artifacts) error {
		path, err := writeDebuggerScript(o.cfg.Port, a.PID)
		if err != nil {
			return fmt.Errorf("write debugger script: %w", err)
		}
		a.ScriptPath = path
		o.logger.Info("debugger hand-off ready",
			"pid", a.PID, "address", a.Address.String(),
			"invoke", fmt.Sprintf("%s -s %s", o.cfg.LLDBPath, path))
		return nil
	}}
}

func writeDebuggerScript(port, pid int) (string, error) {
	script, err := template.NewGenerator().Generate(template.TypeAttach, template.Params{Port: port, PID: pid})
	if err != nil {
		return "", err
	}
	return script.WriteFile()
}

// Attach is the end-to-end scenario: ready device, running app, debug
// server up, port forwarded, library resolved, debugger script written.
func (o *Orchestrator) Attach() Scenario {
	return Scenario{Name: "attach", Steps: []Step{
		o.stepEnsureDevice(),
		o.stepClearLogs(),
		o.stepEnsureApp(),
		o.stepStartServer(),
		o.stepForwardPort(),
		o.stepResolveLibrary(),
		o.stepWriteDebuggerScript(),
	}}
}

// Launch starts the target app and reports its pid, nothing more.
func (o *Orchestrator) Launch() Scenario {
	return Scenario{Name: "launch", Steps: []Step{
		o.stepEnsureDevice(),
		o.stepClearLogs(),
		o.stepEnsureApp(),
	}}
}

// Resolve waits for the target library in an already-running app.
func (o *Orchestrator) Resolve() Scenario {
	return Scenario{Name: "resolve", Steps: []Step{
		o.stepEnsureDevice(),
		o.stepEnsureApp(),
		o.stepResolveLibrary(),
	}}
}

// Teardown stops the debug server and app and releases the port forward.
// Every step is the same best-effort operation cleanup performs; running it
// as a scenario makes the teardown observable and recordable.
func (o *Orchestrator) Teardown() Scenario {
	return Scenario{Name: "teardown", Steps: []Step{
		{Name: "stop-server", Run: func(ctx context.Context, _ *Artifacts) error {
			return o.server.EnsureStopped(ctx)
		}},
		{Name: "stop-app", Run: func(ctx context.Context, _ *Artifacts) error {
			if o.cfg.Package == "" {
				return nil
			}
			return o.device.StopApp(ctx, o.cfg.Package)
		}},
		{Name: "remove-forward", Run: func(ctx context.Context, _ *Artifacts) error {
			return o.tool.RemoveForward(ctx, o.cfg.Port)
		}},
	}}
}

// EnterURL drives the fixed URL-entry choreography against the running app.
func (o *Orchestrator) EnterURL(url string) Scenario {
	return Scenario{Name: "enter-url", Steps: []Step{
		o.stepEnsureDevice(),
		{Name: "enter-url", Run: func(ctx context.Context, _ *Artifacts) error {
			return o.ui.EnterURLAndSubmit(ctx, url)
		}},
	}}
}
