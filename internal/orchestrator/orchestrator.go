// Package orchestrator sequences device, server, resolver, and ui operations
// into named end-to-end scenarios with a guaranteed cleanup path.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/droidbg/internal/adb"
	"github.com/loykin/droidbg/internal/clockx"
	"github.com/loykin/droidbg/internal/config"
	"github.com/loykin/droidbg/internal/debugserver"
	"github.com/loykin/droidbg/internal/execx"
	"github.com/loykin/droidbg/internal/fault"
	"github.com/loykin/droidbg/internal/history"
	"github.com/loykin/droidbg/internal/metrics"
	"github.com/loykin/droidbg/internal/resolver"
	"github.com/loykin/droidbg/internal/uidriver"
)

// Artifacts collects what a scenario produced for the operator and the
// debugger hand-off.
type Artifacts struct {
	PID        int
	Address    resolver.Address
	ScriptPath string // generated debugger command file
	LogExcerpt string // recent device log lines for the target pid
}

// Result is the outcome of one scenario run.
type Result struct {
	Scenario   string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
	Artifacts  Artifacts
}

// Ok reports scenario success.
func (r Result) Ok() bool { return r.Err == nil }

// ExitCode maps the result onto the CLI exit-code convention.
func (r Result) ExitCode() int {
	if r.Err == nil {
		return 0
	}
	return fault.KindOf(r.Err).ExitCode()
}

// Step is one named operation within a scenario. Returning an error aborts
// the scenario; best-effort operations swallow their failures inside Run.
type Step struct {
	Name string
	Run  func(ctx context.Context, a *Artifacts) error
}

// Scenario is a named, ordered step list.
type Scenario struct {
	Name  string
	Steps []Step
}

// Orchestrator wires the components over one shared runner and owns the
// cleanup guarantee. Construct once per process; scenarios run sequentially.
type Orchestrator struct {
	cfg      *config.Config
	tool     *adb.Tool
	device   *adb.Controller
	server   *debugserver.Controller
	resolver *resolver.Resolver
	ui       *uidriver.Driver
	clock    clockx.Clock
	sink     history.Sink

	// forwardedPort is set once a forward is established so cleanup can
	// release it.
	mu            sync.Mutex
	forwardedPort int

	logger *slog.Logger
}

// New builds an orchestrator from configuration. sink may be nil.
func New(cfg *config.Config, runner execx.Runner, clock clockx.Clock, sink history.Sink) *Orchestrator {
	if clock == nil {
		clock = clockx.Real()
	}
	tool := adb.NewTool(runner, cfg.ADBPath, cfg.Serial)
	if cfg.Timeouts.Command > 0 {
		tool.SetTimeout(cfg.Timeouts.Command)
	}

	device := adb.NewController(tool, clock)
	if cfg.Timeouts.DeviceReady > 0 {
		device.ReadyTimeout = cfg.Timeouts.DeviceReady
	}
	if cfg.Timeouts.AppStart > 0 {
		device.AppStartTimeout = cfg.Timeouts.AppStart
	}
	device.DebugWait = cfg.DebugWait

	res := resolver.New(tool, clock)
	if cfg.Timeouts.Resolve > 0 {
		res.Timeout = cfg.Timeouts.Resolve
	}

	ui := uidriver.New(tool, clock)
	if cfg.UI.URLFieldX > 0 {
		ui.URLFieldX = cfg.UI.URLFieldX
	}
	if cfg.UI.URLFieldY > 0 {
		ui.URLFieldY = cfg.UI.URLFieldY
	}

	return &Orchestrator{
		cfg:      cfg,
		tool:     tool,
		device:   device,
		server:   debugserver.NewController(tool, cfg.ServerPath, clock),
		resolver: res,
		ui:       ui,
		clock:    clock,
		sink:     sink,
		logger:   slog.Default().With("component", "orchestrator"),
	}
}

// Device exposes the device controller for read-only commands.
func (o *Orchestrator) Device() *adb.Controller { return o.device }

// Run executes the scenario: steps in order, abort on the first error,
// cleanup exactly once on every exit path. The cleanup guarantee is
// acquired before the first step and released via sync.Once, so an
// interrupt arriving mid-step still funnels through the same sequence.
func (o *Orchestrator) Run(ctx context.Context, sc Scenario) Result {
	res := Result{Scenario: sc.Name, StartedAt: o.clock.Now()}
	o.logger.Info("scenario start", "scenario", sc.Name)

	var once sync.Once
	cleanup := func() { once.Do(func() { o.cleanup() }) }
	defer cleanup()

	for _, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			res.Err = fmt.Errorf("scenario %s interrupted before %s: %w", sc.Name, step.Name, err)
			break
		}
		o.logger.Info("step", "scenario", sc.Name, "step", step.Name)
		if err := step.Run(ctx, &res.Artifacts); err != nil {
			res.Err = fmt.Errorf("step %s: %w", step.Name, err)
			o.reportFailure(sc.Name, step.Name, err, &res.Artifacts)
			break
		}
	}
	cleanup()

	res.FinishedAt = o.clock.Now()
	o.record(res)
	return res
}

// cleanup stops the debug server, force-stops the app, and releases the
// port forward. Failures are logged, never propagated; cleanup must not
// mask the scenario's own error.
func (o *Orchestrator) cleanup() {
	// Scenario context may already be canceled; cleanup gets its own bound.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	o.logger.Debug("cleanup")
	if err := o.server.EnsureStopped(ctx); err != nil {
		o.logger.Warn("cleanup: stop server failed", "error", err)
	}
	if o.cfg.Package != "" {
		if err := o.device.StopApp(ctx, o.cfg.Package); err != nil {
			o.logger.Warn("cleanup: stop app failed", "error", err)
		}
	}
	o.mu.Lock()
	port := o.forwardedPort
	o.forwardedPort = 0
	o.mu.Unlock()
	if port != 0 {
		if err := o.tool.RemoveForward(ctx, port); err != nil {
			o.logger.Warn("cleanup: remove forward failed", "error", err)
		}
	}
}

// reportFailure emits the one-line categorized message plus the last
// captured output of the failing invocation, and appends it to the
// scenario's artifact log when one is configured.
func (o *Orchestrator) reportFailure(scenario, step string, err error, a *Artifacts) {
	kind := fault.KindOf(err)
	o.logger.Error("scenario failed", "scenario", scenario, "step", step, "kind", kind.String(), "error", err)

	var fe *fault.Error
	if errors.As(err, &fe) && (fe.Stdout != "" || fe.Stderr != "") {
		o.logger.Error("last tool output", "stdout", fe.Stdout, "stderr", fe.Stderr)
	}
	if w := o.cfg.Log.ArtifactWriter(scenario); w != nil {
		o.writeArtifactLog(w, scenario, step, err, a)
	}
}

func (o *Orchestrator) writeArtifactLog(w io.WriteCloser, scenario, step string, err error, a *Artifacts) {
	defer func() { _ = w.Close() }()
	fmt.Fprintf(w, "%s scenario=%s step=%s error=%v\n", o.clock.Now().UTC().Format(time.RFC3339), scenario, step, err)
	var fe *fault.Error
	if errors.As(err, &fe) {
		if fe.Stdout != "" {
			fmt.Fprintf(w, "stdout:\n%s\n", fe.Stdout)
		}
		if fe.Stderr != "" {
			fmt.Fprintf(w, "stderr:\n%s\n", fe.Stderr)
		}
	}
	if a.LogExcerpt != "" {
		fmt.Fprintf(w, "device log:\n%s\n", a.LogExcerpt)
	}
}

func (o *Orchestrator) record(res Result) {
	outcome := "ok"
	if res.Err != nil {
		outcome = fault.KindOf(res.Err).String()
	}
	metrics.IncScenarioResult(res.Scenario, outcome)
	metrics.ObserveScenarioDuration(res.Scenario, res.FinishedAt.Sub(res.StartedAt).Seconds())

	if o.sink == nil {
		return
	}
	run := history.Run{
		Scenario:   res.Scenario,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Result:     outcome,
		PID:        res.Artifacts.PID,
	}
	if res.Artifacts.Address != 0 {
		run.Address = res.Artifacts.Address.String()
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.sink.Send(ctx, run); err != nil {
		o.logger.Warn("history sink rejected run", "error", err)
	}
}
