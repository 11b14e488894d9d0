// Package debugserver manages the lifecycle of the on-device debug server
// (an lldb-server platform listener).
package debugserver

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/loykin/droidbg/internal/adb"
	"github.com/loykin/droidbg/internal/clockx"
	"github.com/loykin/droidbg/internal/fault"
	"github.com/loykin/droidbg/internal/metrics"
)

// State of the managed server.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateFailed   State = "failed"
)

// Controller owns at most one debug-server instance per port. A confirmed
// stop always precedes a start, so Start is idempotent in effect: calling it
// twice never yields two listeners on the same port.
type Controller struct {
	tool  *adb.Tool
	clock clockx.Clock

	// BinaryPath is the server location on the device.
	BinaryPath string

	mu    sync.Mutex
	state State

	logger *slog.Logger
}

const (
	stopSettle  = time.Second
	startSettle = 2 * time.Second
)

func NewController(tool *adb.Tool, binaryPath string, clock clockx.Clock) *Controller {
	if clock == nil {
		clock = clockx.Real()
	}
	return &Controller{
		tool:       tool,
		clock:      clock,
		BinaryPath: binaryPath,
		state:      StateStopped,
		logger:     slog.Default().With("component", "debugserver"),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// processName is what the device process table reports for the server.
func (c *Controller) processName() string { return path.Base(c.BinaryPath) }

// EnsureStopped terminates any existing server process on the device.
// Idempotent: "no process matched" is success.
func (c *Controller) EnsureStopped(ctx context.Context) error {
	res, err := c.tool.Shell(ctx, 0, "pkill", "-f", c.processName())
	if err != nil {
		return err
	}
	// pkill exit 1 means nothing matched.
	if res.ExitCode > 1 {
		return &fault.Error{
			Kind: fault.KindToolInvocationFailed, Op: "server.ensure-stopped",
			Detail: fmt.Sprintf("pkill exit %d", res.ExitCode),
			Stdout: res.Stdout, Stderr: res.Stderr,
		}
	}
	c.setState(StateStopped)
	return nil
}

// VerifyBinaryPresent checks existence and executable permission on the
// device. Absence is a distinct, reported condition, never conflated with a
// generic startup failure.
func (c *Controller) VerifyBinaryPresent(ctx context.Context) (bool, error) {
	res, err := c.tool.Shell(ctx, 0, "test", "-x", c.BinaryPath)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

// VerifyRunning checks the device process table for the server process.
func (c *Controller) VerifyRunning(ctx context.Context) bool {
	res, err := c.tool.Shell(ctx, 0, "pidof", c.processName())
	if err != nil {
		return false
	}
	return res.ExitCode == 0 && len(strings.Fields(res.Stdout)) > 0
}

// Start brings the server up on port: confirmed stop, settle, binary check,
// detached launch, settle, verify. A failed verify earns exactly one extra
// settle-and-verify attempt before failing; slow-booting emulators need the
// grace, everything else deserves a fast report. Worst case about 5s.
func (c *Controller) Start(ctx context.Context, port int) error {
	c.setState(StateStarting)
	if err := c.EnsureStopped(ctx); err != nil {
		c.setState(StateFailed)
		return err
	}
	c.clock.Sleep(stopSettle)

	present, err := c.VerifyBinaryPresent(ctx)
	if err != nil {
		c.setState(StateFailed)
		return err
	}
	if !present {
		c.setState(StateFailed)
		return fault.New(fault.KindBinaryMissing, "server.start", c.BinaryPath)
	}

	listen := fmt.Sprintf("*:%d", port)
	if err := c.tool.ShellDetached(ctx, c.BinaryPath, "platform", "--listen", listen, "--server"); err != nil {
		c.setState(StateFailed)
		return fault.Wrap(fault.KindServerStartFailed, "server.start", err)
	}

	c.clock.Sleep(startSettle)
	if c.VerifyRunning(ctx) {
		c.setState(StateRunning)
		c.logger.Info("debug server running", "port", port, "binary", c.BinaryPath)
		return nil
	}
	// One retry for slow starts.
	metrics.IncServerVerifyRetry()
	c.clock.Sleep(startSettle)
	if c.VerifyRunning(ctx) {
		c.setState(StateRunning)
		c.logger.Info("debug server running after retry", "port", port)
		return nil
	}
	c.setState(StateFailed)
	return fault.New(fault.KindServerStartFailed, "server.start",
		fmt.Sprintf("%s did not appear in the process table on port %d", c.processName(), port))
}
