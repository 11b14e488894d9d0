package execx

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Result captures one external invocation. A non-zero exit is not an error
// at this layer; the caller decides what it means.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Runner executes external commands. It is the sole execution primitive:
// no other package spawns processes directly, which keeps every external
// effect observable and fakeable in tests.
type Runner interface {
	// Run executes name with args, bounded by timeout (no bound when <= 0).
	// The returned error reports spawn failures only (binary not found,
	// permission); exit status and timeout are carried in Result.
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error)
	// Start launches a detached child that outlives the call. Used for the
	// emulator; the child is not reaped or tracked here.
	Start(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// waitDelay bounds how long Run waits for the stdio pipes to close after
// the child exits or is killed. A grandchild that inherited the pipes (adb
// forking its daemon server is the usual case) would otherwise hold Wait
// hostage for its own lifetime.
const waitDelay = 500 * time.Millisecond

func NewRunner() *ExecRunner { return &ExecRunner{} }

func (ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	// #nosec G204
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	res := Result{Stdout: outBuf.String(), Stderr: errBuf.String()}
	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			res.ExitCode = ee.ExitCode()
			return res, nil
		}
		if errors.Is(err, exec.ErrWaitDelay) {
			// The child exited cleanly; only an orphan kept the pipes
			// open past the delay. Output up to that point is captured.
			return res, nil
		}
		// Spawn failure: the tool never ran.
		return res, err
	}
	return res, nil
}

func (ExecRunner) Start(ctx context.Context, name string, args ...string) error {
	// #nosec G204
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap in the background so a short-lived child does not linger as a
	// zombie for the life of the orchestrator.
	go func() { _ = cmd.Wait() }()
	return nil
}
