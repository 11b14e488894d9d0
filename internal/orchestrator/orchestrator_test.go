package orchestrator

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/droidbg/internal/clockx"
	"github.com/loykin/droidbg/internal/config"
	"github.com/loykin/droidbg/internal/execx"
	"github.com/loykin/droidbg/internal/execx/execxtest"
	"github.com/loykin/droidbg/internal/fault"
	"github.com/loykin/droidbg/internal/history"
)

const sampleMaps = "7f0000000000-7f0000100000 r-xp 00000000 fd:00 1 /data/app/lib/libtarget.so\n"

func testConfig() *config.Config {
	return &config.Config{
		Package:    "com.example.app",
		Activity:   ".MainActivity",
		ServerPath: "/data/local/tmp/lldb-server",
		Library:    "libtarget.so",
		Port:       5039,
		ADBPath:    "adb",
		LLDBPath:   "lldb",
		Timeouts: config.Timeouts{
			DeviceReady: 5 * time.Second,
			DeviceWait:  30 * time.Second,
			AppStart:    10 * time.Second,
			Resolve:     30 * time.Second,
			Command:     30 * time.Second,
		},
	}
}

// fakeDevice scripts a full device for end-to-end scenario tests.
type fakeDevice struct {
	appPID         string // "" means app not running
	serverVerifies bool
	verifyCalls    int
}

func (d *fakeDevice) handle(_ string, args []string) (execx.Result, error) {
	line := strings.Join(args, " ")
	switch {
	case strings.HasSuffix(line, "devices"):
		return execx.Result{Stdout: "List of devices attached\nemulator-5554\tdevice\n"}, nil
	case strings.Contains(line, "echo ready"):
		return execx.Result{Stdout: "ready\n"}, nil
	case strings.Contains(line, "pidof lldb-server"):
		d.verifyCalls++
		if d.serverVerifies {
			return execx.Result{Stdout: "999\n"}, nil
		}
		return execx.Result{ExitCode: 1}, nil
	case strings.Contains(line, "pidof"):
		if d.appPID == "" {
			return execx.Result{ExitCode: 1}, nil
		}
		return execx.Result{Stdout: d.appPID + "\n"}, nil
	case strings.Contains(line, "pkill"):
		return execx.Result{ExitCode: 1}, nil
	case strings.Contains(line, "test -x"):
		return execx.Result{}, nil
	case strings.Contains(line, "/maps"):
		return execx.Result{Stdout: sampleMaps}, nil
	}
	return execx.Result{}, nil
}

func newTestOrchestrator(t *testing.T, dev *fakeDevice, sink history.Sink) (*Orchestrator, *execxtest.FakeRunner) {
	t.Helper()
	fake := &execxtest.FakeRunner{Handle: dev.handle}
	o := New(testConfig(), fake, clockx.NewFake(time.Unix(0, 0)), sink)
	return o, fake
}

func TestAttachScenarioEndToEnd(t *testing.T) {
	dev := &fakeDevice{appPID: "1234", serverVerifies: true}
	o, fake := newTestOrchestrator(t, dev, nil)

	res := o.Run(context.Background(), o.Attach())
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.ExitCode())
	assert.Equal(t, 1234, res.Artifacts.PID)
	assert.Equal(t, "0x7f0000000000", res.Artifacts.Address.String())

	// App was already running: no launch intent issued.
	assert.Zero(t, fake.CountMatching("am start"))
	// Server verified on the first attempt: zero retries consumed.
	assert.Equal(t, 1, dev.verifyCalls)

	// Debugger script contains the attach directive.
	require.NotEmpty(t, res.Artifacts.ScriptPath)
	data, err := os.ReadFile(res.Artifacts.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "attach 1234")
	assert.Contains(t, string(data), "connect://localhost:5039")
	assert.Contains(t, string(data), "continue")

	// Cleanup ran: forward released, app stopped, server stop attempted again.
	assert.Equal(t, 1, fake.CountMatching("forward --remove tcp:5039"))
	assert.Equal(t, 1, fake.CountMatching("am force-stop com.example.app"))
}

func TestAttachLaunchesAppWhenNotRunning(t *testing.T) {
	dev := &fakeDevice{appPID: "", serverVerifies: true}
	o, fake := newTestOrchestrator(t, dev, nil)

	// After the launch intent the app appears.
	base := dev.handle
	fake.Handle = func(name string, args []string) (execx.Result, error) {
		if strings.Contains(strings.Join(args, " "), "am start") {
			dev.appPID = "4321"
			return execx.Result{Stdout: "Starting: Intent\n"}, nil
		}
		return base(name, args)
	}

	res := o.Run(context.Background(), o.Attach())
	require.NoError(t, res.Err)
	assert.Equal(t, 4321, res.Artifacts.PID)
	assert.Equal(t, 1, fake.CountMatching("am start"))
}

func TestServerFailsToStartCleansUp(t *testing.T) {
	dev := &fakeDevice{appPID: "1234", serverVerifies: false}
	o, fake := newTestOrchestrator(t, dev, nil)

	res := o.Run(context.Background(), o.Attach())
	require.Error(t, res.Err)
	assert.Equal(t, fault.KindServerStartFailed, fault.KindOf(res.Err))
	assert.Equal(t, 5, res.ExitCode())
	// Exactly one retry: two verify attempts total.
	assert.Equal(t, 2, dev.verifyCalls)
	// Cleanup still ran, exactly once.
	assert.Equal(t, 1, fake.CountMatching("am force-stop com.example.app"))
	// The scenario never reached the forward step; nothing to release.
	assert.Zero(t, fake.CountMatching("forward --remove"))
}

func TestCleanupRunsExactlyOncePerScenario(t *testing.T) {
	for _, tc := range []struct {
		name string
		dev  *fakeDevice
	}{
		{"success", &fakeDevice{appPID: "1234", serverVerifies: true}},
		{"server failure", &fakeDevice{appPID: "1234", serverVerifies: false}},
		{"app missing", &fakeDevice{appPID: "", serverVerifies: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			o, fake := newTestOrchestrator(t, tc.dev, nil)
			_ = o.Run(context.Background(), o.Attach())
			assert.Equal(t, 1, fake.CountMatching("am force-stop com.example.app"))
		})
	}
}

func TestInterruptedScenarioCleansUp(t *testing.T) {
	dev := &fakeDevice{appPID: "1234", serverVerifies: true}
	o, fake := newTestOrchestrator(t, dev, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // operator interrupt before the first step

	res := o.Run(ctx, o.Attach())
	require.Error(t, res.Err)
	assert.Equal(t, 1, fake.CountMatching("am force-stop com.example.app"))
	assert.Equal(t, 1, fake.CountMatching("pkill"))
}

func TestDeviceUnavailableWithoutAVD(t *testing.T) {
	fake := &execxtest.FakeRunner{
		Handle: func(string, []string) (execx.Result, error) {
			return execx.Result{Stdout: "List of devices attached\n\n"}, nil
		},
	}
	o := New(testConfig(), fake, clockx.NewFake(time.Unix(0, 0)), nil)
	res := o.Run(context.Background(), o.Attach())
	assert.Equal(t, fault.KindDeviceUnavailable, fault.KindOf(res.Err))
	assert.Equal(t, 2, res.ExitCode())
	// No emulator configured, none may be started.
	assert.Empty(t, fake.Started())
}

// recordingSink captures runs sent to the history sink.
type recordingSink struct{ runs []history.Run }

func (s *recordingSink) Send(_ context.Context, r history.Run) error {
	s.runs = append(s.runs, r)
	return nil
}
func (s *recordingSink) Close() error { return nil }

func TestScenarioRecordedToHistory(t *testing.T) {
	dev := &fakeDevice{appPID: "1234", serverVerifies: true}
	sink := &recordingSink{}
	o, _ := newTestOrchestrator(t, dev, sink)

	res := o.Run(context.Background(), o.Attach())
	require.NoError(t, res.Err)
	require.Len(t, sink.runs, 1)
	run := sink.runs[0]
	assert.Equal(t, "attach", run.Scenario)
	assert.Equal(t, "ok", run.Result)
	assert.Equal(t, 1234, run.PID)
	assert.Equal(t, "0x7f0000000000", run.Address)
}

func TestEnterURLScenario(t *testing.T) {
	dev := &fakeDevice{appPID: "1234", serverVerifies: true}
	o, fake := newTestOrchestrator(t, dev, nil)

	res := o.Run(context.Background(), o.EnterURL("http://test.local/x"))
	require.NoError(t, res.Err)
	assert.Equal(t, 1, fake.CountMatching("input text http://test.local/x"))
	assert.Equal(t, 2, fake.CountMatching("input keyevent"))
}
