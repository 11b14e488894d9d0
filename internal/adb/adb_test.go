package adb

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/loykin/droidbg/internal/clockx"
	"github.com/loykin/droidbg/internal/execx"
	"github.com/loykin/droidbg/internal/execx/execxtest"
	"github.com/loykin/droidbg/internal/fault"
)

func TestParseDeviceList(t *testing.T) {
	out := "List of devices attached\n" +
		"emulator-5554\tdevice\n" +
		"0123456789ABCDEF\tunauthorized\n" +
		"\n"
	devices := parseDeviceList(out)
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	if devices[0].Serial != "emulator-5554" || devices[0].State != StateDevice {
		t.Fatalf("unexpected first device: %+v", devices[0])
	}
	if devices[1].State != StateUnauthorized {
		t.Fatalf("unexpected second device state: %v", devices[1].State)
	}
}

func TestToolSerialPinning(t *testing.T) {
	fake := &execxtest.FakeRunner{}
	tool := NewTool(fake, "adb", "emulator-5554")
	_, err := tool.Shell(context.Background(), 0, "echo", "hi")
	if err != nil {
		t.Fatalf("shell: %v", err)
	}
	calls := fake.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	want := "adb -s emulator-5554 shell echo hi"
	if calls[0].String() != want {
		t.Fatalf("call %q, want %q", calls[0], want)
	}
}

func TestCommandTimeoutBecomesToolFault(t *testing.T) {
	fake := &execxtest.FakeRunner{
		Handle: func(string, []string) (execx.Result, error) {
			return execx.Result{TimedOut: true, ExitCode: -1}, nil
		},
	}
	tool := NewTool(fake, "", "")
	_, err := tool.Shell(context.Background(), time.Second, "ps")
	if fault.KindOf(err) != fault.KindToolInvocationFailed {
		t.Fatalf("expected tool-invocation-failed, got %v", err)
	}
}

func TestGetProcessID(t *testing.T) {
	cases := []struct {
		name    string
		stdout  string
		exit    int
		wantPID int
		wantOK  bool
	}{
		{"absent on empty output", "", 1, 0, false},
		{"single pid", "1234\n", 0, 1234, true},
		{"first token of ambiguous match", "1234 5678\n", 0, 1234, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &execxtest.FakeRunner{
				Handle: func(string, []string) (execx.Result, error) {
					return execx.Result{Stdout: tc.stdout, ExitCode: tc.exit}, nil
				},
			}
			ctl := NewController(NewTool(fake, "", ""), clockx.NewFake(time.Unix(0, 0)))
			pid, ok, err := ctl.GetProcessID(context.Background(), "com.example.app")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tc.wantOK || pid != tc.wantPID {
				t.Fatalf("got pid=%d ok=%v, want pid=%d ok=%v", pid, ok, tc.wantPID, tc.wantOK)
			}
		})
	}
}

func TestStartAppPollsUntilPIDAppears(t *testing.T) {
	var pidofCalls int
	fake := &execxtest.FakeRunner{}
	fake.Handle = func(_ string, args []string) (execx.Result, error) {
		line := strings.Join(args, " ")
		switch {
		case strings.Contains(line, "am start"):
			return execx.Result{Stdout: "Starting: Intent\n"}, nil
		case strings.Contains(line, "pidof"):
			pidofCalls++
			if pidofCalls < 3 {
				return execx.Result{ExitCode: 1}, nil
			}
			return execx.Result{Stdout: "4321\n"}, nil
		}
		return execx.Result{}, nil
	}
	clk := clockx.NewFake(time.Unix(0, 0))
	ctl := NewController(NewTool(fake, "", ""), clk)
	pid, err := ctl.StartApp(context.Background(), "com.example.app", ".MainActivity")
	if err != nil {
		t.Fatalf("start app: %v", err)
	}
	if pid != 4321 {
		t.Fatalf("pid %d, want 4321", pid)
	}
	if pidofCalls != 3 {
		t.Fatalf("expected 3 pid polls, got %d", pidofCalls)
	}
	if clk.Slept == 0 {
		t.Fatalf("expected poll interval sleeps on the fake clock")
	}
}

func TestStartAppRejectedIntentFailsFast(t *testing.T) {
	var pidofCalls int
	fake := &execxtest.FakeRunner{
		Handle: func(_ string, args []string) (execx.Result, error) {
			line := strings.Join(args, " ")
			switch {
			case strings.Contains(line, "am start"):
				// am exits zero and reports the failure on stdout.
				return execx.Result{Stdout: "Starting: Intent\nError: Activity class {com.example.app/.Nope} does not exist.\n"}, nil
			case strings.Contains(line, "pidof"):
				pidofCalls++
			}
			return execx.Result{}, nil
		},
	}
	ctl := NewController(NewTool(fake, "", ""), clockx.NewFake(time.Unix(0, 0)))
	_, err := ctl.StartApp(context.Background(), "com.example.app", ".Nope")
	if fault.KindOf(err) != fault.KindAppLaunchFailed {
		t.Fatalf("expected app-launch-failed, got %v", err)
	}
	// The rejection must surface immediately, not as a pid-poll timeout.
	if pidofCalls != 0 {
		t.Fatalf("expected no pid polls after a rejected intent, got %d", pidofCalls)
	}
	var fe *fault.Error
	if !errors.As(err, &fe) || !strings.Contains(fe.Stdout, "does not exist") {
		t.Fatalf("captured output missing the am error: %v", err)
	}
}

func TestStartAppDebugWaitAddsFlag(t *testing.T) {
	var launchLine string
	fake := &execxtest.FakeRunner{
		Handle: func(_ string, args []string) (execx.Result, error) {
			line := strings.Join(args, " ")
			if strings.Contains(line, "am start") {
				launchLine = line
				return execx.Result{Stdout: "Starting: Intent\n"}, nil
			}
			return execx.Result{Stdout: "4321\n"}, nil
		},
	}
	ctl := NewController(NewTool(fake, "", ""), clockx.NewFake(time.Unix(0, 0)))
	ctl.DebugWait = true
	if _, err := ctl.StartApp(context.Background(), "com.example.app", ".MainActivity"); err != nil {
		t.Fatalf("start app: %v", err)
	}
	if !strings.Contains(launchLine, "am start -D -n com.example.app/.MainActivity") {
		t.Fatalf("missing -D in launch intent: %s", launchLine)
	}
}

func TestStartAppTimesOut(t *testing.T) {
	fake := &execxtest.FakeRunner{
		Handle: func(_ string, args []string) (execx.Result, error) {
			if strings.Contains(strings.Join(args, " "), "pidof") {
				return execx.Result{ExitCode: 1}, nil
			}
			return execx.Result{}, nil
		},
	}
	ctl := NewController(NewTool(fake, "", ""), clockx.NewFake(time.Unix(0, 0)))
	_, err := ctl.StartApp(context.Background(), "com.example.app", ".MainActivity")
	if fault.KindOf(err) != fault.KindAppLaunchFailed {
		t.Fatalf("expected app-launch-failed, got %v", err)
	}
}

func TestIsDeviceReady(t *testing.T) {
	t.Run("no device", func(t *testing.T) {
		fake := &execxtest.FakeRunner{
			Handle: func(string, []string) (execx.Result, error) {
				return execx.Result{Stdout: "List of devices attached\n\n"}, nil
			},
		}
		ctl := NewController(NewTool(fake, "", ""), clockx.NewFake(time.Unix(0, 0)))
		if ctl.IsDeviceReady(context.Background()) {
			t.Fatalf("empty list must not be ready")
		}
	})
	t.Run("device present but wedged", func(t *testing.T) {
		fake := &execxtest.FakeRunner{}
		fake.Handle = func(_ string, args []string) (execx.Result, error) {
			if args[len(args)-1] == "devices" {
				return execx.Result{Stdout: "List of devices attached\nemulator-5554\tdevice\n"}, nil
			}
			return execx.Result{TimedOut: true, ExitCode: -1}, nil
		}
		ctl := NewController(NewTool(fake, "", ""), clockx.NewFake(time.Unix(0, 0)))
		if ctl.IsDeviceReady(context.Background()) {
			t.Fatalf("wedged device must not be ready")
		}
	})
	t.Run("ready", func(t *testing.T) {
		fake := &execxtest.FakeRunner{}
		fake.Handle = func(_ string, args []string) (execx.Result, error) {
			if args[len(args)-1] == "devices" {
				return execx.Result{Stdout: "List of devices attached\nemulator-5554\tdevice\n"}, nil
			}
			return execx.Result{Stdout: "ready\n"}, nil
		}
		ctl := NewController(NewTool(fake, "", ""), clockx.NewFake(time.Unix(0, 0)))
		if !ctl.IsDeviceReady(context.Background()) {
			t.Fatalf("expected ready")
		}
	})
}

func TestWaitForDeviceDeadline(t *testing.T) {
	fake := &execxtest.FakeRunner{
		Handle: func(string, []string) (execx.Result, error) {
			return execx.Result{}, errors.New("no adb")
		},
	}
	ctl := NewController(NewTool(fake, "", ""), clockx.NewFake(time.Unix(0, 0)))
	err := ctl.WaitForDevice(context.Background(), 5*time.Second)
	if fault.KindOf(err) != fault.KindDeviceUnavailable {
		t.Fatalf("expected device-unavailable, got %v", err)
	}
}
