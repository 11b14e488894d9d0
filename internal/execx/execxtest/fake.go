// Package execxtest provides a scriptable Runner fake shared by component tests.
package execxtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/loykin/droidbg/internal/execx"
)

// Call records one invocation observed by the fake.
type Call struct {
	Name string
	Args []string
}

func (c Call) String() string { return c.Name + " " + strings.Join(c.Args, " ") }

// FakeRunner implements execx.Runner by delegating to Handle and recording
// every call. When Handle is nil every command succeeds with empty output.
type FakeRunner struct {
	mu      sync.Mutex
	calls   []Call
	started []Call

	// Handle produces the result for a Run call.
	Handle func(name string, args []string) (execx.Result, error)
	// StartErr is returned by Start when non-nil.
	StartErr error
}

func (f *FakeRunner) Run(_ context.Context, _ time.Duration, name string, args ...string) (execx.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: args})
	h := f.Handle
	f.mu.Unlock()
	if h == nil {
		return execx.Result{}, nil
	}
	return h(name, args)
}

func (f *FakeRunner) Start(_ context.Context, name string, args ...string) error {
	f.mu.Lock()
	f.started = append(f.started, Call{Name: name, Args: args})
	err := f.StartErr
	f.mu.Unlock()
	return err
}

// Calls returns a snapshot of recorded Run invocations.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Started returns a snapshot of recorded Start invocations.
func (f *FakeRunner) Started() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.started))
	copy(out, f.started)
	return out
}

// CountMatching counts recorded Run calls whose joined command line contains sub.
func (f *FakeRunner) CountMatching(sub string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.Contains(c.String(), sub) {
			n++
		}
	}
	return n
}
