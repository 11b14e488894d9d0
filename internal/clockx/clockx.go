// Package clockx abstracts time for the poll-until-condition loops so tests
// can drive deadlines without real sleeping.
package clockx

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Real returns the wall clock.
func Real() Clock { return realClock{} }

// Fake is a manual clock: Sleep advances Now instead of blocking.
type Fake struct {
	mu  sync.Mutex
	now time.Time
	// Slept accumulates total requested sleep for assertions.
	Slept time.Duration
}

func NewFake(start time.Time) *Fake { return &Fake{now: start} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.Slept += d
	f.mu.Unlock()
}

// Advance moves the clock forward without a sleep call.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
