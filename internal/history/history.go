// Package history records completed scenario runs to external stores for
// later inspection.
package history

import (
	"context"
	"time"
)

// Run is one completed scenario execution with its captured artifacts.
type Run struct {
	Scenario   string    `json:"scenario"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Result     string    `json:"result"` // "ok" or the failure kind
	PID        int       `json:"pid,omitempty"`
	Address    string    `json:"address,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for scenario runs. Implementations must be safe for
// concurrent use.
type Sink interface {
	Send(ctx context.Context, r Run) error
	Close() error
}

// Lister is implemented by sinks that can also read runs back (used by the
// HTTP API).
type Lister interface {
	Recent(ctx context.Context, limit int) ([]Run, error)
}
