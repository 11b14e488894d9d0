package client

import "time"

// Run is one recorded scenario execution as returned by the history API.
type Run struct {
	Scenario   string    `json:"scenario"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Result     string    `json:"result"`
	PID        int       `json:"pid,omitempty"`
	Address    string    `json:"address,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
