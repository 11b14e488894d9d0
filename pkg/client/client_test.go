package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T, runs []Run) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(runs)
	})
	return httptest.NewServer(mux)
}

func TestClientRuns(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	srv := newTestServer(t, []Run{
		{Scenario: "attach", Result: "ok", PID: 1234, Address: "0x7f0000000000", FinishedAt: now},
	})
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api"})
	runs, err := c.Runs(context.Background(), 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Scenario != "attach" || runs[0].PID != 1234 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestClientReachability(t *testing.T) {
	srv := newTestServer(t, nil)
	c := New(Config{BaseURL: srv.URL + "/api"})
	if !c.IsReachable(context.Background()) {
		t.Fatal("server should be reachable")
	}
	srv.Close()
	if c.IsReachable(context.Background()) {
		t.Fatal("closed server should not be reachable")
	}
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "store unavailable"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api"})
	_, err := c.Runs(context.Background(), 10)
	if err == nil {
		t.Fatal("expected API error")
	}
	if got := err.Error(); got != "API error: store unavailable" {
		t.Fatalf("unexpected error text: %s", got)
	}
}
