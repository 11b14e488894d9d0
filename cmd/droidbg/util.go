package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/loykin/droidbg"
	"github.com/loykin/droidbg/internal/history/sqlite"
)

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode output:", err)
		return
	}
	fmt.Println(string(b))
}

// resultView shapes a scenario result for human/json consumption. The error
// is flattened to a string so it survives marshaling.
func resultView(r droidbg.Result) map[string]any {
	v := map[string]any{
		"scenario":    r.Scenario,
		"ok":          r.Ok(),
		"started_at":  r.StartedAt.Format(time.RFC3339),
		"finished_at": r.FinishedAt.Format(time.RFC3339),
		"duration":    r.FinishedAt.Sub(r.StartedAt).String(),
	}
	if r.Artifacts.PID != 0 {
		v["pid"] = r.Artifacts.PID
	}
	if r.Artifacts.Address != 0 {
		v["address"] = r.Artifacts.Address.String()
	}
	if r.Artifacts.ScriptPath != "" {
		v["script"] = r.Artifacts.ScriptPath
	}
	if r.Err != nil {
		v["error"] = r.Err.Error()
	}
	return v
}

// serveHistory runs the run-history API until ctx is cancelled. Only the
// sqlite store supports listing, so the DSN must point at one.
func serveHistory(ctx context.Context, cfg *droidbg.Config, f *ServeFlags) error {
	dsn := f.HistoryDSN
	if dsn == "" {
		dsn = cfg.History.DSN
	}
	if dsn == "" {
		return errors.New("serve requires a history DSN (--history-dsn or history.dsn)")
	}
	store, err := sqlite.New(dsn)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer func() { _ = store.Close() }()

	// NewHTTPServer starts serving in the background.
	srv, err := droidbg.NewHTTPServer(f.Addr, f.BasePath, store)
	if err != nil {
		return err
	}
	slog.Info("history API listening", "addr", f.Addr, "base", f.BasePath)

	<-ctx.Done()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shCtx)
}
