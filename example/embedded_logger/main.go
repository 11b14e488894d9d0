package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/droidbg"
)

// embedded_logger: configure droidbg's slog setup and artifact log rotation.
// Scenario failures land in <Dir>/<scenario>.log alongside the console output.
func main() {
	logDir := os.Getenv("DROIDBG_LOG_DIR")
	if logDir == "" {
		logDir = filepath.Join(os.TempDir(), fmt.Sprintf("droidbg-logs-%d", time.Now().UnixNano()))
	}
	_ = os.MkdirAll(logDir, 0o750)

	cfg, err := droidbg.LoadConfig("")
	if err != nil {
		panic(err)
	}
	cfg.Log.Level = "debug"
	cfg.Log.Dir = logDir
	droidbg.SetupLogging(cfg)

	slog.Info("logging configured", "dir", logDir)
	w := cfg.Log.ArtifactWriter("demo")
	_, _ = fmt.Fprintln(w, "demo artifact entry")
	_ = w.Close()

	fmt.Println("Embedded logger example")
	fmt.Println("  Log directory:", logDir)
	fmt.Println("  Artifact log:", filepath.Join(logDir, "demo.log"))
	fmt.Println("Tip: set DROIDBG_LOG_DIR to choose a custom log directory.")
}
