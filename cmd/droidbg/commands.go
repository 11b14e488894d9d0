package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/loykin/droidbg"
	"github.com/spf13/cobra"
)

// exitError carries a scenario's categorized exit code to main.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func asExitError(err error, target **exitError) bool { return errors.As(err, target) }

// loadConfig builds the effective configuration: file + env, then flag
// overrides on top.
func loadConfig(g *GlobalFlags, f *ScenarioFlags) (*droidbg.Config, error) {
	cfg, err := droidbg.LoadConfig(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.NoColor {
		cfg.Log.NoColor = true
	}
	if f != nil {
		applyOverrides(cfg, f)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *droidbg.Config, f *ScenarioFlags) {
	if f.Package != "" {
		cfg.Package = f.Package
	}
	if f.Activity != "" {
		cfg.Activity = f.Activity
	}
	if f.Library != "" {
		cfg.Library = f.Library
	}
	if f.ServerPath != "" {
		cfg.ServerPath = f.ServerPath
	}
	if f.Port != 0 {
		cfg.Port = f.Port
	}
	if f.Serial != "" {
		cfg.Serial = f.Serial
	}
	if f.AVD != "" {
		cfg.AVD = f.AVD
	}
	if f.DebugWait {
		cfg.DebugWait = true
	}
	if f.HistoryDSN != "" {
		cfg.History.DSN = f.HistoryDSN
	}
	if f.MetricsAddr != "" {
		cfg.MetricsAddr = f.MetricsAddr
	}
}

func addScenarioFlags(cmd *cobra.Command, f *ScenarioFlags) {
	cmd.Flags().StringVarP(&f.Package, "package", "p", "", "app package identifier")
	cmd.Flags().StringVarP(&f.Activity, "activity", "a", "", "main activity name")
	cmd.Flags().StringVarP(&f.Library, "library", "l", "", "target library filename")
	cmd.Flags().StringVar(&f.ServerPath, "server-path", "", "debug server path on the device")
	cmd.Flags().IntVar(&f.Port, "port", 0, "debug server port (default 5039)")
	cmd.Flags().StringVarP(&f.Serial, "serial", "s", "", "pin to one device serial")
	cmd.Flags().StringVar(&f.AVD, "avd", "", "emulator image to boot when no device is attached")
	cmd.Flags().BoolVar(&f.DebugWait, "debug-wait", false, "launch the app suspended until a debugger attaches")
	cmd.Flags().StringVar(&f.HistoryDSN, "history-dsn", "", "record scenario runs to this sink")
	cmd.Flags().StringVar(&f.MetricsAddr, "metrics-addr", "", "expose /metrics on this address during the run")
}

// runScenario is the shared scenario command body: build the orchestrator,
// run, print the result, and convert a failure into the categorized exit.
func runScenario(ctx context.Context, g *GlobalFlags, f *ScenarioFlags, pick func(*droidbg.Orchestrator) droidbg.Scenario) error {
	cfg, err := loadConfig(g, f)
	if err != nil {
		return err
	}
	droidbg.SetupLogging(cfg)

	if cfg.MetricsAddr != "" {
		if err := droidbg.RegisterMetricsDefault(); err != nil {
			return err
		}
		go func() { _ = droidbg.ServeMetrics(cfg.MetricsAddr) }()
	}

	sink, err := droidbg.NewHistorySink(cfg)
	if err != nil {
		return fmt.Errorf("history sink: %w", err)
	}
	if sink != nil {
		defer func() { _ = sink.Close() }()
	}

	orc := droidbg.New(cfg, sink)
	res := orc.Run(ctx, pick(orc))
	printJSON(resultView(res))
	if res.Err != nil {
		return &exitError{code: res.ExitCode(), msg: res.Err.Error()}
	}
	return nil
}

func createAttachCommand(g *GlobalFlags, f *ScenarioFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Start the debug server, resolve the target library, and prepare a debugger attach",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScenario(cmd.Context(), g, f, func(o *droidbg.Orchestrator) droidbg.Scenario {
				return o.Attach()
			})
		},
	}
	addScenarioFlags(cmd, f)
	return cmd
}

func createLaunchCommand(g *GlobalFlags, f *ScenarioFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Launch the target app and report its pid",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScenario(cmd.Context(), g, f, func(o *droidbg.Orchestrator) droidbg.Scenario {
				return o.Launch()
			})
		},
	}
	addScenarioFlags(cmd, f)
	return cmd
}

func createResolveCommand(g *GlobalFlags, f *ScenarioFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Wait for the target library's base address in the running app",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScenario(cmd.Context(), g, f, func(o *droidbg.Orchestrator) droidbg.Scenario {
				return o.Resolve()
			})
		},
	}
	addScenarioFlags(cmd, f)
	return cmd
}

func createStopCommand(g *GlobalFlags, f *ScenarioFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the debug server and app, release port forwards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScenario(cmd.Context(), g, f, func(o *droidbg.Orchestrator) droidbg.Scenario {
				return o.Teardown()
			})
		},
	}
	addScenarioFlags(cmd, f)
	return cmd
}

func createEnterURLCommand(g *GlobalFlags, f *EnterURLFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enter-url <url>",
		Short: "Drive the fixed URL-entry choreography on the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.URL = args[0]
			return runScenario(cmd.Context(), g, &f.ScenarioFlags, func(o *droidbg.Orchestrator) droidbg.Scenario {
				return o.EnterURL(f.URL)
			})
		},
	}
	addScenarioFlags(cmd, &f.ScenarioFlags)
	return cmd
}

func createDevicesCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Report whether a ready device is attached",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g, nil)
			if err != nil {
				return err
			}
			droidbg.SetupLogging(cfg)
			orc := droidbg.New(cfg, nil)
			ready := orc.DeviceReady(cmd.Context())
			printJSON(map[string]bool{"ready": ready})
			if !ready {
				return &exitError{code: 2, msg: "no ready device"}
			}
			return nil
		},
	}
}

func createServeCommand(g *GlobalFlags, f *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded scenario runs and metrics over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g, nil)
			if err != nil {
				return err
			}
			droidbg.SetupLogging(cfg)
			if err := droidbg.RegisterMetricsDefault(); err != nil {
				return err
			}
			return serveHistory(cmd.Context(), cfg, f)
		},
	}
	cmd.Flags().StringVar(&f.Addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&f.BasePath, "base-path", "/api", "API base path")
	cmd.Flags().StringVar(&f.HistoryDSN, "history-dsn", "", "history store to serve (sqlite DSN)")
	return cmd
}
