package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	// Operator interrupt funnels into context cancellation so a running
	// scenario stops issuing steps and goes through its cleanup path.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := buildRoot()
	if err := root.ExecuteContext(ctx); err != nil {
		var ee *exitError
		if asExitError(err, &ee) {
			_, _ = fmt.Fprintln(os.Stderr, ee.msg)
			os.Exit(ee.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with one subcommand per scenario.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	scenarioFlags := &ScenarioFlags{}
	urlFlags := &EnterURLFlags{}
	serveFlags := &ServeFlags{}
	scriptFlags := &ScriptFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createAttachCommand(globalFlags, scenarioFlags),
		createLaunchCommand(globalFlags, scenarioFlags),
		createResolveCommand(globalFlags, scenarioFlags),
		createStopCommand(globalFlags, scenarioFlags),
		createEnterURLCommand(globalFlags, urlFlags),
		createDevicesCommand(globalFlags),
		createServeCommand(globalFlags, serveFlags),
		createScriptCommand(globalFlags, scriptFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "droidbg",
		Short:         "Automate debugging an Android app over adb and lldb",
		Long:          "droidbg sequences device readiness, app lifecycle, on-device debug server startup, port forwarding, and library base-address resolution into named scenarios.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "path to TOML config (env DROIDBG_* always applies)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level: debug|info|warn|error")
	root.PersistentFlags().BoolVar(&flags.NoColor, "no-color", false, "disable colored log output")
	return root
}
