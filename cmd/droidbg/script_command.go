package main

import (
	"fmt"
	"os"

	"github.com/loykin/droidbg/pkg/template"
	"github.com/spf13/cobra"
)

// ScriptFlags holds flags for the script command.
type ScriptFlags struct {
	Type   string
	PID    int
	Port   int
	Symbol string
	Output string
	Force  bool
}

func createScriptCommand(_ *GlobalFlags, f *ScriptFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Generate a debugger command file for an already-prepared target",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runScript(f)
		},
	}
	cmd.Flags().StringVar(&f.Type, "type", string(template.TypeAttach), "script type: attach|pause|breakpoint")
	cmd.Flags().IntVar(&f.PID, "pid", 0, "target process id on the device")
	cmd.Flags().IntVar(&f.Port, "port", 5039, "local forwarded debug server port")
	cmd.Flags().StringVar(&f.Symbol, "symbol", "", "breakpoint symbol (breakpoint type only)")
	cmd.Flags().StringVarP(&f.Output, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&f.Force, "force", false, "overwrite an existing output file")
	return cmd
}

func runScript(f *ScriptFlags) error {
	generator := template.NewGenerator()
	s, err := generator.Generate(template.ScriptType(f.Type), template.Params{
		Port:   f.Port,
		PID:    f.PID,
		Symbol: f.Symbol,
	})
	if err != nil {
		return fmt.Errorf("generate script: %w", err)
	}

	if f.Output == "" {
		fmt.Print(s.Render())
		return nil
	}
	if _, err := os.Stat(f.Output); err == nil && !f.Force {
		return fmt.Errorf("script file '%s' already exists (use --force to overwrite)", f.Output)
	}
	if err := os.WriteFile(f.Output, []byte(s.Render()), 0o600); err != nil {
		return fmt.Errorf("write script file: %w", err)
	}
	fmt.Printf("Script written: %s\n", f.Output)
	return nil
}
