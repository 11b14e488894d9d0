// Package template generates debugger command files for hand-off to lldb.
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScriptType represents the kind of debugger script to generate
type ScriptType string

const (
	TypeAttach     ScriptType = "attach"
	TypeConnect    ScriptType = "connect"
	TypePause      ScriptType = "pause"
	TypeStop       ScriptType = "stop"
	TypeBreakpoint ScriptType = "breakpoint"
	TypeBreak      ScriptType = "break"
)

// Params carries the values substituted into a script.
type Params struct {
	Port   int    // local forwarded port of the debug server
	PID    int    // target process id on the device
	Symbol string // breakpoint symbol (breakpoint scripts only)
}

// Script is a generated debugger command sequence.
type Script struct {
	Type     ScriptType
	Commands []string
}

// Generator provides debugger script generation
type Generator struct{}

// NewGenerator creates a new script generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate creates a debugger script of the specified type.
func (g *Generator) Generate(scriptType ScriptType, p Params) (*Script, error) {
	if p.Port <= 0 {
		return nil, fmt.Errorf("port must be positive, got %d", p.Port)
	}
	if p.PID <= 0 {
		return nil, fmt.Errorf("pid must be positive, got %d", p.PID)
	}

	head := []string{
		"platform select remote-android",
		fmt.Sprintf("platform connect connect://localhost:%d", p.Port),
		fmt.Sprintf("attach %d", p.PID),
	}

	switch scriptType {
	case TypeAttach, TypeConnect:
		return &Script{Type: TypeAttach, Commands: append(head, "continue")}, nil
	case TypePause, TypeStop:
		// Leave the target stopped at the attach point.
		return &Script{Type: TypePause, Commands: head}, nil
	case TypeBreakpoint, TypeBreak:
		if p.Symbol == "" {
			return nil, fmt.Errorf("breakpoint script requires a symbol")
		}
		cmds := append(head,
			fmt.Sprintf("breakpoint set --name %s", p.Symbol),
			"continue",
		)
		return &Script{Type: TypeBreakpoint, Commands: cmds}, nil
	default:
		return nil, fmt.Errorf("unknown script type: %s (supported: attach, pause, breakpoint)", scriptType)
	}
}

// GetSupportedTypes returns a list of all supported script types
func (g *Generator) GetSupportedTypes() []string {
	return []string{
		string(TypeAttach),
		string(TypePause),
		string(TypeBreakpoint),
	}
}

// Render returns the script as debugger command-file text.
func (s *Script) Render() string {
	return strings.Join(s.Commands, "\n") + "\n"
}

// WriteFile writes the script into a fresh temp directory and returns the
// file path.
func (s *Script) WriteFile() (string, error) {
	dir, err := os.MkdirTemp("", "droidbg-lldb-")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.lldb", s.Type))
	if err := os.WriteFile(path, []byte(s.Render()), 0o600); err != nil {
		return "", err
	}
	return path, nil
}
