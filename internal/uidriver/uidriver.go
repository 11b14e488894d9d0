// Package uidriver issues input-injection actions for test-scenario setup.
// Injection reports no success or failure signal, so every action here is
// fire-and-forget and the choreography keeps fixed settle delays; there is
// no observable condition to poll for.
package uidriver

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/droidbg/internal/adb"
	"github.com/loykin/droidbg/internal/clockx"
)

// Common key codes used by the built-in choreography.
const (
	KeyDelete = 67
	KeyEnter  = 66
)

// Driver sends tap, text, and key events through the bridge.
type Driver struct {
	tool  *adb.Tool
	clock clockx.Clock

	// URLFieldX, URLFieldY locate the browser URL field. Fixed coordinates
	// break on any layout change; the choreography is a best-effort
	// convenience, not something to harden.
	URLFieldX int
	URLFieldY int

	logger *slog.Logger
}

const (
	tapSettle    = 500 * time.Millisecond
	deleteSettle = 300 * time.Millisecond
	textSettle   = 500 * time.Millisecond
)

func New(tool *adb.Tool, clock clockx.Clock) *Driver {
	if clock == nil {
		clock = clockx.Real()
	}
	return &Driver{
		tool:      tool,
		clock:     clock,
		URLFieldX: 500,
		URLFieldY: 180,
		logger:    slog.Default().With("component", "uidriver"),
	}
}

// Tap sends a tap at the given screen coordinate.
func (d *Driver) Tap(ctx context.Context, x, y int) error {
	_, err := d.tool.Shell(ctx, 0, "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

// InputText injects text into the focused field. The injection transport
// encodes spaces as %s and rejects unescaped shell metacharacters.
func (d *Driver) InputText(ctx context.Context, text string) error {
	_, err := d.tool.Shell(ctx, 0, "input", "text", EncodeText(text))
	return err
}

// KeyEvent sends a key code.
func (d *Driver) KeyEvent(ctx context.Context, code int) error {
	_, err := d.tool.Shell(ctx, 0, "input", "keyevent", strconv.Itoa(code))
	return err
}

// EnterURLAndSubmit is the fixed choreography: focus the URL field, clear
// it, type the URL, submit.
func (d *Driver) EnterURLAndSubmit(ctx context.Context, url string) error {
	d.logger.Info("entering url", "url", url)
	if err := d.Tap(ctx, d.URLFieldX, d.URLFieldY); err != nil {
		return err
	}
	d.clock.Sleep(tapSettle)
	if err := d.KeyEvent(ctx, KeyDelete); err != nil {
		return err
	}
	d.clock.Sleep(deleteSettle)
	if err := d.InputText(ctx, url); err != nil {
		return err
	}
	d.clock.Sleep(textSettle)
	return d.KeyEvent(ctx, KeyEnter)
}

// EncodeText escapes text for the device's input-text transport: spaces
// become %s and shell metacharacters are backslash-escaped so the device
// shell passes them through verbatim.
func EncodeText(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case ' ':
			b.WriteString("%s")
		case '\'', '"', '`', '\\', '&', '|', ';', '<', '>', '(', ')', '$', '#', '*', '?', '~':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
