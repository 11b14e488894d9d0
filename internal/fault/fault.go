package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a scenario failure. The orchestrator decides per kind
// whether a step aborts the scenario or is logged and skipped.
type Kind int

const (
	// KindUnknown is the zero value; errors without a kind map to it.
	KindUnknown Kind = iota
	// KindDeviceUnavailable: no device, or a device that fails a round-trip.
	KindDeviceUnavailable
	// KindAppLaunchFailed: the launch intent was issued but no pid resolved.
	KindAppLaunchFailed
	// KindBinaryMissing: the debug server binary is absent or not executable
	// on the device. Distinct from a generic startup failure.
	KindBinaryMissing
	// KindServerStartFailed: the debug server did not verify as running
	// after the retry budget was spent.
	KindServerStartFailed
	// KindResolveTimeout: the library mapping never appeared before deadline.
	KindResolveTimeout
	// KindToolInvocationFailed: the bridge tool itself failed or timed out,
	// as opposed to running successfully and reporting a domain failure.
	KindToolInvocationFailed
)

func (k Kind) String() string {
	switch k {
	case KindDeviceUnavailable:
		return "device-unavailable"
	case KindAppLaunchFailed:
		return "app-launch-failed"
	case KindBinaryMissing:
		return "binary-missing"
	case KindServerStartFailed:
		return "server-start-failed"
	case KindResolveTimeout:
		return "resolve-timeout"
	case KindToolInvocationFailed:
		return "tool-invocation-failed"
	default:
		return "unknown"
	}
}

// ExitCode maps a kind to the conventional CLI exit code.
func (k Kind) ExitCode() int {
	switch k {
	case KindDeviceUnavailable:
		return 2
	case KindAppLaunchFailed:
		return 3
	case KindBinaryMissing:
		return 4
	case KindServerStartFailed:
		return 5
	case KindResolveTimeout:
		return 6
	case KindToolInvocationFailed:
		return 7
	default:
		return 1
	}
}

// Error is a tagged failure carrying the last captured output of the
// failing external invocation for diagnosis.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "adb.start-app"
	Detail string
	Stdout string
	Stderr string
	Err    error // wrapped cause, optional
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, &Error{Kind: k}) match on kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs a tagged error.
func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

// Wrap tags an underlying error with a kind and operation.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind from err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
