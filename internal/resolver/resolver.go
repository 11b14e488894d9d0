// Package resolver resolves loaded-library base addresses from a process's
// memory map on the device.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/droidbg/internal/adb"
	"github.com/loykin/droidbg/internal/clockx"
	"github.com/loykin/droidbg/internal/fault"
	"github.com/loykin/droidbg/internal/metrics"
)

// Address is a resolved base address in the target process.
type Address uint64

func (a Address) String() string { return fmt.Sprintf("0x%x", uint64(a)) }

// Resolver polls /proc/<pid>/maps until the library appears. A poll is the
// right shape here: the kernel interface offers no load notification, and
// stripped or lazily-loaded libraries can show up well after process start.
type Resolver struct {
	tool  *adb.Tool
	clock clockx.Clock

	// Interval between polls.
	Interval time.Duration
	// Timeout bounds the whole wait.
	Timeout time.Duration

	logger *slog.Logger
}

const (
	defaultInterval = 500 * time.Millisecond
	defaultTimeout  = 30 * time.Second
)

func New(tool *adb.Tool, clock clockx.Clock) *Resolver {
	if clock == nil {
		clock = clockx.Real()
	}
	return &Resolver{
		tool:     tool,
		clock:    clock,
		Interval: defaultInterval,
		Timeout:  defaultTimeout,
		logger:   slog.Default().With("component", "resolver"),
	}
}

// WaitForLibraryBase polls the process memory map until a mapping for
// library appears, returning the first matching line's lower bound.
// The pid is treated as fixed for the duration; if the process died the
// caller re-resolves the pid and calls again, a stale pid is never patched
// up here.
func (r *Resolver) WaitForLibraryBase(ctx context.Context, pid int, library string) (Address, error) {
	deadline := r.clock.Now().Add(r.Timeout)
	mapsPath := fmt.Sprintf("/proc/%d/maps", pid)
	for {
		if err := ctx.Err(); err != nil {
			return 0, fault.Wrap(fault.KindResolveTimeout, "resolver.wait", err)
		}
		metrics.IncResolvePoll()
		res, err := r.tool.Shell(ctx, 0, "cat", mapsPath)
		if err != nil {
			return 0, err
		}
		if res.ExitCode == 0 {
			if addr, ok := parseBase(res.Stdout, library); ok {
				r.logger.Info("library resolved", "library", library, "pid", pid, "base", addr)
				return addr, nil
			}
		}
		// A non-zero exit usually means the maps file is gone (process
		// exited) or not yet readable; both are worth re-polling until
		// the deadline decides.
		if !r.clock.Now().Before(deadline) {
			return 0, fault.New(fault.KindResolveTimeout, "resolver.wait",
				fmt.Sprintf("%s not mapped in pid %d within %s", library, pid, r.Timeout))
		}
		r.clock.Sleep(r.Interval)
	}
}

// parseBase extracts the lower bound of the first mapping line mentioning
// library. Lines look like:
//
//	7f0000000000-7f0000100000 r-xp 00000000 fd:00 123 /path/libtarget.so
func parseBase(maps, library string) (Address, bool) {
	for _, line := range strings.Split(maps, "\n") {
		if !strings.Contains(line, library) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		bounds := strings.SplitN(fields[0], "-", 2)
		if len(bounds) != 2 {
			continue
		}
		base, err := strconv.ParseUint(bounds[0], 16, 64)
		if err != nil {
			continue
		}
		return Address(base), true
	}
	return 0, false
}
