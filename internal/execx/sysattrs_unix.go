//go:build !windows

package execx

import "syscall"

// sysProcAttr detaches the child into a new session (setsid) so it survives
// orchestrator exit and never shares our controlling terminal.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
