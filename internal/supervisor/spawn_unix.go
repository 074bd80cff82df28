//go:build !windows

package supervisor

import "syscall"

// detachedProcAttr puts the child in its own process group so signals sent
// to the supervisor's group (e.g. Ctrl-C in a terminal) do not reach it.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
