//go:build windows

package supervisor

import "syscall"

const createNoWindow = 0x08000000

// detachedProcAttr hides the child's console window and detaches it from
// the supervisor's process group.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow | syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
