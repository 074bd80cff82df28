//go:build windows

package probe

import (
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unsafe"
)

var (
	kernel32               = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess        = kernel32.NewProc("OpenProcess")
	procGetExitCodeProcess = kernel32.NewProc("GetExitCodeProcess")
	procTerminateProcess   = kernel32.NewProc("TerminateProcess")
	procCloseHandle        = kernel32.NewProc("CloseHandle")
)

const (
	processTerminate        = 0x0001
	processQueryInformation = 0x0400
	stillActive             = 259
)

func (OS) Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	handle, err := openProcess(processQueryInformation, uint32(pid))
	if err != nil {
		return false
	}
	defer closeHandle(handle)

	var exitCode uint32
	ret, _, _ := procGetExitCodeProcess.Call(uintptr(handle), uintptr(unsafe.Pointer(&exitCode)))
	return ret != 0 && exitCode == stillActive
}

func (OS) FindByName(name string) ([]int, error) {
	// #nosec G204
	out, err := exec.Command("tasklist", "/fo", "csv", "/nh").Output()
	if err != nil {
		return nil, err
	}
	return parseTasklistCSV(string(out), name), nil
}

func (p OS) Terminate(pid int, grace time.Duration) bool {
	if pid <= 0 {
		return true
	}
	// No graceful signal on Windows; TerminateProcess is the only path.
	handle, err := openProcess(processTerminate, uint32(pid))
	if err == nil {
		_, _, _ = procTerminateProcess.Call(uintptr(handle), uintptr(1))
		closeHandle(handle)
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !p.Exists(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !p.Exists(pid)
}

// parseTasklistCSV extracts PIDs from `tasklist /fo csv /nh` lines whose
// image name matches name.
func parseTasklistCSV(out, name string) []int {
	var pids []int
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, name) {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		pidStr := strings.Trim(strings.TrimSpace(parts[1]), `"`)
		if pid, err := strconv.Atoi(pidStr); err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}

func openProcess(access uint32, pid uint32) (syscall.Handle, error) {
	ret, _, err := procOpenProcess.Call(uintptr(access), uintptr(0), uintptr(pid))
	if ret == 0 {
		return 0, err
	}
	return syscall.Handle(ret), nil
}

func closeHandle(handle syscall.Handle) {
	_, _, _ = procCloseHandle.Call(uintptr(handle))
}
