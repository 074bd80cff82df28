//go:build !windows

package probe

import (
	"errors"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Exists uses signal 0. EPERM means the process is alive but owned by
// someone else, which still counts as existing.
func (OS) Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (OS) FindByName(name string) ([]int, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		// #nosec G204
		cmd = exec.Command("pgrep", "-f", name)
	} else {
		// #nosec G204
		cmd = exec.Command("pgrep", name)
	}
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			// pgrep exits 1 when nothing matched
			return nil, nil
		}
		return nil, err
	}
	return parsePgrepOutput(string(out)), nil
}

func (p OS) Terminate(pid int, grace time.Duration) bool {
	if pid <= 0 {
		return true
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err == nil {
		deadline := time.Now().Add(grace)
		for time.Now().Before(deadline) {
			if !p.Exists(pid) {
				return true
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)
	time.Sleep(200 * time.Millisecond)
	return !p.Exists(pid)
}

// parsePgrepOutput extracts one PID per line, skipping anything malformed.
func parsePgrepOutput(out string) []int {
	var pids []int
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if pid, err := strconv.Atoi(line); err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}
