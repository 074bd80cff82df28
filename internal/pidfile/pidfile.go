// Package pidfile persists the last known PID of a managed service so the
// supervisor can re-attach across restarts. The file content is advisory:
// it is always re-validated against actual process existence before use.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Store reads and writes a single-integer PID file.
type Store struct {
	Path string
}

// New returns a Store for <dir>/<service>.pid.
func New(dir, service string) Store {
	return Store{Path: filepath.Join(dir, service+".pid")}
}

// Read returns the recorded PID. A missing file or unparsable content both
// mean "no PID" (ok==false): a concurrent writer may be mid-update and that
// must never be treated as a crash-worthy condition.
func (s Store) Read() (pid int, ok bool) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, false
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Write records pid atomically (temp file + rename) so readers never observe
// a half-written file.
func (s Store) Write(pid int) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create runtime dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp")
	if err != nil {
		return err
	}
	if _, err = tmp.WriteString(strconv.Itoa(pid)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

// Remove deletes the PID file. Removing an absent file is not an error.
func (s Store) Remove() error {
	err := os.Remove(s.Path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists reports whether the PID file is present on disk.
func (s Store) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// DefaultRuntimeDir returns the per-OS directory for PID files, creating it
// if needed.
func DefaultRuntimeDir(appID string) (string, error) {
	var dir string
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, "Library", "Application Support", appID, "run")
	case "windows":
		programData := os.Getenv("ProgramData")
		if programData == "" {
			return "", fmt.Errorf("ProgramData not set")
		}
		dir = filepath.Join(programData, appID, "run")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, ".bb", "run")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create runtime dir %s: %w", dir, err)
	}
	return dir, nil
}
