// Package service resolves the static description of a managed service:
// which binary to run, where it may be installed, and where its PID file
// and log file live. Descriptors are re-derived from configuration on each
// use since the configuration may change between calls.
package service

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Beyond-Better/bb/internal/config"
)

// Known service names.
const (
	API = "api"
	BUI = "bui"
)

// Descriptor is the resolved, immutable view of one managed service.
type Descriptor struct {
	Name       string
	BinaryName string // platform-suffixed executable name
	Hostname   string
	Port       int
	UseTLS     bool
	LogPath    string
}

// Resolver derives Descriptors from configuration. The install and log
// directories default per OS but are fields so tests can point them at
// temporary directories.
type Resolver struct {
	UserInstallDir   string
	SystemInstallDir string
	LogDir           string
}

// NewResolver returns a Resolver with per-OS default directories.
func NewResolver() Resolver {
	return Resolver{
		UserInstallDir:   defaultUserInstallDir(),
		SystemInstallDir: defaultSystemInstallDir(),
		LogDir:           DefaultLogDir(),
	}
}

// Resolve builds the Descriptor for name from cfg.
func (r Resolver) Resolve(name string, cfg config.GlobalConfig) (Descriptor, error) {
	var sc config.ServiceConfig
	switch name {
	case API:
		sc = cfg.API
	case BUI:
		sc = cfg.BUI
	default:
		return Descriptor{}, fmt.Errorf("unknown service %q", name)
	}
	return Descriptor{
		Name:       name,
		BinaryName: BinaryName(name),
		Hostname:   sc.Hostname,
		Port:       sc.Port,
		UseTLS:     sc.TLS.UseTLS,
		LogPath:    r.logPath(name, sc),
	}, nil
}

// BinaryName returns the executable name for a service on the build target.
func BinaryName(service string) string {
	name := "bb-" + service
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return name
}

// FindExecutable searches the user install directory, then the system
// install directory. An empty path with a nil error means the binary is
// not installed anywhere we know about.
func (r Resolver) FindExecutable(service string) (string, error) {
	bin := BinaryName(service)
	for _, dir := range []string{r.UserInstallDir, r.SystemInstallDir} {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, bin)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
	}
	return "", nil
}

// logPath resolves the service log file: absolute paths are used as-is,
// relative paths are joined to the log directory, and an empty setting
// falls back to <logdir>/<service>.log.
func (r Resolver) logPath(name string, sc config.ServiceConfig) string {
	lf := sc.LogFile
	if lf == "" {
		lf = name + ".log"
	}
	if filepath.IsAbs(lf) || strings.Contains(lf, `:\`) {
		return lf
	}
	return filepath.Join(r.LogDir, lf)
}

func defaultUserInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, ".bb", "bin")
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "BeyondBetter", "bin")
		}
		return filepath.Join(home, "AppData", "Local", "BeyondBetter", "bin")
	default:
		return filepath.Join(home, ".local", "bin")
	}
}

func defaultSystemInstallDir() string {
	if runtime.GOOS == "windows" {
		return `C:\Program Files\BeyondBetter\bin`
	}
	return "/usr/local/bin"
}

// DefaultLogDir returns the per-OS directory for service and application
// logs.
func DefaultLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, "Library", "Logs", config.AppID)
	case "windows":
		if pd := os.Getenv("ProgramData"); pd != "" {
			return filepath.Join(pd, config.AppID, "logs")
		}
		return ""
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, ".bb", "logs")
	}
}
