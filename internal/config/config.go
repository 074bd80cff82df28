// Package config loads and persists the global YAML configuration that the
// supervisor and proxy consume. Updates go through a closed set of known
// dot-notation keys; unknown keys are rejected.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// AppID is the bundle identifier shared with the desktop application; it
// names per-OS runtime and log directories.
const AppID = "dev.beyondbetter.app"

// TLSConfig mirrors the tls section of a service config.
type TLSConfig struct {
	UseTLS bool `mapstructure:"useTls" yaml:"useTls"`
}

// ServiceConfig holds the parameters a managed service is launched and
// probed with.
type ServiceConfig struct {
	Hostname string    `mapstructure:"hostname" yaml:"hostname"`
	Port     int       `mapstructure:"port" yaml:"port"`
	TLS      TLSConfig `mapstructure:"tls" yaml:"tls"`
	LogLevel string    `mapstructure:"logLevel" yaml:"logLevel"`
	LogFile  string    `mapstructure:"logFile" yaml:"logFile,omitempty"`
}

// DUIConfig holds settings owned by the control plane itself.
type DUIConfig struct {
	DebugMode   bool   `mapstructure:"debugMode" yaml:"debugMode"`
	ProxyTarget string `mapstructure:"proxyTarget" yaml:"proxyTarget,omitempty"`
}

// GlobalConfig is the full on-disk configuration.
type GlobalConfig struct {
	API ServiceConfig `mapstructure:"api" yaml:"api"`
	BUI ServiceConfig `mapstructure:"bui" yaml:"bui"`
	DUI DUIConfig     `mapstructure:"dui" yaml:"dui"`
}

// Default returns the configuration written on first run.
func Default() GlobalConfig {
	return GlobalConfig{
		API: ServiceConfig{
			Hostname: "localhost",
			Port:     3162,
			LogLevel: "info",
			LogFile:  "api.log",
		},
		BUI: ServiceConfig{
			Hostname: "localhost",
			Port:     8080,
			LogLevel: "info",
			LogFile:  "bui.log",
		},
	}
}

// DefaultDir returns the per-OS configuration directory.
func DefaultDir() (string, error) {
	if runtime.GOOS == "windows" {
		d, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolve config dir: %w", err)
		}
		return filepath.Join(d, "bb"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "bb"), nil
}

// Load reads config.yaml from dir, creating it with defaults when absent.
func Load(dir string) (GlobalConfig, error) {
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := Save(dir, cfg); err != nil {
			return GlobalConfig{}, err
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return GlobalConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg GlobalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return GlobalConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to dir/config.yaml, creating dir if needed.
func Save(dir string, cfg GlobalConfig) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create config dir %s: %w", dir, err)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("api", serviceMap(cfg.API))
	v.Set("bui", serviceMap(cfg.BUI))
	v.Set("dui", map[string]any{
		"debugMode":   cfg.DUI.DebugMode,
		"proxyTarget": cfg.DUI.ProxyTarget,
	})
	return v.WriteConfigAs(filepath.Join(dir, "config.yaml"))
}

func serviceMap(s ServiceConfig) map[string]any {
	return map[string]any{
		"hostname": s.Hostname,
		"port":     s.Port,
		"tls":      map[string]any{"useTls": s.TLS.UseTLS},
		"logLevel": s.LogLevel,
		"logFile":  s.LogFile,
	}
}

// Set updates a single configuration field addressed by a dot-notation key.
// The key set is closed: anything not listed here is an error.
func Set(cfg *GlobalConfig, key, value string) error {
	svc, field, ok := splitServiceKey(key)
	if ok {
		return setServiceField(svc, field, value, cfg)
	}
	switch key {
	case "dui.debugMode":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		cfg.DUI.DebugMode = b
	case "dui.proxyTarget":
		cfg.DUI.ProxyTarget = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func splitServiceKey(key string) (svc, field string, ok bool) {
	for _, prefix := range []string{"api.", "bui."} {
		if strings.HasPrefix(key, prefix) {
			return strings.TrimSuffix(prefix, "."), strings.TrimPrefix(key, prefix), true
		}
	}
	return "", "", false
}

func setServiceField(svc, field, value string, cfg *GlobalConfig) error {
	target := &cfg.API
	if svc == "bui" {
		target = &cfg.BUI
	}
	switch field {
	case "hostname":
		target.Hostname = value
	case "port":
		p, err := strconv.Atoi(value)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid port %q for %s.port", value, svc)
		}
		target.Port = p
	case "tls.useTls":
		b, err := parseBool(svc+".tls.useTls", value)
		if err != nil {
			return err
		}
		target.TLS.UseTLS = b
	case "logLevel":
		target.LogLevel = value
	case "logFile":
		target.LogFile = value
	default:
		return fmt.Errorf("unknown config key %q", svc+"."+field)
	}
	return nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q for %s", value, key)
	}
	return b, nil
}
