// Package bb wires the service supervisor and the embedded reverse proxy
// into one control plane for the Beyond Better desktop services.
package bb

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/Beyond-Better/bb/internal/config"
	"github.com/Beyond-Better/bb/internal/history"
	"github.com/Beyond-Better/bb/internal/pidfile"
	"github.com/Beyond-Better/bb/internal/proxy"
	"github.com/Beyond-Better/bb/internal/server"
	"github.com/Beyond-Better/bb/internal/service"
	"github.com/Beyond-Better/bb/internal/supervisor"
)

// DefaultProxyTarget is used when no proxy target is configured.
const DefaultProxyTarget = "https://chat.beyondbetter.dev"

// App is the long-lived application object: configuration, supervisor,
// proxy, and lifecycle history.
type App struct {
	ConfigDir  string
	Supervisor *supervisor.Supervisor
	Proxy      *proxy.Proxy
	History    history.Store

	mu  sync.RWMutex
	cfg config.GlobalConfig
}

// NewApp loads (or creates) the configuration, opens the history store,
// and binds the proxy port. Port exhaustion is fatal: there is no
// fallback beyond the candidate list.
func NewApp(configDir string) (*App, error) {
	if configDir == "" {
		d, err := config.DefaultDir()
		if err != nil {
			return nil, err
		}
		configDir = d
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	runtimeDir, err := pidfile.DefaultRuntimeDir(config.AppID)
	if err != nil {
		return nil, err
	}

	a := &App{ConfigDir: configDir, cfg: cfg}
	a.Supervisor = supervisor.New(runtimeDir, a.Config)

	if db, err := history.Open(filepath.Join(runtimeDir, "history.db")); err != nil {
		slog.Warn("history store unavailable", "error", err)
	} else if err := db.EnsureSchema(context.Background()); err != nil {
		slog.Warn("history schema setup failed", "error", err)
		_ = db.Close()
	} else {
		a.History = db
		a.Supervisor.History = db
	}

	logDir := service.DefaultLogDir()
	px, err := proxy.New(logDir)
	if err != nil {
		return nil, fmt.Errorf("construct proxy: %w", err)
	}
	a.Proxy = px

	target := cfg.DUI.ProxyTarget
	if target == "" {
		target = DefaultProxyTarget
	}
	if err := px.SetTarget(target); err != nil {
		slog.Warn("configured proxy target rejected", "target", target, "error", err)
	}
	px.SetDebugMode(cfg.DUI.DebugMode)
	return a, nil
}

// Config returns a snapshot of the current configuration.
func (a *App) Config() config.GlobalConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// SetConfig applies one key/value change, persists it, and keeps the
// proxy's debug flag and target in sync.
func (a *App) SetConfig(key, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.cfg
	if err := config.Set(&next, key, value); err != nil {
		return err
	}
	if err := config.Save(a.ConfigDir, next); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	a.cfg = next

	switch key {
	case "dui.debugMode":
		a.Proxy.SetDebugMode(next.DUI.DebugMode)
	case "dui.proxyTarget":
		if next.DUI.ProxyTarget != "" {
			if err := a.Proxy.SetTarget(next.DUI.ProxyTarget); err != nil {
				return err
			}
		}
	}
	return nil
}

// StartServices brings up any managed service that is not already
// responding, API first. A start failure stops the sequence so the
// caller can surface it (a missing binary needs user action, not a
// retry of the next service).
func (a *App) StartServices(ctx context.Context) error {
	for _, name := range []string{service.API, service.BUI} {
		st, err := a.Supervisor.Status(ctx, name)
		if err != nil {
			return err
		}
		if st.ServiceResponds {
			slog.Info("service already running", "service", name, "pid", st.PID)
			continue
		}
		res := a.Supervisor.Start(ctx, name)
		if res.RequiresSettings {
			return fmt.Errorf("%s is not installed: %s", name, res.Error)
		}
		if !res.Success {
			return fmt.Errorf("start %s: %s", name, res.Error)
		}
		slog.Info("service started", "service", name, "pid", res.PID)
	}
	return nil
}

// StartProxyIfNeeded starts the proxy unless the API service already
// speaks TLS directly, in which case the browser connects straight to it.
func (a *App) StartProxyIfNeeded() error {
	if a.Config().API.TLS.UseTLS {
		slog.Info("api uses tls, proxy not started")
		return nil
	}
	return a.Proxy.Start()
}

// Router builds the control API router over this App.
func (a *App) Router(basePath string) *server.Router {
	return server.NewRouter(a.Supervisor, a.Proxy, configStore{a}, basePath)
}

// Close releases the proxy and the history store.
func (a *App) Close() {
	a.Proxy.Stop()
	if a.History != nil {
		_ = a.History.Close()
	}
}

type configStore struct{ app *App }

func (s configStore) Get() config.GlobalConfig { return s.app.Config() }
func (s configStore) Set(key, value string) error { return s.app.SetConfig(key, value) }
