// Package proxy embeds a local HTTP reverse proxy in front of the managed
// BUI service. It exists so the browser UI can be served from a stable
// plain-HTTP port on localhost while the upstream always speaks HTTPS with
// a self-signed certificate. Requests it cannot forward are answered with
// a rendered maintenance page instead of a bare error.
package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "embed"

	"github.com/Beyond-Better/bb/internal/logger"
	"github.com/Beyond-Better/bb/internal/metrics"
)

//go:embed maintenance.html
var maintenancePage string

const errorPlaceholder = "<!--ERROR_MESSAGE-->"

// healthPath is answered by the proxy itself, never forwarded.
const healthPath = "/_health"

// ErrNoPortAvailable is returned when every candidate port is taken.
var ErrNoPortAvailable = errors.New("no proxy port available")

func defaultCandidatePorts() []int {
	ports := make([]int, 0, 10)
	for p := 45000; p <= 45009; p++ {
		ports = append(ports, p)
	}
	return ports
}

// Info is the externally visible proxy state.
type Info struct {
	Port      int    `json:"port"`
	Target    string `json:"target"`
	IsRunning bool   `json:"is_running"`
}

// Proxy is a single-upstream reverse proxy bound to a fixed local port.
// The port is chosen at construction and never changes; target and debug
// mode are mutable at runtime.
type Proxy struct {
	port    int
	access  *logger.AccessLogger
	debug   *atomic.Bool
	client  *http.Client
	Timeout time.Duration

	mu     sync.RWMutex // guards target
	target *url.URL

	srvMu    sync.Mutex // guards listener/srv
	listener net.Listener
	srv      *http.Server
}

// New binds the first free port from the default candidate range.
func New(logDir string) (*Proxy, error) {
	return NewWithPorts(logDir, defaultCandidatePorts())
}

// NewWithPorts binds the first free candidate port on localhost. The
// listener is held from construction on so Start and Stop stay cheap and
// the advertised port cannot be stolen in between.
func NewWithPorts(logDir string, candidates []int) (*Proxy, error) {
	var ln net.Listener
	var port int
	for _, p := range candidates {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p))
		if err != nil {
			slog.Debug("proxy port unavailable", "port", p, "error", err)
			continue
		}
		ln = l
		port = l.Addr().(*net.TCPAddr).Port
		break
	}
	if ln == nil {
		return nil, ErrNoPortAvailable
	}

	debug := &atomic.Bool{}
	return &Proxy{
		port:     port,
		access:   logger.NewAccessLogger(logDir, debug),
		debug:    debug,
		Timeout:  10 * time.Second,
		listener: ln,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402 -- local self-signed upstream
			},
			// Redirects are relayed to the browser, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Port returns the bound port.
func (p *Proxy) Port() int { return p.port }

// Start begins serving. Calling it while running is a no-op.
func (p *Proxy) Start() error {
	p.srvMu.Lock()
	defer p.srvMu.Unlock()
	if p.srv != nil {
		return nil
	}
	if p.listener == nil {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p.port))
		if err != nil {
			return fmt.Errorf("rebind proxy port %d: %w", p.port, err)
		}
		p.listener = ln
	}
	srv := &http.Server{Handler: p, ReadHeaderTimeout: 10 * time.Second}
	p.srv = srv
	ln := p.listener
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("proxy serve ended", "error", err)
		}
	}()
	slog.Info("proxy started", "port", p.port)
	return nil
}

// Stop aborts serving. In-flight requests are dropped, not drained; the
// proxy is a restartable convenience layer, not a durability boundary.
// Calling it while stopped is a no-op.
func (p *Proxy) Stop() {
	p.srvMu.Lock()
	defer p.srvMu.Unlock()
	if p.srv == nil {
		return
	}
	_ = p.srv.Close()
	p.srv = nil
	p.listener = nil
	slog.Info("proxy stopped", "port", p.port)
}

// SetTarget validates and installs a new upstream. Only HTTPS targets are
// accepted; on rejection the previous target stays in place.
func (p *Proxy) SetTarget(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid proxy target %q: %w", raw, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("proxy target must use https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy target %q has no host", raw)
	}
	p.mu.Lock()
	p.target = u
	p.mu.Unlock()
	slog.Info("proxy target set", "target", u.String())
	return nil
}

// SetDebugMode toggles access logging of successful requests.
func (p *Proxy) SetDebugMode(on bool) {
	p.debug.Store(on)
	slog.Info("proxy debug mode", "enabled", on)
}

// DebugMode reports whether debug mode is on.
func (p *Proxy) DebugMode() bool { return p.debug.Load() }

// Target returns the current upstream, or nil when none is configured.
func (p *Proxy) Target() *url.URL {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.target
}

// Info snapshots port, target, and running state.
func (p *Proxy) Info() Info {
	p.srvMu.Lock()
	running := p.srv != nil
	p.srvMu.Unlock()
	info := Info{Port: p.port, IsRunning: running}
	if t := p.Target(); t != nil {
		info.Target = t.String()
	}
	return info
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == healthPath {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "OK")
		return
	}
	if isWebSocketUpgrade(r) {
		p.serveWebSocket(w, r)
		return
	}
	p.forward(w, r)
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Upgrade")), "websocket")
}

func (p *Proxy) forward(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	target := p.Target()
	if target == nil {
		p.fail(w, r, start, "", http.StatusInternalServerError, "proxy target not configured")
		return
	}
	if target.Scheme != "https" {
		p.fail(w, r, start, target.String(), http.StatusInternalServerError,
			"refusing to forward to non-https target")
		return
	}

	outURL := target.Scheme + "://" + target.Host + r.URL.Path
	if r.URL.RawQuery != "" {
		outURL += "?" + r.URL.RawQuery
	}

	ctx, cancel := context.WithTimeout(r.Context(), p.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, r.Method, outURL, r.Body)
	if err != nil {
		p.fail(w, r, start, target.String(), http.StatusInternalServerError, err.Error())
		return
	}
	copyForwardHeaders(req, r, target)

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.fail(w, r, start, target.String(), http.StatusGatewayTimeout,
				"upstream did not respond in time")
			return
		}
		p.fail(w, r, start, target.String(), http.StatusInternalServerError, err.Error())
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)

	elapsed := time.Since(start)
	metrics.ObserveProxyRequest(resp.StatusCode, elapsed.Seconds())
	p.access.Log(logger.AccessEntry{
		Timestamp:  start,
		Method:     r.Method,
		Path:       r.URL.Path,
		Status:     resp.StatusCode,
		DurationMS: elapsed.Milliseconds(),
		Target:     target.String(),
	})
}

// copyForwardHeaders clones the inbound headers onto req, replaces Host
// with the target's, and stamps the X-Forwarded-* trio.
func copyForwardHeaders(req, r *http.Request, target *url.URL) {
	for k, vs := range r.Header {
		if http.CanonicalHeaderKey(k) == "Host" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Host = target.Host
	clientIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		clientIP = host
	}
	req.Header.Set("X-Forwarded-For", clientIP)
	req.Header.Set("X-Forwarded-Proto", "http")
	req.Header.Set("X-Forwarded-Host", r.Host)
}

// fail renders the maintenance page with the message interpolated and
// records the outcome.
func (p *Proxy) fail(w http.ResponseWriter, r *http.Request, start time.Time, target string, status int, msg string) {
	elapsed := time.Since(start)
	slog.Warn("proxy request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", msg)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, renderMaintenance(msg))
	metrics.ObserveProxyRequest(status, elapsed.Seconds())
	p.access.Log(logger.AccessEntry{
		Timestamp:  start,
		Method:     r.Method,
		Path:       r.URL.Path,
		Status:     status,
		DurationMS: elapsed.Milliseconds(),
		Target:     target,
		Error:      msg,
	})
}

func renderMaintenance(msg string) string {
	return strings.Replace(maintenancePage, errorPlaceholder, html.EscapeString(msg), 1)
}
