// Package client is a typed HTTP client for the bb-dui control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Beyond-Better/bb/internal/config"
	"github.com/Beyond-Better/bb/internal/proxy"
	"github.com/Beyond-Better/bb/internal/supervisor"
)

// Client talks to a running bb-dui control server.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // optional
}

// DefaultConfig points at the default local control server.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:3163/api/v1",
		Timeout: 30 * time.Second,
	}
}

// New creates a control API client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		logger:  cfg.Logger,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// IsReachable reports whether the control server answers its health check.
func (c *Client) IsReachable(ctx context.Context) bool {
	var resp okResponse
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &resp)
	return err == nil && resp.OK
}

// ServiceStatus fetches the layered status of one service.
func (c *Client) ServiceStatus(ctx context.Context, name string) (supervisor.ServiceStatus, error) {
	var st supervisor.ServiceStatus
	err := c.do(ctx, http.MethodGet, "/services/"+name+"/status", nil, &st)
	return st, err
}

// StartService asks the supervisor to start a service.
func (c *Client) StartService(ctx context.Context, name string) (supervisor.StartResult, error) {
	var res supervisor.StartResult
	err := c.do(ctx, http.MethodPost, "/services/"+name+"/start", nil, &res)
	return res, err
}

// StopService asks the supervisor to stop a service. It reports whether no
// matching process remained afterwards.
func (c *Client) StopService(ctx context.Context, name string) (bool, error) {
	var res struct {
		Stopped bool `json:"stopped"`
	}
	err := c.do(ctx, http.MethodPost, "/services/"+name+"/stop", nil, &res)
	return res.Stopped, err
}

// Reconcile repairs supervisor bookkeeping for all services.
func (c *Client) Reconcile(ctx context.Context) error {
	var resp okResponse
	return c.do(ctx, http.MethodPost, "/services/reconcile", nil, &resp)
}

// ProxyInfo fetches the proxy's port, target, and running state.
func (c *Client) ProxyInfo(ctx context.Context) (proxy.Info, error) {
	var info proxy.Info
	err := c.do(ctx, http.MethodGet, "/proxy", nil, &info)
	return info, err
}

// StartProxy starts the embedded reverse proxy.
func (c *Client) StartProxy(ctx context.Context) error {
	var resp okResponse
	return c.do(ctx, http.MethodPost, "/proxy/start", nil, &resp)
}

// StopProxy stops the embedded reverse proxy.
func (c *Client) StopProxy(ctx context.Context) error {
	var resp okResponse
	return c.do(ctx, http.MethodPost, "/proxy/stop", nil, &resp)
}

// SetProxyTarget points the proxy at a new HTTPS upstream.
func (c *Client) SetProxyTarget(ctx context.Context, target string) error {
	var resp okResponse
	return c.do(ctx, http.MethodPost, "/proxy/target", map[string]string{"target": target}, &resp)
}

// SetProxyDebug toggles proxy debug logging.
func (c *Client) SetProxyDebug(ctx context.Context, enabled bool) error {
	var resp okResponse
	return c.do(ctx, http.MethodPost, "/proxy/debug", map[string]bool{"enabled": enabled}, &resp)
}

// GetConfig fetches the full configuration.
func (c *Client) GetConfig(ctx context.Context) (config.GlobalConfig, error) {
	var cfg config.GlobalConfig
	err := c.do(ctx, http.MethodGet, "/config", nil, &cfg)
	return cfg, err
}

// SetConfig sets one configuration key.
func (c *Client) SetConfig(ctx context.Context, key, value string) error {
	var resp okResponse
	return c.do(ctx, http.MethodPost, "/config", map[string]string{"key": key, "value": value}, &resp)
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.logger.Debug("control API request", "method", method, "path", path)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err == nil && er.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, er.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
