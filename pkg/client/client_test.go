package client

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beyond-Better/bb/internal/config"
	"github.com/Beyond-Better/bb/internal/proxy"
	"github.com/Beyond-Better/bb/internal/server"
	"github.com/Beyond-Better/bb/internal/supervisor"
)

type stubServices struct {
	status supervisor.ServiceStatus
	start  supervisor.StartResult
}

func (s *stubServices) Status(_ context.Context, name string) (supervisor.ServiceStatus, error) {
	if name != "api" && name != "bui" {
		return supervisor.ServiceStatus{}, fmt.Errorf("unknown service %q", name)
	}
	return s.status, nil
}
func (s *stubServices) Start(context.Context, string) supervisor.StartResult { return s.start }

func (s *stubServices) Stop(context.Context, string) (bool, error) { return true, nil }

func (s *stubServices) ReconcileAll(context.Context) error { return nil }

type stubProxy struct {
	info   proxy.Info
	target string
	debug  bool
}

func (p *stubProxy) Info() proxy.Info { return p.info }

func (p *stubProxy) Start() error { return nil }

func (p *stubProxy) Stop() {}
func (p *stubProxy) SetTarget(url string) error {
	p.target = url
	return nil
}
func (p *stubProxy) SetDebugMode(on bool) { p.debug = on }

type stubConfig struct {
	cfg config.GlobalConfig
	key string
	val string
}

func (c *stubConfig) Get() config.GlobalConfig { return c.cfg }
func (c *stubConfig) Set(key, value string) error {
	if key == "bad.key" {
		return fmt.Errorf("unknown config key %q", key)
	}
	c.key, c.val = key, value
	return nil
}

func newTestClient(t *testing.T) (*Client, *stubServices, *stubProxy, *stubConfig) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := &stubServices{
		status: supervisor.ServiceStatus{PID: 77, PIDExists: true, ProcessResponds: true, ServiceResponds: true},
		start:  supervisor.StartResult{Success: true, PID: 77},
	}
	px := &stubProxy{info: proxy.Info{Port: 45001, Target: "https://localhost:8080", IsRunning: true}}
	cfg := &stubConfig{cfg: config.Default()}
	ts := httptest.NewServer(server.NewRouter(svc, px, cfg, "/api/v1").Handler())
	t.Cleanup(ts.Close)
	return New(Config{BaseURL: ts.URL + "/api/v1"}), svc, px, cfg
}

func TestServiceRoundTrips(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	ctx := context.Background()

	assert.True(t, c.IsReachable(ctx))

	st, err := c.ServiceStatus(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, 77, st.PID)
	assert.True(t, st.ServiceResponds)

	_, err = c.ServiceStatus(ctx, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown service")

	res, err := c.StartService(ctx, "api")
	require.NoError(t, err)
	assert.True(t, res.Success)

	stopped, err := c.StopService(ctx, "bui")
	require.NoError(t, err)
	assert.True(t, stopped)

	require.NoError(t, c.Reconcile(ctx))
}

func TestProxyRoundTrips(t *testing.T) {
	c, _, px, _ := newTestClient(t)
	ctx := context.Background()

	info, err := c.ProxyInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 45001, info.Port)
	assert.Equal(t, "https://localhost:8080", info.Target)

	require.NoError(t, c.StartProxy(ctx))
	require.NoError(t, c.StopProxy(ctx))
	require.NoError(t, c.SetProxyTarget(ctx, "https://localhost:9090"))
	assert.Equal(t, "https://localhost:9090", px.target)
	require.NoError(t, c.SetProxyDebug(ctx, true))
	assert.True(t, px.debug)
}

func TestConfigRoundTrips(t *testing.T) {
	c, _, _, cfg := newTestClient(t)
	ctx := context.Background()

	got, err := c.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3162, got.API.Port)

	require.NoError(t, c.SetConfig(ctx, "api.port", "4000"))
	assert.Equal(t, "api.port", cfg.key)
	assert.Equal(t, "4000", cfg.val)

	err = c.SetConfig(ctx, "bad.key", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
}

func TestUnreachableServer(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api/v1"})
	assert.False(t, c.IsReachable(context.Background()))
	_, err := c.ServiceStatus(context.Background(), "api")
	require.Error(t, err)
}
