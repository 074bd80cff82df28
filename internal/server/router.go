// Package server exposes the control plane over HTTP: service lifecycle,
// proxy control, and configuration. The CLI talks to it through
// pkg/client.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Beyond-Better/bb/internal/config"
	"github.com/Beyond-Better/bb/internal/metrics"
	"github.com/Beyond-Better/bb/internal/proxy"
	"github.com/Beyond-Better/bb/internal/supervisor"
)

// ServiceManager is the supervisor surface the router needs.
type ServiceManager interface {
	Status(ctx context.Context, name string) (supervisor.ServiceStatus, error)
	Start(ctx context.Context, name string) supervisor.StartResult
	Stop(ctx context.Context, name string) (bool, error)
	ReconcileAll(ctx context.Context) error
}

// ProxyManager is the proxy surface the router needs.
type ProxyManager interface {
	Info() proxy.Info
	Start() error
	Stop()
	SetTarget(url string) error
	SetDebugMode(on bool)
}

// ConfigStore reads and mutates the persisted configuration.
type ConfigStore interface {
	Get() config.GlobalConfig
	Set(key, value string) error
}

// Router provides the embeddable control API.
// Endpoints (under basePath):
//
//	GET  /services/:name/status
//	POST /services/:name/start
//	POST /services/:name/stop
//	POST /services/reconcile
//	GET  /proxy            proxy info
//	POST /proxy/start
//	POST /proxy/stop
//	POST /proxy/target     body: {"target": "https://..."}
//	POST /proxy/debug      body: {"enabled": bool}
//	GET  /config
//	POST /config           body: {"key": "...", "value": "..."}
//	GET  /healthz
//	GET  /metrics
type Router struct {
	services ServiceManager
	proxy    ProxyManager
	cfg      ConfigStore
	basePath string
}

// NewRouter constructs a Router. basePath may be empty or start with '/'.
func NewRouter(services ServiceManager, px ProxyManager, cfg ConfigStore, basePath string) *Router {
	return &Router{services: services, proxy: px, cfg: cfg, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/services/:name/status", r.handleServiceStatus)
	group.POST("/services/:name/start", r.handleServiceStart)
	group.POST("/services/:name/stop", r.handleServiceStop)
	group.POST("/services/reconcile", r.handleReconcile)
	group.GET("/proxy", r.handleProxyInfo)
	group.POST("/proxy/start", r.handleProxyStart)
	group.POST("/proxy/stop", r.handleProxyStop)
	group.POST("/proxy/target", r.handleProxyTarget)
	group.POST("/proxy/debug", r.handleProxyDebug)
	group.GET("/config", r.handleConfigGet)
	group.POST("/config", r.handleConfigSet)
	group.GET("/healthz", func(c *gin.Context) { writeJSON(c, http.StatusOK, okResp{OK: true}) })
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone control server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type stopResp struct {
	Stopped bool `json:"stopped"`
}

func (r *Router) handleServiceStatus(c *gin.Context) {
	st, err := r.services.Status(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleServiceStart(c *gin.Context) {
	res := r.services.Start(c.Request.Context(), c.Param("name"))
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleServiceStop(c *gin.Context) {
	stopped, err := r.services.Stop(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, stopResp{Stopped: stopped})
}

func (r *Router) handleReconcile(c *gin.Context) {
	if err := r.services.ReconcileAll(c.Request.Context()); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleProxyInfo(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.proxy.Info())
}

func (r *Router) handleProxyStart(c *gin.Context) {
	if err := r.proxy.Start(); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleProxyStop(c *gin.Context) {
	r.proxy.Stop()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type targetReq struct {
	Target string `json:"target"`
}

func (r *Router) handleProxyTarget(c *gin.Context) {
	var req targetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.proxy.SetTarget(req.Target); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type debugReq struct {
	Enabled bool `json:"enabled"`
}

func (r *Router) handleProxyDebug(c *gin.Context) {
	var req debugReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	r.proxy.SetDebugMode(req.Enabled)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleConfigGet(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.cfg.Get())
}

type configSetReq struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (r *Router) handleConfigSet(c *gin.Context) {
	var req configSetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.cfg.Set(req.Key, req.Value); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func sanitizeBase(bp string) string {
	if bp == "" || bp == "/" {
		return ""
	}
	if bp[0] != '/' {
		bp = "/" + bp
	}
	for len(bp) > 1 && bp[len(bp)-1] == '/' {
		bp = bp[:len(bp)-1]
	}
	return bp
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
