package proxy

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Beyond-Better/bb/internal/logger"
	"github.com/Beyond-Better/bb/internal/metrics"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The proxy only listens on localhost; the upstream enforces its own
	// origin policy.
	CheckOrigin: func(*http.Request) bool { return true },
}

var wsDialer = &websocket.Dialer{
	HandshakeTimeout: 10 * time.Second,
	TLSClientConfig:  &tls.Config{InsecureSkipVerify: true}, // #nosec G402 -- local self-signed upstream
}

// serveWebSocket bridges an inbound WebSocket to the upstream over wss.
// Each direction runs its own forwarding loop; either side closing or
// erroring tears down the whole session.
func (p *Proxy) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	target := p.Target()
	if target == nil {
		p.fail(w, r, start, "", http.StatusInternalServerError, "proxy target not configured")
		return
	}
	if r.Header.Get("Sec-WebSocket-Key") == "" {
		p.failWS(w, r, start, target.String(), http.StatusBadRequest, "missing Sec-WebSocket-Key header")
		return
	}

	wsURL := "wss://" + target.Host + r.URL.Path
	if r.URL.RawQuery != "" {
		wsURL += "?" + r.URL.RawQuery
	}
	upstream, resp, err := wsDialer.Dial(wsURL, upstreamWSHeader(r))
	if err != nil {
		status := http.StatusInternalServerError
		if resp != nil {
			status = resp.StatusCode
		}
		p.failWS(w, r, start, target.String(), status, "dial upstream websocket: "+err.Error())
		return
	}
	defer func() { _ = upstream.Close() }()

	client, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		slog.Warn("websocket upgrade failed", "path", r.URL.Path, "error", err)
		return
	}
	defer func() { _ = client.Close() }()

	metrics.WSSessionOpened()
	defer metrics.WSSessionClosed()
	p.access.Log(logger.AccessEntry{
		Timestamp:  start,
		Method:     r.Method,
		Path:       r.URL.Path,
		Status:     http.StatusSwitchingProtocols,
		DurationMS: time.Since(start).Milliseconds(),
		Target:     target.String(),
	})

	// Closing both connections unblocks whichever pump is mid-read.
	var closeOnce sync.Once
	teardown := func() {
		closeOnce.Do(func() {
			_ = client.Close()
			_ = upstream.Close()
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer teardown()
		pumpWS(upstream, client)
	}()
	go func() {
		defer wg.Done()
		defer teardown()
		pumpWS(client, upstream)
	}()
	wg.Wait()
	slog.Debug("websocket session closed", "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
}

// pumpWS relays frames from src to dst until src closes or errors.
// A Ping read from src is answered with a Pong to dst, the peer the ping
// was heading for; Pongs are swallowed. dst is only ever written by this
// pump, so no write lock is needed.
func pumpWS(src, dst *websocket.Conn) {
	src.SetPingHandler(func(appData string) error {
		return dst.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})
	src.SetPongHandler(func(string) error { return nil })
	for {
		mt, data, err := src.ReadMessage()
		if err != nil {
			return
		}
		if err := dst.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

// upstreamWSHeader forwards the subset of inbound headers the upstream
// needs; the hop-by-hop upgrade headers are regenerated by the dialer.
func upstreamWSHeader(r *http.Request) http.Header {
	h := http.Header{}
	for _, k := range []string{"Sec-Websocket-Protocol", "Cookie", "Authorization"} {
		if v := r.Header.Get(k); v != "" {
			h.Set(k, v)
		}
	}
	return h
}

// failWS records a websocket setup failure. Plain text is used instead of
// the maintenance page since the caller is a WebSocket client.
func (p *Proxy) failWS(w http.ResponseWriter, r *http.Request, start time.Time, target string, status int, msg string) {
	elapsed := time.Since(start)
	slog.Warn("websocket proxy failed", "path", r.URL.Path, "status", status, "error", msg)
	http.Error(w, msg, status)
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
