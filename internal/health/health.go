// Package health probes the status endpoint of a managed service.
package health

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const statusPath = "/api/v1/status"

// Checker issues HTTP GETs against a service's status endpoint.
type Checker struct {
	client *http.Client
}

// NewChecker builds a Checker with a short per-probe timeout. Certificate
// verification is skipped: the managed services use locally generated
// self-signed certificates.
func NewChecker() *Checker {
	return &Checker{
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402
			},
		},
	}
}

// Check probes the configured scheme first and falls back to the opposite
// scheme, which covers the misconfiguration window while TLS is being
// toggled. Any 2xx response counts as healthy; connection failures do not
// surface as errors, they simply mean unhealthy.
func (c *Checker) Check(ctx context.Context, hostname string, port int, useTLS bool) bool {
	primary, fallback := "http", "https"
	if useTLS {
		primary, fallback = fallback, primary
	}
	if c.probe(ctx, primary, hostname, port) {
		return true
	}
	return c.probe(ctx, fallback, hostname, port)
}

func (c *Checker) probe(ctx context.Context, scheme, hostname string, port int) bool {
	url := fmt.Sprintf("%s://%s:%d%s", scheme, hostname, port, statusPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		slog.Debug("health probe failed", "url", url, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300
	slog.Debug("health probe", "url", url, "status", resp.StatusCode, "healthy", healthy)
	return healthy
}
