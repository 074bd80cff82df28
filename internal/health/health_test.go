package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
)

func hostPort(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return u.Hostname(), port
}

func TestCheckHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, port := hostPort(t, srv)
	if !NewChecker().Check(context.Background(), host, port, false) {
		t.Fatalf("expected healthy")
	}
}

func TestCheckUnhealthyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	host, port := hostPort(t, srv)
	if NewChecker().Check(context.Background(), host, port, false) {
		t.Fatalf("5xx must be unhealthy")
	}
}

func TestCheckConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host, port := hostPort(t, srv)
	srv.Close()
	if NewChecker().Check(context.Background(), host, port, false) {
		t.Fatalf("closed server must be unhealthy")
	}
}

// A service configured for TLS that is actually serving plain HTTP must
// still be detected through the scheme fallback.
func TestCheckSchemeFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, port := hostPort(t, srv)
	if !NewChecker().Check(context.Background(), host, port, true) {
		t.Fatalf("expected fallback to plain HTTP to succeed")
	}
}

func TestCheckTLSServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	host, port := hostPort(t, srv)
	if !NewChecker().Check(context.Background(), host, port, true) {
		t.Fatalf("expected self-signed TLS server to be healthy")
	}
}
