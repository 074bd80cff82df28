package service

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Beyond-Better/bb/internal/config"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil { // #nosec G306
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestResolve(t *testing.T) {
	r := Resolver{LogDir: "/var/log/bb"}
	cfg := config.Default()
	cfg.API.TLS.UseTLS = true

	d, err := r.Resolve(API, cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Name != "api" || d.Hostname != "localhost" || d.Port != 3162 || !d.UseTLS {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
	if d.BinaryName != BinaryName("api") {
		t.Fatalf("binary name mismatch: %q", d.BinaryName)
	}
}

func TestResolveUnknown(t *testing.T) {
	r := Resolver{}
	if _, err := r.Resolve("cui", config.Default()); err == nil {
		t.Fatalf("expected error for unknown service")
	}
}

func TestBinaryNameSuffix(t *testing.T) {
	name := BinaryName("api")
	if runtime.GOOS == "windows" {
		if name != "bb-api.exe" {
			t.Fatalf("got %q", name)
		}
	} else if name != "bb-api" {
		t.Fatalf("got %q", name)
	}
}

func TestFindExecutablePrefersUserDir(t *testing.T) {
	userDir := t.TempDir()
	sysDir := t.TempDir()
	userBin := writeExecutable(t, userDir, BinaryName(API))
	writeExecutable(t, sysDir, BinaryName(API))

	r := Resolver{UserInstallDir: userDir, SystemInstallDir: sysDir}
	path, err := r.FindExecutable(API)
	if err != nil {
		t.Fatalf("FindExecutable: %v", err)
	}
	if path != userBin {
		t.Fatalf("got %q want %q", path, userBin)
	}
}

func TestFindExecutableFallsBackToSystemDir(t *testing.T) {
	sysDir := t.TempDir()
	sysBin := writeExecutable(t, sysDir, BinaryName(BUI))

	r := Resolver{UserInstallDir: t.TempDir(), SystemInstallDir: sysDir}
	path, err := r.FindExecutable(BUI)
	if err != nil {
		t.Fatalf("FindExecutable: %v", err)
	}
	if path != sysBin {
		t.Fatalf("got %q want %q", path, sysBin)
	}
}

func TestFindExecutableMissing(t *testing.T) {
	r := Resolver{UserInstallDir: t.TempDir(), SystemInstallDir: t.TempDir()}
	path, err := r.FindExecutable(API)
	if err != nil {
		t.Fatalf("FindExecutable: %v", err)
	}
	if path != "" {
		t.Fatalf("expected empty path, got %q", path)
	}
}

func TestLogPathResolution(t *testing.T) {
	r := Resolver{LogDir: "/logs"}
	cfg := config.Default()

	cfg.API.LogFile = ""
	d, _ := r.Resolve(API, cfg)
	if d.LogPath != filepath.Join("/logs", "api.log") {
		t.Fatalf("default log path: %q", d.LogPath)
	}

	cfg.API.LogFile = "custom.log"
	d, _ = r.Resolve(API, cfg)
	if d.LogPath != filepath.Join("/logs", "custom.log") {
		t.Fatalf("relative log path: %q", d.LogPath)
	}

	cfg.API.LogFile = "/var/tmp/api.log"
	d, _ = r.Resolve(API, cfg)
	if d.LogPath != "/var/tmp/api.log" {
		t.Fatalf("absolute log path: %q", d.LogPath)
	}
}
