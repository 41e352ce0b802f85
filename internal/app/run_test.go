package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/filesman/internal/config"
	"github.com/hitoshi/filesman/internal/storage"
)

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
	if !strings.Contains(err.Error(), "initialization failed") {
		t.Errorf("error = %v, want initialization failure", err)
	}
}

func TestRun_WithUnsupportedStorageDriver_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("STORAGE_DRIVER", "ftp")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"worker"}); err == nil {
		t.Fatal("Run with unsupported storage driver should return error")
	}
}

func TestCheckStatus(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("path = %q, want /status", r.URL.Path)
		}
		w.Write([]byte(`{"redis":true,"db":true}`))
	}))
	defer ok.Close()

	if err := checkStatus(ok.URL + "/status"); err != nil {
		t.Errorf("checkStatus() = %v, want nil", err)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	if err := checkStatus(failing.URL + "/status"); err == nil {
		t.Error("checkStatus() = nil, want error for 503")
	}
}

func TestRunHealthcheck_NoServer(t *testing.T) {
	t.Setenv("SERVER_PORT", "1")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"healthcheck"}); err == nil {
		t.Error("healthcheck without a server should fail")
	}
}

func TestNewStore_Local(t *testing.T) {
	root := t.TempDir()
	store, err := newStore(context.Background(), &config.Config{
		StorageDriver: config.StorageDriverLocal,
		FolderPath:    root,
	})
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}

	local, ok := store.(*storage.LocalStore)
	if !ok {
		t.Fatalf("store type = %T, want *storage.LocalStore", store)
	}
	if local.Root() != root {
		t.Errorf("Root() = %q, want %q", local.Root(), root)
	}
}

func TestServeUntilDone_ShutsDownOnCancel(t *testing.T) {
	server := &http.Server{
		Addr:    "127.0.0.1:0",
		Handler: http.NotFoundHandler(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveUntilDone(ctx, server, "test server") }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serveUntilDone() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serveUntilDone did not return after cancel")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	masked := maskDatabaseURL("postgres://filesman:secret@db:5432/filesman")
	if strings.Contains(masked, "secret") {
		t.Errorf("masked URL leaks password: %q", masked)
	}
	if got := maskDatabaseURL("short"); got != "***" {
		t.Errorf("maskDatabaseURL(short) = %q, want ***", got)
	}
}
