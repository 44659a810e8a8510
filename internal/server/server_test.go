package server

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/intake/internal/config"
)

type pingRoutes struct{}

func (pingRoutes) Mount(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	r.Method(http.MethodGet, "/metrics", MetricsHandler())
}

func testConfig() *config.Config {
	return &config.Config{
		Port:             3000,
		HTTPReadTimeout:  time.Second,
		HTTPWriteTimeout: 2 * time.Second,
		HTTPIdleTimeout:  3 * time.Second,
		ShutdownTimeout:  time.Second,
	}
}

func TestNew_RoutesAndMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	called := false
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			next.ServeHTTP(w, r)
		})
	}

	srv := New(testConfig(), logger, pingRoutes{}, mw)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Body.String() != "pong" {
		t.Errorf("ожидалось pong, получено %q", w.Body.String())
	}
	if !called {
		t.Error("middleware не вызван")
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("/metrics: статус %d", w.Code)
	}
}

func TestNew_Timeouts(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv := New(testConfig(), logger, pingRoutes{})

	if srv.httpServer.Addr != ":3000" {
		t.Errorf("Addr: %s", srv.httpServer.Addr)
	}
	if srv.httpServer.ReadTimeout != time.Second || srv.httpServer.WriteTimeout != 2*time.Second ||
		srv.httpServer.IdleTimeout != 3*time.Second {
		t.Errorf("таймауты не применены")
	}
	if srv.httpServer.TLSConfig != nil {
		t.Error("TLS не настроен, TLSConfig должен быть nil")
	}
}

func TestNew_TLSMinVersion(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := testConfig()
	cfg.TLSCert = "/tmp/tls.crt"
	cfg.TLSKey = "/tmp/tls.key"

	srv := New(cfg, logger, pingRoutes{})
	if srv.httpServer.TLSConfig == nil || srv.httpServer.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Error("ожидался TLS 1.2 минимум")
	}
}
