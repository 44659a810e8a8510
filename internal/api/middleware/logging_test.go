package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusNotFound, "level=WARN"},
		{http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte("body"))
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/submissions?key=secret-admin", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		out := buf.String()
		if !strings.Contains(out, tt.level) {
			t.Errorf("статус %d: ожидался %s в %q", tt.status, tt.level, out)
		}
		if !strings.Contains(out, "bytes=4") {
			t.Errorf("размер ответа не записан: %q", out)
		}
		if strings.Contains(out, "secret-admin") {
			t.Errorf("ключ доступа попал в лог: %q", out)
		}
	}
}

func TestRequestLogger_RedactsKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/maintenance/reconcile?key=secret-admin&purge=true&api_key=secret-submit", nil)
	req.Header.Set(HeaderAPIKey, "secret-header")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, secret := range []string{"secret-admin", "secret-submit", "secret-header"} {
		if strings.Contains(out, secret) {
			t.Errorf("ключ %s попал в лог: %q", secret, out)
		}
	}
	if !strings.Contains(out, "purge=true") {
		t.Errorf("обычные параметры должны логироваться: %q", out)
	}
	if !strings.Contains(out, "key=REDACTED") {
		t.Errorf("ожидалась замена ключа: %q", out)
	}
	if !strings.Contains(out, "header_credential=true") {
		t.Errorf("ожидалась отметка ключа в заголовке: %q", out)
	}
}

func TestRedactQuery(t *testing.T) {
	tests := []struct {
		rawQuery string
		want     string
	}{
		{"", ""},
		{"purge=false", "purge=false"},
		{"key=a&key=b", "key=REDACTED"},
		{"api_key=x&purge=true", "api_key=REDACTED&purge=true"},
		{"%zz", "REDACTED"},
	}

	for _, tt := range tests {
		got := redactQuery(&url.URL{RawQuery: tt.rawQuery})
		if got != tt.want {
			t.Errorf("redactQuery(%q) = %q, ожидалось %q", tt.rawQuery, got, tt.want)
		}
	}
}
