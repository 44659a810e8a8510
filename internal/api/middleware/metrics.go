// metrics.go — Prometheus HTTP метрики сервиса приёма заявок.
// Регистрирует метрики: intake_http_requests_total, intake_http_request_duration_seconds.
// Бизнес-метрики (intake_submissions_total и др.) обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/intake/internal/domain/model"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_http_requests_total",
			Help: "Общее количество HTTP-запросов к сервису приёма заявок",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intake_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// SubmissionsTotal — принятые и отклонённые заявки.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_submissions_total",
			Help: "Общее количество обработанных заявок",
		},
		[]string{"result"},
	)

	// AttachmentsBytesTotal — объём сохранённых вложений.
	AttachmentsBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intake_attachments_bytes_total",
			Help: "Общий объём сохранённых вложений в байтах",
		},
	)

	// PurgeFailuresTotal — файлы и директории, которые не удалось удалить.
	PurgeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intake_purge_failures_total",
			Help: "Количество ошибок удаления вложений",
		},
	)

	// OperationsTotal — общее количество операций сервиса.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_operations_total",
			Help: "Общее количество операций с заявками и файлами",
		},
		[]string{"operation", "result"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем id и пути файлов для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

const (
	submissionsPrefix = "/api/submissions/"
	filesPrefix       = "/api/files/"
)

// normalizePath сворачивает переменные сегменты пути, чтобы лейблы
// метрик не росли без ограничений.
// /api/submissions/0190c7a4-...   → /api/submissions/{id}
// /api/files/uploads/2024/01/...  → /api/files/*
func normalizePath(path string) string {
	switch path {
	case "/health", "/health/live", "/health/ready", "/metrics",
		"/api/info", "/api/submit", "/api/submissions", "/api/maintenance/reconcile":
		return path
	}

	switch {
	case strings.HasPrefix(path, filesPrefix):
		return "/api/files/*"
	case strings.HasPrefix(path, submissionsPrefix):
		if model.ValidID(path[len(submissionsPrefix):]) {
			return "/api/submissions/{id}"
		}
	}
	return "other"
}
