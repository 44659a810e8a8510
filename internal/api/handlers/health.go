// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/goartstore/intake/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// serviceName — имя сервиса в ответах health endpoints.
const serviceName = "intake"

// HealthHandler реализует health endpoints: /health, /health/live, /health/ready.
type HealthHandler struct {
	version string
	svc     IntakeService
	// uploadsDir — директория вложений (для проверки записи)
	uploadsDir string
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(svc IntakeService, uploadsDir string) *HealthHandler {
	return &HealthHandler{
		version:    config.Version,
		svc:        svc,
		uploadsDir: uploadsDir,
	}
}

// Health обрабатывает GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: запись в директорию вложений, чтение журнала.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := h.checkFilesystem()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	storageCheck := map[string]any{"status": "ok"}
	if err := h.svc.Ready(r.Context()); err != nil {
		storageCheck = map[string]any{
			"status":  statusFail,
			"message": err.Error(),
		}
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
		"checks": map[string]any{
			"filesystem": fsCheck,
			"storage":    storageCheck,
		},
	})
}

// checkFilesystem проверяет доступность директории вложений на запись.
func (h *HealthHandler) checkFilesystem() map[string]any {
	if h.uploadsDir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(h.uploadsDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория вложений недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}
