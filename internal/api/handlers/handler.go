// handler.go — APIHandler собирает доменные handlers и монтирует их
// на chi-роутер.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/intake/internal/api/errors"
	"github.com/bigkaa/goartstore/intake/internal/domain/model"
	"github.com/bigkaa/goartstore/intake/internal/service"
)

// IntakeService — операции сервисного слоя, используемые handlers.
type IntakeService interface {
	Submit(ctx context.Context, params service.SubmitParams) (*model.Submission, error)
	List(ctx context.Context, adminKey string) ([]*model.Submission, error)
	Delete(ctx context.Context, id, adminKey string) (*model.Submission, error)
	OpenFile(requested, adminKey string) (*os.File, os.FileInfo, error)
	Reconcile(ctx context.Context, adminKey string, purgeOrphans bool) (*service.ReconcileReport, error)
	Ready(ctx context.Context) error
}

// APIHandler — все endpoints сервиса.
type APIHandler struct {
	submissions *SubmissionsHandler
	files       *FilesHandler
	maintenance *MaintenanceHandler
	health      *HealthHandler
	system      *SystemHandler
	metrics     http.Handler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	submissions *SubmissionsHandler,
	files *FilesHandler,
	maintenance *MaintenanceHandler,
	health *HealthHandler,
	system *SystemHandler,
	metrics http.Handler,
) *APIHandler {
	return &APIHandler{
		submissions: submissions,
		files:       files,
		maintenance: maintenance,
		health:      health,
		system:      system,
		metrics:     metrics,
	}
}

// Mount регистрирует маршруты на роутере.
func (h *APIHandler) Mount(r chi.Router) {
	// --- Health и метрики ---
	r.Get("/health", h.health.Health)
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/info", h.system.GetInfo)

		// --- Заявки ---
		r.Post("/submit", h.submissions.Submit)
		r.Get("/submissions", h.submissions.List)
		r.Delete("/submissions/{id}", h.submissions.Delete)

		// --- Файлы вложений ---
		r.Get("/files/*", h.files.Download)

		// --- Обслуживание ---
		r.Post("/maintenance/reconcile", h.maintenance.Reconcile)
	})
}

// writeJSON вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError записывает ошибку сервисного слоя в стандартном формате.
func writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		apierrors.WriteError(w, svcErr.StatusCode, svcErr.Code, svcErr.Message)
		return
	}
	apierrors.InternalError(w, "Внутренняя ошибка")
}
