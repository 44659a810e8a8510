// maintenance.go — обработчик POST /api/maintenance/reconcile.
// Делегирует reconciliation в сервисный слой.
package handlers

import (
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/goartstore/intake/internal/api/errors"
	"github.com/bigkaa/goartstore/intake/internal/api/middleware"
)

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	svc IntakeService
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(svc IntakeService) *MaintenanceHandler {
	return &MaintenanceHandler{svc: svc}
}

// Reconcile обрабатывает POST /api/maintenance/reconcile?key=[&purge=true].
// Запускает синхронный цикл reconciliation и возвращает результат.
// Если reconciliation уже выполняется — 409 RECONCILE_IN_PROGRESS.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	purge := false
	if v := r.URL.Query().Get("purge"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			apierrors.ValidationError(w, "Параметр purge должен быть true или false")
			return
		}
		purge = parsed
	}

	report, err := h.svc.Reconcile(r.Context(), middleware.AdminCredential(r), purge)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
