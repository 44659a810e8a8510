// system.go — обработчик GET /api/info (параметры приёма заявок).
// Публичный endpoint (без ключа) для клиентов формы: лимиты
// проверяются на стороне браузера до отправки.
package handlers

import (
	"net/http"

	"github.com/bigkaa/goartstore/intake/internal/config"
)

// infoResponse — ответ GET /api/info.
type infoResponse struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	MaxFileSize int64  `json:"max_file_size"`
	MaxFiles    int    `json:"max_files"`
	FileField   string `json:"file_field"`
}

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg *config.Config
}

// NewSystemHandler создаёт обработчик системных endpoints.
func NewSystemHandler(cfg *config.Config) *SystemHandler {
	return &SystemHandler{cfg: cfg}
}

// GetInfo обрабатывает GET /api/info.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Service:     serviceName,
		Version:     config.Version,
		MaxFileSize: h.cfg.MaxFileSize,
		MaxFiles:    h.cfg.MaxFiles,
		FileField:   FieldAttachments,
	})
}
