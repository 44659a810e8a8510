// files.go — HTTP handler выдачи файлов вложений.
package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/bigkaa/goartstore/intake/internal/api/middleware"
)

// filesRoute — префикс маршрута выдачи файлов.
const filesRoute = "/api/files/"

// FilesHandler — обработчик выдачи вложений.
type FilesHandler struct {
	svc IntakeService
}

// NewFilesHandler создаёт обработчик выдачи вложений.
func NewFilesHandler(svc IntakeService) *FilesHandler {
	return &FilesHandler{svc: svc}
}

// Download обрабатывает GET /api/files/*?key=.
// Хвост пути декодируется ровно один раз. Поддерживает Range requests
// и условные запросы через http.ServeContent.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	requested := ""
	if raw, ok := strings.CutPrefix(r.URL.EscapedPath(), filesRoute); ok {
		if decoded, err := url.PathUnescape(raw); err == nil {
			requested = decoded
		}
	}

	f, info, err := h.svc.OpenFile(requested, middleware.AdminCredential(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer f.Close()

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
