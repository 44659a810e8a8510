// submissions.go — HTTP handlers приёма, просмотра и удаления заявок.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/intake/internal/api/errors"
	"github.com/bigkaa/goartstore/intake/internal/api/middleware"
	"github.com/bigkaa/goartstore/intake/internal/config"
	"github.com/bigkaa/goartstore/intake/internal/domain/model"
	"github.com/bigkaa/goartstore/intake/internal/service"
)

// FieldAttachments — поле multipart-формы с файлами.
const FieldAttachments = "additionalMaterials"

// multipartMemory — объём multipart в памяти, остальное во временных файлах.
const multipartMemory = 32 << 20

// SubmissionsHandler — обработчик endpoints заявок.
type SubmissionsHandler struct {
	svc IntakeService
	cfg *config.Config
}

// NewSubmissionsHandler создаёт обработчик endpoints заявок.
func NewSubmissionsHandler(svc IntakeService, cfg *config.Config) *SubmissionsHandler {
	return &SubmissionsHandler{svc: svc, cfg: cfg}
}

// submitResponse — ответ на успешный приём.
type submitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// deleteResponse — ответ на успешное удаление.
type deleteResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// submitJSON — тело заявки в формате JSON.
type submitJSON struct {
	FormPurpose       string `json:"formPurpose"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	HelpNeededOffered string `json:"helpNeededOffered"`
	APIKey            string `json:"api_key"`
}

// Submit обрабатывает POST /api/submit.
// Тело: multipart/form-data (файлы в поле additionalMaterials),
// application/x-www-form-urlencoded или application/json.
func (h *SubmissionsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBytes())

	var (
		fields submitJSON
		files  []*multipart.FileHeader
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeBodyError(w, err)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()
		fields = formFields(r)
		files = r.MultipartForm.File[FieldAttachments]

	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil && !errors.Is(err, io.EOF) {
			writeBodyError(w, err)
			return
		}

	default:
		if err := r.ParseForm(); err != nil {
			writeBodyError(w, err)
			return
		}
		fields = formFields(r)
	}

	params := service.SubmitParams{
		Credential:        middleware.SubmitterCredential(r, fields.APIKey),
		FormPurpose:       fields.FormPurpose,
		FirstName:         fields.FirstName,
		LastName:          fields.LastName,
		Email:             fields.Email,
		Phone:             fields.Phone,
		HelpNeededOffered: fields.HelpNeededOffered,
		Attachments:       make([]service.Attachment, 0, len(files)),
	}
	for _, fh := range files {
		params.Attachments = append(params.Attachments, service.Attachment{
			Filename: fh.Filename,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	sub, err := h.svc.Submit(r.Context(), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		Success: true,
		ID:      sub.ID,
		Message: "Form submitted successfully",
	})
}

// List обрабатывает GET /api/submissions?key=.
func (h *SubmissionsHandler) List(w http.ResponseWriter, r *http.Request) {
	submissions, err := h.svc.List(r.Context(), middleware.AdminCredential(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if submissions == nil {
		submissions = []*model.Submission{}
	}
	writeJSON(w, http.StatusOK, submissions)
}

// Delete обрабатывает DELETE /api/submissions/{id}?key=.
func (h *SubmissionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), middleware.AdminCredential(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Success: true, ID: removed.ID})
}

// formFields извлекает поля заявки из разобранной формы.
func formFields(r *http.Request) submitJSON {
	return submitJSON{
		FormPurpose:       r.PostForm.Get(model.ColumnFormPurpose),
		FirstName:         r.PostForm.Get(model.ColumnFirstName),
		LastName:          r.PostForm.Get(model.ColumnLastName),
		Email:             r.PostForm.Get(model.ColumnEmail),
		Phone:             r.PostForm.Get(model.ColumnPhone),
		HelpNeededOffered: r.PostForm.Get(model.ColumnHelpNeededOffered),
		APIKey:            r.PostForm.Get(middleware.ParamAPIKey),
	}
}

// writeBodyError — 413 при превышении лимита тела, иначе 400.
func writeBodyError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		apierrors.FileTooLarge(w, fmt.Sprintf("Тело запроса превышает %d байт", maxErr.Limit))
		return
	}
	apierrors.ValidationError(w, fmt.Sprintf("Некорректное тело запроса: %s", err.Error()))
}
