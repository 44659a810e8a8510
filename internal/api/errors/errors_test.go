package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError_Envelope(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"validation", func(w http.ResponseWriter) { ValidationError(w, "m") }, http.StatusBadRequest, CodeValidationError},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "m") }, http.StatusNotFound, CodeNotFound},
		{"unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "m") }, http.StatusUnauthorized, CodeUnauthorized},
		{"forbidden", func(w http.ResponseWriter) { Forbidden(w, "m") }, http.StatusForbidden, CodeForbidden},
		{"too large", func(w http.ResponseWriter) { FileTooLarge(w, "m") }, http.StatusRequestEntityTooLarge, CodeFileTooLarge},
		{"reconcile", func(w http.ResponseWriter) { ReconcileInProgress(w, "m") }, http.StatusConflict, CodeReconcileInProgress},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "m") }, http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			if w.Code != tt.status {
				t.Errorf("статус: ожидалось %d, получено %d", tt.status, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type: %s", ct)
			}

			var body errorBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("ошибка разбора тела: %v", err)
			}
			if body.Error.Code != tt.code || body.Error.Message != "m" {
				t.Errorf("тело: %+v", body)
			}
		})
	}
}
