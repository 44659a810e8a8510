// Пакет service — бизнес-логика сервиса приёма заявок.
// errors.go — ошибки сервисного слоя с HTTP-кодом.
package service

import (
	"errors"
	"fmt"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/intake/internal/api/errors"
)

// Категории ошибок для errors.Is.
var (
	ErrAccessDenied = errors.New("доступ запрещён")
	ErrNotFound     = errors.New("не найдено")
	ErrForbidden    = errors.New("путь вне разрешённой директории")
	ErrInvalidInput = errors.New("некорректные входные данные")
	ErrStorageFault = errors.New("ошибка хранилища")
	ErrInProgress   = errors.New("операция уже выполняется")
)

// Error — ошибка операции с HTTP-кодом и машиночитаемым кодом.
type Error struct {
	StatusCode int
	Code       string
	Message    string

	kind error
	err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is сопоставляет ошибку с категорией.
func (e *Error) Is(target error) bool {
	return target == e.kind
}

// Unwrap возвращает исходную ошибку хранилища, если она есть.
func (e *Error) Unwrap() error {
	return e.err
}

func accessDenied() *Error {
	return &Error{
		StatusCode: http.StatusUnauthorized,
		Code:       apierrors.CodeUnauthorized,
		Message:    "Неверный или отсутствующий ключ доступа",
		kind:       ErrAccessDenied,
	}
}

func notFound(message string) *Error {
	return &Error{
		StatusCode: http.StatusNotFound,
		Code:       apierrors.CodeNotFound,
		Message:    message,
		kind:       ErrNotFound,
	}
}

func forbidden(message string) *Error {
	return &Error{
		StatusCode: http.StatusForbidden,
		Code:       apierrors.CodeForbidden,
		Message:    message,
		kind:       ErrForbidden,
	}
}

func invalidInput(message string) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Code:       apierrors.CodeValidationError,
		Message:    message,
		kind:       ErrInvalidInput,
	}
}

// fileTooLarge — частный случай некорректного ввода со своим статусом.
func fileTooLarge(message string) *Error {
	return &Error{
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       apierrors.CodeFileTooLarge,
		Message:    message,
		kind:       ErrInvalidInput,
	}
}

func reconcileInProgress() *Error {
	return &Error{
		StatusCode: http.StatusConflict,
		Code:       apierrors.CodeReconcileInProgress,
		Message:    "Сверка уже выполняется",
		kind:       ErrInProgress,
	}
}

func storageFault(message string, err error) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeInternalError,
		Message:    message,
		kind:       ErrStorageFault,
		err:        err,
	}
}
