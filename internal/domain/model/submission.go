// Пакет model — доменные модели сервиса приёма заявок.
// Submission — одна запись журнала (строка CSV или таблицы SQLite).
package model

import (
	"regexp"
	"strings"
	"time"
)

// PathSeparator — разделитель относительных путей вложений в ячейке журнала.
const PathSeparator = "|"

// TimestampLayout — формат поля timestamp (ISO-8601, UTC, миллисекунды).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Колонки журнала в каноническом порядке.
const (
	ColumnID                = "id"
	ColumnTimestamp         = "timestamp"
	ColumnFormPurpose       = "formPurpose"
	ColumnFirstName         = "firstName"
	ColumnLastName          = "lastName"
	ColumnEmail             = "email"
	ColumnPhone             = "phone"
	ColumnHelpNeededOffered = "helpNeededOffered"
	ColumnAttachmentPaths   = "additionalMaterialsPaths"
)

// Header — канонический заголовок журнала.
var Header = []string{
	ColumnID,
	ColumnTimestamp,
	ColumnFormPurpose,
	ColumnFirstName,
	ColumnLastName,
	ColumnEmail,
	ColumnPhone,
	ColumnHelpNeededOffered,
	ColumnAttachmentPaths,
}

// idPattern — допустимый формат идентификатора при поиске и в путях.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidID проверяет, что идентификатор пригоден как токен пути.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Submission — заявка: поля формы и относительные пути вложений.
// Текстовые поля не валидируются, отсутствующие — пустая строка.
type Submission struct {
	// ID — уникальный неизменяемый идентификатор (UUIDv7)
	ID string `json:"id"`
	// Timestamp — время создания в формате ISO-8601
	Timestamp string `json:"timestamp"`

	FormPurpose       string `json:"formPurpose"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	HelpNeededOffered string `json:"helpNeededOffered"`

	// AttachmentPaths — пути вложений относительно базовой директории,
	// например "uploads/2024/01/01/<id>/photo-1704067200000.png"
	AttachmentPaths []string `json:"additionalMaterialsPaths"`
}

// FormatTimestamp форматирует время создания заявки.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// JoinPaths склеивает пути вложений для хранения в одной ячейке.
func JoinPaths(paths []string) string {
	return strings.Join(paths, PathSeparator)
}

// SplitPaths разбирает ячейку путей. Пустые сегменты отбрасываются,
// пустая строка даёт пустой (не nil) срез.
func SplitPaths(cell string) []string {
	result := []string{}
	for _, p := range strings.Split(cell, PathSeparator) {
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Record возвращает значения полей в порядке канонического заголовка.
func (s *Submission) Record() []string {
	return []string{
		s.ID,
		s.Timestamp,
		s.FormPurpose,
		s.FirstName,
		s.LastName,
		s.Email,
		s.Phone,
		s.HelpNeededOffered,
		JoinPaths(s.AttachmentPaths),
	}
}

// FromColumns собирает Submission по значениям колонок.
// get возвращает значение колонки или "" если её нет.
func FromColumns(get func(column string) string) *Submission {
	return &Submission{
		ID:                strings.TrimSpace(get(ColumnID)),
		Timestamp:         get(ColumnTimestamp),
		FormPurpose:       get(ColumnFormPurpose),
		FirstName:         get(ColumnFirstName),
		LastName:          get(ColumnLastName),
		Email:             get(ColumnEmail),
		Phone:             get(ColumnPhone),
		HelpNeededOffered: get(ColumnHelpNeededOffered),
		AttachmentPaths:   SplitPaths(get(ColumnAttachmentPaths)),
	}
}
