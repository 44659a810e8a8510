// sanitize.go — нормализация имён загружаемых файлов.
package attachments

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxBaseLen — максимальная длина имени файла без расширения.
const maxBaseLen = 50

// maxExtLen — максимальная длина расширения без точки.
const maxExtLen = 16

// placeholderBase — имя, если после очистки ничего не осталось.
const placeholderBase = "file"

// SanitizeFilename возвращает безопасное имя файла для хранения:
// <base>-<epochMillis><ext>. base содержит только [a-zA-Z0-9_-],
// диакритика снимается ("résumé" → "resume"), длина base — до 50 символов,
// расширения — до 16.
func SanitizeFilename(originalName string, now time.Time) string {
	name := recoverLatin1(originalName)

	// Отбрасываем компоненты директорий (в том числе windows-пути)
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)

	// Расширение сохраняется, но только из безопасных символов
	ext = keepSafe(strings.TrimPrefix(ext, "."))
	if len(ext) > maxExtLen {
		ext = ext[:maxExtLen]
	}
	if ext != "" {
		ext = "." + ext
	}

	base = keepSafe(stripMarks(base))
	if len(base) > maxBaseLen {
		base = base[:maxBaseLen]
	}
	if base == "" {
		base = placeholderBase
	}

	return fmt.Sprintf("%s-%d%s", base, now.UnixMilli(), ext)
}

// recoverLatin1 восстанавливает UTF-8 имя, которое транспорт прочитал
// как ISO-8859-1 ("rÃ©sumÃ©.pdf" → "résumé.pdf"). Если имя нельзя
// перекодировать или результат не является корректным UTF-8, оно
// возвращается без изменений.
func recoverLatin1(name string) string {
	if !utf8.ValidString(name) {
		return name
	}
	for _, r := range name {
		if r > 0xFF {
			return name
		}
	}

	raw, err := charmap.ISO8859_1.NewEncoder().String(name)
	if err != nil || raw == name || !utf8.ValidString(raw) {
		return name
	}
	return raw
}

// stripMarks раскладывает строку (NFD) и удаляет комбинируемые знаки.
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// keepSafe оставляет только латинские буквы, цифры, дефис и подчёркивание.
func keepSafe(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
