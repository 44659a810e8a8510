// Пакет attachments — хранение вложений заявок на диске.
//
// Раскладка: <root>/<YYYY>/<MM>/<DD>/<submissionID>/<base>-<epochMillis><ext>.
// Все файлы одной заявки лежат в одной директории, разные заявки
// директории не делят. Директория создаётся при записи первого файла
// и удаляется (вместе с опустевшими директориями дат) при удалении заявки.
package attachments

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/intake/internal/domain/model"
	"github.com/bigkaa/goartstore/intake/internal/storage/pathguard"
)

// tmpSuffix — суффикс временных файлов во время записи.
const tmpSuffix = ".tmp"

// maxNameAttempts — сколько раз пробовать свободное имя в директории.
const maxNameAttempts = 100

var (
	// ErrTooLarge — содержимое файла превышает лимит.
	ErrTooLarge = errors.New("файл превышает допустимый размер")
	// ErrInvalidID — идентификатор заявки непригоден для пути.
	ErrInvalidID = errors.New("недопустимый идентификатор заявки")
)

// Store — хранилище вложений.
type Store struct {
	guard  *pathguard.Guard
	logger *slog.Logger
}

// SavedFile — результат сохранения вложения.
type SavedFile struct {
	// RelPath — путь относительно базовой директории (для журнала)
	RelPath string
	// FullPath — абсолютный путь на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 содержимого
	Checksum string
}

// PurgeResult — итог удаления вложений.
type PurgeResult struct {
	// FilesRemoved — количество удалённых файлов
	FilesRemoved int
	// DirsRemoved — количество удалённых пустых директорий
	DirsRemoved int
	// Skipped — пути вне корня вложений, которые не трогались
	Skipped int
	// Failures — количество ошибок удаления (проглочены и залогированы)
	Failures int
}

// New создаёт Store и корень вложений, если его нет.
func New(guard *pathguard.Guard, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(guard.Root(), 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать корень вложений %s: %w", guard.Root(), err)
	}

	return &Store{
		guard:  guard,
		logger: logger.With(slog.String("component", "attachments")),
	}, nil
}

// Root возвращает абсолютный корень вложений.
func (s *Store) Root() string {
	return s.guard.Root()
}

// DirectoryFor возвращает путь директории заявки без создания.
func (s *Store) DirectoryFor(submissionID string, now time.Time) string {
	return filepath.Join(
		s.guard.Root(),
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		fmt.Sprintf("%02d", now.Day()),
		submissionID,
	)
}

// ResolveDirectory возвращает директорию заявки <root>/YYYY/MM/DD/<id>,
// создавая недостающие уровни. Идемпотентна.
func (s *Store) ResolveDirectory(submissionID string, now time.Time) (string, error) {
	if !model.ValidID(submissionID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, submissionID)
	}

	dir := s.DirectoryFor(submissionID, now)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}
	return dir, nil
}

// Save записывает содержимое reader как вложение заявки.
// maxSize <= 0 — без ограничения. При превышении лимита возвращает
// ErrTooLarge, частично записанный файл удаляется.
//
// Паттерн: резервирование имени (O_EXCL) → temp файл → запись + SHA-256 →
// fsync → atomic rename поверх зарезервированного имени.
func (s *Store) Save(submissionID string, now time.Time, reader io.Reader, originalName string, maxSize int64) (*SavedFile, error) {
	dir, err := s.ResolveDirectory(submissionID, now)
	if err != nil {
		return nil, err
	}

	fullPath, err := reserveName(dir, SanitizeFilename(originalName, now))
	if err != nil {
		return nil, err
	}

	tmpPath := filepath.Join(dir, "."+uuid.New().String()+tmpSuffix)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		os.Remove(fullPath)
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	cleanup := func() {
		os.Remove(tmpPath)
		os.Remove(fullPath)
	}

	src := reader
	if maxSize > 0 {
		// Читаем на байт больше лимита, чтобы обнаружить превышение
		src = io.LimitReader(reader, maxSize+1)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(src, hasher))
	if err != nil {
		f.Close()
		cleanup()
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if maxSize > 0 && size > maxSize {
		f.Close()
		cleanup()
		return nil, fmt.Errorf("%w: больше %d байт", ErrTooLarge, maxSize)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		cleanup()
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		cleanup()
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	relPath, err := s.guard.Relative(fullPath)
	if err != nil {
		os.Remove(fullPath)
		return nil, err
	}

	return &SavedFile{
		RelPath:  relPath,
		FullPath: fullPath,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// reserveName создаёт пустой файл с именем name (или name-N при коллизии)
// и возвращает его путь. Два файла одной заявки с одинаковым именем,
// пришедшие в одну миллисекунду, не перезаписывают друг друга.
func reserveName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, attempt, ext)
		}

		fullPath := filepath.Join(dir, candidate)
		f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
		if err == nil {
			f.Close()
			return fullPath, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("ошибка резервирования имени %s: %w", fullPath, err)
		}
	}

	return "", fmt.Errorf("не найдено свободное имя для %s в %s", name, dir)
}

// Purge удаляет файлы по относительным путям и затем опустевшие
// директории-предки (от самой глубокой), не поднимаясь выше корня.
// Пути вне корня пропускаются, отсутствующий файл не считается ошибкой.
// Все ошибки логируются и не возвращаются (best effort).
func (s *Store) Purge(paths []string) PurgeResult {
	var result PurgeResult
	dirs := make(map[string]bool)

	for _, rel := range paths {
		full, err := s.guard.Validate(rel)
		if err != nil || full == s.guard.Root() {
			s.logger.Warn("Путь вложения вне корня, пропуск",
				slog.String("path", rel),
			)
			result.Skipped++
			continue
		}

		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Ошибка удаления вложения",
				slog.String("path", rel),
				slog.String("error", err.Error()),
			)
			result.Failures++
		} else if err == nil {
			result.FilesRemoved++
		}

		dirs[filepath.Dir(full)] = true
	}

	for dir := range dirs {
		result.DirsRemoved += s.removeEmptyAncestors(dir)
	}

	return result
}

// removeEmptyAncestors удаляет dir и его предков, пока они пусты,
// останавливаясь на корне вложений. Возвращает число удалённых директорий.
func (s *Store) removeEmptyAncestors(dir string) int {
	removed := 0
	root := s.guard.Root()

	for dir != root && s.guard.Contains(dir) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("Ошибка чтения директории при очистке",
					slog.String("dir", dir),
					slog.String("error", err.Error()),
				)
				return removed
			}
			// Уже удалена (например, при очистке соседнего пути) — поднимаемся
		} else {
			if len(entries) > 0 {
				return removed
			}
			if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("Ошибка удаления пустой директории",
					slog.String("dir", dir),
					slog.String("error", err.Error()),
				)
				return removed
			}
			removed++
		}
		dir = filepath.Dir(dir)
	}

	return removed
}

// Walk обходит все обычные файлы под корнем вложений и вызывает fn
// с относительным путём (как в журнале). Временные файлы пропускаются.
func (s *Store) Walk(fn func(relPath string, info fs.FileInfo) error) error {
	return filepath.WalkDir(s.guard.Root(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && strings.HasSuffix(d.Name(), tmpSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := s.guard.Relative(p)
		if err != nil {
			return err
		}
		return fn(rel, info)
	})
}
