// Пакет ledger — журнал заявок.
//
// Ledger — интерфейс хранилища строк заявок. Основная реализация —
// плоский CSV-файл с фиксированным заголовком (CSVLedger), альтернативная —
// встроенная SQLite (SQLiteLedger). Вызывающий код не зависит от выбора.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/intake/internal/domain/model"
)

// ErrNotFound — заявка с указанным id отсутствует в журнале.
// Нормальный отрицательный результат, а не сбой хранилища.
var ErrNotFound = errors.New("заявка не найдена")

// Ledger — журнал заявок.
type Ledger interface {
	// EnsureInitialized создаёт пустое хранилище, если его нет. Идемпотентен.
	EnsureInitialized(ctx context.Context) error
	// Append добавляет одну заявку, не трогая существующие.
	Append(ctx context.Context, s *model.Submission) error
	// List возвращает все заявки, последние добавленные — первыми.
	List(ctx context.Context) ([]*model.Submission, error)
	// Remove удаляет первую заявку с данным id и возвращает её.
	// Возвращает ErrNotFound, если такой заявки нет.
	Remove(ctx context.Context, id string) (*model.Submission, error)
}

// Поддерживаемые реализации журнала.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Open создаёт журнал выбранной реализации по пути path.
// Для sqlite вызывающий код закрывает базу через io.Closer, если
// журнал его реализует.
func Open(backend, path string, logger *slog.Logger) (Ledger, error) {
	switch backend {
	case BackendCSV, "":
		return NewCSV(path, logger), nil
	case BackendSQLite:
		l, err := OpenSQLite(path, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("неизвестная реализация журнала %q, допустимые: csv, sqlite", backend)
	}
}

// Проверка соответствия интерфейсу на этапе компиляции.
var (
	_ Ledger = (*CSVLedger)(nil)
	_ Ledger = (*SQLiteLedger)(nil)
)
