// sqlite.go — журнал заявок во встроенной SQLite (modernc.org/sqlite,
// без CGO). Порядок вставки задаётся автоинкрементным seq.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	// Регистрирует драйвер "sqlite"
	_ "modernc.org/sqlite"

	"github.com/bigkaa/goartstore/intake/internal/domain/model"
)

// schemaStatements — схема журнала.
var schemaStatements = []string{
	`PRAGMA journal_mode=WAL;`,
	`CREATE TABLE IF NOT EXISTS submissions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL DEFAULT '',
		form_purpose TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		help_needed_offered TEXT NOT NULL DEFAULT '',
		attachment_paths TEXT NOT NULL DEFAULT ''
	);`,
}

// selectColumns — колонки в порядке сканирования scanSubmission.
const selectColumns = `id, timestamp, form_purpose, first_name, last_name, email, phone, help_needed_offered, attachment_paths`

// SQLiteLedger — журнал заявок в SQLite.
type SQLiteLedger struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite открывает (или создаёт) базу SQLite по указанному пути.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию базы: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия SQLite %s: %w", path, err)
	}
	// Один писатель: SQLite сериализует запись на уровне файла
	db.SetMaxOpenConns(1)

	return &SQLiteLedger{
		db:     db,
		path:   path,
		logger: logger.With(slog.String("component", "sqlite_ledger")),
	}, nil
}

// Close закрывает соединение с базой.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// EnsureInitialized создаёт таблицу, если её нет. Идемпотентен.
func (l *SQLiteLedger) EnsureInitialized(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ошибка инициализации схемы SQLite: %w", err)
		}
	}
	l.logger.Debug("Схема журнала SQLite готова", slog.String("path", l.path))
	return nil
}

// Append добавляет заявку.
func (l *SQLiteLedger) Append(ctx context.Context, s *model.Submission) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO submissions (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Timestamp, s.FormPurpose, s.FirstName, s.LastName,
		s.Email, s.Phone, s.HelpNeededOffered, model.JoinPaths(s.AttachmentPaths),
	)
	if err != nil {
		return fmt.Errorf("ошибка вставки заявки %s: %w", s.ID, err)
	}
	return nil
}

// List возвращает заявки, последние добавленные — первыми.
func (l *SQLiteLedger) List(ctx context.Context) ([]*model.Submission, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM submissions ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки заявок: %w", err)
	}
	defer rows.Close()

	result := []*model.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения заявок: %w", err)
	}
	return result, nil
}

// Remove удаляет заявку в одной транзакции и возвращает её данные.
func (l *SQLiteLedger) Remove(ctx context.Context, id string) (*model.Submission, error) {
	id = strings.TrimSpace(id)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // после Commit возвращает ErrTxDone

	row := tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM submissions WHERE id = ? ORDER BY seq LIMIT 1`, id)
	s, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("ошибка удаления заявки %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ошибка коммита удаления %s: %w", id, err)
	}

	return s, nil
}

// scanner — общий интерфейс *sql.Row и *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(sc scanner) (*model.Submission, error) {
	var (
		s     model.Submission
		paths string
	)
	err := sc.Scan(&s.ID, &s.Timestamp, &s.FormPurpose, &s.FirstName, &s.LastName,
		&s.Email, &s.Phone, &s.HelpNeededOffered, &paths)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
	}
	s.AttachmentPaths = model.SplitPaths(paths)
	return &s, nil
}
