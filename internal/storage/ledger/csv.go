// csv.go — журнал заявок в CSV-файле.
//
// Добавление — одна запись в конец файла (O_APPEND + fsync).
// Удаление — полное чтение, перезапись во временный файл в той же
// директории, fsync и атомарный rename поверх оригинала.
package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/intake/internal/domain/model"
)

// CSVLedger — журнал заявок в CSV-файле.
type CSVLedger struct {
	// path — путь к CSV-файлу журнала
	path string
	// mu — сериализует операции одного экземпляра (best effort,
	// межпроцессные гонки не исключаются)
	mu     sync.Mutex
	logger *slog.Logger
}

// NewCSV создаёт CSV-журнал по указанному пути. Файл не создаётся
// до вызова EnsureInitialized.
func NewCSV(path string, logger *slog.Logger) *CSVLedger {
	return &CSVLedger{
		path:   path,
		logger: logger.With(slog.String("component", "csv_ledger")),
	}
}

// Path возвращает путь к файлу журнала.
func (l *CSVLedger) Path() string {
	return l.path
}

// EnsureInitialized создаёт файл с одним заголовком, если файл
// отсутствует или пуст.
func (l *CSVLedger) EnsureInitialized(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.initLocked()
}

// initLocked создаёт файл журнала с заголовком. Вызывается под l.mu.
func (l *CSVLedger) initLocked() error {
	info, err := os.Stat(l.path)
	switch {
	case err == nil && info.Size() > 0:
		return nil
	case err != nil && !os.IsNotExist(err):
		return fmt.Errorf("ошибка stat журнала %s: %w", l.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию журнала: %w", err)
	}

	data, err := encodeRecords([][]string{model.Header})
	if err != nil {
		return err
	}
	if err := l.writeAtomic(data); err != nil {
		return err
	}

	l.logger.Info("Журнал заявок создан", slog.String("path", l.path))
	return nil
}

// Append дописывает строку заявки в конец файла одной операцией записи,
// в порядке колонок заголовка файла. Если файл не заканчивается переводом
// строки, он добавляется перед записью. Если последняя запись обрывается
// внутри незакрытых кавычек, кавычка закрывается, чтобы новая строка
// не стала продолжением оборванного поля.
func (l *CSVLedger) Append(_ context.Context, s *model.Submission) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Журнал мог быть удалён после старта — создаём заново с заголовком
	if err := l.initLocked(); err != nil {
		return err
	}

	data, err := l.readFile()
	if err != nil {
		return err
	}
	content := l.parse(data)

	line, err := encodeRecords([][]string{newTable(content.records).record(s)})
	if err != nil {
		return err
	}

	switch {
	case content.tailOpen:
		l.logger.Warn("Последняя запись журнала оборвана внутри кавычек, кавычка закрыта",
			slog.String("path", l.path),
		)
		line = append([]byte("\"\n"), line...)
	case len(data) > 0 && data[len(data)-1] != '\n':
		line = append([]byte("\n"), line...)
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("ошибка открытия журнала %s: %w", l.path, err)
	}

	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("ошибка записи в журнал: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("ошибка fsync журнала: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия журнала: %w", err)
	}

	return nil
}

// List читает журнал целиком и возвращает заявки в обратном порядке.
func (l *CSVLedger) List(_ context.Context) ([]*model.Submission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	table, err := l.readTable()
	if err != nil {
		return nil, err
	}

	result := make([]*model.Submission, 0, len(table.rows))
	for i := len(table.rows) - 1; i >= 0; i-- {
		result = append(result, table.submission(table.rows[i]))
	}
	return result, nil
}

// Remove удаляет первую строку с данным id. Если строки нет, файл
// не перезаписывается. Заголовок и порядок остальных строк сохраняются.
func (l *CSVLedger) Remove(_ context.Context, id string) (*model.Submission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id = strings.TrimSpace(id)

	table, err := l.readTable()
	if err != nil {
		return nil, err
	}

	pos := -1
	for i, row := range table.rows {
		if strings.TrimSpace(table.cell(row, model.ColumnID)) == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	removed := table.submission(table.rows[pos])

	records := make([][]string, 0, len(table.rows))
	records = append(records, table.header)
	records = append(records, table.rows[:pos]...)
	records = append(records, table.rows[pos+1:]...)

	data, err := encodeRecords(records)
	if err != nil {
		return nil, err
	}
	if err := l.writeAtomic(data); err != nil {
		return nil, err
	}

	return removed, nil
}

// table — разобранное содержимое журнала.
type table struct {
	header  []string
	columns map[string]int
	rows    [][]string
}

// cell возвращает значение колонки или "" для короткой строки
// и отсутствующей колонки.
func (t *table) cell(row []string, column string) string {
	i, ok := t.columns[column]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// looksLikeRowStart проверяет, что физическая строка начинается как
// запись журнала: id и timestamp без кавычек и в допустимом формате.
func (t *table) looksLikeRowStart(line string) bool {
	idPos, ok := t.columns[model.ColumnID]
	if !ok {
		return false
	}
	tsPos, ok := t.columns[model.ColumnTimestamp]
	if !ok {
		return false
	}

	fields := strings.SplitN(strings.TrimSuffix(line, "\r"), ",", max(idPos, tsPos)+2)
	if len(fields) <= max(idPos, tsPos) {
		return false
	}
	id, ts := fields[idPos], fields[tsPos]
	if strings.Contains(id, `"`) || strings.Contains(ts, `"`) {
		return false
	}
	if !model.ValidID(strings.TrimSpace(id)) {
		return false
	}
	_, err := time.Parse(time.RFC3339, ts)
	return err == nil
}

// record раскладывает заявку по колонкам заголовка файла.
// Колонки, которых нет в заголовке, не записываются.
func (t *table) record(s *model.Submission) []string {
	width := len(t.header)
	for _, pos := range t.columns {
		width = max(width, pos+1)
	}

	row := make([]string, width)
	for i, value := range s.Record() {
		if pos, ok := t.columns[model.Header[i]]; ok {
			row[pos] = value
		}
	}
	return row
}

func (t *table) submission(row []string) *model.Submission {
	return model.FromColumns(func(column string) string {
		return t.cell(row, column)
	})
}

// readTable читает и разбирает журнал.
func (l *CSVLedger) readTable() (*table, error) {
	data, err := l.readFile()
	if err != nil {
		return nil, err
	}
	return newTable(l.parse(data).records), nil
}

// readFile читает журнал без UTF-8 BOM. Отсутствующий файл — пустой журнал.
func (l *CSVLedger) readFile() ([]byte, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения журнала %s: %w", l.path, err)
	}

	// UTF-8 BOM (файл сохранён в табличном редакторе)
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), nil
}

// parsed — записи журнала после разбора.
type parsed struct {
	records [][]string
	// tailOpen — последняя запись доходит до конца файла с незакрытой кавычкой
	tailOpen bool
}

// parse разбирает журнал по записям. Запись — одна физическая строка
// или несколько, если поле в кавычках содержит перевод строки.
//
// Незакрытая кавычка не поглощает остаток файла: продолжение записи
// обрывается на строке, которая выглядит как начало новой записи
// (корректный id и timestamp на своих местах), или на конце файла.
// Оборванная запись разбирается без строгой проверки кавычек.
// Некорректные записи пропускаются с предупреждением.
func (l *CSVLedger) parse(data []byte) parsed {
	var (
		result   parsed
		rowStart func(line string) bool
	)

	lines := strings.Split(string(data), "\n")
	for i := 0; i < len(lines); {
		if strings.TrimSpace(lines[i]) == "" {
			i++
			continue
		}

		startLine := i + 1
		chunk := lines[i]
		open := oddQuotes(lines[i])
		i++
		for open && i < len(lines) && (rowStart == nil || !rowStart(lines[i])) {
			chunk += "\n" + lines[i]
			if oddQuotes(lines[i]) {
				open = false
			}
			i++
		}

		if open {
			l.logger.Warn("Незакрытая кавычка в журнале, запись разобрана до следующей строки",
				slog.Int("line", startLine),
			)
			result.tailOpen = i >= len(lines)
		} else {
			result.tailOpen = false
		}

		records, err := parseChunk(chunk)
		if err != nil {
			l.logger.Warn("Пропуск некорректной строки журнала",
				slog.Int("line", startLine),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.records = append(result.records, records...)

		// Начало записи распознаётся по колонкам заголовка
		if rowStart == nil && len(result.records) > 0 {
			rowStart = newTable(result.records[:1]).looksLikeRowStart
		}
	}

	return result
}

// parseChunk разбирает текст одной записи.
func parseChunk(chunk string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(chunk + "\n"))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, parseErr
			}
			return nil, fmt.Errorf("ошибка разбора записи: %w", err)
		}
		records = append(records, rec)
	}
}

// oddQuotes сообщает, что строка меняет состояние "внутри кавычек".
func oddQuotes(line string) bool {
	return strings.Count(line, `"`)%2 == 1
}

// newTable строит таблицу из записей: первая запись — заголовок.
// Пустой журнал получает канонический заголовок.
func newTable(records [][]string) *table {
	header := model.Header
	var rows [][]string
	if len(records) > 0 {
		header = records[0]
		rows = records[1:]
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}

	// Заголовок без известных колонок — считаем порядок каноническим
	if _, ok := columns[model.ColumnID]; !ok {
		columns = make(map[string]int, len(model.Header))
		for i, name := range model.Header {
			columns[name] = i
		}
	}

	return &table{header: header, columns: columns, rows: rows}
}

// encodeRecords сериализует записи в CSV.
func encodeRecords(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("ошибка сериализации CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// writeAtomic заменяет журнал содержимым data.
// Паттерн: temp файл в той же директории → fsync → atomic rename.
func (l *CSVLedger) writeAtomic(data []byte) error {
	tmpPath := filepath.Join(filepath.Dir(l.path), "."+filepath.Base(l.path)+"."+uuid.New().String()+".tmp")

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}
