// Пакет config — загрузка и валидация конфигурации сервиса приёма заявок
// из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/intake/internal/domain/access"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации. После Load не изменяется.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Абсолютный путь базовой директории, от которой считаются пути вложений
	BaseDir string
	// Директория вложений относительно BaseDir (например, "uploads")
	UploadsDir string
	// Реализация журнала: csv или sqlite
	LedgerBackend string
	// Абсолютный путь CSV-журнала
	LedgerPath string
	// Абсолютный путь базы SQLite
	SQLitePath string

	// Ключ отправителя формы (пробелы удалены, пустой — доступ закрыт)
	APIKey string
	// Ключ администратора (пробелы удалены, пустой — доступ закрыт)
	AdminKey string

	// Максимальный размер одного файла в байтах
	MaxFileSize int64
	// Максимальное количество файлов в заявке
	MaxFiles int

	// Путь к TLS сертификату (опционально, вместе с TLSKey)
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// UploadsRoot возвращает абсолютный путь директории вложений.
func (c *Config) UploadsRoot() string {
	return filepath.Join(c.BaseDir, c.UploadsDir)
}

// TLSEnabled сообщает, настроен ли TLS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// MaxRequestBytes — верхняя граница тела запроса на приём заявки:
// все файлы максимального размера плюс 1 MiB на поля формы.
func (c *Config) MaxRequestBytes() int64 {
	return int64(c.MaxFiles)*c.MaxFileSize + 1<<20
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// INTAKE_PORT — порт HTTP-сервера (по умолчанию 3000)
	port, err := getEnvInt("INTAKE_PORT", 3000)
	if err != nil {
		return nil, fmt.Errorf("INTAKE_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("INTAKE_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// INTAKE_BASE_DIR — базовая директория (по умолчанию текущая)
	cfg.BaseDir, err = filepath.Abs(getEnvDefault("INTAKE_BASE_DIR", "."))
	if err != nil {
		return nil, fmt.Errorf("INTAKE_BASE_DIR: %w", err)
	}

	// INTAKE_UPLOADS_DIR — директория вложений внутри базовой
	uploads := filepath.Clean(getEnvDefault("INTAKE_UPLOADS_DIR", "uploads"))
	if filepath.IsAbs(uploads) || uploads == "." || strings.Contains(uploads, "..") {
		return nil, fmt.Errorf("INTAKE_UPLOADS_DIR: %q должен быть относительным путём внутри INTAKE_BASE_DIR", uploads)
	}
	cfg.UploadsDir = uploads

	// INTAKE_LEDGER_BACKEND — реализация журнала (по умолчанию csv)
	cfg.LedgerBackend = getEnvDefault("INTAKE_LEDGER_BACKEND", "csv")
	if cfg.LedgerBackend != "csv" && cfg.LedgerBackend != "sqlite" {
		return nil, fmt.Errorf("INTAKE_LEDGER_BACKEND: недопустимое значение %q, допустимые: csv, sqlite", cfg.LedgerBackend)
	}

	cfg.LedgerPath = cfg.resolve(getEnvDefault("INTAKE_LEDGER_PATH", filepath.Join("data", "submissions.csv")))
	cfg.SQLitePath = cfg.resolve(getEnvDefault("INTAKE_SQLITE_PATH", filepath.Join("data", "submissions.db")))

	// INTAKE_API_KEY / INTAKE_API_KEY_FILE — ключ отправителя
	cfg.APIKey, err = cfg.loadSecret("INTAKE_API_KEY", "api_key.txt")
	if err != nil {
		return nil, err
	}

	// INTAKE_ADMIN_KEY / INTAKE_ADMIN_KEY_FILE — ключ администратора
	cfg.AdminKey, err = cfg.loadSecret("INTAKE_ADMIN_KEY", "admin_pass.txt")
	if err != nil {
		return nil, err
	}

	// INTAKE_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 10 MiB)
	cfg.MaxFileSize, err = getEnvInt64("INTAKE_MAX_FILE_SIZE", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("INTAKE_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("INTAKE_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// INTAKE_MAX_FILES — максимальное количество файлов (по умолчанию 10)
	cfg.MaxFiles, err = getEnvInt("INTAKE_MAX_FILES", 10)
	if err != nil {
		return nil, fmt.Errorf("INTAKE_MAX_FILES: %w", err)
	}
	if cfg.MaxFiles <= 0 {
		return nil, fmt.Errorf("INTAKE_MAX_FILES: значение должно быть положительным")
	}

	// INTAKE_TLS_CERT / INTAKE_TLS_KEY — опциональны, задаются парой
	cfg.TLSCert = getEnvDefault("INTAKE_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("INTAKE_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("INTAKE_TLS_CERT и INTAKE_TLS_KEY задаются вместе")
	}

	// INTAKE_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("INTAKE_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("INTAKE_LOG_LEVEL: %w", err)
	}

	// INTAKE_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("INTAKE_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("INTAKE_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// Таймауты HTTP-сервера
	if cfg.HTTPReadTimeout, err = getEnvDuration("INTAKE_HTTP_READ_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("INTAKE_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("INTAKE_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("INTAKE_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("INTAKE_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("INTAKE_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// INTAKE_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 10s)
	if cfg.ShutdownTimeout, err = getEnvDuration("INTAKE_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("INTAKE_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// resolve возвращает абсолютный путь: относительные пути считаются от BaseDir.
func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.BaseDir, p)
}

// loadSecret читает секрет: сначала переменная key, затем файл из
// key+"_FILE" (по умолчанию defaultFile в BaseDir). Отсутствующий файл
// даёт пустой секрет. Все пробельные символы удаляются.
func (c *Config) loadSecret(key, defaultFile string) (string, error) {
	if val := os.Getenv(key); val != "" {
		return access.StripWhitespace(val), nil
	}

	fileKey := key + "_FILE"
	path := c.resolve(getEnvDefault(fileKey, defaultFile))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("%s: ошибка чтения %s: %w", fileKey, path, err)
	}
	return access.StripWhitespace(string(data)), nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1m, 2m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
