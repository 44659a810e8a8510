// Точка входа сервиса приёма заявок: журнал заявок и файлы вложений.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bigkaa/goartstore/intake/internal/api/handlers"
	"github.com/bigkaa/goartstore/intake/internal/api/middleware"
	"github.com/bigkaa/goartstore/intake/internal/config"
	"github.com/bigkaa/goartstore/intake/internal/domain/access"
	"github.com/bigkaa/goartstore/intake/internal/server"
	"github.com/bigkaa/goartstore/intake/internal/service"
	"github.com/bigkaa/goartstore/intake/internal/storage/attachments"
	"github.com/bigkaa/goartstore/intake/internal/storage/ledger"
	"github.com/bigkaa/goartstore/intake/internal/storage/pathguard"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Сервис приёма заявок запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("base_dir", cfg.BaseDir),
		slog.String("uploads_dir", cfg.UploadsDir),
		slog.String("ledger_backend", cfg.LedgerBackend),
	)

	// --- Инициализация компонентов ---

	// 1. Ключи доступа
	ac := access.New(cfg.APIKey, cfg.AdminKey)
	if !ac.SubmitterConfigured() {
		logger.Warn("Ключ отправителя не задан, приём заявок закрыт",
			slog.String("hint", "INTAKE_API_KEY или INTAKE_API_KEY_FILE"),
		)
	}
	if !ac.AdminConfigured() {
		logger.Warn("Ключ администратора не задан, просмотр и удаление закрыты",
			slog.String("hint", "INTAKE_ADMIN_KEY или INTAKE_ADMIN_KEY_FILE"),
		)
	}

	// 2. Ограничение путей и хранилище вложений
	guard, err := pathguard.New(cfg.BaseDir, cfg.UploadsRoot())
	if err != nil {
		logger.Error("Ошибка инициализации PathGuard", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store, err := attachments.New(guard, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища вложений", slog.String("error", err.Error()))
		os.Exit(1)
	}
	checkUploadsCapacity(logger, cfg.UploadsRoot(), cfg.MaxRequestBytes())

	// 3. Журнал заявок
	ledgerPath := cfg.LedgerPath
	if cfg.LedgerBackend == ledger.BackendSQLite {
		ledgerPath = cfg.SQLitePath
	}
	l, err := ledger.Open(cfg.LedgerBackend, ledgerPath, logger)
	if err != nil {
		logger.Error("Ошибка открытия журнала", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if closer, ok := l.(io.Closer); ok {
		defer closer.Close()
	}
	if err := l.EnsureInitialized(context.Background()); err != nil {
		logger.Error("Ошибка инициализации журнала", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Журнал заявок готов",
		slog.String("backend", cfg.LedgerBackend),
		slog.String("path", ledgerPath),
	)

	// 4. Сервис
	svc := service.NewIntakeService(cfg, ac, store, l, guard, logger)

	// 5. Handlers
	apiHandler := handlers.NewAPIHandler(
		handlers.NewSubmissionsHandler(svc, cfg),
		handlers.NewFilesHandler(svc),
		handlers.NewMaintenanceHandler(svc),
		handlers.NewHealthHandler(svc, cfg.UploadsRoot()),
		handlers.NewSystemHandler(cfg),
		server.MetricsHandler(),
	)

	// 6. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler,
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
	)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Сервис приёма заявок остановлен")
}
