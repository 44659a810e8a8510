// intake.go — приём, просмотр и удаление заявок.
//
// Каждая операция сначала проверяет ключ доступа. До успешной проверки
// хранилище не затрагивается.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/intake/internal/api/middleware"
	"github.com/bigkaa/goartstore/intake/internal/config"
	"github.com/bigkaa/goartstore/intake/internal/domain/access"
	"github.com/bigkaa/goartstore/intake/internal/domain/identity"
	"github.com/bigkaa/goartstore/intake/internal/domain/model"
	"github.com/bigkaa/goartstore/intake/internal/storage/attachments"
	"github.com/bigkaa/goartstore/intake/internal/storage/ledger"
	"github.com/bigkaa/goartstore/intake/internal/storage/pathguard"
)

// Attachment — файл из формы. Open вызывается только после проверки ключа.
type Attachment struct {
	// Filename — имя файла, как его прислал клиент
	Filename string
	// Open открывает поток содержимого
	Open func() (io.ReadCloser, error)
}

// SubmitParams — параметры приёма заявки.
type SubmitParams struct {
	// Credential — предъявленный ключ отправителя
	Credential string

	FormPurpose       string
	FirstName         string
	LastName          string
	Email             string
	Phone             string
	HelpNeededOffered string

	Attachments []Attachment
}

// IntakeService — сервис заявок.
type IntakeService struct {
	cfg        *config.Config
	access     *access.Control
	store      *attachments.Store
	ledger     ledger.Ledger
	guard      *pathguard.Guard
	reconciler *Reconciler
	logger     *slog.Logger

	// now и newID заменяются в тестах
	now   func() time.Time
	newID func() string
}

// NewIntakeService создаёт сервис заявок.
func NewIntakeService(
	cfg *config.Config,
	ac *access.Control,
	store *attachments.Store,
	l ledger.Ledger,
	guard *pathguard.Guard,
	logger *slog.Logger,
) *IntakeService {
	return &IntakeService{
		cfg:        cfg,
		access:     ac,
		store:      store,
		ledger:     l,
		guard:      guard,
		reconciler: NewReconciler(store, l, 2*cfg.HTTPWriteTimeout, logger),
		logger:     logger.With(slog.String("component", "intake_service")),
		now:        time.Now,
		newID:      identity.New,
	}
}

// Submit принимает заявку.
//
// Поток:
//  1. Проверка ключа отправителя
//  2. Проверка количества файлов
//  3. Генерация id и времени создания
//  4. Сохранение файлов по одному в директорию заявки
//  5. Добавление строки в журнал
//
// При ошибке на шагах 4–5 уже сохранённые файлы удаляются (best effort).
func (s *IntakeService) Submit(ctx context.Context, params SubmitParams) (*model.Submission, error) {
	if !s.access.SubmitterAllowed(params.Credential) {
		middleware.SubmissionsTotal.WithLabelValues("unauthorized").Inc()
		return nil, accessDenied()
	}

	if len(params.Attachments) > s.cfg.MaxFiles {
		middleware.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, invalidInput(fmt.Sprintf("Слишком много файлов: %d, максимум %d",
			len(params.Attachments), s.cfg.MaxFiles))
	}

	id := s.newID()
	now := s.now()

	var saved []*attachments.SavedFile
	rollback := func() {
		if len(saved) == 0 {
			return
		}
		paths := make([]string, 0, len(saved))
		for _, f := range saved {
			paths = append(paths, f.RelPath)
		}
		s.purge(id, paths)
	}

	for _, att := range params.Attachments {
		f, err := s.saveAttachment(id, now, att)
		if err != nil {
			rollback()
			if errors.Is(err, attachments.ErrTooLarge) {
				middleware.SubmissionsTotal.WithLabelValues("rejected").Inc()
				return nil, fileTooLarge(fmt.Sprintf("Файл %q превышает максимум %d байт",
					att.Filename, s.cfg.MaxFileSize))
			}
			s.logger.Error("Ошибка сохранения вложения",
				slog.String("submission_id", id),
				slog.String("filename", att.Filename),
				slog.String("error", err.Error()),
			)
			middleware.SubmissionsTotal.WithLabelValues("error").Inc()
			return nil, storageFault("Ошибка сохранения файла", err)
		}
		saved = append(saved, f)
	}

	submission := &model.Submission{
		ID:                id,
		Timestamp:         model.FormatTimestamp(now),
		FormPurpose:       params.FormPurpose,
		FirstName:         params.FirstName,
		LastName:          params.LastName,
		Email:             params.Email,
		Phone:             params.Phone,
		HelpNeededOffered: params.HelpNeededOffered,
		AttachmentPaths:   make([]string, 0, len(saved)),
	}
	var totalBytes int64
	for _, f := range saved {
		submission.AttachmentPaths = append(submission.AttachmentPaths, f.RelPath)
		totalBytes += f.Size
	}

	if err := s.ledger.Append(ctx, submission); err != nil {
		rollback()
		s.logger.Error("Ошибка записи заявки в журнал",
			slog.String("submission_id", id),
			slog.String("error", err.Error()),
		)
		middleware.SubmissionsTotal.WithLabelValues("error").Inc()
		return nil, storageFault("Ошибка записи заявки", err)
	}

	middleware.SubmissionsTotal.WithLabelValues("accepted").Inc()
	middleware.AttachmentsBytesTotal.Add(float64(totalBytes))

	s.logger.Info("Заявка принята",
		slog.String("submission_id", id),
		slog.String("form_purpose", submission.FormPurpose),
		slog.Int("attachments", len(saved)),
		slog.Int64("bytes", totalBytes),
	)

	return submission, nil
}

// saveAttachment открывает и сохраняет одно вложение.
func (s *IntakeService) saveAttachment(id string, now time.Time, att Attachment) (*attachments.SavedFile, error) {
	rc, err := att.Open()
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия вложения %q: %w", att.Filename, err)
	}
	defer rc.Close()

	return s.store.Save(id, now, rc, att.Filename, s.cfg.MaxFileSize)
}

// List возвращает все заявки, последние — первыми.
func (s *IntakeService) List(ctx context.Context, adminKey string) ([]*model.Submission, error) {
	if !s.access.AdminAllowed(adminKey) {
		middleware.OperationsTotal.WithLabelValues("list", "unauthorized").Inc()
		return nil, accessDenied()
	}

	submissions, err := s.ledger.List(ctx)
	if err != nil {
		s.logger.Error("Ошибка чтения журнала", slog.String("error", err.Error()))
		middleware.OperationsTotal.WithLabelValues("list", "error").Inc()
		return nil, storageFault("Ошибка чтения журнала", err)
	}

	middleware.OperationsTotal.WithLabelValues("list", "success").Inc()
	return submissions, nil
}

// Delete удаляет заявку из журнала и затем её вложения.
// Ошибки удаления файлов только логируются: строка журнала уже удалена.
func (s *IntakeService) Delete(ctx context.Context, id, adminKey string) (*model.Submission, error) {
	if !s.access.AdminAllowed(adminKey) {
		middleware.OperationsTotal.WithLabelValues("delete", "unauthorized").Inc()
		return nil, accessDenied()
	}

	id = strings.TrimSpace(id)
	if !model.ValidID(id) {
		middleware.OperationsTotal.WithLabelValues("delete", "rejected").Inc()
		return nil, invalidInput("Некорректный идентификатор заявки")
	}

	removed, err := s.ledger.Remove(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			middleware.OperationsTotal.WithLabelValues("delete", "not_found").Inc()
			return nil, notFound(fmt.Sprintf("Заявка %s не найдена", id))
		}
		s.logger.Error("Ошибка удаления заявки из журнала",
			slog.String("submission_id", id),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
		return nil, storageFault("Ошибка удаления заявки", err)
	}

	result := s.purge(id, removed.AttachmentPaths)

	middleware.OperationsTotal.WithLabelValues("delete", "success").Inc()
	s.logger.Info("Заявка удалена",
		slog.String("submission_id", id),
		slog.Int("files_removed", result.FilesRemoved),
		slog.Int("dirs_removed", result.DirsRemoved),
	)

	return removed, nil
}

// purge удаляет вложения и учитывает сбои в метриках.
func (s *IntakeService) purge(id string, paths []string) attachments.PurgeResult {
	result := s.store.Purge(paths)
	if result.Failures > 0 || result.Skipped > 0 {
		middleware.PurgeFailuresTotal.Add(float64(result.Failures))
		s.logger.Warn("Вложения удалены не полностью",
			slog.String("submission_id", id),
			slog.Int("failures", result.Failures),
			slog.Int("skipped", result.Skipped),
		)
	}
	return result
}

// OpenFile открывает вложение по пути относительно базовой директории.
// Путь вне директории вложений — ErrForbidden, отсутствующий файл — ErrNotFound.
// Вызывающий код закрывает файл.
func (s *IntakeService) OpenFile(requested, adminKey string) (*os.File, os.FileInfo, error) {
	if !s.access.AdminAllowed(adminKey) {
		middleware.OperationsTotal.WithLabelValues("download", "unauthorized").Inc()
		return nil, nil, accessDenied()
	}

	f, info, err := s.guard.Open(requested)
	if err != nil {
		switch {
		case errors.Is(err, pathguard.ErrForbidden):
			s.logger.Warn("Запрос файла вне директории вложений",
				slog.String("path", requested),
			)
			middleware.OperationsTotal.WithLabelValues("download", "forbidden").Inc()
			return nil, nil, forbidden("Доступ к пути запрещён")
		case errors.Is(err, pathguard.ErrNotFound):
			middleware.OperationsTotal.WithLabelValues("download", "not_found").Inc()
			return nil, nil, notFound("Файл не найден")
		default:
			s.logger.Error("Ошибка открытия файла",
				slog.String("path", requested),
				slog.String("error", err.Error()),
			)
			middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
			return nil, nil, storageFault("Ошибка открытия файла", err)
		}
	}

	middleware.OperationsTotal.WithLabelValues("download", "success").Inc()
	return f, info, nil
}

// Reconcile сверяет файлы вложений с журналом.
// purgeOrphans — удалить файлы, на которые не ссылается ни одна заявка.
func (s *IntakeService) Reconcile(ctx context.Context, adminKey string, purgeOrphans bool) (*ReconcileReport, error) {
	if !s.access.AdminAllowed(adminKey) {
		middleware.OperationsTotal.WithLabelValues("reconcile", "unauthorized").Inc()
		return nil, accessDenied()
	}

	report, skipped, err := s.reconciler.RunOnce(ctx, purgeOrphans)
	if skipped {
		return nil, reconcileInProgress()
	}
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("reconcile", "error").Inc()
		return nil, storageFault("Ошибка сверки", err)
	}

	middleware.OperationsTotal.WithLabelValues("reconcile", "success").Inc()
	return report, nil
}

// Ready проверяет доступность хранилищ для readiness probe.
func (s *IntakeService) Ready(ctx context.Context) error {
	info, err := os.Stat(s.store.Root())
	if err != nil {
		return fmt.Errorf("директория вложений недоступна: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s не является директорией", s.store.Root())
	}
	if _, err := s.ledger.List(ctx); err != nil {
		return fmt.Errorf("журнал недоступен: %w", err)
	}
	return nil
}
