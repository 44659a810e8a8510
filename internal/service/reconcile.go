// reconcile.go — сверка (Reconciliation) вложений с журналом заявок.
//
// Reconciliation сравнивает:
//   - Файлы под корнем вложений с путями, записанными в журнале
//   - Пути журнала с файлами на диске
//
// Обнаруживает проблемы:
//   - orphaned_file: файл на диске, на который не ссылается ни одна заявка
//     (например, остался после сбоя при приёме)
//   - missing_file: путь в заявке, но файла на диске нет
//
// Файлы моложе orphanGrace не считаются осиротевшими: их заявка может
// быть ещё в процессе приёма (файлы сохранены, строка журнала не дописана).
// Перед удалением осиротевших файлов журнал перечитывается.
//
// Запускается по запросу администратора. Параллельный запуск отклоняется.
package service

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/intake/internal/storage/attachments"
	"github.com/bigkaa/goartstore/intake/internal/storage/ledger"
)

// Prometheus метрики Reconciliation
var (
	// reconcileRunsTotal — количество запусков reconciliation.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intake_reconcile_runs_total",
		Help: "Общее количество запусков reconciliation",
	})

	// reconcileIssuesTotal — количество обнаруженных проблем по типу.
	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных reconciliation",
	}, []string{"type"})

	// reconcileDurationSeconds — длительность выполнения reconciliation.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "intake_reconcile_duration_seconds",
		Help:    "Длительность выполнения reconciliation в секундах",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// IssueType — тип обнаруженной проблемы.
type IssueType string

const (
	OrphanedFile IssueType = "orphaned_file"
	MissingFile  IssueType = "missing_file"
)

// ReconcileIssue — одна проблема.
type ReconcileIssue struct {
	Type         IssueType `json:"type"`
	Path         string    `json:"path"`
	SubmissionID string    `json:"submission_id,omitempty"`
	Description  string    `json:"description"`
}

// ReconcileSummary — сводка по типам проблем.
type ReconcileSummary struct {
	OrphanedFiles int `json:"orphaned_files"`
	MissingFiles  int `json:"missing_files"`
	Ok            int `json:"ok"`
	// Recent — файлы без заявки, но моложе orphanGrace (приём в процессе)
	Recent int `json:"recent"`
	Purged int `json:"purged"`
}

// ReconcileReport — результат сверки.
type ReconcileReport struct {
	StartedAt          time.Time        `json:"started_at"`
	CompletedAt        time.Time        `json:"completed_at"`
	FilesChecked       int              `json:"files_checked"`
	SubmissionsChecked int              `json:"submissions_checked"`
	Issues             []ReconcileIssue `json:"issues"`
	Summary            ReconcileSummary `json:"summary"`
}

// Reconciler — сверка вложений с журналом.
type Reconciler struct {
	store  *attachments.Store
	ledger ledger.Ledger
	logger *slog.Logger

	// orphanGrace — минимальный возраст файла без заявки для orphaned_file
	orphanGrace time.Duration
	now         func() time.Time

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool       // reconciliation в процессе выполнения
}

// defaultOrphanGrace — orphanGrace, если таймаут записи не задан.
const defaultOrphanGrace = 2 * time.Minute

// NewReconciler создаёт Reconciler. orphanGrace <= 0 заменяется на
// defaultOrphanGrace.
func NewReconciler(store *attachments.Store, l ledger.Ledger, orphanGrace time.Duration, logger *slog.Logger) *Reconciler {
	if orphanGrace <= 0 {
		orphanGrace = defaultOrphanGrace
	}
	return &Reconciler{
		store:       store,
		ledger:      l,
		logger:      logger.With(slog.String("component", "reconcile")),
		orphanGrace: orphanGrace,
		now:         time.Now,
	}
}

// IsInProgress возвращает true, если reconciliation выполняется.
func (r *Reconciler) IsInProgress() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inProcess
}

// RunOnce выполняет один цикл reconciliation.
// Потокобезопасен: если reconciliation уже выполняется, возвращает nil, true, nil.
//
// Возвращает:
//   - *ReconcileReport — результат сверки
//   - bool — true если reconciliation уже выполнялась (skipped)
//   - error — ошибка чтения журнала или обхода директории
func (r *Reconciler) RunOnce(ctx context.Context, purgeOrphans bool) (*ReconcileReport, bool, error) {
	r.mu.Lock()
	if r.inProcess {
		r.mu.Unlock()
		r.logger.Warn("Reconciliation уже выполняется, пропуск")
		return nil, true, nil
	}
	r.inProcess = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inProcess = false
		r.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	r.logger.Info("Reconciliation начата", slog.Bool("purge_orphans", purgeOrphans))

	report, err := r.reconcile(ctx)
	if err != nil {
		r.logger.Error("Ошибка reconciliation", slog.String("error", err.Error()))
		return nil, false, err
	}

	if purgeOrphans {
		orphans, err := r.confirmOrphans(ctx, report)
		if err != nil {
			r.logger.Error("Ошибка повторного чтения журнала", slog.String("error", err.Error()))
			return nil, false, err
		}
		if len(orphans) > 0 {
			result := r.store.Purge(orphans)
			report.Summary.Purged = result.FilesRemoved
			if result.Failures > 0 {
				r.logger.Warn("Не все осиротевшие файлы удалены",
					slog.Int("failures", result.Failures),
				)
			}
		}
	}

	report.StartedAt = startedAt
	report.CompletedAt = time.Now().UTC()
	duration := report.CompletedAt.Sub(startedAt)

	// Обновляем Prometheus метрики
	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range report.Issues {
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
	}

	r.logger.Info("Reconciliation завершена",
		slog.Int("files_checked", report.FilesChecked),
		slog.Int("submissions_checked", report.SubmissionsChecked),
		slog.Int("issues", len(report.Issues)),
		slog.Int("ok", report.Summary.Ok),
		slog.Int("purged", report.Summary.Purged),
		slog.Duration("duration", duration),
	)

	return report, false, nil
}

// reconcile собирает расхождения между журналом и диском.
func (r *Reconciler) reconcile(ctx context.Context) (*ReconcileReport, error) {
	submissions, err := r.ledger.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}

	// Путь → id заявки, которая на него ссылается
	referenced := make(map[string]string)
	for _, s := range submissions {
		for _, p := range s.AttachmentPaths {
			if _, dup := referenced[p]; !dup {
				referenced[p] = s.ID
			}
		}
	}

	// Путь → время изменения файла
	onDisk := make(map[string]time.Time)
	err = r.store.Walk(func(rel string, info fs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		onDisk[rel] = info.ModTime()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода директории вложений: %w", err)
	}

	report := &ReconcileReport{
		FilesChecked:       len(onDisk),
		SubmissionsChecked: len(submissions),
		Issues:             []ReconcileIssue{},
	}

	// 1. Файл на диске без заявки (orphaned_file)
	cutoff := r.now().Add(-r.orphanGrace)
	for rel, modTime := range onDisk {
		if _, ok := referenced[rel]; ok {
			report.Summary.Ok++
			continue
		}
		if modTime.After(cutoff) {
			report.Summary.Recent++
			continue
		}
		report.Issues = append(report.Issues, ReconcileIssue{
			Type:        OrphanedFile,
			Path:        rel,
			Description: "Файл на диске без заявки в журнале",
		})
		report.Summary.OrphanedFiles++
	}

	// 2. Путь в заявке без файла на диске (missing_file)
	for rel, id := range referenced {
		if _, ok := onDisk[rel]; ok {
			continue
		}
		report.Issues = append(report.Issues, ReconcileIssue{
			Type:         MissingFile,
			Path:         rel,
			SubmissionID: id,
			Description:  "Заявка ссылается на отсутствующий файл",
		})
		report.Summary.MissingFiles++
	}

	// Стабильный порядок для ответа
	sort.Slice(report.Issues, func(i, j int) bool {
		if report.Issues[i].Type != report.Issues[j].Type {
			return report.Issues[i].Type > report.Issues[j].Type
		}
		return report.Issues[i].Path < report.Issues[j].Path
	})

	return report, nil
}

// confirmOrphans возвращает осиротевшие файлы отчёта, на которые не
// ссылается журнал, перечитанный после обхода диска.
func (r *Reconciler) confirmOrphans(ctx context.Context, report *ReconcileReport) ([]string, error) {
	submissions, err := r.ledger.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}

	referenced := make(map[string]bool)
	for _, s := range submissions {
		for _, p := range s.AttachmentPaths {
			referenced[p] = true
		}
	}

	var orphans []string
	for _, issue := range report.Issues {
		if issue.Type == OrphanedFile && !referenced[issue.Path] {
			orphans = append(orphans, issue.Path)
		}
	}
	return orphans, nil
}
