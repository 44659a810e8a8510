package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/bigkaa/goartstore/intake/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// backends — реализации журнала, для которых проверяется общее поведение.
var backends = []struct {
	name string
	open func(t *testing.T) Ledger
}{
	{
		name: BackendCSV,
		open: func(t *testing.T) Ledger {
			return NewCSV(filepath.Join(t.TempDir(), "data", "submissions.csv"), testLogger())
		},
	},
	{
		name: BackendSQLite,
		open: func(t *testing.T) Ledger {
			l, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "submissions.db"), testLogger())
			if err != nil {
				t.Fatalf("ошибка открытия SQLite: %v", err)
			}
			t.Cleanup(func() { l.Close() })
			return l
		},
	},
}

func sampleSubmission(n int) *model.Submission {
	return &model.Submission{
		ID:                fmt.Sprintf("id-%d", n),
		Timestamp:         "2024-01-01T00:00:00.000Z",
		FormPurpose:       "repair",
		FirstName:         "Ann",
		LastName:          fmt.Sprintf("Lee %d", n),
		Email:             "ann@example.com",
		Phone:             "+1 555 0100",
		HelpNeededOffered: "printer, \"wifi\"\nand email",
		AttachmentPaths:   []string{},
	}
}

func initLedger(t *testing.T, open func(t *testing.T) Ledger) Ledger {
	t.Helper()
	l := open(t)
	if err := l.EnsureInitialized(context.Background()); err != nil {
		t.Fatalf("ошибка инициализации: %v", err)
	}
	return l
}

func TestLedger_ListReverseOrder(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			l := initLedger(t, b.open)

			var appended []*model.Submission
			for i := 0; i < 5; i++ {
				s := sampleSubmission(i)
				if err := l.Append(ctx, s); err != nil {
					t.Fatalf("ошибка добавления %d: %v", i, err)
				}
				appended = append(appended, s)
			}

			got, err := l.List(ctx)
			if err != nil {
				t.Fatalf("ошибка List: %v", err)
			}
			if len(got) != len(appended) {
				t.Fatalf("ожидалось %d заявок, получено %d", len(appended), len(got))
			}
			for i := range got {
				want := appended[len(appended)-1-i]
				if !reflect.DeepEqual(got[i], want) {
					t.Errorf("позиция %d: ожидалось %+v, получено %+v", i, want, got[i])
				}
			}
		})
	}
}

func TestLedger_EmptyList(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			l := initLedger(t, b.open)

			got, err := l.List(context.Background())
			if err != nil {
				t.Fatalf("ошибка List: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("ожидался пустой список, получено %d", len(got))
			}
		})
	}
}

func TestLedger_AttachmentPathsRoundTrip(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			l := initLedger(t, b.open)

			s := sampleSubmission(1)
			s.AttachmentPaths = []string{"uploads/2024/01/01/abc/x.png"}
			if err := l.Append(ctx, s); err != nil {
				t.Fatalf("ошибка добавления: %v", err)
			}

			got, err := l.List(ctx)
			if err != nil {
				t.Fatalf("ошибка List: %v", err)
			}
			if !reflect.DeepEqual(got[0].AttachmentPaths, []string{"uploads/2024/01/01/abc/x.png"}) {
				t.Errorf("пути вложений: %v", got[0].AttachmentPaths)
			}
		})
	}
}

func TestLedger_Remove(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			l := initLedger(t, b.open)

			for i := 0; i < 3; i++ {
				s := sampleSubmission(i)
				s.AttachmentPaths = []string{fmt.Sprintf("uploads/2024/01/01/id-%d/a.txt", i)}
				if err := l.Append(ctx, s); err != nil {
					t.Fatalf("ошибка добавления: %v", err)
				}
			}

			removed, err := l.Remove(ctx, "id-1")
			if err != nil {
				t.Fatalf("ошибка удаления: %v", err)
			}
			if removed.ID != "id-1" || len(removed.AttachmentPaths) != 1 {
				t.Errorf("удалённая заявка: %+v", removed)
			}

			got, err := l.List(ctx)
			if err != nil {
				t.Fatalf("ошибка List: %v", err)
			}
			ids := make([]string, 0, len(got))
			for _, s := range got {
				ids = append(ids, s.ID)
			}
			if !reflect.DeepEqual(ids, []string{"id-2", "id-0"}) {
				t.Errorf("после удаления ожидалось [id-2 id-0], получено %v", ids)
			}

			// Повторное удаление — not found
			if _, err := l.Remove(ctx, "id-1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("ожидалась ErrNotFound, получено %v", err)
			}
		})
	}
}

func TestLedger_RemoveTrimsID(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			l := initLedger(t, b.open)

			if err := l.Append(ctx, sampleSubmission(7)); err != nil {
				t.Fatalf("ошибка добавления: %v", err)
			}
			if _, err := l.Remove(ctx, "  id-7 \n"); err != nil {
				t.Fatalf("ошибка удаления с пробелами: %v", err)
			}
		})
	}
}

func TestLedger_EnsureInitializedIdempotent(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			l := initLedger(t, b.open)

			if err := l.Append(ctx, sampleSubmission(1)); err != nil {
				t.Fatalf("ошибка добавления: %v", err)
			}
			if err := l.EnsureInitialized(ctx); err != nil {
				t.Fatalf("повторная инициализация: %v", err)
			}

			got, err := l.List(ctx)
			if err != nil {
				t.Fatalf("ошибка List: %v", err)
			}
			if len(got) != 1 {
				t.Errorf("повторная инициализация не должна терять данные: %d", len(got))
			}
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open("mongo", "x", testLogger()); err == nil {
		t.Fatal("ожидалась ошибка для неизвестной реализации")
	}
}
