package attachments

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/intake/internal/storage/pathguard"
)

// testNow — фиксированное время для детерминированных путей.
var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)

// setupStore создаёт Store в TempDir: base/uploads.
func setupStore(t *testing.T) (string, *Store) {
	t.Helper()

	base := t.TempDir()
	guard, err := pathguard.New(base, filepath.Join(base, "uploads"))
	if err != nil {
		t.Fatalf("ошибка создания Guard: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := New(guard, logger)
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}
	return base, store
}

func TestNew_CreatesRoot(t *testing.T) {
	base, _ := setupStore(t)

	info, err := os.Stat(filepath.Join(base, "uploads"))
	if err != nil {
		t.Fatalf("корень не создан: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("корень не является директорией")
	}
}

func TestResolveDirectory(t *testing.T) {
	base, store := setupStore(t)

	dir, err := store.ResolveDirectory("abc", testNow)
	if err != nil {
		t.Fatalf("ошибка: %v", err)
	}

	want := filepath.Join(base, "uploads", "2024", "01", "01", "abc")
	if dir != want {
		t.Errorf("ожидалось %s, получено %s", want, dir)
	}

	// Повторный вызов идемпотентен
	again, err := store.ResolveDirectory("abc", testNow)
	if err != nil || again != dir {
		t.Errorf("повторный вызов: %s, %v", again, err)
	}
}

func TestResolveDirectory_InvalidID(t *testing.T) {
	_, store := setupStore(t)

	for _, id := range []string{"", "..", "a/b", "a b"} {
		if _, err := store.ResolveDirectory(id, testNow); !errors.Is(err, ErrInvalidID) {
			t.Errorf("id %q: ожидалась ErrInvalidID, получено %v", id, err)
		}
	}
}

func TestSave(t *testing.T) {
	base, store := setupStore(t)
	content := bytes.Repeat([]byte("x"), 2048)

	saved, err := store.Save("abc", testNow, bytes.NewReader(content), "résumé.pdf", 10<<20)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	wantRel := "uploads/2024/01/01/abc/resume-" + strconv.FormatInt(testNow.UnixMilli(), 10) + ".pdf"
	if saved.RelPath != wantRel {
		t.Errorf("RelPath: ожидалось %s, получено %s", wantRel, saved.RelPath)
	}
	if saved.FullPath != filepath.Join(base, filepath.FromSlash(wantRel)) {
		t.Errorf("FullPath: %s", saved.FullPath)
	}
	if saved.Size != 2048 {
		t.Errorf("Size: ожидалось 2048, получено %d", saved.Size)
	}

	sum := sha256.Sum256(content)
	if saved.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("Checksum не совпадает")
	}

	data, err := os.ReadFile(saved.FullPath)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}

	// Временные файлы не остаются
	entries, _ := os.ReadDir(filepath.Dir(saved.FullPath))
	if len(entries) != 1 {
		t.Errorf("в директории заявки ожидался 1 файл, найдено %d", len(entries))
	}
}

func TestSave_SameNameSameMillisecond(t *testing.T) {
	_, store := setupStore(t)

	first, err := store.Save("abc", testNow, strings.NewReader("one"), "img.jpg", 0)
	if err != nil {
		t.Fatalf("ошибка первого сохранения: %v", err)
	}
	second, err := store.Save("abc", testNow, strings.NewReader("two"), "img.jpg", 0)
	if err != nil {
		t.Fatalf("ошибка второго сохранения: %v", err)
	}

	if first.RelPath == second.RelPath {
		t.Fatalf("файлы получили одинаковый путь %s", first.RelPath)
	}
	if filepath.Dir(first.FullPath) != filepath.Dir(second.FullPath) {
		t.Error("файлы одной заявки должны лежать в одной директории")
	}
	if !strings.HasSuffix(second.RelPath, "-1.jpg") {
		t.Errorf("ожидался суффикс -1.jpg, получено %s", second.RelPath)
	}

	data, _ := os.ReadFile(first.FullPath)
	if string(data) != "one" {
		t.Errorf("первый файл перезаписан: %q", data)
	}
}

func TestSave_TooLarge(t *testing.T) {
	_, store := setupStore(t)

	_, err := store.Save("abc", testNow, bytes.NewReader(make([]byte, 11)), "big.bin", 10)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("ожидалась ErrTooLarge, получено %v", err)
	}

	// Ни временного, ни зарезервированного файла
	dir := store.DirectoryFor("abc", testNow)
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("после отказа в директории остались файлы: %d", len(entries))
	}
}

func TestSave_ExactLimit(t *testing.T) {
	_, store := setupStore(t)

	saved, err := store.Save("abc", testNow, bytes.NewReader(make([]byte, 10)), "ok.bin", 10)
	if err != nil {
		t.Fatalf("файл ровно по лимиту должен приниматься: %v", err)
	}
	if saved.Size != 10 {
		t.Errorf("Size: ожидалось 10, получено %d", saved.Size)
	}
}

func TestPurge_RemovesEmptyAncestors(t *testing.T) {
	base, store := setupStore(t)

	saved, err := store.Save("abc", testNow, strings.NewReader("data"), "x.png", 0)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	result := store.Purge([]string{saved.RelPath})
	if result.FilesRemoved != 1 {
		t.Errorf("FilesRemoved: ожидалось 1, получено %d", result.FilesRemoved)
	}
	// abc, 01 (день), 01 (месяц), 2024
	if result.DirsRemoved != 4 {
		t.Errorf("DirsRemoved: ожидалось 4, получено %d", result.DirsRemoved)
	}

	if _, err := os.Stat(filepath.Join(base, "uploads", "2024")); !os.IsNotExist(err) {
		t.Error("директория года должна быть удалена")
	}
	if _, err := os.Stat(filepath.Join(base, "uploads")); err != nil {
		t.Errorf("корень вложений не должен удаляться: %v", err)
	}
}

func TestPurge_KeepsSiblingSubmission(t *testing.T) {
	base, store := setupStore(t)

	mine, err := store.Save("mine", testNow, strings.NewReader("a"), "a.txt", 0)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	other, err := store.Save("other", testNow, strings.NewReader("b"), "b.txt", 0)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	result := store.Purge([]string{mine.RelPath})
	if result.DirsRemoved != 1 {
		t.Errorf("DirsRemoved: ожидалось 1 (только директория заявки), получено %d", result.DirsRemoved)
	}

	if _, err := os.Stat(other.FullPath); err != nil {
		t.Errorf("файл другой заявки удалён: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "uploads", "2024", "01", "01")); err != nil {
		t.Errorf("директория дня с другой заявкой удалена: %v", err)
	}
}

func TestPurge_MultipleFilesOneDirectory(t *testing.T) {
	_, store := setupStore(t)

	a, _ := store.Save("abc", testNow, strings.NewReader("a"), "a.txt", 0)
	b, _ := store.Save("abc", testNow, strings.NewReader("b"), "b.txt", 0)

	result := store.Purge([]string{a.RelPath, b.RelPath})
	if result.FilesRemoved != 2 {
		t.Errorf("FilesRemoved: ожидалось 2, получено %d", result.FilesRemoved)
	}
	if result.DirsRemoved != 4 {
		t.Errorf("DirsRemoved: ожидалось 4, получено %d", result.DirsRemoved)
	}
}

func TestPurge_MissingAndOutside(t *testing.T) {
	base, store := setupStore(t)

	outside := filepath.Join(base, "keep.txt")
	if err := os.WriteFile(outside, []byte("keep"), 0o640); err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	result := store.Purge([]string{
		"uploads/2024/01/01/gone/missing.png",
		"keep.txt",
		"../keep.txt",
		"uploads",
	})

	if result.FilesRemoved != 0 {
		t.Errorf("FilesRemoved: ожидалось 0, получено %d", result.FilesRemoved)
	}
	if result.Skipped != 3 {
		t.Errorf("Skipped: ожидалось 3, получено %d", result.Skipped)
	}
	if result.Failures != 0 {
		t.Errorf("Failures: ожидалось 0, получено %d", result.Failures)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("файл вне корня удалён: %v", err)
	}
}

func TestWalk(t *testing.T) {
	_, store := setupStore(t)

	a, _ := store.Save("abc", testNow, strings.NewReader("a"), "a.txt", 0)
	b, _ := store.Save("def", testNow, strings.NewReader("bb"), "b.txt", 0)

	// Временный файл должен пропускаться
	tmp := filepath.Join(store.DirectoryFor("abc", testNow), ".leftover"+tmpSuffix)
	if err := os.WriteFile(tmp, []byte("tmp"), 0o640); err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	seen := make(map[string]int64)
	err := store.Walk(func(rel string, info fs.FileInfo) error {
		seen[rel] = info.Size()
		return nil
	})
	if err != nil {
		t.Fatalf("ошибка обхода: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("ожидалось 2 файла, найдено %d: %v", len(seen), seen)
	}
	if seen[a.RelPath] != 1 || seen[b.RelPath] != 2 {
		t.Errorf("неожиданные размеры: %v", seen)
	}
}
