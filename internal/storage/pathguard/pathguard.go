// Пакет pathguard — проверка того, что запрошенный путь файла
// находится строго внутри корня вложений.
//
// Относительные пути разрешаются от базовой директории сервиса,
// а принимаются только результаты внутри корня вложений: сам корень
// или корень + разделитель + хвост. Префиксная коллизия с соседней
// директорией ("uploads-old") не проходит.
package pathguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrForbidden — путь выходит за пределы корня вложений.
	ErrForbidden = errors.New("путь вне корня вложений")
	// ErrNotFound — путь допустим, но файла нет (или это не обычный файл).
	ErrNotFound = errors.New("файл не найден")
)

// Guard — проверка путей относительно базовой директории и корня вложений.
type Guard struct {
	// baseDir — абсолютная базовая директория, от которой разрешаются пути
	baseDir string
	// root — абсолютный корень вложений (внутри baseDir)
	root string
}

// New создаёт Guard. Обе директории приводятся к абсолютному виду.
func New(baseDir, root string) (*Guard, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка разрешения базовой директории %s: %w", baseDir, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ошибка разрешения корня вложений %s: %w", root, err)
	}
	return &Guard{baseDir: absBase, root: absRoot}, nil
}

// Root возвращает абсолютный корень вложений.
func (g *Guard) Root() string {
	return g.root
}

// BaseDir возвращает абсолютную базовую директорию.
func (g *Guard) BaseDir() string {
	return g.baseDir
}

// Validate возвращает абсолютный путь для requested или ErrForbidden.
// requested должен быть уже декодирован из URL. Все вхождения ".."
// вырезаются до разрешения пути.
func (g *Guard) Validate(requested string) (string, error) {
	cleaned := strings.ReplaceAll(requested, "..", "")

	// Абсолютный путь тоже присоединяется к baseDir, как и относительный
	full := filepath.Join(g.baseDir, cleaned)

	if !g.Contains(full) {
		return "", fmt.Errorf("%w: %q", ErrForbidden, requested)
	}
	return full, nil
}

// Contains проверяет, что абсолютный путь равен корню или лежит внутри него.
func (g *Guard) Contains(absPath string) bool {
	absPath = filepath.Clean(absPath)
	return absPath == g.root || strings.HasPrefix(absPath, g.root+string(filepath.Separator))
}

// Open проверяет путь и открывает файл для чтения.
// Возвращает ErrForbidden для путей вне корня и ErrNotFound, если файла
// нет или это директория. Вызывающий код обязан закрыть файл.
func (g *Guard) Open(requested string) (*os.File, os.FileInfo, error) {
	full, err := g.Validate(requested)
	if err != nil {
		return nil, nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, requested)
		}
		return nil, nil, fmt.Errorf("ошибка stat %s: %w", full, err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, requested)
	}

	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, requested)
		}
		return nil, nil, fmt.Errorf("ошибка открытия файла %s: %w", full, err)
	}

	return f, info, nil
}

// Relative возвращает путь absPath относительно базовой директории
// с прямыми слешами, в том виде, в котором он хранится в журнале.
func (g *Guard) Relative(absPath string) (string, error) {
	rel, err := filepath.Rel(g.baseDir, absPath)
	if err != nil {
		return "", fmt.Errorf("ошибка вычисления относительного пути %s: %w", absPath, err)
	}
	return filepath.ToSlash(rel), nil
}
