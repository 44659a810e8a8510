// disk_usage.go — ёмкость тома с директорией вложений.
// Платформозависимый код для Unix-подобных систем.
package main

import (
	"fmt"
	"log/slog"
	"syscall"
)

// diskUsage — ёмкость тома в байтах.
type diskUsage struct {
	Total     int64
	Used      int64
	Available int64
}

// fitsRequest сообщает, поместится ли заявка размером requestBytes.
func (d diskUsage) fitsRequest(requestBytes int64) bool {
	return d.Available >= requestBytes
}

// readDiskUsage возвращает ёмкость тома, на котором лежит path.
func readDiskUsage(path string) (diskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return diskUsage{}, fmt.Errorf("ошибка statfs %s: %w", path, err)
	}

	total := int64(stat.Blocks) * int64(stat.Bsize)
	available := int64(stat.Bavail) * int64(stat.Bsize)

	return diskUsage{
		Total:     total,
		Used:      total - available,
		Available: available,
	}, nil
}

// checkUploadsCapacity пишет в лог ёмкость тома вложений и предупреждает,
// если на нём не поместится даже одна заявка максимального размера.
// Возвращает false только при нехватке места; ошибка statfs не мешает старту.
func checkUploadsCapacity(logger *slog.Logger, uploadsRoot string, maxRequestBytes int64) bool {
	usage, err := readDiskUsage(uploadsRoot)
	if err != nil {
		logger.Warn("Не удалось получить ёмкость диска", slog.String("error", err.Error()))
		return true
	}

	logger.Info("Ёмкость диска вложений",
		slog.Int64("total_bytes", usage.Total),
		slog.Int64("used_bytes", usage.Used),
		slog.Int64("available_bytes", usage.Available),
	)

	if !usage.fitsRequest(maxRequestBytes) {
		logger.Warn("Свободного места меньше максимального размера заявки",
			slog.Int64("available_bytes", usage.Available),
			slog.Int64("max_request_bytes", maxRequestBytes),
		)
		return false
	}
	return true
}
