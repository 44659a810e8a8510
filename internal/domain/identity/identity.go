// Пакет identity — генерация идентификаторов заявок.
package identity

import (
	"github.com/google/uuid"
)

// New возвращает новый идентификатор заявки (UUIDv7).
// Первые 48 бит — время в миллисекундах, остальное — случайные биты,
// поэтому идентификаторы примерно упорядочены по времени создания.
// Коллизии не проверяются: вероятность пренебрежимо мала.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Источник случайности недоступен для v7 — используем v4
		return uuid.New().String()
	}
	return id.String()
}
