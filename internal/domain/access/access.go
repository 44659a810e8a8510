// Пакет access — проверка предъявленных ключей доступа.
//
// Два статических секрета: ключ отправителя формы (submitter) и ключ
// администратора (admin). Пустой предъявленный или пустой настроенный
// ключ никогда не даёт доступа.
package access

import (
	"crypto/subtle"
	"strings"
	"unicode"
)

// Control — проверка ключей. Создаётся один раз при старте.
type Control struct {
	submitterKey string
	adminKey     string
}

// New создаёт Control из настроенных секретов.
// Все пробельные символы секретов удаляются.
func New(submitterKey, adminKey string) *Control {
	return &Control{
		submitterKey: StripWhitespace(submitterKey),
		adminKey:     StripWhitespace(adminKey),
	}
}

// SubmitterAllowed проверяет ключ отправителя формы.
func (c *Control) SubmitterAllowed(presented string) bool {
	return matches(c.submitterKey, presented)
}

// AdminAllowed проверяет ключ администратора.
func (c *Control) AdminAllowed(presented string) bool {
	return matches(c.adminKey, presented)
}

// SubmitterConfigured сообщает, задан ли ключ отправителя.
func (c *Control) SubmitterConfigured() bool {
	return c.submitterKey != ""
}

// AdminConfigured сообщает, задан ли ключ администратора.
func (c *Control) AdminConfigured() bool {
	return c.adminKey != ""
}

// matches сравнивает ключи за постоянное время.
func matches(secret, presented string) bool {
	presented = StripWhitespace(presented)
	if secret == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(presented)) == 1
}

// StripWhitespace удаляет все пробельные символы, включая внутренние
// и переводы строк (ключ, прочитанный из файла, часто оканчивается "\n").
func StripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
