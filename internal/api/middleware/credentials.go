// credentials.go — извлечение предъявленных ключей доступа из запроса.
package middleware

import (
	"net/http"
	"strings"
)

// Имена полей и заголовков с ключами.
const (
	HeaderAPIKey   = "X-API-Key"
	ParamAPIKey    = "api_key"
	ParamAdminKey  = "key"
	bearerPrefix   = "Bearer "
	headerAuthzKey = "Authorization"
)

// SubmitterCredential возвращает ключ отправителя формы. Источники по
// приоритету: заголовок X-API-Key, Authorization: Bearer, параметр
// api_key в query, поле api_key тела (bodyKey, уже разобранное
// обработчиком). Берётся первое непустое значение.
func SubmitterCredential(r *http.Request, bodyKey string) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); v != "" {
		return v
	}
	if v := bearerToken(r.Header.Get(headerAuthzKey)); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.URL.Query().Get(ParamAPIKey)); v != "" {
		return v
	}
	return strings.TrimSpace(bodyKey)
}

// AdminCredential возвращает ключ администратора из параметра key.
func AdminCredential(r *http.Request) string {
	return r.URL.Query().Get(ParamAdminKey)
}

// bearerToken извлекает токен из значения "Bearer <token>".
func bearerToken(authz string) string {
	if len(authz) < len(bearerPrefix) || !strings.EqualFold(authz[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authz[len(bearerPrefix):])
}
