package middleware

import (
	"net/http"
	"strings"

	"exchange/pkg/crypto"
)

// AdminAuth - middleware для защиты админских liquidity endpoints
//
// Назначение:
// Фид ликвидности и подтверждения внешних сделок может вызывать
// только доверенный gateway. Он предъявляет общий токен в заголовке
// Authorization: Bearer <token>.
//
// Конфигурация:
// - tokenHash: bcrypt-хеш токена (ADMIN_TOKEN_HASH)
// - Если хеш пуст, endpoints недоступны (403)
//
// bcrypt-сравнение constant-time, timing attacks по токену невозможны.
//
// Использование:
//
//	liquidity := api.PathPrefix("/liquidity").Subrouter()
//	liquidity.Use(middleware.AdminAuth(cfg.Security.AdminTokenHash))
func AdminAuth(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				http.Error(w, "Liquidity endpoints disabled. Set ADMIN_TOKEN_HASH.", http.StatusForbidden)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="Liquidity endpoints"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !crypto.CheckPasswordMatch(token, tokenHash) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="Liquidity endpoints"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
