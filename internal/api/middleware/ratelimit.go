package middleware

import (
	"net/http"

	"exchange/pkg/ratelimit"
)

// RateLimit - middleware для ограничения частоты запросов к API
//
// Token Bucket на весь сервер: защищает БД и пулы матчинга от
// лавины запросов. При исчерпании токенов возвращает 429 без
// ожидания, клиент повторяет запрос сам.
//
// Использование:
//
//	limiter := ratelimit.NewRateLimiter(500, 1000)
//	router.Use(middleware.RateLimit(limiter))
func RateLimit(limiter *ratelimit.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
