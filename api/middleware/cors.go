package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/bukkus/bukkus-backend/api/responses"
)

// CORS admits browser calls from the web clients' origins. Preflight answers
// are cached for five minutes.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", IdempotencyKeyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, responses.ReplayedHeader, "Content-Language", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
