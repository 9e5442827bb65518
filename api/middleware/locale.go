package middleware

import (
	"net/http"

	"golang.org/x/text/language"

	"github.com/bukkus/bukkus-backend/api/responses"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
)

// Locale negotiates the response language from Accept-Language.
func Locale(fallback language.Tag) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tag := pkgerrors.MatchLocale(r.Header.Get("Accept-Language"), fallback)
			base, _ := tag.Base()
			w.Header().Set("Content-Language", base.String())
			next.ServeHTTP(w, r.WithContext(responses.WithLocale(r.Context(), tag)))
		})
	}
}
