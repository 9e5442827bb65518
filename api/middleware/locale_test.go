package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"github.com/bukkus/bukkus-backend/api/responses"
)

func TestLocaleNegotiation(t *testing.T) {
	tests := []struct {
		header string
		want   language.Tag
	}{
		{header: "", want: language.Spanish},
		{header: "en-US,en;q=0.9", want: language.English},
		{header: "es-AR", want: language.Spanish},
		{header: "fr-FR", want: language.Spanish},
	}

	for _, tc := range tests {
		t.Run(tc.header, func(t *testing.T) {
			var got language.Tag
			handler := Locale(language.Spanish)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = responses.LocaleFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Accept-Language", tc.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tc.want, got)
		})
	}
}
