package responses

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	require.Equal(t, http.StatusOK, w.Code)

	var body Success
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "world", body.Data.(map[string]any)["hello"])
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]int{"balance": 10})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "demo"})
	WriteError(context.Background(), testLogger(), w, err)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body Failure
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeValidation), body.Error.Code)
	assert.NotNil(t, body.Error.Details)
	assert.False(t, body.Error.Retryable)
}

func TestWriteErrorDefaultsToInternalForUntypedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), testLogger(), w, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body Failure
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	assert.Nil(t, body.Error.Details)
	assert.NotContains(t, body.Error.Message, "boom")
}

func TestWriteErrorLocalizesMessage(t *testing.T) {
	tests := []struct {
		name   string
		locale language.Tag
		code   pkgerrors.Code
		want   string
	}{
		{name: "spanish funds", locale: language.Spanish, code: pkgerrors.CodeInsufficientBalance, want: "No tenés BUKKcoins suficientes."},
		{name: "english funds", locale: language.English, code: pkgerrors.CodeInsufficientBalance, want: "Insufficient funds."},
		{name: "english not allowed", locale: language.English, code: pkgerrors.CodeNotAuthorized, want: "You are not allowed to do that."},
		{name: "spanish unavailable", locale: language.Spanish, code: pkgerrors.CodeStoreUnavailable, want: "El servicio no está disponible en este momento, probá de nuevo."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ctx := WithLocale(context.Background(), tc.locale)
			WriteError(ctx, nil, w, pkgerrors.New(tc.code, "internal detail"))

			var body Failure
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tc.want, body.Error.Message)
		})
	}
}

func TestWriteErrorMarksRetryable(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, errors.New("conn reset"), "transfer"))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var body Failure
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Error.Retryable)
}

func TestLocaleFromContextDefaultsToSpanish(t *testing.T) {
	assert.Equal(t, language.Spanish, LocaleFromContext(context.Background()))
}

func TestHandleRendersReplies(t *testing.T) {
	cases := map[string]struct {
		reply      Reply
		wantStatus int
		replayed   string
	}{
		"ok":            {reply: OK("x"), wantStatus: http.StatusOK},
		"created":       {reply: Created("x"), wantStatus: http.StatusCreated},
		"stored fresh":  {reply: Stored("x", false), wantStatus: http.StatusCreated},
		"stored replay": {reply: Stored("x", true), wantStatus: http.StatusOK, replayed: "true"},
		"zero status":   {reply: Reply{Body: "x"}, wantStatus: http.StatusOK},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Handle(nil, func(*http.Request) (Reply, error) { return tc.reply, nil })(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.replayed, w.Header().Get(ReplayedHeader))
			var body Success
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, "x", body.Data)
		})
	}
}

func TestHandleRendersErrors(t *testing.T) {
	w := httptest.NewRecorder()
	Handle(testLogger(), func(*http.Request) (Reply, error) {
		return Reply{}, pkgerrors.New(pkgerrors.CodeOfferNotFound, "gone")
	})(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body Failure
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeOfferNotFound), body.Error.Code)
}
