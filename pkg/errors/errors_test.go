package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeInvalidAmount, status: http.StatusBadRequest},
		{code: CodeInsufficientBalance, status: http.StatusUnprocessableEntity},
		{code: CodeUnknownAccount, status: http.StatusNotFound},
		{code: CodeListingUnavailable, status: http.StatusConflict},
		{code: CodeSelfOffer, status: http.StatusUnprocessableEntity},
		{code: CodeSelfRedemption, status: http.StatusUnprocessableEntity},
		{code: CodeOfferLimitReached, status: http.StatusConflict},
		{code: CodeOfferNotFound, status: http.StatusNotFound},
		{code: CodeOfferAlreadyResolved, status: http.StatusConflict},
		{code: CodeNotAuthorized, status: http.StatusForbidden},
		{code: CodeInternal, status: http.StatusInternalServerError},
		{code: CodeStoreUnavailable, status: http.StatusServiceUnavailable, retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		assert.Equal(t, tt.status, meta.HTTPStatus, "status for %s", tt.code)
		assert.Equal(t, tt.retryable, meta.Retryable, "retryable for %s", tt.code)
		assert.NotEmpty(t, meta.PublicMessage, "public message for %s", tt.code)
	}
}

func TestOnlyStoreUnavailableIsRetryable(t *testing.T) {
	for code, meta := range metadataByCode {
		if code == CodeStoreUnavailable {
			continue
		}
		assert.False(t, meta.Retryable, "%s must not be retryable", code)
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	assert.Equal(t, CodeValidation, base.Code())
	assert.Equal(t, "missing foo", base.Message())
	assert.Nil(t, base.Details())

	base.WithDetails(map[string]any{"field": "foo"})
	assert.NotNil(t, base.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeStoreUnavailable, cause, "loading account")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeStoreUnavailable, wrapped.Code())
	assert.True(t, wrapped.Retryable())
	assert.Contains(t, wrapped.Error(), "boom")
}

func TestAsAndHasCodeUnwrapChains(t *testing.T) {
	err := fmt.Errorf("transfer: %w", New(CodeInsufficientBalance, "balance 10 < 30"))

	got := As(err)
	require.NotNil(t, got)
	assert.Equal(t, CodeInsufficientBalance, got.Code())
	assert.True(t, HasCode(err, CodeInsufficientBalance))
	assert.False(t, HasCode(err, CodeInvalidAmount))
	assert.Equal(t, CodeInternal, CodeOf(stdErrors.New("plain")))
	assert.Nil(t, As(nil))
}

func TestEveryCodeHasLocalizedMessages(t *testing.T) {
	for code := range metadataByCode {
		messages, ok := localizedMessages[code]
		require.True(t, ok, "missing messages for %s", code)
		assert.NotEmpty(t, messages[language.Spanish], "missing es message for %s", code)
		assert.NotEmpty(t, messages[language.English], "missing en message for %s", code)
	}
}

func TestMatchLocale(t *testing.T) {
	assert.Equal(t, language.English, MatchLocale("en-US,en;q=0.9", language.Spanish))
	assert.Equal(t, language.Spanish, MatchLocale("es-AR", language.English))
	assert.Equal(t, language.English, MatchLocale("", language.English))
	assert.Equal(t, language.Spanish, MatchLocale("not a header;;", language.Spanish))
}

func TestLocalizedMessageDistinguishesKeyFailures(t *testing.T) {
	funds := LocalizedMessage(CodeInsufficientBalance, language.Spanish)
	notAllowed := LocalizedMessage(CodeNotAuthorized, language.Spanish)
	unavailable := LocalizedMessage(CodeStoreUnavailable, language.Spanish)

	assert.NotEqual(t, funds, notAllowed)
	assert.NotEqual(t, funds, unavailable)
	assert.NotEqual(t, notAllowed, unavailable)
	assert.Equal(t, "Insufficient funds.", LocalizedMessage(CodeInsufficientBalance, language.English))
	assert.Equal(t, LocalizedMessage(CodeInternal, language.Spanish), LocalizedMessage("UNKNOWN", language.Spanish))
}

func TestLogFieldsIncludesPostgresDetail(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uniq_accounts_alias", TableName: "accounts"}
	err := Wrap(CodeStoreUnavailable, fmt.Errorf("insert account: %w", pgErr), "open wallet")

	fields := LogFields(err)
	assert.Equal(t, string(CodeStoreUnavailable), fields["error_code"])
	assert.Equal(t, "23505", fields["pg_code"])
	assert.Equal(t, "uniq_accounts_alias", fields["pg_constraint"])
	assert.Equal(t, "accounts", fields["pg_table"])
	assert.NotContains(t, fields, "pg_column")
	assert.Len(t, fields["error_chain"], 3)

	pqFields := LogFields(&pq.Error{Code: "40001", Message: "could not serialize"})
	assert.Equal(t, "40001", pqFields["pg_code"])
	assert.NotContains(t, pqFields, "error_chain")

	assert.Nil(t, LogFields(nil))
}
