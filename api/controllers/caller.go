package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/api/middleware"
	"github.com/bukkus/bukkus-backend/api/validators"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

func callerAccount(r *http.Request) (uuid.UUID, error) {
	id := middleware.AccountIDFromContext(r.Context())
	if id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account identity missing")
	}
	return id, nil
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(middleware.IdempotencyKeyHeader))
}

// coinAmount turns a JSON number into whole BUKKcoins. Fractions and overflow are
// refused as invalid amounts, not as malformed bodies.
func coinAmount(raw json.Number) (int64, error) {
	value, err := raw.Int64()
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInvalidAmount, err, "amount must be a positive integer").
			WithDetails(map[string]string{"amount": raw.String()})
	}
	if value <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be a positive integer").
			WithDetails(map[string]string{"amount": raw.String()})
	}
	return value, nil
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
