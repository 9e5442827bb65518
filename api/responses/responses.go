// Package responses renders the JSON envelopes returned by every handler.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	send(w, status, Success{Data: data})
}

// WriteError renders err in the language negotiated for the request. 5xx
// failures are logged as errors and refusals as warnings. Only the error
// code's public message reaches the client.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed := classify(err)
	meta := pkgerrors.MetadataFor(typed.Code())

	problem := Problem{
		Code:      string(typed.Code()),
		Message:   pkgerrors.LocalizedMessage(typed.Code(), LocaleFromContext(ctx)),
		Retryable: meta.Retryable,
	}
	if details := typed.Details(); meta.DetailsAllowed && details != nil {
		problem.Details = details
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.LogFields(typed))
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", typed)
		} else {
			logg.Warn(ctx, "request.refused")
		}
	}

	if meta.Retryable {
		w.Header().Set("Retry-After", "1")
	}
	send(w, meta.HTTPStatus, Failure{Error: problem})
}

func classify(err error) *pkgerrors.Error {
	if err == nil {
		err = errors.New("unknown error")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
}

func send(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are gone by now; all that is left is to note it.
		zlog.Error().Err(err).Int("status", status).Msg("response.encode_failed")
	}
}
