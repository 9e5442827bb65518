package middleware

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/bukkus/bukkus-backend/api/responses"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

// IdempotencyKeyHeader is shared with the ledger controllers, which pass it to the ledger itself.
const IdempotencyKeyHeader = "Idempotency-Key"

// replayRoute is a POST path template. A "*" segment matches any single path segment.
type replayRoute struct {
	template string
	required bool
}

// Ledger mutations are not listed: the ledger deduplicates them in the same
// transaction that moves the coins, using the same header.
var replayRoutes = []replayRoute{
	{template: "/api/v1/listings/*/offers", required: true},
	{template: "/api/v1/listings"},
	{template: "/api/v1/wallet"},
	{template: "/api/v1/offers/*/accept"},
	{template: "/api/v1/offers/*/reject"},
	{template: "/api/v1/notifications/*/read"},
	{template: "/api/v1/notifications/read-all"},
}

type idempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// storedResponse is what lives under an idempotency key. A claim with no status is
// still being served.
type storedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (s storedResponse) pending() bool {
	return s.Status == 0
}

func (s storedResponse) encode() (string, error) {
	raw, err := json.Marshal(s)
	return string(raw), err
}

func decodeStoredResponse(raw string) (storedResponse, error) {
	var s storedResponse
	err := json.Unmarshal([]byte(raw), &s)
	return s, err
}

func (s storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(responses.ReplayedHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// Idempotency replays the first response to a POST when the client repeats it with
// the same Idempotency-Key. The key is claimed before the handler runs, so a
// concurrent duplicate is refused rather than executed twice. Reusing a key with a
// different body is refused too. 5xx responses release the claim so a retry runs again.
func Idempotency(store idempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := lookupReplayRoute(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" {
				if route.required {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required").
						WithDetails(map[string]string{"header": IdempotencyKeyHeader}))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintBody(body)
			key := store.IdempotencyKey(replayScope(r), clientKey)

			claim, _ := storedResponse{Fingerprint: fingerprint}.encode()
			claimed, err := store.SetNX(ctx, key, claim, ttl)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "claim idempotency key"))
				return
			}
			if !claimed {
				serveExisting(w, r, store, key, fingerprint, logg)
				return
			}

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			logCtx := ctx
			if logg != nil {
				logCtx = logg.WithField(ctx, "idempotency_key", clientKey)
			}
			status := writtenStatus(ww)
			if status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(logCtx, "idempotency.release_failed", err)
				}
				return
			}
			final, err := storedResponse{
				Fingerprint: fingerprint,
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
			}.encode()
			if err == nil {
				err = store.Set(ctx, key, final, ttl)
			}
			if err != nil && logg != nil {
				logg.Error(logCtx, "idempotency.store_failed", err)
			}
		})
	}
}

func serveExisting(w http.ResponseWriter, r *http.Request, store idempotencyStore, key, fingerprint string, logg *logger.Logger) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil) || (err == nil && raw == ""):
		// The claim expired between SETNX and GET; the client can retry.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeStoreUnavailable, "idempotency key expired, retry the request"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "read idempotency key"))
		return
	}

	existing, err := decodeStoredResponse(raw)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	switch {
	case existing.Fingerprint != fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body").
			WithDetails(map[string]string{"header": IdempotencyKeyHeader}))
	case existing.pending():
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still in progress").
			WithDetails(map[string]string{"header": IdempotencyKeyHeader}))
	default:
		existing.replay(w)
	}
}

// replayScope keeps keys from colliding across accounts and endpoints.
func replayScope(r *http.Request) string {
	return AccountIDFromContext(r.Context()).String() + "|" + r.Method + "|" + strings.TrimSuffix(r.URL.Path, "/")
}

func fingerprintBody(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func lookupReplayRoute(method, path string) (replayRoute, bool) {
	if method != http.MethodPost {
		return replayRoute{}, false
	}
	for _, route := range replayRoutes {
		if pathMatches(route.template, path) {
			return route, true
		}
	}
	return replayRoute{}, false
}

func pathMatches(template, path string) bool {
	want := strings.Split(strings.Trim(template, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, segment := range want {
		if got[i] == "" {
			return false
		}
		if segment != "*" && segment != got[i] {
			return false
		}
	}
	return true
}
