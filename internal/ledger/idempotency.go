package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"

	"github.com/bukkus/bukkus-backend/pkg/db"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
)

const maxIdempotencyKeyLen = 255

// keyedRequest fingerprints a mutation so a retry with the same key can be
// told apart from a different request that reuses the key.
type keyedRequest struct {
	accountID uuid.UUID
	key       string
	operation string
	hash      string
}

// newKeyedRequest returns nil when the caller supplied no key.
func newKeyedRequest(accountID uuid.UUID, key, operation string, fields ...string) (*keyedRequest, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	if len(key) > maxIdempotencyKeyLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is too long")
	}
	sum := blake2b.Sum256([]byte(operation + "\x00" + strings.Join(fields, "\x00")))
	return &keyedRequest{
		accountID: accountID,
		key:       key,
		operation: operation,
		hash:      hex.EncodeToString(sum[:]),
	}, nil
}

// replay loads the stored outcome for req into out. It reports false when
// the key has not been used yet.
func replay(ctx context.Context, repo Repository, req *keyedRequest, out any) (bool, error) {
	if req == nil {
		return false, nil
	}
	rec, err := repo.FindRequest(ctx, req.accountID, req.key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.Operation != req.operation || rec.RequestHash != req.hash {
		return false, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used for a different request")
	}
	if err := json.Unmarshal(rec.Response, out); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored ledger response")
	}
	return true, nil
}

// remember stores the outcome in the same transaction as the mutation. A
// concurrent request that claimed the key first forces a retry, which then
// replays the winner's result.
func remember(ctx context.Context, repo Repository, req *keyedRequest, operationID uuid.UUID, result any) error {
	if req == nil {
		return nil
	}
	body, err := json.Marshal(result)
	if err != nil {
		return err
	}
	err = repo.CreateRequest(ctx, &models.LedgerRequest{
		AccountID:      req.accountID,
		IdempotencyKey: req.key,
		Operation:      req.operation,
		RequestHash:    req.hash,
		OperationID:    operationID,
		Response:       body,
	})
	if db.IsUniqueViolation(err, "") {
		return db.ErrConflict
	}
	return err
}
