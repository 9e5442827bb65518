package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/enums"
)

type identityKey struct{}

// identity is who Auth admitted.
type identity struct {
	account uuid.UUID
	role    enums.AccountRole
}

func identityFrom(ctx context.Context) identity {
	if ctx == nil {
		return identity{}
	}
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

// WithAccount puts the caller on ctx. Handlers read it back through
// AccountIDFromContext and RoleFromContext.
func WithAccount(ctx context.Context, accountID uuid.UUID, role enums.AccountRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, identity{account: accountID, role: role})
}

// AccountIDFromContext is uuid.Nil on routes outside Auth.
func AccountIDFromContext(ctx context.Context) uuid.UUID {
	return identityFrom(ctx).account
}

func RoleFromContext(ctx context.Context) enums.AccountRole {
	return identityFrom(ctx).role
}
