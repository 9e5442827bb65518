package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/enums"
)

// AccessTokenPayload is what tooling supplies when minting a token.
type AccessTokenPayload struct {
	AccountID uuid.UUID
	Role      enums.AccountRole
	JTI       string
}

// AccessTokenClaims is the JWT presented by clients. Account ids are owned by
// the identity provider and trusted as issued.
type AccessTokenClaims struct {
	AccountID uuid.UUID         `json:"account_id"`
	Role      enums.AccountRole `json:"role"`
	jwt.RegisteredClaims
}

var errMissingAccount = errors.New("token missing account_id")

// Validate runs after the registered claims checks during parsing.
func (c AccessTokenClaims) Validate() error {
	if c.AccountID == uuid.Nil {
		return errMissingAccount
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid account role %q", c.Role)
	}
	if c.Subject != "" && c.Subject != c.AccountID.String() {
		return errors.New("token subject does not match account_id")
	}
	return nil
}

// IsAdmin reports whether the token grants admin-only operations such as deposits.
func (c *AccessTokenClaims) IsAdmin() bool {
	return c != nil && c.Role == enums.AccountRoleAdmin
}
