package enums

import (
	"fmt"
	"strings"
)

// AccountRole is carried in access tokens issued by the identity provider.
type AccountRole string

const (
	AccountRoleUser  AccountRole = "user"
	AccountRoleAdmin AccountRole = "admin"
)

func (r AccountRole) IsValid() bool {
	return r == AccountRoleUser || r == AccountRoleAdmin
}

// ParseAccountRole converts raw input into AccountRole.
func ParseAccountRole(value string) (AccountRole, error) {
	role := AccountRole(strings.ToLower(strings.TrimSpace(value)))
	if !role.IsValid() {
		return "", fmt.Errorf("invalid account role %q", value)
	}
	return role, nil
}
