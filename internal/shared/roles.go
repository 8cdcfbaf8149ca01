package shared

import (
	"strconv"
	"strings"
)

// Role names a caller category.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleAgent    Role = "agent"
	RoleCustomer Role = "customer"
	RoleRunner   Role = "runner"
)

// ParseRole normalises a role claim.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleAgent, RoleCustomer, RoleRunner:
		return r, true
	default:
		return "", false
	}
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID int64
	Role   Role
}

// IsAgent reports whether the caller acts as a delivery agent.
func (i Identity) IsAgent() bool { return i.Role == RoleAgent }

// IsCustomer reports whether the caller acts as a customer.
func (i Identity) IsCustomer() bool { return i.Role == RoleCustomer }

// IsAdmin reports whether the caller is an administrator.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// String renders the identity for logs and rate-limit keys.
func (i Identity) String() string {
	return string(i.Role) + ":" + strconv.FormatInt(i.UserID, 10)
}
