// Package operators manages the accounts of the people who work the handoff
// queue: password storage, login and the bearer tokens the operator API
// accepts.
package operators

import (
	"strings"
	"time"
)

// Role is stored in users.user_type.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// ParseRole accepts admin or operator, case-insensitively.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleOperator:
		return RoleOperator, nil
	}
	return "", ErrInvalidRole
}

// Operator is one row of the users table.
type Operator struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"user_type"`
	CreatedAt    time.Time `json:"created_at"`
}

func (o Operator) IsAdmin() bool { return o.Role == RoleAdmin }
