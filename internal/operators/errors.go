package operators

import "errors"

var (
	ErrNotFound               = errors.New("operators: operator not found")
	ErrInvalidCredentials     = errors.New("operators: invalid credentials")
	ErrInvalidCurrentPassword = errors.New("operators: invalid current password")
	ErrPasswordRequired       = errors.New("operators: new password required")
	ErrInvalidRole            = errors.New("operators: role must be admin or operator")
	ErrInvalidToken           = errors.New("operators: invalid token")
	ErrAuthDisabled           = errors.New("operators: token secret not configured")
)
