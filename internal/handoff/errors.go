package handoff

import "errors"

var (
	ErrRequestNotFound     = errors.New("handoff: request not found")
	ErrInvalidTransition   = errors.New("handoff: invalid status transition")
	ErrAssignedToOther     = errors.New("handoff: request assigned to another operator")
	ErrInvalidStatus       = errors.New("handoff: invalid status")
	ErrInvalidSender       = errors.New("handoff: invalid sender")
	ErrEmptyMessage        = errors.New("handoff: message text required")
	ErrMissingConversation = errors.New("handoff: conversation id required")
)
