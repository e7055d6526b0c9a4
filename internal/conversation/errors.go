package conversation

import "errors"

var (
	ErrConversationBusy    = errors.New("conversation: another turn is in progress")
	ErrMissingConversation = errors.New("conversation: conversation id required")
	ErrEscalationFailed    = errors.New("conversation: escalation failed")
)
