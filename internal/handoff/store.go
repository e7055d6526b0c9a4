package handoff

import "context"

// Store persists handoff requests and their messages. Every method that
// changes more than one row does so atomically.
type Store interface {
	// Escalate refreshes the newest active request for the conversation or
	// inserts a new open one, and appends the escalation system message.
	Escalate(ctx context.Context, rec EscalationRecord) (EscalationOutcome, error)
	Get(ctx context.Context, id int64) (*Request, error)
	// Active returns the newest open or assigned request, or nil.
	Active(ctx context.Context, conversationID string) (*Request, error)
	List(ctx context.Context, filter ListFilter) ([]Request, error)
	// Claim assigns an unassigned, non-closed request with a single
	// conditional write and appends the join message on success.
	Claim(ctx context.Context, id int64, operator string) (ClaimResult, error)
	// SetStatus applies change under the row lock. Reopening a closed request
	// fails with ErrInvalidTransition while the conversation has another
	// active request.
	SetStatus(ctx context.Context, id int64, change StatusChange) (StatusUpdate, error)
	AppendMessage(ctx context.Context, requestID int64, sender Sender, text string) (Message, error)
	Messages(ctx context.Context, requestID, afterID int64) ([]Message, error)
}

// StatusUpdate is the result of Store.SetStatus. The previous values are read
// under the same lock as the write.
type StatusUpdate struct {
	Request          *Request
	PreviousStatus   Status
	PreviousAssignee string
}

// Changed reports whether the status or the assignee moved.
func (u StatusUpdate) Changed() bool {
	return u.Request != nil &&
		(u.PreviousStatus != u.Request.Status || u.PreviousAssignee != u.Request.Assignee())
}
