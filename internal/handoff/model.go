package handoff

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a handoff request.
type Status string

const (
	StatusOpen     Status = "open"
	StatusAssigned Status = "assigned"
	StatusClosed   Status = "closed"
)

// Active reports whether the request still waits on or occupies an operator.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusAssigned
}

// ParseStatus validates a status name.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusOpen:
		return StatusOpen, nil
	case StatusAssigned:
		return StatusAssigned, nil
	case StatusClosed:
		return StatusClosed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// Sender identifies who wrote a handoff message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAgent  Sender = "agent"
	SenderSystem Sender = "system"
)

// ParseSender validates a sender name.
func ParseSender(raw string) (Sender, error) {
	switch Sender(strings.ToLower(strings.TrimSpace(raw))) {
	case SenderUser:
		return SenderUser, nil
	case SenderAgent:
		return SenderAgent, nil
	case SenderSystem:
		return SenderSystem, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSender, raw)
	}
}

// System message texts shown in the operator chat.
const (
	EscalationCreatedText = "Escalation created. Waiting for operator assignment."
	UserLeftText          = "User left the chat. Session closed."
	LeaveCommand          = "/leave"
)

// JoinedText announces the operator that took the request.
func JoinedText(operator string) string {
	return fmt.Sprintf("Operator %s joined the chat.", operator)
}

// Request is a durable escalation record.
type Request struct {
	ID                int64           `json:"id"`
	ConversationID    string          `json:"conversation_id"`
	Status            Status          `json:"status"`
	RiskScore         *int            `json:"risk_score"`
	CrisisType        *string         `json:"crisis_type"`
	UserStatus        string          `json:"user_status,omitempty"`
	Channel           string          `json:"user_channel,omitempty"`
	AssignedTo        *string         `json:"assigned_to"`
	Summary           json.RawMessage `json:"summary_json,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	LastMessageID     *int64          `json:"last_message_id"`
	LastMessageSender *Sender         `json:"last_message_sender"`
	LastMessageAt     *time.Time      `json:"last_message_at"`
}

// Assignee returns the operator holding the request, or "".
func (r Request) Assignee() string {
	if r.AssignedTo == nil {
		return ""
	}
	return *r.AssignedTo
}

// Priority ranks open requests. A just-reported emergency that has not been
// scored yet ranks as 90.
func (r Request) Priority() int {
	score := 0
	if r.RiskScore != nil {
		score = *r.RiskScore
	}
	if r.UserStatus == "emergency" && score == 0 {
		return 90
	}
	return score
}

// Message is one entry of the append-only request chat.
type Message struct {
	ID        int64     `json:"id"`
	RequestID int64     `json:"request_id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Viewer is the identity a queue operation acts for. The zero value is the
// anonymous public side.
type Viewer struct {
	Username string
	Admin    bool
}

// Operator reports whether the viewer is a signed-in non-admin operator.
func (v Viewer) Operator() bool {
	return v.Username != "" && !v.Admin
}

// ClaimResult is the outcome of a claim attempt.
type ClaimResult int

const (
	ClaimClaimed ClaimResult = iota
	ClaimAlreadyAssigned
	ClaimAlreadyYours
	ClaimClosed
)

func (c ClaimResult) String() string {
	switch c {
	case ClaimClaimed:
		return "claimed"
	case ClaimAlreadyAssigned:
		return "already_assigned"
	case ClaimAlreadyYours:
		return "already_yours"
	case ClaimClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EscalationRecord carries the fields written by an escalation.
type EscalationRecord struct {
	ConversationID string
	RiskScore      *int
	CrisisType     *string
	UserStatus     string
	Channel        string
	Summary        json.RawMessage
}

// EscalationOutcome describes what an escalation did to the store.
type EscalationOutcome struct {
	RequestID int64
	Created   bool
	// Superseded lists older active requests closed because a newer one exists.
	Superseded []int64
}

// ListFilter narrows a queue listing.
type ListFilter struct {
	Status *Status
	Viewer Viewer
}

// StatusChange requests a status transition.
type StatusChange struct {
	Status               Status
	Actor                Viewer
	SuppressCloseMessage bool
	// Note is appended as a system message when the transition applies.
	Note string
}
