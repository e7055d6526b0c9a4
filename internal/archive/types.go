package archive

import (
	"encoding/json"
	"time"
)

// RecordVersion is the layout version written with every archived request.
const RecordVersion = "1.0"

// RequestRecord is a closed handoff request as archived to S3.
type RequestRecord struct {
	Version         string          `json:"version"`
	RequestID       int64           `json:"request_id"`
	ConversationID  string          `json:"conversation_id"`
	CrisisType      string          `json:"crisis_type,omitempty"`
	UserStatus      string          `json:"user_status,omitempty"`
	Channel         string          `json:"channel,omitempty"`
	RiskScore       *int            `json:"risk_score"`
	Priority        int             `json:"priority"`
	AssignedTo      string          `json:"assigned_to,omitempty"`
	OpenedAt        time.Time       `json:"opened_at"`
	ArchivedAt      time.Time       `json:"archived_at"`
	DurationSeconds int             `json:"duration_seconds"`
	MessageCount    int             `json:"message_count"`
	Summary         json.RawMessage `json:"summary,omitempty"`
	Messages        []Message       `json:"messages"`
}

// Message is a single chat entry.
type Message struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	RequestID      int64  `json:"request_id"`
	ConversationID string `json:"conversation_id"`
	S3Key          string `json:"s3_key"`
	CrisisType     string `json:"crisis_type,omitempty"`
	Priority       int    `json:"priority"`
	AssignedTo     string `json:"assigned_to,omitempty"`
	ArchivedAt     string `json:"archived_at"`
	MessageCount   int    `json:"message_count"`
}
