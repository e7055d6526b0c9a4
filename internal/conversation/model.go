// Package conversation runs one triage turn at a time for a conversation:
// it folds the collaborator's intent and facts into the stored state, scores
// it, asks the next question and escalates to a human when the interview is
// done and the risk warrants it.
package conversation

import (
	"time"

	"github.com/crisos/crisos-core/internal/handoff"
	"github.com/crisos/crisos-core/internal/triage"
)

// RequestOperatorIntent asks for a human regardless of the interview state.
const RequestOperatorIntent = "request_operator"

// Location is the position the chat client attached to a turn.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid rejects out-of-range pairs and the 0,0 placeholder some clients send.
func (l *Location) Valid() bool {
	if l == nil {
		return false
	}
	if l.Lat == 0 && l.Lon == 0 {
		return false
	}
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

// TurnInput is one inbound message after NLU.
type TurnInput struct {
	Intent   string            `json:"intent"`
	Facts    map[string]string `json:"facts"`
	Text     string            `json:"text"`
	Channel  string            `json:"channel"`
	Metadata *Location         `json:"metadata,omitempty"`
}

// RiskView is the public part of an assessment.
type RiskView struct {
	Score int          `json:"score"`
	Level triage.Level `json:"level"`
}

// TurnResult is what the chat client shows and what it should ask next.
type TurnResult struct {
	ConversationID string   `json:"conversation_id"`
	Flow           string   `json:"flow"`
	Messages       []string `json:"messages"`
	Required       []string `json:"required"`
	Next           string   `json:"next,omitempty"`
	Risk           RiskView `json:"risk"`
	Escalated      bool     `json:"escalated"`
	RequestID      *int64   `json:"request_id,omitempty"`
}

// Session is the stored per-conversation state.
type Session struct {
	State     *triage.State `json:"state"`
	Location  *Location     `json:"location,omitempty"`
	RequestID int64         `json:"request_id,omitempty"`
	Turns     int           `json:"turns"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func newSession() *Session {
	return &Session{State: triage.NewState()}
}

func (s *Session) coordinates() *handoff.Coordinates {
	if !s.Location.Valid() {
		return nil
	}
	return &handoff.Coordinates{Lat: s.Location.Lat, Lon: s.Location.Lon}
}
