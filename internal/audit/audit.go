// Package audit keeps an append-only trail of operator actions: logins,
// password changes, and handoff claims and status changes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names an audited action.
type EventType string

const (
	EventLoginSucceeded  EventType = "operator.login_succeeded"
	EventLoginFailed     EventType = "operator.login_failed"
	EventPasswordChanged EventType = "operator.password_changed"
	EventHandoffClaimed  EventType = "handoff.claimed"
	EventHandoffStatus   EventType = "handoff.status_changed"
)

// Event is one immutable audit record.
type Event struct {
	ID        string          `json:"id"`
	EventType EventType       `json:"event_type"`
	Actor     string          `json:"actor,omitempty"`
	RequestID int64           `json:"request_id,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type statusDetails struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Service writes and reads audit_events.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// LogEvent records an event, filling in its id and timestamp when unset.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	var details any
	if len(event.Details) > 0 {
		details = []byte(event.Details)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, event_type, actor, request_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		event.ID,
		string(event.EventType),
		nullString(event.Actor),
		nullInt64(event.RequestID),
		details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: log %s: %w", event.EventType, err)
	}
	return nil
}

func (s *Service) OperatorLogin(ctx context.Context, username string, success bool) error {
	eventType := EventLoginFailed
	if success {
		eventType = EventLoginSucceeded
	}
	return s.LogEvent(ctx, Event{EventType: eventType, Actor: username})
}

func (s *Service) PasswordChanged(ctx context.Context, username string) error {
	return s.LogEvent(ctx, Event{EventType: EventPasswordChanged, Actor: username})
}

func (s *Service) HandoffClaimed(ctx context.Context, requestID int64, operator string) error {
	return s.LogEvent(ctx, Event{EventType: EventHandoffClaimed, Actor: operator, RequestID: requestID})
}

func (s *Service) HandoffStatusChanged(ctx context.Context, requestID int64, actor, from, to string) error {
	details, _ := json.Marshal(statusDetails{From: from, To: to})
	return s.LogEvent(ctx, Event{
		EventType: EventHandoffStatus,
		Actor:     actor,
		RequestID: requestID,
		Details:   details,
	})
}

// Filter narrows Query. Zero values match everything.
type Filter struct {
	Actor     string
	RequestID int64
	EventType EventType
	Since     time.Time
	Limit     int
}

// Query returns matching events, newest first.
func (s *Service) Query(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, actor, request_id, details, created_at
		FROM audit_events
		WHERE 1 = 1
	`
	var args []any
	if filter.Actor != "" {
		args = append(args, filter.Actor)
		query += fmt.Sprintf(" AND actor = $%d", len(args))
	}
	if filter.RequestID > 0 {
		args = append(args, filter.RequestID)
		query += fmt.Sprintf(" AND request_id = $%d", len(args))
	}
	if filter.EventType != "" {
		args = append(args, string(filter.EventType))
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var eventType string
		var actor sql.NullString
		var requestID sql.NullInt64
		var details []byte
		if err := rows.Scan(&e.ID, &eventType, &actor, &requestID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.EventType = EventType(eventType)
		e.Actor = actor.String
		e.RequestID = requestID.Int64
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: read events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v int64) sql.NullInt64 {
	if v <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
