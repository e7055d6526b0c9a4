package handoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crisos/crisos-core/internal/observability/metrics"
	"github.com/crisos/crisos-core/pkg/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Queue is the operator-facing side of handoff: listing, claiming, status
// changes and the request chat.
type Queue struct {
	store   Store
	metrics *metrics.HandoffMetrics
	audit   AuditTrail
	archive Archiver
	logger  *logging.Logger
}

// AuditTrail records operator actions on requests. Failures are logged only.
type AuditTrail interface {
	HandoffClaimed(ctx context.Context, requestID int64, operator string) error
	HandoffStatusChanged(ctx context.Context, requestID int64, actor, from, to string) error
}

// Archiver stores a request and its chat once it is closed. Failures are
// logged only.
type Archiver interface {
	ArchiveRequest(ctx context.Context, req Request, msgs []Message) error
}

// QueueOption customizes a Queue.
type QueueOption func(*Queue)

func WithAuditTrail(a AuditTrail) QueueOption {
	return func(q *Queue) { q.audit = a }
}

func WithArchiver(a Archiver) QueueOption {
	return func(q *Queue) { q.archive = a }
}

func NewQueue(store Store, m *metrics.HandoffMetrics, logger *logging.Logger, opts ...QueueOption) *Queue {
	if store == nil {
		panic("handoff: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	q := &Queue{store: store, metrics: m, logger: logger}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// List returns requests in queue order, scoped to the filter's viewer.
func (q *Queue) List(ctx context.Context, filter ListFilter) ([]Request, error) {
	started := time.Now()
	requests, err := q.store.List(ctx, filter)
	q.metrics.ObserveList(time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}
	if requests == nil {
		requests = []Request{}
	}
	return requests, nil
}

func (q *Queue) Get(ctx context.Context, id int64) (*Request, error) {
	return q.store.Get(ctx, id)
}

// Active returns the conversation's open or assigned request, or nil.
func (q *Queue) Active(ctx context.Context, conversationID string) (*Request, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, ErrMissingConversation
	}
	return q.store.Active(ctx, conversationID)
}

// Claim lets operator take an unassigned request. Losing a race is not an
// error; it is reported as ClaimAlreadyAssigned.
func (q *Queue) Claim(ctx context.Context, id int64, operator string) (ClaimResult, error) {
	ctx, span := tracer.Start(ctx, "handoff.claim")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("crisos.request_id", id),
		attribute.String("crisos.operator", operator),
	)

	operator = strings.TrimSpace(operator)
	if operator == "" {
		return ClaimAlreadyAssigned, fmt.Errorf("handoff: claim: %w", ErrInvalidTransition)
	}
	result, err := q.store.Claim(ctx, id, operator)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return result, err
	}
	span.SetAttributes(attribute.String("crisos.claim_result", result.String()))
	q.metrics.ObserveClaim(result.String())
	if result == ClaimClaimed {
		q.logger.Info("handoff request claimed", "request_id", id, "operator", operator)
		if q.audit != nil {
			if err := q.audit.HandoffClaimed(ctx, id, operator); err != nil {
				q.logger.Warn("audit claim failed", "request_id", id, "error", err)
			}
		}
	}
	return result, nil
}

// SetStatus applies a status transition for actor. A non-admin move to
// assigned goes through the same conditional claim as Claim.
func (q *Queue) SetStatus(ctx context.Context, id int64, change StatusChange) (*Request, error) {
	ctx, span := tracer.Start(ctx, "handoff.set_status")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("crisos.request_id", id),
		attribute.String("crisos.status", string(change.Status)),
	)

	if change.Status == StatusAssigned && !change.Actor.Admin {
		result, err := q.Claim(ctx, id, change.Actor.Username)
		if err != nil {
			return nil, err
		}
		switch result {
		case ClaimAlreadyAssigned:
			return nil, ErrAssignedToOther
		case ClaimClosed:
			return nil, ErrInvalidTransition
		}
		if result == ClaimClaimed {
			q.metrics.ObserveStatusChange(string(StatusAssigned))
		}
		return q.store.Get(ctx, id)
	}

	update, err := q.store.SetStatus(ctx, id, change)
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrAssignedToOther) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "status change failed")
		}
		return nil, err
	}
	req := update.Request
	if update.Changed() {
		q.metrics.ObserveStatusChange(string(req.Status))
		q.logger.Info("handoff status changed",
			"request_id", id,
			"from", update.PreviousStatus,
			"to", req.Status,
			"actor", change.Actor.Username,
		)
		if q.audit != nil {
			if err := q.audit.HandoffStatusChanged(ctx, id, change.Actor.Username, string(update.PreviousStatus), string(req.Status)); err != nil {
				q.logger.Warn("audit status change failed", "request_id", id, "error", err)
			}
		}
		if req.Status == StatusClosed {
			q.archiveClosed(ctx, *req)
		}
	}
	return req, nil
}

func (q *Queue) archiveClosed(ctx context.Context, req Request) {
	if q.archive == nil {
		return
	}
	msgs, err := q.store.Messages(ctx, req.ID, 0)
	if err != nil {
		q.logger.Warn("archive read failed", "request_id", req.ID, "error", err)
		return
	}
	if err := q.archive.ArchiveRequest(ctx, req, msgs); err != nil {
		q.logger.Warn("archive failed", "request_id", req.ID, "error", err)
	}
}

// Leave closes the request on the user's behalf and records that they left.
func (q *Queue) Leave(ctx context.Context, id int64) (*Request, error) {
	return q.SetStatus(ctx, id, StatusChange{Status: StatusClosed, Note: UserLeftText})
}

// PostInput is a chat message posted to a request.
type PostInput struct {
	RequestID int64
	Sender    Sender
	Text      string
	Actor     Viewer
}

// PostMessage appends a chat message. An agent message on an unassigned
// request claims it for the actor first; one on a request held by another
// operator is refused unless the actor is an admin. A user "/leave" closes
// the request.
func (q *Queue) PostMessage(ctx context.Context, in PostInput) (Message, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	switch in.Sender {
	case SenderUser:
		if strings.EqualFold(text, LeaveCommand) {
			return q.leaveMessage(ctx, in.RequestID)
		}
	case SenderSystem:
	case SenderAgent:
		if in.Actor.Username == "" {
			return Message{}, fmt.Errorf("%w: agent messages require an operator", ErrInvalidSender)
		}
		if err := q.ensureAgentMayPost(ctx, in.RequestID, in.Actor); err != nil {
			return Message{}, err
		}
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidSender, in.Sender)
	}

	return q.store.AppendMessage(ctx, in.RequestID, in.Sender, in.Text)
}

func (q *Queue) ensureAgentMayPost(ctx context.Context, id int64, actor Viewer) error {
	req, err := q.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if req.Status == StatusClosed && !actor.Admin {
		return fmt.Errorf("%w: request is closed", ErrInvalidTransition)
	}
	assignee := req.Assignee()
	if assignee == "" && req.Status != StatusClosed {
		result, err := q.Claim(ctx, id, actor.Username)
		if err != nil {
			return err
		}
		if result != ClaimAlreadyAssigned {
			return nil
		}
		if req, err = q.store.Get(ctx, id); err != nil {
			return err
		}
		assignee = req.Assignee()
	}
	if assignee != "" && assignee != actor.Username && !actor.Admin {
		return ErrAssignedToOther
	}
	return nil
}

func (q *Queue) leaveMessage(ctx context.Context, id int64) (Message, error) {
	req, err := q.Leave(ctx, id)
	if err != nil {
		return Message{}, err
	}
	msg := Message{RequestID: id, Sender: SenderSystem, Text: UserLeftText}
	if latest, err := q.store.Get(ctx, id); err == nil && latest.LastMessageID != nil {
		msg.ID = *latest.LastMessageID
		if latest.LastMessageAt != nil {
			msg.CreatedAt = *latest.LastMessageAt
		}
	}
	q.logger.Info("user left handoff chat", "request_id", id, "conversation_id", req.ConversationID)
	return msg, nil
}

// Messages returns the chat after afterID in id order.
func (q *Queue) Messages(ctx context.Context, requestID, afterID int64) ([]Message, error) {
	if afterID < 0 {
		afterID = 0
	}
	msgs, err := q.store.Messages(ctx, requestID, afterID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}
