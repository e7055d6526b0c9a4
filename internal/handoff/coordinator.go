package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crisos/crisos-core/internal/observability/metrics"
	"github.com/crisos/crisos-core/internal/triage"
	"github.com/crisos/crisos-core/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("crisos.internal.handoff")

// Alerter is told about newly created high-risk requests.
type Alerter interface {
	NotifyHighRisk(ctx context.Context, req Request) error
}

// EscalationInput is what a conversation turn hands to the coordinator.
type EscalationInput struct {
	ConversationID string
	Assessment     *triage.Assessment
	CrisisType     triage.CrisisCategory
	UserStatus     triage.UserStatus
	Channel        string
	Summary        json.RawMessage
}

// Coordinator opens or refreshes the one active handoff request per conversation.
type Coordinator struct {
	store   Store
	alerter Alerter
	metrics *metrics.HandoffMetrics
	logger  *logging.Logger
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

func WithAlerter(alerter Alerter) CoordinatorOption {
	return func(c *Coordinator) { c.alerter = alerter }
}

func WithCoordinatorMetrics(m *metrics.HandoffMetrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

func NewCoordinator(store Store, logger *logging.Logger, opts ...CoordinatorOption) *Coordinator {
	if store == nil {
		panic("handoff: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Coordinator{store: store, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Escalate records the escalation and returns the request id. A failure is
// returned to the caller; the conversation must not confirm a handoff then.
func (c *Coordinator) Escalate(ctx context.Context, in EscalationInput) (int64, error) {
	ctx, span := tracer.Start(ctx, "handoff.escalate")
	defer span.End()

	conversationID := strings.TrimSpace(in.ConversationID)
	span.SetAttributes(
		attribute.String("crisos.conversation_id", conversationID),
		attribute.String("crisos.crisis_type", in.CrisisType.String()),
		attribute.String("crisos.user_status", string(in.UserStatus)),
	)

	rec := EscalationRecord{
		ConversationID: conversationID,
		UserStatus:     string(in.UserStatus),
		Channel:        in.Channel,
		Summary:        in.Summary,
	}
	if in.Assessment != nil {
		score := in.Assessment.Score
		rec.RiskScore = &score
		span.SetAttributes(
			attribute.Int("crisos.risk_score", score),
			attribute.String("crisos.risk_level", string(in.Assessment.Level)),
		)
	}
	if in.CrisisType.Known() {
		crisis := in.CrisisType.String()
		rec.CrisisType = &crisis
	}

	outcome, err := c.store.Escalate(ctx, rec)
	if err != nil {
		c.metrics.ObserveEscalation("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "escalation failed")
		c.logger.Error("handoff escalation failed", "conversation_id", conversationID, "error", err)
		return 0, fmt.Errorf("handoff: escalate conversation %s: %w", conversationID, err)
	}
	span.SetAttributes(attribute.Int64("crisos.request_id", outcome.RequestID))

	if len(outcome.Superseded) > 0 {
		c.logger.Warn("closed duplicate active handoff requests",
			"conversation_id", conversationID,
			"request_id", outcome.RequestID,
			"closed_ids", outcome.Superseded,
		)
	}

	label := "refreshed"
	if outcome.Created {
		label = "created"
	}
	c.metrics.ObserveEscalation(label)
	c.logger.Info("handoff escalation recorded",
		"conversation_id", conversationID,
		"request_id", outcome.RequestID,
		"outcome", label,
		"risk_score", rec.RiskScore,
	)

	if outcome.Created && in.Assessment != nil && in.Assessment.Level == triage.LevelHigh {
		c.alert(ctx, outcome.RequestID)
	}
	return outcome.RequestID, nil
}

func (c *Coordinator) alert(ctx context.Context, requestID int64) {
	if c.alerter == nil {
		return
	}
	req, err := c.store.Get(ctx, requestID)
	if err != nil {
		c.logger.Warn("load request for operator alert failed", "request_id", requestID, "error", err)
		return
	}
	if err := c.alerter.NotifyHighRisk(ctx, *req); err != nil {
		c.metrics.ObserveAlert("failed")
		c.logger.Warn("operator alert failed", "request_id", requestID, "error", err)
		return
	}
	c.metrics.ObserveAlert("sent")
}
