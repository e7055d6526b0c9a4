package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crisos/crisos-core/internal/handoff"
	"github.com/crisos/crisos-core/internal/observability/metrics"
	"github.com/crisos/crisos-core/internal/triage"
	"github.com/crisos/crisos-core/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("crisos.internal.conversation")

// Escalator opens or refreshes the conversation's handoff request.
type Escalator interface {
	Escalate(ctx context.Context, in handoff.EscalationInput) (int64, error)
}

// Turn outcomes, used as the metrics label.
const (
	outcomeAsked     = "asked"
	outcomeNoFlow    = "no_flow"
	outcomeLowRisk   = "low_risk"
	outcomeEscalated = "escalated"
	outcomeFailed    = "escalation_failed"
)

// Engine handles conversation turns.
type Engine struct {
	sessions     SessionStore
	locker       TurnLocker
	escalator    Escalator
	metrics      *metrics.TriageMetrics
	logger       *logging.Logger
	summaryLimit int
	now          func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

func WithMetrics(m *metrics.TriageMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithSummaryLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.summaryLimit = n
		}
	}
}

func NewEngine(sessions SessionStore, locker TurnLocker, escalator Escalator, logger *logging.Logger, opts ...EngineOption) *Engine {
	if sessions == nil || locker == nil || escalator == nil {
		panic("conversation: sessions, locker and escalator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		sessions:     sessions,
		locker:       locker,
		escalator:    escalator,
		logger:       logger,
		summaryLimit: handoff.DefaultSummaryMessages,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleTurn applies one inbound message and decides the reply. When the
// escalation cannot be stored the result still carries the apology message
// and the error wraps ErrEscalationFailed.
func (e *Engine) HandleTurn(ctx context.Context, conversationID string, in TurnInput) (TurnResult, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return TurnResult{}, ErrMissingConversation
	}
	ctx, span := tracer.Start(ctx, "conversation.turn")
	defer span.End()
	span.SetAttributes(attribute.String("crisos.conversation_id", conversationID))
	started := e.now()

	release, err := e.locker.Acquire(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrConversationBusy) {
			e.metrics.ObserveBusy()
		}
		return TurnResult{}, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("turn lock release failed", "conversation_id", conversationID, "error", err)
		}
	}()

	session, err := e.sessions.Load(ctx, conversationID)
	if err != nil {
		return TurnResult{}, err
	}
	if session == nil {
		session = newSession()
	}
	if session.State == nil {
		session.State = triage.NewState()
	}
	applyTurn(session, in)

	state := session.State
	flow := triage.FlowFor(state.UserStatus)
	assessment := triage.Score(state)
	pending := triage.NextRequired(flow, state)

	result := TurnResult{
		ConversationID: conversationID,
		Flow:           flow.String(),
		Required:       pending,
		Next:           triage.Next(flow, state),
		Risk:           RiskView{Score: assessment.Score, Level: assessment.Level},
	}
	if result.Required == nil {
		result.Required = []string{}
	}

	var transcript []handoff.TranscriptEntry
	if text := strings.TrimSpace(in.Text); text != "" {
		transcript = append(transcript, handoff.TranscriptEntry{Sender: "user", Text: text})
	}

	outcome := outcomeAsked
	requested := strings.EqualFold(strings.TrimSpace(in.Intent), RequestOperatorIntent)
	complete := flow != triage.FlowNone && len(pending) == 0
	var escalateErr error

	switch {
	case requested || (complete && assessment.Level.Escalates()):
		// An operator request mid-interview escalates unscored.
		var scored *triage.Assessment
		if complete {
			scored = &assessment
		}
		var id int64
		id, escalateErr = e.escalate(ctx, conversationID, session, scored, transcript)
		if escalateErr != nil {
			outcome = outcomeFailed
			result.Messages = append(result.Messages, EscalationFailedText)
			break
		}
		outcome = outcomeEscalated
		// Level text only once the request is recorded.
		if complete {
			switch assessment.Level {
			case triage.LevelHigh:
				result.Messages = append(result.Messages, HighRiskText)
			case triage.LevelMedium:
				result.Messages = append(result.Messages, MediumRiskText)
			}
		}
		if session.RequestID == id {
			result.Messages = append(result.Messages, UpdatedText)
		} else {
			result.Messages = append(result.Messages, HandoffText)
		}
		session.RequestID = id
		result.Escalated = true
		result.RequestID = &id
	case complete:
		outcome = outcomeLowRisk
		result.Messages = append(result.Messages, LowRiskText)
	case flow == triage.FlowNone:
		outcome = outcomeNoFlow
		if state.UserStatus == triage.StatusSafe {
			result.Messages = append(result.Messages, SafeText)
		} else {
			result.Messages = append(result.Messages, AskStatusText)
		}
	default:
		result.Messages = append(result.Messages, PromptFor(result.Next))
	}

	for _, msg := range result.Messages {
		transcript = append(transcript, handoff.TranscriptEntry{Sender: "bot", Text: msg})
	}
	session.Turns++
	session.UpdatedAt = e.now().UTC()
	if err := e.sessions.AppendTranscript(ctx, conversationID, transcript...); err != nil {
		e.logger.Warn("transcript append failed", "conversation_id", conversationID, "error", err)
	}
	if err := e.sessions.Save(ctx, conversationID, session); err != nil {
		return TurnResult{}, err
	}

	e.metrics.ObserveAssessment(string(assessment.Level))
	e.metrics.ObserveTurn(flow.String(), outcome, e.now().Sub(started).Seconds())
	span.SetAttributes(
		attribute.String("crisos.flow", flow.String()),
		attribute.String("crisos.turn_outcome", outcome),
		attribute.Int("crisos.risk_score", assessment.Score),
	)
	e.logger.Debug("conversation turn handled",
		"conversation_id", conversationID,
		"flow", flow.String(),
		"outcome", outcome,
		"risk_score", assessment.Score,
		"pending", len(pending),
	)
	return result, escalateErr
}

func (e *Engine) escalate(ctx context.Context, conversationID string, session *Session, assessment *triage.Assessment, current []handoff.TranscriptEntry) (int64, error) {
	history, err := e.sessions.Transcript(ctx, conversationID)
	if err != nil {
		e.logger.Warn("transcript read failed", "conversation_id", conversationID, "error", err)
	}
	history = append(history, current...)

	state := session.State
	id, err := e.escalator.Escalate(ctx, handoff.EscalationInput{
		ConversationID: conversationID,
		Assessment:     assessment,
		CrisisType:     state.Category,
		UserStatus:     state.UserStatus,
		Channel:        state.Channel,
		Summary:        handoff.BuildSummary(state, assessment, history, session.coordinates(), e.summaryLimit),
	})
	if err != nil {
		e.logger.Error("escalation failed", "conversation_id", conversationID, "error", err)
		return 0, fmt.Errorf("%w: %w", ErrEscalationFailed, err)
	}
	return id, nil
}

// applyTurn folds the turn into the session. Intents set status and category;
// explicit facts win over intents.
func applyTurn(session *Session, in TurnInput) {
	state := session.State
	if status := triage.UserStatusFromIntent(in.Intent); status != triage.StatusUnknown {
		state.UserStatus = status
	}
	if category := triage.CategoryFromIntent(in.Intent); category.Known() {
		state.Category = category
	}
	for name, value := range in.Facts {
		if strings.TrimSpace(name) == "user_status" {
			if status := triage.ParseUserStatus(value); status != triage.StatusUnknown {
				state.UserStatus = status
			}
			continue
		}
		state.Set(name, value)
	}
	if text := strings.TrimSpace(in.Text); text != "" {
		state.LastText = text
	}
	if channel := strings.TrimSpace(in.Channel); channel != "" {
		state.Channel = channel
	}
	if in.Metadata.Valid() {
		loc := *in.Metadata
		session.Location = &loc
	}
}

// Snapshot is the read-only view of a stored conversation.
type Snapshot struct {
	ConversationID string        `json:"conversation_id"`
	State          *triage.State `json:"state"`
	Location       *Location     `json:"location,omitempty"`
	Flow           string        `json:"flow"`
	Required       []string      `json:"required"`
	Risk           RiskView      `json:"risk"`
	RequestID      *int64        `json:"request_id,omitempty"`
	Turns          int           `json:"turns"`
}

// Snapshot returns nil, nil for an unknown conversation.
func (e *Engine) Snapshot(ctx context.Context, conversationID string) (*Snapshot, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, ErrMissingConversation
	}
	session, err := e.sessions.Load(ctx, conversationID)
	if err != nil || session == nil {
		return nil, err
	}
	if session.State == nil {
		session.State = triage.NewState()
	}
	flow := triage.FlowFor(session.State.UserStatus)
	assessment := triage.Score(session.State)
	snap := &Snapshot{
		ConversationID: conversationID,
		State:          session.State,
		Location:       session.Location,
		Flow:           flow.String(),
		Required:       triage.NextRequired(flow, session.State),
		Risk:           RiskView{Score: assessment.Score, Level: assessment.Level},
		Turns:          session.Turns,
	}
	if snap.Required == nil {
		snap.Required = []string{}
	}
	if session.RequestID > 0 {
		id := session.RequestID
		snap.RequestID = &id
	}
	return snap, nil
}
