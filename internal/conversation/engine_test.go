package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/crisos/crisos-core/internal/handoff"
	"github.com/crisos/crisos-core/internal/observability/metrics"
	"github.com/crisos/crisos-core/internal/triage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingEscalator struct{ err error }

func (f failingEscalator) Escalate(context.Context, handoff.EscalationInput) (int64, error) {
	return 0, f.err
}

func newTestEngine(t *testing.T) (*Engine, *handoff.MemoryStore, *MemorySessionStore) {
	t.Helper()
	store := handoff.NewMemoryStore()
	sessions := NewMemorySessionStore()
	engine := NewEngine(sessions, NewMemoryTurnLocker(), handoff.NewCoordinator(store, nil), nil)
	return engine, store, sessions
}

func TestEngine_InjuredWithLocationEscalatesMedium(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.HandleTurn(ctx, "berlin-1", TurnInput{
		Intent: "report_emergency",
		Facts:  map[string]string{"need_medical": "injured", "location": "Berlin"},
		Text:   "my friend is hurt",
	})
	require.NoError(t, err)
	assert.Equal(t, 45, result.Risk.Score)
	assert.Equal(t, triage.LevelMedium, result.Risk.Level)
	assert.Empty(t, result.Required)
	assert.True(t, result.Escalated)
	require.NotNil(t, result.RequestID)
	assert.Equal(t, []string{MediumRiskText, HandoffText}, result.Messages)

	req, err := store.Active(ctx, "berlin-1")
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, *result.RequestID, req.ID)
	assert.Equal(t, 45, *req.RiskScore)
	assert.Contains(t, string(req.Summary), `"location":"Berlin"`)
	assert.Contains(t, string(req.Summary), `"my friend is hurt"`)
}

func TestEngine_AsksNextQuestionInOrder(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.HandleTurn(ctx, "c2", TurnInput{Intent: "report_emergency"})
	require.NoError(t, err)
	assert.Equal(t, "emergency", result.Flow)
	assert.Equal(t, []string{triage.FactNeedMedical}, result.Required)
	assert.Equal(t, []string{PromptFor(triage.FactNeedMedical)}, result.Messages)

	result, err = engine.HandleTurn(ctx, "c2", TurnInput{Facts: map[string]string{"need_medical": "none", "location": "Köln"}})
	require.NoError(t, err)
	assert.Equal(t, triage.FactPersonCount, result.Next)
	assert.False(t, result.Escalated)

	result, err = engine.HandleTurn(ctx, "c2", TurnInput{Facts: map[string]string{"person_count": "lots"}})
	require.NoError(t, err)
	assert.Equal(t, triage.FactPersonCount, result.Next, "unparseable count is asked again")

	result, err = engine.HandleTurn(ctx, "c2", TurnInput{Facts: map[string]string{"person_count": "2"}})
	require.NoError(t, err)
	assert.Empty(t, result.Required)
	assert.Equal(t, triage.LevelLow, result.Risk.Level)
	assert.Equal(t, []string{LowRiskText}, result.Messages)

	req, err := store.Active(ctx, "c2")
	require.NoError(t, err)
	assert.Nil(t, req, "low risk does not escalate")
}

func TestEngine_TrappedEarlyExitEscalatesHigh(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.HandleTurn(ctx, "t1", TurnInput{
		Intent: "report_trapped",
		Facts:  map[string]string{"need_medical": "critical"},
	})
	require.NoError(t, err)
	assert.Equal(t, "trapped", result.Flow)
	assert.Empty(t, result.Required)
	assert.Equal(t, triage.LevelHigh, result.Risk.Level)
	assert.Equal(t, []string{HighRiskText, HandoffText}, result.Messages)

	req, err := store.Active(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "trapped_safe", req.UserStatus)
}

func TestEngine_RefreshKeepsOneRequest(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.HandleTurn(ctx, "r1", TurnInput{
		Intent: "report_emergency",
		Facts:  map[string]string{"need_medical": "critical"},
	})
	require.NoError(t, err)
	second, err := engine.HandleTurn(ctx, "r1", TurnInput{Facts: map[string]string{"location": "Dresden"}})
	require.NoError(t, err)

	require.NotNil(t, second.RequestID)
	assert.Equal(t, *first.RequestID, *second.RequestID)
	assert.Contains(t, second.Messages, UpdatedText)

	all, err := store.List(ctx, handoff.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEngine_OperatorRequestMidInterviewIsUnscored(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "op1", TurnInput{Intent: "report_emergency"})
	require.NoError(t, err)
	result, err := engine.HandleTurn(ctx, "op1", TurnInput{Intent: RequestOperatorIntent, Text: "I need a person"})
	require.NoError(t, err)
	assert.True(t, result.Escalated)

	req, err := store.Active(ctx, "op1")
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Nil(t, req.RiskScore)
	assert.Equal(t, 90, req.Priority())
}

func TestEngine_EscalationFailureIsReported(t *testing.T) {
	sessions := NewMemorySessionStore()
	boom := errors.New("db down")
	reg := prometheus.NewRegistry()
	m := metrics.NewTriageMetrics(reg)
	engine := NewEngine(sessions, NewMemoryTurnLocker(), failingEscalator{err: boom}, nil, WithMetrics(m))
	ctx := context.Background()

	result, err := engine.HandleTurn(ctx, "f1", TurnInput{
		Intent: "report_emergency",
		Facts:  map[string]string{"need_medical": "critical"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEscalationFailed)
	assert.ErrorIs(t, err, boom)
	assert.False(t, result.Escalated)
	assert.Contains(t, result.Messages, EscalationFailedText)
	assert.NotContains(t, result.Messages, HandoffText)

	session, err := sessions.Load(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, session)
	value, _ := session.State.Fact(triage.FactNeedMedical)
	assert.Equal(t, "critical", value, "facts survive a failed escalation")
	expected := `
# HELP crisos_triage_turns_total Total conversation turns processed
# TYPE crisos_triage_turns_total counter
crisos_triage_turns_total{flow="emergency",outcome="escalation_failed"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "crisos_triage_turns_total"))
}

func TestEngine_MediumRiskFailureMakesNoHandoverPromise(t *testing.T) {
	sessions := NewMemorySessionStore()
	engine := NewEngine(sessions, NewMemoryTurnLocker(), failingEscalator{err: errors.New("db down")}, nil)

	result, err := engine.HandleTurn(context.Background(), "berlin-2", TurnInput{
		Intent: "report_emergency",
		Facts:  map[string]string{"need_medical": "injured", "location": "Berlin"},
	})
	require.ErrorIs(t, err, ErrEscalationFailed)
	assert.Equal(t, triage.LevelMedium, result.Risk.Level)
	assert.False(t, result.Escalated)
	assert.Nil(t, result.RequestID)
	assert.NotContains(t, result.Messages, MediumRiskText)
	assert.NotContains(t, result.Messages, HandoffText)
	assert.Equal(t, []string{EscalationFailedText}, result.Messages)
}

func TestEngine_BusyConversation(t *testing.T) {
	locker := NewMemoryTurnLocker()
	engine := NewEngine(NewMemorySessionStore(), locker, failingEscalator{}, nil)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "busy")
	require.NoError(t, err)
	_, err = engine.HandleTurn(ctx, "busy", TurnInput{Intent: "report_safe"})
	assert.ErrorIs(t, err, ErrConversationBusy)

	require.NoError(t, release(ctx))
	result, err := engine.HandleTurn(ctx, "busy", TurnInput{Intent: "report_safe"})
	require.NoError(t, err)
	assert.Equal(t, []string{SafeText}, result.Messages)
}

func TestEngine_NoStatusAsksForIt(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	result, err := engine.HandleTurn(context.Background(), "n1", TurnInput{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "none", result.Flow)
	assert.Equal(t, []string{AskStatusText}, result.Messages)

	_, err = engine.HandleTurn(context.Background(), " ", TurnInput{})
	assert.ErrorIs(t, err, ErrMissingConversation)
}

func TestEngine_SnapshotAndLocation(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	snap, err := engine.Snapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	_, err = engine.HandleTurn(ctx, "s1", TurnInput{
		Intent:   "report_flood",
		Facts:    map[string]string{"user_status": "trapped_safe", "location": "Passau"},
		Metadata: &Location{Lat: 48.57, Lon: 13.43},
	})
	require.NoError(t, err)

	snap, err = engine.Snapshot(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, triage.CategoryFlood, snap.State.Category)
	assert.Equal(t, "trapped", snap.Flow)
	assert.Equal(t, []string{triage.FactNeedMedical, triage.FactPersonCount, triage.FactWaterLevel, triage.FactHazardType}, snap.Required)
	require.NotNil(t, snap.Location)
	assert.InDelta(t, 48.57, snap.Location.Lat, 0.001)
	assert.Equal(t, 1, snap.Turns)

	_, err = engine.HandleTurn(ctx, "s1", TurnInput{Intent: RequestOperatorIntent})
	require.NoError(t, err)
	req, err := store.Active(ctx, "s1")
	require.NoError(t, err)
	assert.Contains(t, string(req.Summary), `"lat":48.57`)
}

func TestLocation_Valid(t *testing.T) {
	assert.False(t, (*Location)(nil).Valid())
	assert.False(t, (&Location{}).Valid())
	assert.False(t, (&Location{Lat: 91, Lon: 10}).Valid())
	assert.True(t, (&Location{Lat: -33.9, Lon: 151.2}).Valid())
}
