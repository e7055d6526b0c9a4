package handoff

import (
	"context"
	"errors"
	"testing"

	"github.com/crisos/crisos-core/internal/observability/metrics"
	"github.com/crisos/crisos-core/internal/triage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAlerter struct {
	requests []Request
	err      error
}

func (a *recordingAlerter) NotifyHighRisk(_ context.Context, req Request) error {
	a.requests = append(a.requests, req)
	return a.err
}

type failingStore struct {
	Store
	err error
}

func (f failingStore) Escalate(context.Context, EscalationRecord) (EscalationOutcome, error) {
	return EscalationOutcome{}, f.err
}

func TestCoordinator_EscalateCreatesThenRefreshes(t *testing.T) {
	store := NewMemoryStore()
	alerter := &recordingAlerter{}
	coord := NewCoordinator(store, nil,
		WithAlerter(alerter),
		WithCoordinatorMetrics(metrics.NewHandoffMetrics(prometheus.NewRegistry())),
	)
	ctx := context.Background()

	high := triage.Assessment{Score: 85, Level: triage.LevelHigh}
	id, err := coord.Escalate(ctx, EscalationInput{
		ConversationID: "conv-9",
		Assessment:     &high,
		CrisisType:     triage.CategoryFlood,
		UserStatus:     triage.StatusTrapped,
		Channel:        "web",
	})
	require.NoError(t, err)
	require.Len(t, alerter.requests, 1)
	assert.Equal(t, id, alerter.requests[0].ID)

	higher := triage.Assessment{Score: 120, Level: triage.LevelHigh}
	again, err := coord.Escalate(ctx, EscalationInput{
		ConversationID: "conv-9",
		Assessment:     &higher,
		CrisisType:     triage.CategoryFlood,
		UserStatus:     triage.StatusTrapped,
	})
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Len(t, alerter.requests, 1, "refresh does not alert again")

	req, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 120, *req.RiskScore)
	assert.Equal(t, "flood", *req.CrisisType)
	assert.Equal(t, "trapped_safe", req.UserStatus)
}

func TestCoordinator_MediumDoesNotAlert(t *testing.T) {
	alerter := &recordingAlerter{}
	coord := NewCoordinator(NewMemoryStore(), nil, WithAlerter(alerter))
	medium := triage.Assessment{Score: 45, Level: triage.LevelMedium}

	_, err := coord.Escalate(context.Background(), EscalationInput{ConversationID: "m", Assessment: &medium})
	require.NoError(t, err)
	assert.Empty(t, alerter.requests)
}

func TestCoordinator_AlertFailureDoesNotFailEscalation(t *testing.T) {
	alerter := &recordingAlerter{err: errors.New("smtp down")}
	coord := NewCoordinator(NewMemoryStore(), nil, WithAlerter(alerter))
	high := triage.Assessment{Score: 90, Level: triage.LevelHigh}

	id, err := coord.Escalate(context.Background(), EscalationInput{ConversationID: "h", Assessment: &high})
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, alerter.requests, 1)
}

func TestCoordinator_UnscoredEmergencyStoresNullRisk(t *testing.T) {
	store := NewMemoryStore()
	coord := NewCoordinator(store, nil)

	id, err := coord.Escalate(context.Background(), EscalationInput{ConversationID: "e", UserStatus: triage.StatusEmergency})
	require.NoError(t, err)
	req, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, req.RiskScore)
	assert.Nil(t, req.CrisisType)
	assert.Equal(t, 90, req.Priority())
}

func TestCoordinator_PersistenceFailureIsReturned(t *testing.T) {
	boom := errors.New("connection refused")
	coord := NewCoordinator(failingStore{err: boom}, nil)

	_, err := coord.Escalate(context.Background(), EscalationInput{ConversationID: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
