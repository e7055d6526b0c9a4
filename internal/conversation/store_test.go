package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/crisos/crisos-core/internal/handoff"
	"github.com/crisos/crisos-core/internal/triage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisSessionStore_RoundTrip(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewRedisSessionStore(client, time.Hour)
	ctx := context.Background()

	got, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	session := newSession()
	session.State.Set(triage.FactLocation, "Athens")
	session.State.Category = triage.CategoryWildfire
	session.State.UserStatus = triage.StatusTrapped
	session.Location = &Location{Lat: 37.98, Lon: 23.72}
	session.RequestID = 12
	require.NoError(t, store.Save(ctx, "c1", session))

	got, err = store.Load(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, triage.CategoryWildfire, got.State.Category)
	assert.Equal(t, triage.StatusTrapped, got.State.UserStatus)
	value, _ := got.State.Fact(triage.FactLocation)
	assert.Equal(t, "Athens", value)
	assert.Equal(t, int64(12), got.RequestID)

	assert.Equal(t, time.Hour, mr.TTL(sessionKey("c1")))
	mr.FastForward(2 * time.Hour)
	got, err = store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got, "session expires after ttl")
}

func TestRedisSessionStore_TranscriptIsBounded(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewRedisSessionStore(client, time.Hour)
	ctx := context.Background()

	for i := 0; i < maxTranscript+5; i++ {
		require.NoError(t, store.AppendTranscript(ctx, "c2", handoff.TranscriptEntry{Sender: "user", Text: fmt.Sprintf("m%d", i)}))
	}
	require.NoError(t, store.AppendTranscript(ctx, "c2"))

	entries, err := store.Transcript(ctx, "c2")
	require.NoError(t, err)
	require.Len(t, entries, maxTranscript)
	assert.Equal(t, "m5", entries[0].Text)
	assert.Equal(t, fmt.Sprintf("m%d", maxTranscript+4), entries[len(entries)-1].Text)
	assert.Equal(t, time.Hour, mr.TTL(transcriptKey("c2")))
}

func TestRedisSessionStore_LoadError(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewRedisSessionStore(client, time.Hour)
	mr.SetError("READONLY")

	_, err := store.Load(context.Background(), "c3")
	assert.Error(t, err)
}

func TestRedisSessionStore_DrivesEngine(t *testing.T) {
	_, client := newMiniredis(t)
	store := handoff.NewMemoryStore()
	engine := NewEngine(
		NewRedisSessionStore(client, time.Hour),
		NewRedisTurnLocker(client, time.Second),
		handoff.NewCoordinator(store, nil),
		nil,
	)
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "redis-1", TurnInput{Intent: "report_emergency", Text: "help"})
	require.NoError(t, err)
	result, err := engine.HandleTurn(ctx, "redis-1", TurnInput{Facts: map[string]string{"need_medical": "critical"}, Text: "critical"})
	require.NoError(t, err)
	assert.True(t, result.Escalated)

	req, err := store.Active(ctx, "redis-1")
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Contains(t, string(req.Summary), PromptFor(triage.FactNeedMedical), "earlier bot turns reach the summary")
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	session := newSession()
	session.State.Set(triage.FactPersonCount, "3")
	require.NoError(t, store.Save(ctx, "m1", session))
	session.State.Set(triage.FactPersonCount, "9")

	got, err := store.Load(ctx, "m1")
	require.NoError(t, err)
	count, ok := got.State.PersonCount()
	require.True(t, ok)
	assert.Equal(t, 3, count, "saved sessions are copies")

	require.NoError(t, store.AppendTranscript(ctx, "m1", handoff.TranscriptEntry{Sender: "bot", Text: "hi"}))
	entries, err := store.Transcript(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
