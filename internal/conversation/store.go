package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/crisos/crisos-core/internal/handoff"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultSessionTTL = 24 * time.Hour
	// maxTranscript bounds the stored transcript; summaries use the tail.
	maxTranscript = 50
)

// SessionStore persists sessions and their transcripts.
type SessionStore interface {
	// Load returns nil, nil for an unknown conversation.
	Load(ctx context.Context, conversationID string) (*Session, error)
	Save(ctx context.Context, conversationID string, session *Session) error
	AppendTranscript(ctx context.Context, conversationID string, entries ...handoff.TranscriptEntry) error
	Transcript(ctx context.Context, conversationID string) ([]handoff.TranscriptEntry, error)
}

// RedisSessionStore keeps sessions as JSON strings and transcripts as lists,
// both expiring after ttl of inactivity.
type RedisSessionStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisSessionStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("crisos.internal.conversation.sessions"),
	}
}

func sessionKey(id string) string {
	return fmt.Sprintf("conversation:%s:session", id)
}

func transcriptKey(id string) string {
	return fmt.Sprintf("conversation:%s:transcript", id)
}

func (s *RedisSessionStore) Load(ctx context.Context, conversationID string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_session")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, conversationID string, session *Session) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_session")
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal session: %w", err)
	}
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, sessionKey(conversationID), data, s.ttl)
	pipe.Expire(ctx, transcriptKey(conversationID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) AppendTranscript(ctx context.Context, conversationID string, entries ...handoff.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]any, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("conversation: marshal transcript entry: %w", err)
		}
		values = append(values, data)
	}
	key := transcriptKey(conversationID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, -maxTranscript, -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conversation: append transcript: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Transcript(ctx context.Context, conversationID string) ([]handoff.TranscriptEntry, error) {
	data, err := s.redis.LRange(ctx, transcriptKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: read transcript: %w", err)
	}
	entries := make([]handoff.TranscriptEntry, 0, len(data))
	for _, d := range data {
		var entry handoff.TranscriptEntry
		if err := json.Unmarshal([]byte(d), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// MemorySessionStore is the single-process store used without Redis. It does
// not expire sessions.
type MemorySessionStore struct {
	mu          sync.Mutex
	sessions    map[string][]byte
	transcripts map[string][]handoff.TranscriptEntry
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions:    make(map[string][]byte),
		transcripts: make(map[string][]handoff.TranscriptEntry),
	}
}

func (m *MemorySessionStore) Load(_ context.Context, conversationID string) (*Session, error) {
	m.mu.Lock()
	data, ok := m.sessions[conversationID]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode session: %w", err)
	}
	return &session, nil
}

func (m *MemorySessionStore) Save(_ context.Context, conversationID string, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal session: %w", err)
	}
	m.mu.Lock()
	m.sessions[conversationID] = data
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) AppendTranscript(_ context.Context, conversationID string, entries ...handoff.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.transcripts[conversationID], entries...)
	if len(list) > maxTranscript {
		list = list[len(list)-maxTranscript:]
	}
	m.transcripts[conversationID] = list
	return nil
}

func (m *MemorySessionStore) Transcript(_ context.Context, conversationID string) ([]handoff.TranscriptEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]handoff.TranscriptEntry(nil), m.transcripts[conversationID]...), nil
}
