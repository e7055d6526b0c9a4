package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTurnLockTTL = 30 * time.Second

// ReleaseFunc gives a turn lock back.
type ReleaseFunc func(ctx context.Context) error

// TurnLocker serializes turns of one conversation. Acquire fails fast with
// ErrConversationBusy instead of waiting.
type TurnLocker interface {
	Acquire(ctx context.Context, conversationID string) (ReleaseFunc, error)
}

// releaseScript deletes the lock only while it still holds our token, so an
// expired lock taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTurnLocker holds one SET NX PX key per active turn.
type RedisTurnLocker struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisTurnLocker(client *redis.Client, ttl time.Duration) *RedisTurnLocker {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultTurnLockTTL
	}
	return &RedisTurnLocker{redis: client, ttl: ttl}
}

func lockKey(id string) string {
	return fmt.Sprintf("conversation:%s:turn_lock", id)
}

func (l *RedisTurnLocker) Acquire(ctx context.Context, conversationID string) (ReleaseFunc, error) {
	token := uuid.NewString()
	key := lockKey(conversationID)
	ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: acquire turn lock: %w", err)
	}
	if !ok {
		return nil, ErrConversationBusy
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.redis, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("conversation: release turn lock: %w", err)
		}
		return nil
	}, nil
}

// MemoryTurnLocker is the in-process equivalent for single-replica runs.
type MemoryTurnLocker struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewMemoryTurnLocker() *MemoryTurnLocker {
	return &MemoryTurnLocker{active: make(map[string]struct{})}
}

func (l *MemoryTurnLocker) Acquire(_ context.Context, conversationID string) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.active[conversationID]; busy {
		return nil, ErrConversationBusy
	}
	l.active[conversationID] = struct{}{}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, conversationID)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
