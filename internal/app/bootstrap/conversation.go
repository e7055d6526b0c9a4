package bootstrap

import (
	"github.com/redis/go-redis/v9"

	appconfig "github.com/crisos/crisos-core/internal/config"
	"github.com/crisos/crisos-core/internal/conversation"
	"github.com/crisos/crisos-core/internal/observability/metrics"
	"github.com/crisos/crisos-core/pkg/logging"
)

// BuildConversationEngine wires the turn engine. Without Redis the session
// state and turn locks live in process memory.
func BuildConversationEngine(cfg *appconfig.Config, redisClient *redis.Client, escalator conversation.Escalator, m *metrics.TriageMetrics, logger *logging.Logger) *conversation.Engine {
	if logger == nil {
		logger = logging.Default()
	}
	var (
		sessions conversation.SessionStore
		locker   conversation.TurnLocker
	)
	if redisClient != nil {
		sessions = conversation.NewRedisSessionStore(redisClient, cfg.ConversationStateTTL)
		locker = conversation.NewRedisTurnLocker(redisClient, cfg.TurnLockTTL)
		logger.Info("conversation state in redis", "ttl", cfg.ConversationStateTTL.String())
	} else {
		sessions = conversation.NewMemorySessionStore()
		locker = conversation.NewMemoryTurnLocker()
		logger.Warn("redis not configured; conversation state is in memory")
	}
	return conversation.NewEngine(sessions, locker, escalator, logger,
		conversation.WithMetrics(m),
		conversation.WithSummaryLimit(cfg.SummaryMaxMessages),
	)
}
