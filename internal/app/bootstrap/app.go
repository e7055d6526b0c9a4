package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/crisos/crisos-core/internal/api/router"
	"github.com/crisos/crisos-core/internal/audit"
	appconfig "github.com/crisos/crisos-core/internal/config"
	"github.com/crisos/crisos-core/internal/conversation"
	"github.com/crisos/crisos-core/internal/handoff"
	httpmiddleware "github.com/crisos/crisos-core/internal/http/middleware"
	"github.com/crisos/crisos-core/internal/observability/metrics"
	"github.com/crisos/crisos-core/internal/operators"
	"github.com/crisos/crisos-core/internal/webchat"
	"github.com/crisos/crisos-core/pkg/logging"
)

// App is the assembled API process.
type App struct {
	Handler   http.Handler
	Operators *operators.Service

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// BuildApp wires every component from cfg. With USE_MEMORY_STORE the handoff
// queue and operator accounts live in memory and the audit trail is off.
func BuildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg *prometheus.Registry) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	app := &App{}
	deps := map[string]router.Pinger{}

	var (
		handoffStore  handoff.Store
		operatorStore operators.Store
		auditService  *audit.Service
	)
	if cfg.UseMemoryStore {
		logger.Warn("USE_MEMORY_STORE set; handoff requests and operators are not persisted")
		handoffStore = handoff.NewMemoryStore()
		operatorStore = operators.NewMemoryStore()
	} else {
		pool, sqlDB, err := BuildDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, pool.Close, func() { _ = sqlDB.Close() })
		deps["postgres"] = router.PingFunc(pool.Ping)

		handoffStore = handoff.NewPostgresStore(pool)
		operatorStore = operators.NewSQLStore(sqlDB)
		auditService = audit.NewService(sqlDB)
	}

	var redisClient *redis.Client
	if !cfg.UseMemoryStore {
		redisClient = BuildRedisClient(ctx, cfg, logger, true)
	}
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
		deps["redis"] = router.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	triageMetrics := metrics.NewTriageMetrics(reg)
	handoffMetrics := metrics.NewHandoffMetrics(reg)

	coordOpts := []handoff.CoordinatorOption{handoff.WithCoordinatorMetrics(handoffMetrics)}
	alerter, err := BuildAlerter(ctx, cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	dispatch, alertWorker, err := BuildAlertDispatch(ctx, cfg, alerter, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	if alertWorker != nil {
		workerCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
		alertWorker.Start(workerCtx)
		app.closers = append(app.closers, func() {
			stop()
			alertWorker.Wait()
		})
	}
	if dispatch != nil {
		coordOpts = append(coordOpts, handoff.WithAlerter(dispatch))
	}
	coordinator := handoff.NewCoordinator(handoffStore, logger, coordOpts...)

	var queueOpts []handoff.QueueOption
	var operatorOpts []operators.ServiceOption
	if auditService != nil {
		queueOpts = append(queueOpts, handoff.WithAuditTrail(auditService))
		operatorOpts = append(operatorOpts, operators.WithAuditTrail(auditService))
	}
	archiver, err := BuildArchiver(ctx, cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	if archiver != nil {
		queueOpts = append(queueOpts, handoff.WithArchiver(archiver))
	}
	queue := handoff.NewQueue(handoffStore, handoffMetrics, logger, queueOpts...)

	engine := BuildConversationEngine(cfg, redisClient, coordinator, triageMetrics, logger)

	if strings.TrimSpace(cfg.AdminJWTSecret) == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; operator login is disabled")
	}
	tokens := operators.NewTokenIssuer(cfg.AdminJWTSecret, cfg.AdminTokenTTL)
	app.Operators = operators.NewService(operatorStore, operators.NewHasher(cfg.AdminPasswordSalt), tokens, logger, operatorOpts...)
	if err := seedAdmin(ctx, app.Operators, cfg, logger); err != nil {
		app.Close()
		return nil, err
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateBurst)
	app.closers = append(app.closers, limiter.Close)

	routerCfg := &router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(engine, logger),
		HandoffHandler:      handoff.NewHandler(queue, router.OperatorViewer, logger),
		ChatStream:          webchat.NewHandler(queue, router.OperatorViewer, logger),
		OperatorHandler:     operators.NewHandler(app.Operators, logger),
		Tokens:              tokens,
		LoginLimiter:        limiter,
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		Dependencies:        deps,
	}
	if auditService != nil {
		routerCfg.AuditHandler = audit.NewHandler(auditService, logger)
	}
	app.Handler = router.New(routerCfg)
	return app, nil
}

func seedAdmin(ctx context.Context, svc *operators.Service, cfg *appconfig.Config, logger *logging.Logger) error {
	username := strings.TrimSpace(cfg.BootstrapAdminUsername)
	if username == "" || cfg.BootstrapAdminPassword == "" {
		return nil
	}
	if _, err := svc.Ensure(ctx, username, cfg.BootstrapAdminPassword, operators.RoleAdmin); err != nil {
		return fmt.Errorf("bootstrap: seed admin: %w", err)
	}
	logger.Info("bootstrap admin ensured", "username", username)
	return nil
}
