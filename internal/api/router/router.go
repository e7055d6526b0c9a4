package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/crisos/crisos-core/internal/audit"
	"github.com/crisos/crisos-core/internal/conversation"
	"github.com/crisos/crisos-core/internal/handoff"
	httpmiddleware "github.com/crisos/crisos-core/internal/http/middleware"
	"github.com/crisos/crisos-core/internal/operators"
	"github.com/crisos/crisos-core/internal/webchat"
	"github.com/crisos/crisos-core/pkg/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	HandoffHandler      *handoff.Handler
	ChatStream          *webchat.Handler
	OperatorHandler     *operators.Handler
	AuditHandler        *audit.Handler
	Tokens              httpmiddleware.TokenParser
	LoginLimiter        *httpmiddleware.RateLimiter
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string

	// Readiness checks keyed by dependency name.
	Dependencies map[string]Pinger
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		public.Get("/ready", ready(cfg.Dependencies))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.ConversationHandler != nil {
			public.Route("/api/conversations", cfg.ConversationHandler.Routes)
		}
		if cfg.HandoffHandler != nil {
			public.Route("/api/handoff", func(r chi.Router) {
				cfg.HandoffHandler.PublicRoutes(r)
				if cfg.ChatStream != nil {
					r.Get("/stream", cfg.ChatStream.PublicStream)
				}
			})
		}
	})

	r.Route("/api/admin", func(admin chi.Router) {
		if cfg.OperatorHandler != nil {
			login := admin.With()
			if cfg.LoginLimiter != nil {
				login = admin.With(httpmiddleware.RateLimit(cfg.LoginLimiter))
			}
			login.Post("/login", cfg.OperatorHandler.Login)
		}

		admin.Group(func(authed chi.Router) {
			authed.Use(httpmiddleware.OperatorJWT(cfg.Tokens))
			authed.Use(httpmiddleware.RequireRole(operators.RoleAdmin, operators.RoleOperator))

			if cfg.OperatorHandler != nil {
				authed.Get("/me", cfg.OperatorHandler.Me)
				authed.Post("/change-password", cfg.OperatorHandler.ChangePassword)
			}
			if cfg.HandoffHandler != nil {
				authed.Route("/handoff", func(r chi.Router) {
					cfg.HandoffHandler.OperatorRoutes(r)
					if cfg.ChatStream != nil {
						r.Get("/stream", cfg.ChatStream.OperatorStream)
					}
				})
			}
			if cfg.AuditHandler != nil {
				authed.With(httpmiddleware.RequireRole(operators.RoleAdmin)).Get("/audit", cfg.AuditHandler.List)
			}
		})
	})

	return r
}

// OperatorViewer reads the authenticated operator for handoff scoping.
// Requests without claims see the public view.
func OperatorViewer(r *http.Request) handoff.Viewer {
	claims, ok := operators.ClaimsFromContext(r.Context())
	if !ok {
		return handoff.Viewer{}
	}
	return handoff.Viewer{Username: claims.Username, Admin: claims.IsAdmin()}
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func ready(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]string, len(deps))
		status := http.StatusOK
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		writeJSON(w, status, map[string]any{"status": state, "checks": checks})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
