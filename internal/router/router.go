// internal/router/router.go
package router

import (
	"context"
	"net/http"
	"time"

	"blogware/internal/audit"
	"blogware/internal/cache"
	"blogware/internal/config"
	"blogware/internal/database"
	"blogware/internal/handlers/admin"
	"blogware/internal/middleware"
	"blogware/internal/response"
	"blogware/internal/services"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Deps carries everything the router needs.
type Deps struct {
	Config       *config.Config
	Logger       *zap.Logger
	DB           *database.Manager
	Cache        cache.Cache
	BanService   services.BanService
	AuditService services.AuditService
	AuditChannel *audit.Channel
	RateLimiter  *middleware.RateLimiter
}

// New builds the HTTP handler tree. Guarded routes pass through the chain
// identity -> capture -> ban gate -> rate limit -> handler, so every
// admission decision lands in the audit trail.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID(deps.Logger))
	r.Use(middleware.IdentityResolver(&deps.Config.Auth, deps.Logger))

	// Health stays outside the gates so probes work while banned or limited.
	r.Get("/health", healthHandler(deps))

	banHandler := admin.NewBanHandler(deps.BanService, deps.Logger)
	auditHandler := admin.NewAuditHandler(deps.AuditService, deps.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(audit.Capture(deps.AuditChannel, deps.Logger))
		r.Use(middleware.BanGate(deps.BanService, &deps.Config.Guard, deps.Logger))

		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.RateLimiter.Limit(middleware.RouteLimit{
				Name:     "admin",
				Window:   time.Minute,
				MaxCount: 60,
			}))

			r.Route("/bans", func(r chi.Router) {
				r.With(audit.Tag("bans", "list")).Get("/", banHandler.ListBans)
				r.With(audit.Tag("bans", "create")).Post("/", banHandler.CreateBan)
				r.With(audit.Tag("bans", "get")).Get("/{id}", banHandler.GetBan)
				r.With(audit.Tag("bans", "delete")).Delete("/{id}", banHandler.DeleteBan)
			})

			r.Route("/audits", func(r chi.Router) {
				r.With(audit.Tag("audits", "list")).Get("/", auditHandler.ListAudits)
				r.With(audit.Tag("audits", "get")).Get("/{id}", auditHandler.GetAudit)
			})
		})
	})

	return r
}

func healthHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]string{
			"status":   "ok",
			"database": "ok",
			"cache":    "ok",
		}
		healthy := true

		if deps.DB != nil {
			if err := deps.DB.Health(ctx); err != nil {
				status["database"] = err.Error()
				healthy = false
			}
		}
		if err := deps.Cache.Health(ctx); err != nil {
			status["cache"] = err.Error()
			healthy = false
		}

		code := http.StatusOK
		if !healthy {
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
		response.WriteJSON(w, code, status)
	}
}
