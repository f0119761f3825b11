// internal/middleware/ban_gate.go
package middleware

import (
	"context"
	"net/http"

	"blogware/internal/config"
	"blogware/internal/response"
	"blogware/internal/services"

	"go.uber.org/zap"
)

// BanGate rejects requests from banned subjects before any work happens.
// Registry errors and timeouts fail open: a degraded cache or database must
// not take down admission for everyone.
func BanGate(bans services.BanService, cfg *config.GuardConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			subject := GetIdentity(r.Context()).Subject(GetClientIP(r))

			checkCtx, cancel := context.WithTimeout(r.Context(), cfg.StoreTimeout)
			status, err := bans.IsBanned(checkCtx, subject)
			cancel()

			if err != nil {
				GetRequestLogger(r.Context()).Warn("Ban check failed, admitting request",
					zap.String("subject", subject),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			if status.Banned {
				GetRequestLogger(r.Context()).Warn("Request from banned subject rejected",
					zap.String("subject", subject),
					zap.String("reason", status.Reason),
				)
				response.WriteError(w, services.NewBannedError(status.Reason, "SUBJECT_BANNED"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
