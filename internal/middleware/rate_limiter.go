// internal/middleware/rate_limiter.go
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"blogware/internal/cache"
	"blogware/internal/config"
	"blogware/internal/models"
	"blogware/internal/policy"
	"blogware/internal/response"
	"blogware/internal/services"

	"go.uber.org/zap"
)

// RouteLimit defines the fixed-window budget for one route.
type RouteLimit struct {
	// Name scopes the counter key. Routes sharing a name share a budget.
	Name string

	// Window is the fixed counting window. It starts at the first request
	// and is not sliding.
	Window time.Duration

	// MaxCount is the number of requests admitted per window.
	MaxCount int64

	// Message is returned to rejected callers. Falls back to the guard
	// default when empty.
	Message string
}

// RateLimiter enforces per-subject fixed-window limits and escalates
// repeat offenders through the ban registry.
type RateLimiter struct {
	store      cache.Cache
	config     *config.GuardConfig
	escalation *policy.Escalation
	bans       services.BanService
	logger     *zap.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(
	store cache.Cache,
	cfg *config.GuardConfig,
	escalation *policy.Escalation,
	bans services.BanService,
	logger *zap.Logger,
) *RateLimiter {
	return &RateLimiter{
		store:      store,
		config:     cfg,
		escalation: escalation,
		bans:       bans,
		logger:     logger,
	}
}

// Limit creates middleware enforcing the given route limit.
func (rl *RateLimiter) Limit(limit RouteLimit) func(http.Handler) http.Handler {
	if limit.Window <= 0 {
		limit.Window = rl.config.DefaultWindow
	}
	if limit.MaxCount <= 0 {
		limit.MaxCount = int64(rl.config.DefaultMaxCount)
	}
	if limit.Message == "" {
		limit.Message = rl.config.DefaultMessage
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			name := limit.Name
			if name == "" {
				name = r.Method + ":" + r.URL.Path
			}
			subject := GetIdentity(r.Context()).Subject(GetClientIP(r))

			count, err := rl.consume(r.Context(), name, subject, limit.Window)
			if err != nil {
				// Counter store trouble must not block traffic.
				GetRequestLogger(r.Context()).Warn("Rate limit check failed, admitting request",
					zap.String("subject", subject),
					zap.String("route", name),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			if count <= limit.MaxCount {
				rl.writeHeaders(w, limit, count)
				next.ServeHTTP(w, r)
				return
			}

			rl.reject(w, r, limit, name, subject, count)
		})
	}
}

// LimitDefault creates middleware with the guard-wide default budget.
func (rl *RateLimiter) LimitDefault() func(http.Handler) http.Handler {
	return rl.Limit(RouteLimit{})
}

// CheckAndConsume counts one operation against a caller's fixed window for
// callers outside the HTTP path, such as background jobs. It returns a rate
// limit error once the budget is spent and fails open on store errors.
func (rl *RateLimiter) CheckAndConsume(ctx context.Context, name, subject string, window time.Duration, maxCount int64) error {
	if !rl.config.Enabled {
		return nil
	}
	if window <= 0 {
		window = rl.config.DefaultWindow
	}
	if maxCount <= 0 {
		maxCount = int64(rl.config.DefaultMaxCount)
	}

	count, err := rl.consume(ctx, name, subject, window)
	if err != nil {
		rl.logger.Warn("Rate limit check failed, admitting operation",
			zap.String("subject", subject),
			zap.String("route", name),
			zap.Error(err),
		)
		return nil
	}

	if count <= maxCount {
		return nil
	}

	message := rl.config.DefaultMessage
	if violations, verr := rl.recordViolation(ctx, subject); verr != nil {
		rl.logger.Warn("Failed to record rate limit violation",
			zap.String("subject", subject),
			zap.Error(verr),
		)
	} else if decision := rl.escalation.Evaluate(violations); decision.Ban {
		if _, berr := rl.bans.Ban(ctx, &services.BanRequest{
			Subject:     subject,
			SubjectKind: models.SubjectKindAnonymous,
			Reason:      decision.AlertReason,
			ReasonCode:  decision.ReasonCode,
			Duration:    decision.BanDuration,
		}); berr != nil {
			rl.logger.Error("Failed to escalate rate limit violations to ban",
				zap.String("subject", subject),
				zap.String("reason_code", decision.ReasonCode),
				zap.Error(berr),
			)
		}
		message = decision.UserMessage
	}

	return services.NewRateLimitError(message, map[string]interface{}{
		"limit":  maxCount,
		"window": window.String(),
	})
}

// consume counts the request against the subject's window in one atomic
// store round trip. The window starts when its first request creates the key.
func (rl *RateLimiter) consume(ctx context.Context, name, subject string, window time.Duration) (int64, error) {
	key := fmt.Sprintf("rate:count:%s:%s", name, subject)

	storeCtx, cancel := context.WithTimeout(ctx, rl.config.StoreTimeout)
	defer cancel()

	return rl.store.IncrementWithTTL(storeCtx, key, 1, window)
}

// reject records the violation, runs the escalation policy and writes the
// rejection response.
func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, limit RouteLimit, name, subject string, count int64) {
	requestLogger := GetRequestLogger(r.Context())
	message := limit.Message

	violations, err := rl.recordViolation(r.Context(), subject)
	if err != nil {
		// The request is still rejected; only the escalation bookkeeping
		// is lost.
		requestLogger.Warn("Failed to record rate limit violation",
			zap.String("subject", subject),
			zap.Error(err),
		)
	} else {
		requestLogger.Warn("Rate limit exceeded",
			zap.String("subject", subject),
			zap.String("route", name),
			zap.Int64("count", count),
			zap.Int64("max_count", limit.MaxCount),
			zap.Int64("violations", violations),
		)

		if decision := rl.escalation.Evaluate(violations); decision.Ban {
			message = rl.escalate(r, subject, decision)
		}
	}

	rl.writeHeaders(w, limit, count)
	w.Header().Set("Retry-After", rl.retryAfter(r.Context(), name, subject, limit.Window))
	response.WriteError(w, services.NewRateLimitError(message, map[string]interface{}{
		"limit":  limit.MaxCount,
		"window": limit.Window.String(),
	}))
}

// recordViolation bumps the subject's violation counter. All of a subject's
// violations share one TTL so they age out together.
func (rl *RateLimiter) recordViolation(ctx context.Context, subject string) (int64, error) {
	key := fmt.Sprintf("rate:violations:%s", subject)

	storeCtx, cancel := context.WithTimeout(ctx, rl.config.StoreTimeout)
	defer cancel()

	return rl.store.IncrementWithTTL(storeCtx, key, 1, rl.config.ViolationTTL)
}

// escalate applies a tier decision by writing the ban. The durable write uses
// the request context without the store timeout; losing a ban to a tight
// deadline is worse than a slow rejection.
func (rl *RateLimiter) escalate(r *http.Request, subject string, decision policy.Decision) string {
	identity := GetIdentity(r.Context())
	subjectKind := models.SubjectKindAnonymous
	if identity != nil && identity.UserID > 0 {
		subjectKind = models.SubjectKindUser
	}

	_, err := rl.bans.Ban(r.Context(), &services.BanRequest{
		Subject:     subject,
		SubjectKind: subjectKind,
		Reason:      decision.AlertReason,
		ReasonCode:  decision.ReasonCode,
		Duration:    decision.BanDuration,
	})
	if err != nil {
		rl.logger.Error("Failed to escalate rate limit violations to ban",
			zap.String("subject", subject),
			zap.String("reason_code", decision.ReasonCode),
			zap.Error(err),
		)
		return decision.UserMessage
	}

	return decision.UserMessage
}

func (rl *RateLimiter) writeHeaders(w http.ResponseWriter, limit RouteLimit, count int64) {
	remaining := limit.MaxCount - count
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit.MaxCount, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
}

func (rl *RateLimiter) retryAfter(ctx context.Context, name, subject string, window time.Duration) string {
	key := fmt.Sprintf("rate:count:%s:%s", name, subject)

	storeCtx, cancel := context.WithTimeout(ctx, rl.config.StoreTimeout)
	defer cancel()

	ttl, err := rl.store.GetTTL(storeCtx, key)
	if err != nil || ttl <= 0 {
		ttl = window
	}
	return strconv.Itoa(int(ttl.Seconds() + 0.5))
}
