// internal/services/ban_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"blogware/internal/cache"
	"blogware/internal/models"
	"blogware/internal/repositories"

	"go.uber.org/zap"
)

// ===============================
// BAN SERVICE
// ===============================

// BanStatus is the result of an admission check against the ban registry.
type BanStatus struct {
	Banned    bool
	Reason    string
	ExpiresAt time.Time
}

// BanRequest describes a new or extended ban.
type BanRequest struct {
	Subject     string
	SubjectKind string
	Reason      string
	ReasonCode  string
	Duration    time.Duration
}

// BanService is the registry of banned subjects. The durable store is the
// source of truth; the cache entry is a fast path keyed on the subject with
// a TTL matching the remaining ban time.
type BanService interface {
	// IsBanned checks whether the subject is currently banned.
	IsBanned(ctx context.Context, subject string) (*BanStatus, error)

	// Ban records a ban for the subject, extending any existing live ban.
	// The durable write happens before the cache write so a cache failure
	// can never lose a ban.
	Ban(ctx context.Context, req *BanRequest) (*models.BanRecord, error)

	// Unban lifts a ban and evicts the cache entry synchronously so the
	// subject is admitted again immediately.
	Unban(ctx context.Context, id int64) error

	// GetBan fetches a single ban record.
	GetBan(ctx context.Context, id int64) (*models.BanRecord, error)

	// ListBans returns ban records, newest first.
	ListBans(ctx context.Context, params models.PaginationParams, activeOnly bool) ([]*models.BanRecord, models.PaginationMeta, error)

	// ReapExpired soft-deletes bans past their expiry.
	ReapExpired(ctx context.Context) (int64, error)
}

// GeoEnricher attaches location data to a ban record after it is written.
// Only IP subjects are resolvable; the enricher skips everything else.
type GeoEnricher interface {
	EnrichBan(ctx context.Context, banID int64, ip string)
}

type banService struct {
	repo   repositories.BanRepository
	cache  cache.Cache
	alerts AlertService
	geo    GeoEnricher
	logger *zap.Logger
}

// NewBanService creates a new ban service. Alerts and geo may be nil when
// those integrations are disabled.
func NewBanService(
	repo repositories.BanRepository,
	cacheStore cache.Cache,
	alerts AlertService,
	geo GeoEnricher,
	logger *zap.Logger,
) BanService {
	return &banService{
		repo:   repo,
		cache:  cacheStore,
		alerts: alerts,
		geo:    geo,
		logger: logger,
	}
}

func banCacheKey(subject string) string {
	return fmt.Sprintf("ban:active:%s", subject)
}

func (s *banService) IsBanned(ctx context.Context, subject string) (*BanStatus, error) {
	if subject == "" {
		return nil, NewValidationError("subject is required", nil)
	}

	// Fast path: a cache hit answers without touching the database.
	reason, found, err := s.cache.Get(ctx, banCacheKey(subject))
	if err != nil {
		s.logger.Warn("Ban cache lookup failed, falling back to database",
			zap.String("subject", subject),
			zap.Error(err),
		)
	} else if found {
		return &BanStatus{Banned: true, Reason: reason}, nil
	}

	ban, err := s.repo.GetActiveBySubject(ctx, subject, time.Now())
	if err != nil {
		if isRepoNotFound(err) {
			return &BanStatus{Banned: false}, nil
		}
		return nil, NewInternalError(fmt.Sprintf("ban lookup failed: %v", err))
	}

	// Backfill the cache so subsequent checks take the fast path. Failure
	// here only costs latency on the next check.
	remaining := time.Until(ban.ExpiresAt)
	if remaining > 0 {
		if err := s.cache.Set(ctx, banCacheKey(subject), ban.Reason, remaining); err != nil {
			s.logger.Warn("Failed to backfill ban cache",
				zap.String("subject", subject),
				zap.Error(err),
			)
		}
	}

	return &BanStatus{Banned: true, Reason: ban.Reason, ExpiresAt: ban.ExpiresAt}, nil
}

func (s *banService) Ban(ctx context.Context, req *BanRequest) (*models.BanRecord, error) {
	if req == nil || req.Subject == "" {
		return nil, NewValidationError("subject is required", nil)
	}
	if req.Duration <= 0 {
		return nil, NewValidationError("ban duration must be positive", nil)
	}
	if req.SubjectKind == "" {
		req.SubjectKind = models.SubjectKindAnonymous
	}

	now := time.Now()
	expiresAt := now.Add(req.Duration)

	var record *models.BanRecord

	existing, err := s.repo.GetActiveBySubject(ctx, req.Subject, now)
	switch {
	case err == nil:
		// Live ban already on file; push the expiry out instead of stacking
		// a second record.
		if err := s.repo.Extend(ctx, existing.ID, req.Reason, req.ReasonCode, expiresAt); err != nil {
			return nil, NewInternalError(fmt.Sprintf("failed to extend ban: %v", err))
		}
		existing.Reason = req.Reason
		existing.ReasonCode = req.ReasonCode
		existing.ExpiresAt = expiresAt
		record = existing

	case isRepoNotFound(err):
		record = &models.BanRecord{
			Subject:     req.Subject,
			SubjectKind: req.SubjectKind,
			Reason:      req.Reason,
			ReasonCode:  req.ReasonCode,
			BannedAt:    now,
			ExpiresAt:   expiresAt,
		}
		if err := s.repo.Create(ctx, record); err != nil {
			return nil, NewInternalError(fmt.Sprintf("failed to create ban: %v", err))
		}

	default:
		return nil, NewInternalError(fmt.Sprintf("ban lookup failed: %v", err))
	}

	// Durable write succeeded; the cache write is an optimization and its
	// failure must not undo the ban.
	if err := s.cache.Set(ctx, banCacheKey(req.Subject), req.Reason, req.Duration); err != nil {
		s.logger.Warn("Failed to cache ban entry",
			zap.String("subject", req.Subject),
			zap.Error(err),
		)
	}

	s.logger.Info("Subject banned",
		zap.String("subject", req.Subject),
		zap.String("subject_kind", record.SubjectKind),
		zap.String("reason_code", req.ReasonCode),
		zap.Time("expires_at", expiresAt),
	)

	if s.alerts != nil {
		s.alerts.NotifyBan(req.Subject, req.Reason, expiresAt)
	}

	if s.geo != nil {
		banID := record.ID
		subject := req.Subject
		go func() {
			geoCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			s.geo.EnrichBan(geoCtx, banID, subject)
		}()
	}

	return record, nil
}

func (s *banService) Unban(ctx context.Context, id int64) error {
	ban, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return NewNotFoundError("ban record not found")
		}
		return NewInternalError(fmt.Sprintf("ban lookup failed: %v", err))
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if isRepoNotFound(err) {
			return NewNotFoundError("ban record not found or already lifted")
		}
		return NewInternalError(fmt.Sprintf("failed to lift ban: %v", err))
	}

	// Eviction is synchronous: until the cache entry is gone the gates keep
	// rejecting the subject, so a failure here must surface to the caller.
	if err := s.cache.Delete(ctx, banCacheKey(ban.Subject)); err != nil {
		return NewInternalError(fmt.Sprintf("ban lifted but cache eviction failed: %v", err))
	}

	s.logger.Info("Ban lifted",
		zap.Int64("ban_id", id),
		zap.String("subject", ban.Subject),
	)

	return nil
}

func (s *banService) GetBan(ctx context.Context, id int64) (*models.BanRecord, error) {
	ban, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, NewNotFoundError("ban record not found")
		}
		return nil, NewInternalError(fmt.Sprintf("ban lookup failed: %v", err))
	}
	return ban, nil
}

func (s *banService) ListBans(ctx context.Context, params models.PaginationParams, activeOnly bool) ([]*models.BanRecord, models.PaginationMeta, error) {
	bans, meta, err := s.repo.List(ctx, params, activeOnly)
	if err != nil {
		return nil, models.PaginationMeta{}, NewInternalError(fmt.Sprintf("failed to list bans: %v", err))
	}
	return bans, meta, nil
}

func (s *banService) ReapExpired(ctx context.Context) (int64, error) {
	reaped, err := s.repo.ReapExpired(ctx, time.Now())
	if err != nil {
		return 0, NewInternalError(fmt.Sprintf("failed to reap expired bans: %v", err))
	}

	if reaped > 0 {
		s.logger.Info("Reaped expired bans", zap.Int64("count", reaped))
	}

	return reaped, nil
}

// ===============================
// BACKGROUND REAPER
// ===============================

// StartReaper periodically soft-deletes expired bans until the context is
// cancelled. Cache entries expire on their own TTL and need no reaping.
func StartReaper(ctx context.Context, svc BanService, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("Ban reaper stopped")
				return
			case <-ticker.C:
				if _, err := svc.ReapExpired(ctx); err != nil {
					logger.Error("Ban reaper pass failed", zap.Error(err))
				}
			}
		}
	}()
}
