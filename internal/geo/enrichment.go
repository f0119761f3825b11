// internal/geo/enrichment.go
package geo

import (
	"context"

	"blogware/internal/models"
	"blogware/internal/repositories"

	"go.uber.org/zap"
)

// ===============================
// ENRICHMENT SERVICE
// ===============================

// Service attaches location data to audit and ban records after the fact.
// Enrichment is strictly best effort: every failure is swallowed after
// logging, and the records stay valid with empty geo fields.
type Service struct {
	client  *Client
	audits  repositories.AuditRepository
	bans    repositories.BanRepository
	enabled bool
	logger  *zap.Logger
}

// NewService creates a new enrichment service
func NewService(
	client *Client,
	audits repositories.AuditRepository,
	bans repositories.BanRepository,
	enabled bool,
	logger *zap.Logger,
) *Service {
	return &Service{
		client:  client,
		audits:  audits,
		bans:    bans,
		enabled: enabled,
		logger:  logger,
	}
}

// EnrichAudit looks up the IP and fills the audit record's geo columns.
func (s *Service) EnrichAudit(ctx context.Context, recordID int64, ip string) {
	detail := s.lookup(ctx, ip)
	if detail == nil {
		return
	}

	if err := s.audits.UpdateGeo(ctx, recordID, detail); err != nil {
		s.logger.Warn("Failed to store audit geo data",
			zap.Int64("record_id", recordID),
			zap.Error(err),
		)
	}
}

// EnrichBan looks up the IP and fills the ban record's geo columns.
func (s *Service) EnrichBan(ctx context.Context, banID int64, ip string) {
	detail := s.lookup(ctx, ip)
	if detail == nil {
		return
	}

	if err := s.bans.UpdateGeo(ctx, banID, detail); err != nil {
		s.logger.Warn("Failed to store ban geo data",
			zap.Int64("ban_id", banID),
			zap.Error(err),
		)
	}
}

func (s *Service) lookup(ctx context.Context, ip string) *models.GeoDetail {
	if !s.enabled || !IsLookupable(ip) {
		return nil
	}

	detail, err := s.client.Lookup(ctx, ip)
	if err != nil {
		s.logger.Debug("Geo lookup failed",
			zap.String("ip", ip),
			zap.Error(err),
		)
		return nil
	}

	return detail
}
