// internal/services/audit_service.go
package services

import (
	"context"
	"fmt"

	"blogware/internal/models"
	"blogware/internal/repositories"

	"go.uber.org/zap"
)

// AuditService exposes the stored audit trail for administrative review.
// Writes go through the capture pipeline, never through this service.
type AuditService interface {
	// GetAudit fetches a single audit record.
	GetAudit(ctx context.Context, id int64) (*models.AuditRecord, error)

	// ListAudits returns audit records matching the filter, newest first.
	ListAudits(ctx context.Context, filter repositories.AuditFilter, params models.PaginationParams) ([]*models.AuditRecord, models.PaginationMeta, error)
}

type auditService struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(repo repositories.AuditRepository, logger *zap.Logger) AuditService {
	return &auditService{
		repo:   repo,
		logger: logger,
	}
}

func (s *auditService) GetAudit(ctx context.Context, id int64) (*models.AuditRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, NewNotFoundError("audit record not found")
		}
		return nil, NewInternalError(fmt.Sprintf("audit lookup failed: %v", err))
	}
	return record, nil
}

func (s *auditService) ListAudits(ctx context.Context, filter repositories.AuditFilter, params models.PaginationParams) ([]*models.AuditRecord, models.PaginationMeta, error) {
	if filter.Outcome != "" {
		switch filter.Outcome {
		case models.OutcomeSuccess, models.OutcomeBusinessFailure, models.OutcomeException:
		default:
			return nil, models.PaginationMeta{}, NewValidationError("invalid outcome filter", nil)
		}
	}

	records, meta, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, models.PaginationMeta{}, NewInternalError(fmt.Sprintf("failed to list audit records: %v", err))
	}
	return records, meta, nil
}
