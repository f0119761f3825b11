// internal/repositories/audit_repository.go
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"blogware/internal/database"
	"blogware/internal/models"

	"go.uber.org/zap"
)

// auditRepository implements AuditRepository over PostgreSQL.
type auditRepository struct {
	*BaseRepository
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.Manager, logger *zap.Logger) AuditRepository {
	return &auditRepository{
		BaseRepository: NewBaseRepository(db, logger),
	}
}

const auditColumns = `id, actor, module, operation, client_ip, method, path, outcome,
	params, response_summary, error_message, latency_ms, browser, os, login_type,
	country, region, city, isp, created_at, deleted_at`

func (r *auditRepository) Create(ctx context.Context, record *models.AuditRecord) error {
	query := `
		INSERT INTO audit_records (
			actor, module, operation, client_ip, method, path, outcome,
			params, response_summary, error_message, latency_ms, browser, os, login_type
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at`

	err := r.QueryRowContext(ctx, query,
		record.Actor, record.Module, record.Operation, record.ClientIP,
		record.Method, record.Path, record.Outcome,
		record.Params, record.ResponseSummary, record.ErrorMessage,
		record.LatencyMs, record.Browser, record.OS, record.LoginType,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit record: %w", err)
	}

	return nil
}

func (r *auditRepository) GetByID(ctx context.Context, id int64) (*models.AuditRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_records WHERE id = $1 AND deleted_at IS NULL`, auditColumns)

	record, err := r.scanAudit(r.QueryRowContext(ctx, query, id))
	if err != nil {
		if r.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}

	return record, nil
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter, params models.PaginationParams) ([]*models.AuditRecord, models.PaginationMeta, error) {
	params = r.NormalizePagination(params)

	clauses := []string{"deleted_at IS NULL"}
	var args []interface{}
	argIndex := 1

	addClause := func(condition string, value interface{}) {
		clauses = append(clauses, fmt.Sprintf(condition, argIndex))
		args = append(args, value)
		argIndex++
	}

	if filter.Actor != "" {
		addClause("actor = $%d", filter.Actor)
	}
	if filter.Module != "" {
		addClause("module = $%d", filter.Module)
	}
	if filter.Outcome != "" {
		addClause("outcome = $%d", filter.Outcome)
	}
	if filter.ClientIP != "" {
		addClause("client_ip = $%d", filter.ClientIP)
	}
	if filter.Since != nil {
		addClause("created_at >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		addClause("created_at <= $%d", *filter.Until)
	}

	where := strings.Join(clauses, " AND ")

	total, err := r.GetTotalCount(ctx, "SELECT COUNT(*) FROM audit_records WHERE "+where, args...)
	if err != nil {
		return nil, models.PaginationMeta{}, fmt.Errorf("failed to count audit records: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM audit_records
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, auditColumns, where, argIndex, argIndex+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.PaginationMeta{}, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []*models.AuditRecord
	for rows.Next() {
		record, err := r.scanAudit(rows)
		if err != nil {
			return nil, models.PaginationMeta{}, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, models.PaginationMeta{}, fmt.Errorf("failed to iterate audit records: %w", err)
	}

	return records, r.BuildPaginationMeta(params, total), nil
}

func (r *auditRepository) UpdateGeo(ctx context.Context, id int64, geo *models.GeoDetail) error {
	if geo == nil {
		return nil
	}

	query := `
		UPDATE audit_records
		SET country = $2, region = $3, city = $4, isp = $5
		WHERE id = $1 AND country IS NULL`

	_, err := r.ExecContext(ctx, query, id, geo.Country, geo.Region, geo.City, geo.ISP)
	if err != nil {
		return fmt.Errorf("failed to update audit geo: %w", err)
	}

	return nil
}

func (r *auditRepository) scanAudit(s scanner) (*models.AuditRecord, error) {
	var record models.AuditRecord
	var country, region, city, isp sql.NullString
	var deletedAt sql.NullTime

	err := s.Scan(
		&record.ID, &record.Actor, &record.Module, &record.Operation,
		&record.ClientIP, &record.Method, &record.Path, &record.Outcome,
		&record.Params, &record.ResponseSummary, &record.ErrorMessage,
		&record.LatencyMs, &record.Browser, &record.OS, &record.LoginType,
		&country, &region, &city, &isp, &record.CreatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Geo = scanGeo(country, region, city, isp)
	if deletedAt.Valid {
		record.DeletedAt = &deletedAt.Time
	}

	return &record, nil
}
