// internal/repositories/ban_repository.go
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"blogware/internal/database"
	"blogware/internal/models"

	"go.uber.org/zap"
)

// banRepository implements BanRepository over PostgreSQL.
type banRepository struct {
	*BaseRepository
}

// NewBanRepository creates a new ban repository
func NewBanRepository(db *database.Manager, logger *zap.Logger) BanRepository {
	return &banRepository{
		BaseRepository: NewBaseRepository(db, logger),
	}
}

const banColumns = `id, subject, subject_kind, reason, reason_code, banned_at, expires_at,
	country, region, city, isp, deleted_at`

// Create upserts against the partial unique index on live subjects: an
// expired ban the reaper has not collected yet still holds the index slot,
// so its row is taken over instead of colliding with it.
func (r *banRepository) Create(ctx context.Context, ban *models.BanRecord) error {
	query := `
		INSERT INTO ban_records (subject, subject_kind, reason, reason_code, banned_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subject) WHERE deleted_at IS NULL
		DO UPDATE SET
			subject_kind = EXCLUDED.subject_kind,
			reason       = EXCLUDED.reason,
			reason_code  = EXCLUDED.reason_code,
			banned_at    = EXCLUDED.banned_at,
			expires_at   = EXCLUDED.expires_at
		RETURNING id`

	err := r.QueryRowContext(ctx, query,
		ban.Subject, ban.SubjectKind, ban.Reason, ban.ReasonCode, ban.BannedAt, ban.ExpiresAt,
	).Scan(&ban.ID)
	if err != nil {
		return fmt.Errorf("failed to create ban record: %w", err)
	}

	return nil
}

func (r *banRepository) GetByID(ctx context.Context, id int64) (*models.BanRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM ban_records WHERE id = $1`, banColumns)

	ban, err := r.scanBan(r.QueryRowContext(ctx, query, id))
	if err != nil {
		if r.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get ban record: %w", err)
	}

	return ban, nil
}

func (r *banRepository) GetActiveBySubject(ctx context.Context, subject string, now time.Time) (*models.BanRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM ban_records
		WHERE subject = $1 AND deleted_at IS NULL AND expires_at > $2
		ORDER BY expires_at DESC
		LIMIT 1`, banColumns)

	ban, err := r.scanBan(r.QueryRowContext(ctx, query, subject, now))
	if err != nil {
		if r.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get active ban: %w", err)
	}

	return ban, nil
}

func (r *banRepository) Extend(ctx context.Context, id int64, reason, reasonCode string, expiresAt time.Time) error {
	query := `
		UPDATE ban_records
		SET reason = $2, reason_code = $3, expires_at = $4
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.ExecContext(ctx, query, id, reason, reasonCode, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to extend ban record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check extend result: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *banRepository) SoftDelete(ctx context.Context, id int64) error {
	query := `
		UPDATE ban_records
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete ban record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *banRepository) List(ctx context.Context, params models.PaginationParams, activeOnly bool) ([]*models.BanRecord, models.PaginationMeta, error) {
	params = r.NormalizePagination(params)

	where := "deleted_at IS NULL"
	args := []interface{}{}
	if activeOnly {
		where += " AND expires_at > NOW()"
	}

	total, err := r.GetTotalCount(ctx, "SELECT COUNT(*) FROM ban_records WHERE "+where, args...)
	if err != nil {
		return nil, models.PaginationMeta{}, fmt.Errorf("failed to count ban records: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM ban_records
		WHERE %s
		ORDER BY banned_at DESC
		LIMIT $1 OFFSET $2`, banColumns, where)

	rows, err := r.QueryContext(ctx, query, params.Limit, params.Offset)
	if err != nil {
		return nil, models.PaginationMeta{}, fmt.Errorf("failed to list ban records: %w", err)
	}
	defer rows.Close()

	var bans []*models.BanRecord
	for rows.Next() {
		ban, err := r.scanBan(rows)
		if err != nil {
			return nil, models.PaginationMeta{}, fmt.Errorf("failed to scan ban record: %w", err)
		}
		bans = append(bans, ban)
	}
	if err := rows.Err(); err != nil {
		return nil, models.PaginationMeta{}, fmt.Errorf("failed to iterate ban records: %w", err)
	}

	return bans, r.BuildPaginationMeta(params, total), nil
}

func (r *banRepository) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE ban_records
		SET deleted_at = NOW()
		WHERE deleted_at IS NULL AND expires_at <= $1`

	result, err := r.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired bans: %w", err)
	}

	reaped, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reaped bans: %w", err)
	}

	return reaped, nil
}

func (r *banRepository) UpdateGeo(ctx context.Context, id int64, geo *models.GeoDetail) error {
	if geo == nil {
		return nil
	}

	query := `
		UPDATE ban_records
		SET country = $2, region = $3, city = $4, isp = $5
		WHERE id = $1`

	_, err := r.ExecContext(ctx, query, id, geo.Country, geo.Region, geo.City, geo.ISP)
	if err != nil {
		return fmt.Errorf("failed to update ban geo: %w", err)
	}

	return nil
}

// scanner abstracts sql.Row and sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *banRepository) scanBan(s scanner) (*models.BanRecord, error) {
	var ban models.BanRecord
	var country, region, city, isp sql.NullString
	var deletedAt sql.NullTime

	err := s.Scan(
		&ban.ID, &ban.Subject, &ban.SubjectKind, &ban.Reason, &ban.ReasonCode,
		&ban.BannedAt, &ban.ExpiresAt,
		&country, &region, &city, &isp, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	ban.Geo = scanGeo(country, region, city, isp)
	if deletedAt.Valid {
		ban.DeletedAt = &deletedAt.Time
	}

	return &ban, nil
}
