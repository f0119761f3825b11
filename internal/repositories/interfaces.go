// internal/repositories/interfaces.go
package repositories

import (
	"context"
	"time"

	"blogware/internal/models"
)

// BanRepository provides durable storage for ban records.
type BanRepository interface {
	// Create inserts a new ban record and sets its ID. A non-deleted record
	// for the same subject is replaced in place, so expired rows awaiting
	// the reaper never block a new ban.
	Create(ctx context.Context, ban *models.BanRecord) error

	// GetByID fetches a ban record by primary key.
	GetByID(ctx context.Context, id int64) (*models.BanRecord, error)

	// GetActiveBySubject returns the live ban for a subject, or sql.ErrNoRows
	// wrapped when none exists.
	GetActiveBySubject(ctx context.Context, subject string, now time.Time) (*models.BanRecord, error)

	// Extend replaces the reason and expiry of an existing ban record.
	Extend(ctx context.Context, id int64, reason, reasonCode string, expiresAt time.Time) error

	// SoftDelete marks a ban record deleted without removing the row.
	SoftDelete(ctx context.Context, id int64) error

	// List returns ban records, newest first. When activeOnly is set only
	// live bans are returned.
	List(ctx context.Context, params models.PaginationParams, activeOnly bool) ([]*models.BanRecord, models.PaginationMeta, error)

	// ReapExpired soft-deletes bans whose expiry has passed and returns the
	// number of records reaped.
	ReapExpired(ctx context.Context, now time.Time) (int64, error)

	// UpdateGeo attaches location data to a ban record.
	UpdateGeo(ctx context.Context, id int64, geo *models.GeoDetail) error
}

// AuditFilter narrows audit record listings.
type AuditFilter struct {
	Actor    string
	Module   string
	Outcome  string
	ClientIP string
	Since    *time.Time
	Until    *time.Time
}

// AuditRepository provides durable storage for audit records.
type AuditRepository interface {
	// Create inserts a new audit record and sets its ID.
	Create(ctx context.Context, record *models.AuditRecord) error

	// GetByID fetches an audit record by primary key.
	GetByID(ctx context.Context, id int64) (*models.AuditRecord, error)

	// List returns audit records matching the filter, newest first.
	List(ctx context.Context, filter AuditFilter, params models.PaginationParams) ([]*models.AuditRecord, models.PaginationMeta, error)

	// UpdateGeo attaches location data to an audit record.
	UpdateGeo(ctx context.Context, id int64, geo *models.GeoDetail) error
}
