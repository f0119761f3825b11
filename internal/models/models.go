package models

import "time"

// ===============================
// BAN RECORDS
// ===============================

// Subject kinds for ban records
const (
	SubjectKindUser      = "user"
	SubjectKindAnonymous = "anonymous"
)

// BanRecord is the durable record of an active or historical ban.
// At most one active (non-expired, non-deleted) record exists per subject;
// re-banning an already banned subject extends the existing record.
type BanRecord struct {
	ID          int64      `json:"id"`
	Subject     string     `json:"subject"`
	SubjectKind string     `json:"subject_kind"`
	Reason      string     `json:"reason"`
	ReasonCode  string     `json:"reason_code"`
	BannedAt    time.Time  `json:"banned_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Geo         *GeoDetail `json:"geo,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Active reports whether the ban is in force at the given instant.
func (b *BanRecord) Active(now time.Time) bool {
	return b.DeletedAt == nil && now.Before(b.ExpiresAt)
}

// ===============================
// AUDIT RECORDS
// ===============================

// Outcome states for audited operations
const (
	OutcomeSuccess         = "success"
	OutcomeBusinessFailure = "business-failure"
	OutcomeException       = "exception"
)

// Sentinel values substituted for metadata that could not be resolved
const (
	UnknownActor     = "unknown"
	UnknownUserAgent = "unknown"
	IllegalLoginType = "illegal"
)

// AuditRecord is the durable trail entry for one guarded operation.
// Immutable after insert except for the geo fields, which the enrichment
// service sets at most once.
type AuditRecord struct {
	ID              int64      `json:"id"`
	Actor           string     `json:"actor"`
	Module          string     `json:"module"`
	Operation       string     `json:"operation"`
	ClientIP        string     `json:"client_ip"`
	Method          string     `json:"method"`
	Path            string     `json:"path"`
	Outcome         string     `json:"outcome"`
	Params          string     `json:"params"`
	ResponseSummary string     `json:"response_summary"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	LatencyMs       int64      `json:"latency_ms"`
	Browser         string     `json:"browser"`
	OS              string     `json:"os"`
	LoginType       string     `json:"login_type"`
	Geo             *GeoDetail `json:"geo,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// GeoDetail holds the best-effort location data attached asynchronously
// to audit and ban records. All fields are empty until enrichment completes.
type GeoDetail struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
	ISP     string `json:"isp,omitempty"`
}

// ===============================
// PAGINATION
// ===============================

// PaginationParams represents pagination request parameters
type PaginationParams struct {
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Sort   string `json:"sort"`
	Order  string `json:"order"`
}

// PaginationMeta represents pagination response metadata
type PaginationMeta struct {
	CurrentPage  int   `json:"current_page"`
	TotalPages   int   `json:"total_pages"`
	TotalItems   int64 `json:"total_items"`
	ItemsPerPage int   `json:"items_per_page"`
	HasNext      bool  `json:"has_next"`
	HasPrev      bool  `json:"has_prev"`
}
