// internal/geo/enrichment_test.go
package geo

import (
	"context"
	"net/http"
	"testing"
	"time"

	"blogware/internal/models"
	"blogware/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// geoCalls records UpdateGeo invocations for both repository fakes.
type geoCalls struct {
	ids     []int64
	details []*models.GeoDetail
}

func (g *geoCalls) record(id int64, detail *models.GeoDetail) {
	g.ids = append(g.ids, id)
	g.details = append(g.details, detail)
}

type stubAuditRepo struct{ calls geoCalls }

func (s *stubAuditRepo) Create(ctx context.Context, record *models.AuditRecord) error {
	return nil
}

func (s *stubAuditRepo) GetByID(ctx context.Context, id int64) (*models.AuditRecord, error) {
	return nil, nil
}

func (s *stubAuditRepo) List(ctx context.Context, filter repositories.AuditFilter, params models.PaginationParams) ([]*models.AuditRecord, models.PaginationMeta, error) {
	return nil, models.PaginationMeta{}, nil
}

func (s *stubAuditRepo) UpdateGeo(ctx context.Context, id int64, geo *models.GeoDetail) error {
	s.calls.record(id, geo)
	return nil
}

type stubBanRepo struct{ calls geoCalls }

func (s *stubBanRepo) Create(ctx context.Context, ban *models.BanRecord) error { return nil }

func (s *stubBanRepo) GetByID(ctx context.Context, id int64) (*models.BanRecord, error) {
	return nil, nil
}

func (s *stubBanRepo) GetActiveBySubject(ctx context.Context, subject string, now time.Time) (*models.BanRecord, error) {
	return nil, nil
}

func (s *stubBanRepo) Extend(ctx context.Context, id int64, reason, reasonCode string, expiresAt time.Time) error {
	return nil
}

func (s *stubBanRepo) SoftDelete(ctx context.Context, id int64) error { return nil }

func (s *stubBanRepo) List(ctx context.Context, params models.PaginationParams, activeOnly bool) ([]*models.BanRecord, models.PaginationMeta, error) {
	return nil, models.PaginationMeta{}, nil
}

func (s *stubBanRepo) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (s *stubBanRepo) UpdateGeo(ctx context.Context, id int64, geo *models.GeoDetail) error {
	s.calls.record(id, geo)
	return nil
}

func newEnrichmentService(t *testing.T, enabled bool) (*Service, *stubAuditRepo, *stubBanRepo) {
	t.Helper()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "success", "country": "Kenya", "city": "Nairobi"}`))
	})

	audits := &stubAuditRepo{}
	bans := &stubBanRepo{}
	logger, _ := zap.NewDevelopment()
	return NewService(client, audits, bans, enabled, logger), audits, bans
}

func TestService_EnrichAudit(t *testing.T) {
	svc, audits, _ := newEnrichmentService(t, true)

	svc.EnrichAudit(context.Background(), 7, "203.0.113.5")

	require.Len(t, audits.calls.ids, 1)
	assert.Equal(t, int64(7), audits.calls.ids[0])
	assert.Equal(t, "Kenya", audits.calls.details[0].Country)
}

func TestService_EnrichBan(t *testing.T) {
	svc, _, bans := newEnrichmentService(t, true)

	svc.EnrichBan(context.Background(), 3, "203.0.113.5")

	require.Len(t, bans.calls.ids, 1)
	assert.Equal(t, int64(3), bans.calls.ids[0])
}

func TestService_DisabledSkipsLookup(t *testing.T) {
	svc, audits, _ := newEnrichmentService(t, false)

	svc.EnrichAudit(context.Background(), 7, "203.0.113.5")
	assert.Empty(t, audits.calls.ids)
}

func TestService_PrivateAddressSkipped(t *testing.T) {
	svc, audits, bans := newEnrichmentService(t, true)

	svc.EnrichAudit(context.Background(), 7, "192.168.1.10")
	svc.EnrichBan(context.Background(), 3, "user:42")

	assert.Empty(t, audits.calls.ids)
	assert.Empty(t, bans.calls.ids)
}

func TestService_LookupFailureLeavesRecordUntouched(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	audits := &stubAuditRepo{}
	logger, _ := zap.NewDevelopment()
	svc := NewService(client, audits, &stubBanRepo{}, true, logger)

	svc.EnrichAudit(context.Background(), 7, "203.0.113.5")
	assert.Empty(t, audits.calls.ids)
}
