// internal/middleware/ban_gate_test.go
package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"blogware/internal/models"
	"blogware/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// erroringBanService simulates a registry outage.
type erroringBanService struct {
	fakeBanService
}

func (e *erroringBanService) IsBanned(ctx context.Context, subject string) (*services.BanStatus, error) {
	return nil, services.NewInternalError("registry down")
}

func newBanGate(t *testing.T, bans services.BanService) func(http.Handler) http.Handler {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return BanGate(bans, testGuardConfig(), logger)
}

func TestBanGate_AdmitsUnbannedSubject(t *testing.T) {
	bans := newFakeBanService()
	gate := newBanGate(t, bans)

	var served atomic.Int64
	handler := gate(okHandler(&served))

	rec := doRequest(handler, "203.0.113.5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), served.Load())
}

func TestBanGate_RejectsBannedSubject(t *testing.T) {
	bans := newFakeBanService()
	bans.banned["203.0.113.5"] = "repeated rate limit violations (1 hour ban)"
	gate := newBanGate(t, bans)

	var served atomic.Int64
	handler := gate(okHandler(&served))

	rec := doRequest(handler, "203.0.113.5")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "repeated rate limit violations")
	assert.Contains(t, rec.Body.String(), "BANNED")
	assert.Zero(t, served.Load(), "handler must not run for banned subjects")
}

func TestBanGate_BannedUserRejectedFromAnyAddress(t *testing.T) {
	bans := newFakeBanService()
	bans.banned["user:42"] = "abuse"
	gate := newBanGate(t, bans)

	handler := gate(okHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.RemoteAddr = "198.51.100.20:40000"
	identity := &Identity{Actor: "amina", UserID: 42, SubjectKind: models.SubjectKindUser, LoginType: LoginTypeJWT}
	req = req.WithContext(context.WithValue(req.Context(), IdentityKey, identity))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBanGate_FailsOpenOnRegistryError(t *testing.T) {
	gate := newBanGate(t, &erroringBanService{})

	var served atomic.Int64
	handler := gate(okHandler(&served))

	rec := doRequest(handler, "203.0.113.5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), served.Load())
}

func TestBanGate_DisabledPassesThrough(t *testing.T) {
	bans := newFakeBanService()
	bans.banned["203.0.113.5"] = "abuse"

	logger, _ := zap.NewDevelopment()
	cfg := testGuardConfig()
	cfg.Enabled = false
	handler := BanGate(bans, cfg, logger)(okHandler(nil))

	rec := doRequest(handler, "203.0.113.5")
	require.Equal(t, http.StatusOK, rec.Code)
}
