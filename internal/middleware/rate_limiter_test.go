// internal/middleware/rate_limiter_test.go
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"blogware/internal/cache"
	"blogware/internal/config"
	"blogware/internal/models"
	"blogware/internal/policy"
	"blogware/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBanService records escalations without touching storage.
type fakeBanService struct {
	mu     sync.Mutex
	banned map[string]string
	calls  []*services.BanRequest
}

func newFakeBanService() *fakeBanService {
	return &fakeBanService{banned: make(map[string]string)}
}

func (f *fakeBanService) IsBanned(ctx context.Context, subject string) (*services.BanStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reason, ok := f.banned[subject]; ok {
		return &services.BanStatus{Banned: true, Reason: reason}, nil
	}
	return &services.BanStatus{}, nil
}

func (f *fakeBanService) Ban(ctx context.Context, req *services.BanRequest) (*models.BanRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banned[req.Subject] = req.Reason
	f.calls = append(f.calls, req)
	return &models.BanRecord{ID: int64(len(f.calls)), Subject: req.Subject}, nil
}

func (f *fakeBanService) Unban(ctx context.Context, id int64) error { return nil }

func (f *fakeBanService) GetBan(ctx context.Context, id int64) (*models.BanRecord, error) {
	return nil, services.NewNotFoundError("ban record not found")
}

func (f *fakeBanService) ListBans(ctx context.Context, params models.PaginationParams, activeOnly bool) ([]*models.BanRecord, models.PaginationMeta, error) {
	return nil, models.PaginationMeta{}, nil
}

func (f *fakeBanService) ReapExpired(ctx context.Context) (int64, error) { return 0, nil }

// failingCache simulates a counter store outage.
type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("store down")
}
func (failingCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("store down")
}
func (failingCache) Delete(ctx context.Context, key string) error { return errors.New("store down") }
func (failingCache) Exists(ctx context.Context, key string) (bool, error) {
	return false, errors.New("store down")
}
func (failingCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return 0, errors.New("store down")
}
func (failingCache) IncrementWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	return 0, errors.New("store down")
}
func (failingCache) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	return 0, errors.New("store down")
}
func (failingCache) Health(ctx context.Context) error { return errors.New("store down") }
func (failingCache) Close() error                     { return nil }

func testGuardConfig() *config.GuardConfig {
	return &config.GuardConfig{
		Enabled:         true,
		DefaultWindow:   time.Minute,
		DefaultMaxCount: 100,
		DefaultMessage:  "Too many requests, slow down",
		StoreTimeout:    200 * time.Millisecond,
		ViolationTTL:    24 * time.Hour,
	}
}

func newTestRateLimiter(t *testing.T, store cache.Cache, bans services.BanService) *RateLimiter {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	escalation := policy.MustEscalation(policy.DefaultTiers())
	return NewRateLimiter(store, testGuardConfig(), escalation, bans, logger)
}

func okHandler(counter *atomic.Int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if counter != nil {
			counter.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.RemoteAddr = ip + ":51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_RejectsPastWindowBudget(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := cache.NewMemoryCache(cache.DefaultConfig(), logger)
	defer store.Close()
	bans := newFakeBanService()
	rl := newTestRateLimiter(t, store, bans)

	handler := rl.Limit(RouteLimit{Name: "posts", Window: time.Minute, MaxCount: 60})(okHandler(nil))

	for i := 1; i <= 60; i++ {
		rec := doRequest(handler, "203.0.113.5")
		require.Equal(t, http.StatusOK, rec.Code, "request %d should be admitted", i)
	}

	rec := doRequest(handler, "203.0.113.5")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT")
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Exactly one violation recorded for the single rejection.
	violations, found, err := store.Get(context.Background(), "rate:violations:203.0.113.5")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", violations)
}

func TestRateLimiter_SubjectsAreIndependent(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := cache.NewMemoryCache(cache.DefaultConfig(), logger)
	defer store.Close()
	rl := newTestRateLimiter(t, store, newFakeBanService())

	handler := rl.Limit(RouteLimit{Name: "posts", Window: time.Minute, MaxCount: 2})(okHandler(nil))

	require.Equal(t, http.StatusOK, doRequest(handler, "203.0.113.1").Code)
	require.Equal(t, http.StatusOK, doRequest(handler, "203.0.113.1").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(handler, "203.0.113.1").Code)

	// A different subject still has its full budget.
	assert.Equal(t, http.StatusOK, doRequest(handler, "203.0.113.2").Code)
}

func TestRateLimiter_AuthenticatedSubjectUsesIdentity(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := cache.NewMemoryCache(cache.DefaultConfig(), logger)
	defer store.Close()
	rl := newTestRateLimiter(t, store, newFakeBanService())

	handler := rl.Limit(RouteLimit{Name: "posts", Window: time.Minute, MaxCount: 1})(okHandler(nil))

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
		req.RemoteAddr = ip + ":40000"
		identity := &Identity{Actor: "amina", UserID: 42, SubjectKind: models.SubjectKindUser, LoginType: LoginTypeJWT}
		req = req.WithContext(context.WithValue(req.Context(), IdentityKey, identity))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Same user from different addresses shares one budget.
	require.Equal(t, http.StatusOK, send("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.9"))
}

func TestRateLimiter_FailsOpenOnStoreError(t *testing.T) {
	rl := newTestRateLimiter(t, failingCache{}, newFakeBanService())

	var served atomic.Int64
	handler := rl.Limit(RouteLimit{Name: "posts", Window: time.Minute, MaxCount: 1})(okHandler(&served))

	for i := 0; i < 5; i++ {
		rec := doRequest(handler, "203.0.113.5")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, int64(5), served.Load())
}

func TestRateLimiter_EscalatesAtThreshold(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := cache.NewMemoryCache(cache.DefaultConfig(), logger)
	defer store.Close()
	bans := newFakeBanService()
	rl := newTestRateLimiter(t, store, bans)

	ctx := context.Background()
	subject := "203.0.113.7"

	// Subject already has 59 violations on record; the next one hits the
	// first tier exactly.
	_, err := store.IncrementWithTTL(ctx, "rate:violations:"+subject, 59, 24*time.Hour)
	require.NoError(t, err)

	handler := rl.Limit(RouteLimit{Name: "posts", Window: time.Minute, MaxCount: 1})(okHandler(nil))

	require.Equal(t, http.StatusOK, doRequest(handler, subject).Code)
	rec := doRequest(handler, subject)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "suspended for 1 hour")

	require.Len(t, bans.calls, 1)
	assert.Equal(t, subject, bans.calls[0].Subject)
	assert.Equal(t, time.Hour, bans.calls[0].Duration)
	assert.Equal(t, "RATE_VIOLATION_HOUR", bans.calls[0].ReasonCode)
}

func TestRateLimiter_NoEscalationBetweenThresholds(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := cache.NewMemoryCache(cache.DefaultConfig(), logger)
	defer store.Close()
	bans := newFakeBanService()
	rl := newTestRateLimiter(t, store, bans)

	ctx := context.Background()
	subject := "203.0.113.8"

	// 60 violations already counted; the 61st sits between tiers.
	_, err := store.IncrementWithTTL(ctx, "rate:violations:"+subject, 60, 24*time.Hour)
	require.NoError(t, err)

	handler := rl.Limit(RouteLimit{Name: "posts", Window: time.Minute, MaxCount: 1})(okHandler(nil))

	require.Equal(t, http.StatusOK, doRequest(handler, subject).Code)
	rec := doRequest(handler, subject)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Empty(t, bans.calls)
}

func TestRateLimiter_ConcurrentAdmissionsStayWithinBudget(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := cache.NewMemoryCache(cache.DefaultConfig(), logger)
	defer store.Close()
	rl := newTestRateLimiter(t, store, newFakeBanService())

	const maxCount = 60
	var served atomic.Int64
	handler := rl.Limit(RouteLimit{Name: "posts", Window: time.Minute, MaxCount: maxCount})(okHandler(&served))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doRequest(handler, "203.0.113.9")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(maxCount), served.Load(),
		"concurrent requests must not slip past the budget")
}

func TestRateLimiter_DisabledPassesThrough(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := cache.NewMemoryCache(cache.DefaultConfig(), logger)
	defer store.Close()
	cfg := testGuardConfig()
	cfg.Enabled = false
	escalation := policy.MustEscalation(policy.DefaultTiers())
	rl := NewRateLimiter(store, cfg, escalation, newFakeBanService(), logger)

	handler := rl.Limit(RouteLimit{Name: "posts", Window: time.Minute, MaxCount: 1})(okHandler(nil))

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, doRequest(handler, "203.0.113.5").Code)
	}
}

func TestRateLimiter_CheckAndConsume(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := cache.NewMemoryCache(cache.DefaultConfig(), logger)
	defer store.Close()
	rl := newTestRateLimiter(t, store, newFakeBanService())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.CheckAndConsume(ctx, "import-job", "worker-1", time.Minute, 3))
	}

	err := rl.CheckAndConsume(ctx, "import-job", "worker-1", time.Minute, 3)
	require.Error(t, err)
	assert.True(t, services.IsRateLimitError(err))

	// Another caller keeps its own budget.
	assert.NoError(t, rl.CheckAndConsume(ctx, "import-job", "worker-2", time.Minute, 3))
}

func TestRateLimiter_CheckAndConsumeFailsOpen(t *testing.T) {
	rl := newTestRateLimiter(t, failingCache{}, newFakeBanService())

	for i := 0; i < 5; i++ {
		assert.NoError(t, rl.CheckAndConsume(context.Background(), "import-job", "worker-1", time.Minute, 1))
	}
}

func TestRateLimiter_DefaultNameFromRoute(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := cache.NewMemoryCache(cache.DefaultConfig(), logger)
	defer store.Close()
	rl := newTestRateLimiter(t, store, newFakeBanService())

	handler := rl.Limit(RouteLimit{Window: time.Minute, MaxCount: 1})(okHandler(nil))

	require.Equal(t, http.StatusOK, doRequest(handler, "203.0.113.5").Code)

	key := fmt.Sprintf("rate:count:%s:%s", "GET:/api/posts", "203.0.113.5")
	count, found, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", count)
}
