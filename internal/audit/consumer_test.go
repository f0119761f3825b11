// internal/audit/consumer_test.go
package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blogware/internal/config"
	"blogware/internal/models"
	"blogware/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAuditRepo stores records in memory and can fail the first N creates.
type fakeAuditRepo struct {
	mu           sync.Mutex
	records      []*models.AuditRecord
	failuresLeft int
	attempts     int
	nextID       int64
}

func (f *fakeAuditRepo) Create(ctx context.Context, record *models.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return errors.New("insert failed")
	}
	f.nextID++
	record.ID = f.nextID
	record.CreatedAt = time.Now()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeAuditRepo) GetByID(ctx context.Context, id int64) (*models.AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeAuditRepo) List(ctx context.Context, filter repositories.AuditFilter, params models.PaginationParams) ([]*models.AuditRecord, models.PaginationMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, models.PaginationMeta{TotalItems: int64(len(f.records))}, nil
}

func (f *fakeAuditRepo) UpdateGeo(ctx context.Context, id int64, geo *models.GeoDetail) error {
	return nil
}

func (f *fakeAuditRepo) stored() []*models.AuditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.AuditRecord, len(f.records))
	copy(out, f.records)
	return out
}

func (f *fakeAuditRepo) createAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// recordingEnricher remembers which records were handed to it. A non-nil
// release channel makes every call block until it is closed, simulating a
// slow lookup service.
type recordingEnricher struct {
	mu      sync.Mutex
	ids     []int64
	release chan struct{}
}

func (e *recordingEnricher) EnrichAudit(ctx context.Context, recordID int64, ip string) {
	if e.release != nil {
		<-e.release
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, recordID)
}

func (e *recordingEnricher) enriched() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int64, len(e.ids))
	copy(out, e.ids)
	return out
}

func testAuditConfig() *config.AuditConfig {
	return &config.AuditConfig{
		QueueSize:    16,
		WorkerCount:  2,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	}
}

func TestConsumer_PersistsPublishedRecords(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	channel := NewChannel(16, logger)
	repo := &fakeAuditRepo{}

	consumer := NewConsumer(repo, channel, nil, testAuditConfig(), logger)
	consumer.Start()

	for i := 0; i < 5; i++ {
		require.True(t, channel.Publish(&models.AuditRecord{
			Actor:     "amina",
			Module:    "posts",
			Operation: "create",
			Outcome:   models.OutcomeSuccess,
		}))
	}
	consumer.Stop()

	assert.Len(t, repo.stored(), 5)
}

func TestConsumer_StopDrainsBufferedBacklog(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	channel := NewChannel(16, logger)
	repo := &fakeAuditRepo{}

	consumer := NewConsumer(repo, channel, nil, testAuditConfig(), logger)

	// Publish before the workers start so everything sits in the buffer.
	for i := 0; i < 10; i++ {
		require.True(t, channel.Publish(&models.AuditRecord{Module: "posts"}))
	}

	consumer.Start()
	consumer.Stop()

	assert.Len(t, repo.stored(), 10, "Stop must drain the buffer before returning")
}

func TestConsumer_RetriesTransientFailures(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	channel := NewChannel(16, logger)
	repo := &fakeAuditRepo{failuresLeft: 2}

	consumer := NewConsumer(repo, channel, nil, testAuditConfig(), logger)
	consumer.Start()

	require.True(t, channel.Publish(&models.AuditRecord{Module: "posts"}))
	consumer.Stop()

	require.Len(t, repo.stored(), 1, "record must land after transient failures")
	assert.Equal(t, 3, repo.createAttempts())
}

func TestConsumer_DeadLettersAfterRetryBudget(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	channel := NewChannel(16, logger)
	repo := &fakeAuditRepo{failuresLeft: 100}

	consumer := NewConsumer(repo, channel, nil, testAuditConfig(), logger)
	consumer.Start()

	require.True(t, channel.Publish(&models.AuditRecord{Module: "posts"}))
	consumer.Stop()

	assert.Empty(t, repo.stored())
	// Initial attempt plus MaxRetries retries, then give up.
	assert.Equal(t, 4, repo.createAttempts())
}

func TestConsumer_NormalizesEmptyFields(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	channel := NewChannel(16, logger)
	repo := &fakeAuditRepo{}

	consumer := NewConsumer(repo, channel, nil, testAuditConfig(), logger)
	consumer.Start()

	require.True(t, channel.Publish(&models.AuditRecord{Module: "posts", Operation: "list"}))
	consumer.Stop()

	stored := repo.stored()
	require.Len(t, stored, 1)
	assert.Equal(t, models.UnknownActor, stored[0].Actor)
	assert.Equal(t, models.IllegalLoginType, stored[0].LoginType)
	assert.Equal(t, models.UnknownUserAgent, stored[0].Browser)
	assert.Equal(t, models.UnknownUserAgent, stored[0].OS)
	assert.Equal(t, models.OutcomeSuccess, stored[0].Outcome)
}

func TestConsumer_EnrichesAfterPersist(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	channel := NewChannel(16, logger)
	repo := &fakeAuditRepo{}
	enricher := &recordingEnricher{}

	consumer := NewConsumer(repo, channel, enricher, testAuditConfig(), logger)
	consumer.Start()

	require.True(t, channel.Publish(&models.AuditRecord{Module: "posts", ClientIP: "203.0.113.5"}))
	consumer.Stop()

	stored := repo.stored()
	require.Len(t, stored, 1)

	// Enrichment is dispatched asynchronously after the insert.
	require.Eventually(t, func() bool {
		return len(enricher.enriched()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, stored[0].ID, enricher.enriched()[0], "enrichment must use the persisted ID")
}

func TestConsumer_SlowEnrichmentDoesNotStallWorkers(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	channel := NewChannel(16, logger)
	repo := &fakeAuditRepo{}
	enricher := &recordingEnricher{release: make(chan struct{})}

	cfg := testAuditConfig()
	cfg.WorkerCount = 1
	consumer := NewConsumer(repo, channel, enricher, cfg, logger)
	consumer.Start()

	// With the lookup wedged, the single worker must still drain every
	// record.
	for i := 0; i < 5; i++ {
		require.True(t, channel.Publish(&models.AuditRecord{Module: "posts", ClientIP: "203.0.113.5"}))
	}
	consumer.Stop()

	assert.Len(t, repo.stored(), 5)
	assert.Empty(t, enricher.enriched(), "lookups are still blocked")

	close(enricher.release)
	require.Eventually(t, func() bool {
		return len(enricher.enriched()) == 5
	}, time.Second, 10*time.Millisecond)
}

func TestConsumer_StopIsIdempotent(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	channel := NewChannel(16, logger)
	repo := &fakeAuditRepo{}

	consumer := NewConsumer(repo, channel, nil, testAuditConfig(), logger)
	consumer.Start()
	consumer.Stop()
	consumer.Stop()
}
