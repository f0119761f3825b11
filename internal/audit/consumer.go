// internal/audit/consumer.go
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"blogware/internal/config"
	"blogware/internal/models"
	"blogware/internal/repositories"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ===============================
// AUDIT CONSUMER
// ===============================

// GeoEnricher attaches location data to a persisted audit record.
type GeoEnricher interface {
	EnrichAudit(ctx context.Context, recordID int64, ip string)
}

// Consumer drains the audit channel into durable storage with a small worker
// pool. Persistence retries a bounded number of times; a record that still
// fails is logged in full and given up on.
type Consumer struct {
	repo     repositories.AuditRepository
	channel  *Channel
	enricher GeoEnricher
	config   *config.AuditConfig
	logger   *zap.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewConsumer creates a new audit consumer. The enricher may be nil when geo
// lookups are disabled.
func NewConsumer(
	repo repositories.AuditRepository,
	channel *Channel,
	enricher GeoEnricher,
	cfg *config.AuditConfig,
	logger *zap.Logger,
) *Consumer {
	return &Consumer{
		repo:     repo,
		channel:  channel,
		enricher: enricher,
		config:   cfg,
		logger:   logger,
	}
}

// Start launches the worker pool. Workers exit when the channel closes and
// its buffer is drained.
func (c *Consumer) Start() {
	workers := c.config.WorkerCount
	if workers <= 0 {
		workers = 5
	}

	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	c.logger.Info("Audit consumer started", zap.Int("workers", workers))
}

// Stop closes the channel and waits for the workers to finish the buffered
// backlog.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		c.channel.Close()
		c.wg.Wait()
		c.logger.Info("Audit consumer stopped",
			zap.Int64("dropped_records", c.channel.Dropped()),
		)
	})
}

func (c *Consumer) worker(id int) {
	defer c.wg.Done()

	for record := range c.channel.Events() {
		c.process(record)
	}

	c.logger.Debug("Audit worker exiting", zap.Int("worker_id", id))
}

func (c *Consumer) process(record *models.AuditRecord) {
	normalize(record)

	operation := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.repo.Create(ctx, record)
	}

	policy := backoff.NewExponentialBackOff()
	if c.config.RetryBackoff > 0 {
		policy.InitialInterval = c.config.RetryBackoff
	}

	err := backoff.Retry(operation, backoff.WithMaxRetries(policy, uint64(c.config.MaxRetries)))
	if err != nil {
		// Dead letter: the record is lost to the database but survives in
		// the log for manual replay.
		serialized, _ := json.Marshal(record)
		c.logger.Error("Audit record dropped after retries",
			zap.String("record", string(serialized)),
			zap.Int("max_retries", c.config.MaxRetries),
			zap.Error(err),
		)
		return
	}

	if c.enricher != nil {
		// Enrichment is fire and forget; the worker moves on to the next
		// record while the lookup runs.
		recordID := record.ID
		clientIP := record.ClientIP
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			c.enricher.EnrichAudit(ctx, recordID, clientIP)
		}()
	}
}

// normalize substitutes sentinels for metadata the capture path could not
// resolve, keeping the stored trail free of empty identity fields.
func normalize(record *models.AuditRecord) {
	if record.Actor == "" {
		record.Actor = models.UnknownActor
	}
	if record.LoginType == "" {
		record.LoginType = models.IllegalLoginType
	}
	if record.Browser == "" {
		record.Browser = models.UnknownUserAgent
	}
	if record.OS == "" {
		record.OS = models.UnknownUserAgent
	}
	if record.Outcome == "" {
		record.Outcome = models.OutcomeSuccess
	}
}
