// internal/audit/channel.go
package audit

import (
	"sync"
	"sync/atomic"

	"blogware/internal/models"

	"go.uber.org/zap"
)

// ===============================
// EVENT CHANNEL
// ===============================

// Channel is the bounded buffer between request handling and audit
// persistence. Publishing never blocks: when the buffer is full the record
// is dropped and counted, because request latency outranks audit
// completeness.
type Channel struct {
	events  chan *models.AuditRecord
	dropped atomic.Int64
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewChannel creates a new audit channel with the given buffer size.
func NewChannel(size int, logger *zap.Logger) *Channel {
	if size <= 0 {
		size = 1000
	}
	return &Channel{
		events: make(chan *models.AuditRecord, size),
		logger: logger,
	}
}

// Publish enqueues a record without blocking. Returns false when the record
// was dropped because the buffer is full or the channel is already closed,
// as can happen to a request still in flight when shutdown gives up waiting.
func (c *Channel) Publish(record *models.AuditRecord) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		dropped := c.dropped.Add(1)
		c.logger.Warn("Audit channel closed, dropping record",
			zap.String("module", record.Module),
			zap.String("operation", record.Operation),
			zap.Int64("total_dropped", dropped),
		)
		return false
	}

	select {
	case c.events <- record:
		return true
	default:
		dropped := c.dropped.Add(1)
		c.logger.Warn("Audit queue full, dropping record",
			zap.String("module", record.Module),
			zap.String("operation", record.Operation),
			zap.Int64("total_dropped", dropped),
		)
		return false
	}
}

// Events returns the receive side for consumers.
func (c *Channel) Events() <-chan *models.AuditRecord {
	return c.events
}

// Dropped returns the number of records dropped so far.
func (c *Channel) Dropped() int64 {
	return c.dropped.Load()
}

// Close closes the channel. Later Publish calls drop their records.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}
