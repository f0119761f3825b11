// internal/audit/wrap.go
package audit

import (
	"fmt"
	"time"

	"blogware/internal/models"
	"blogware/internal/services"
)

// Wrap audits a single operation invocation. The supplied record carries the
// caller's metadata; Wrap fills in outcome, latency and error message, and
// publishes it exactly once whether fn returns cleanly, fails, or panics.
//
// Errors and panics pass through unchanged. Wrap observes, it never handles.
func Wrap(channel *Channel, record *models.AuditRecord, fn func() error) error {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			record.LatencyMs = time.Since(start).Milliseconds()
			record.Outcome = models.OutcomeException
			record.ErrorMessage = fmt.Sprintf("panic: %v", rec)
			channel.Publish(record)
			panic(rec)
		}
	}()

	err := fn()
	record.LatencyMs = time.Since(start).Milliseconds()

	switch {
	case err == nil:
		record.Outcome = models.OutcomeSuccess
	case services.IsBusinessFailure(err):
		record.Outcome = models.OutcomeBusinessFailure
		record.ErrorMessage = err.Error()
	default:
		record.Outcome = models.OutcomeException
		record.ErrorMessage = err.Error()
	}

	channel.Publish(record)
	return err
}
