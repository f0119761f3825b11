// internal/audit/capture.go
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"blogware/internal/middleware"
	"blogware/internal/models"

	"go.uber.org/zap"
)

// ===============================
// CAPTURE MIDDLEWARE
// ===============================

type contextKey string

const operationKey contextKey = "audit_operation"

// operationTag names the audited operation for the capture middleware.
type operationTag struct {
	Module    string
	Operation string
}

const (
	// maxParamBytes bounds how much of a request body lands in the record.
	maxParamBytes = 4096
	// maxSummaryBytes bounds the captured response summary.
	maxSummaryBytes = 512
)

// Tag annotates downstream requests with their module and operation names.
// Untagged routes fall back to method and path.
func Tag(module, operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), operationKey, operationTag{
				Module:    module,
				Operation: operation,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Capture records exactly one audit record per request, covering success,
// handled failure and panic alike. The record is published to the channel
// after the response is written; persistence happens off the request path.
//
// Panics are re-raised unchanged after the record is published so the outer
// recovery middleware still sees them.
func Capture(channel *Channel, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			params := captureParams(r)
			recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				latency := time.Since(start).Milliseconds()

				if rec := recover(); rec != nil {
					record := buildRecord(r, params, latency)
					record.Outcome = models.OutcomeException
					record.ErrorMessage = fmt.Sprintf("panic: %v", rec)
					channel.Publish(record)
					panic(rec)
				}

				record := buildRecord(r, params, latency)
				record.Outcome = outcomeForStatus(recorder.status)
				record.ResponseSummary = recorder.summary()
				if record.Outcome != models.OutcomeSuccess {
					record.ErrorMessage = recorder.errorMessage()
				}
				channel.Publish(record)
			}()

			next.ServeHTTP(recorder, r)
		})
	}
}

func buildRecord(r *http.Request, params string, latencyMs int64) *models.AuditRecord {
	identity := middleware.GetIdentity(r.Context())
	actor := models.UnknownActor
	loginType := models.IllegalLoginType
	if identity != nil {
		if identity.Actor != "" {
			actor = identity.Actor
		}
		if identity.LoginType != "" {
			loginType = identity.LoginType
		}
	}

	module, operation := r.Method, r.URL.Path
	if tag, ok := r.Context().Value(operationKey).(operationTag); ok {
		module, operation = tag.Module, tag.Operation
	}

	browser, os := parseUserAgent(r.UserAgent())

	return &models.AuditRecord{
		Actor:     actor,
		Module:    module,
		Operation: operation,
		ClientIP:  middleware.GetClientIP(r),
		Method:    r.Method,
		Path:      r.URL.Path,
		Params:    params,
		LatencyMs: latencyMs,
		Browser:   browser,
		OS:        os,
		LoginType: loginType,
	}
}

// captureParams serializes the request inputs without breaking the handler's
// ability to read the body. File uploads are replaced with a placeholder so
// the trail never stores payload bytes.
func captureParams(r *http.Request) string {
	parts := make(map[string]interface{})

	if query := r.URL.Query(); len(query) > 0 {
		flat := make(map[string]string, len(query))
		for key, values := range query {
			flat[key] = strings.Join(values, ",")
		}
		parts["query"] = flat
	}

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		parts["body"] = "<file upload>"

	case r.Body != nil && r.ContentLength != 0 &&
		(strings.HasPrefix(contentType, "application/json") ||
			strings.HasPrefix(contentType, "application/x-www-form-urlencoded")):
		// Tee the prefix of the body and hand the rest back untouched.
		prefix := make([]byte, maxParamBytes)
		n, _ := io.ReadFull(r.Body, prefix)
		rest := r.Body
		r.Body = readCloser{
			Reader: io.MultiReader(bytes.NewReader(prefix[:n]), rest),
			closer: rest,
		}
		body := string(prefix[:n])
		if n == maxParamBytes {
			body += "...(truncated)"
		}
		parts["body"] = body

	case r.ContentLength > 0:
		parts["body"] = fmt.Sprintf("<%s: %d bytes>", contentType, r.ContentLength)
	}

	if len(parts) == 0 {
		return ""
	}

	serialized, err := json.Marshal(parts)
	if err != nil {
		return "<unserializable params>"
	}
	return string(serialized)
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (rc readCloser) Close() error {
	return rc.closer.Close()
}

func outcomeForStatus(status int) string {
	switch {
	case status >= 500:
		return models.OutcomeException
	case status >= 400:
		return models.OutcomeBusinessFailure
	default:
		return models.OutcomeSuccess
	}
}

// ===============================
// RESPONSE RECORDER
// ===============================

// responseRecorder captures the status code and a bounded prefix of the body.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if remaining := maxSummaryBytes - r.body.Len(); remaining > 0 {
		if len(b) > remaining {
			r.body.Write(b[:remaining])
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// Flush keeps the wrapper transparent to streaming handlers.
func (r *responseRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *responseRecorder) summary() string {
	return strings.TrimSpace(r.body.String())
}

// errorMessage pulls the error message out of a JSON error body, falling
// back to the raw summary.
func (r *responseRecorder) errorMessage() string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(r.body.Bytes(), &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return r.summary()
}
