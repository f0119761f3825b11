// internal/response/response.go
package response

import (
	"encoding/json"
	"net/http"
	"time"

	"blogware/internal/models"
	"blogware/internal/services"
)

// Envelope is the standard success response shape.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Pagination *models.PaginationMeta `json:"pagination,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
}

// ErrorEnvelope is the standard error response shape.
type ErrorEnvelope struct {
	Error     *services.ServiceError `json:"error"`
	Timestamp int64                  `json:"timestamp"`
}

// WriteJSON writes a success envelope.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Envelope{
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

// WriteList writes a success envelope with pagination metadata.
func WriteList(w http.ResponseWriter, statusCode int, data interface{}, meta models.PaginationMeta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Envelope{
		Data:       data,
		Pagination: &meta,
		Timestamp:  time.Now().Unix(),
	})
}

// WriteError writes an error envelope, mapping the error to its status code.
func WriteError(w http.ResponseWriter, err error) {
	serviceErr := services.GetServiceError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(serviceErr.GetStatusCode())
	json.NewEncoder(w).Encode(ErrorEnvelope{
		Error:     serviceErr,
		Timestamp: time.Now().Unix(),
	})
}
