// internal/services/alert_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"blogware/internal/config"

	"go.uber.org/zap"
)

// AlertService notifies administrators about escalation events. Delivery is
// best effort; failures are logged and never surfaced to callers.
type AlertService interface {
	// NotifyBan sends a ban notification in the background.
	NotifyBan(subject, reason string, expiresAt time.Time)
}

type alertService struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewAlertService creates a new alert service. An empty webhook URL yields a
// service that drops all notifications.
func NewAlertService(cfg *config.AlertConfig, logger *zap.Logger) AlertService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &alertService{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type banAlert struct {
	Event     string    `json:"event"`
	Subject   string    `json:"subject"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *alertService) NotifyBan(subject, reason string, expiresAt time.Time) {
	if s.webhookURL == "" {
		return
	}

	go func() {
		payload := banAlert{
			Event:     "subject_banned",
			Subject:   subject,
			Reason:    reason,
			ExpiresAt: expiresAt,
			Timestamp: time.Now(),
		}

		body, err := json.Marshal(payload)
		if err != nil {
			s.logger.Error("Failed to marshal ban alert", zap.Error(err))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			s.logger.Error("Failed to build ban alert request", zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.logger.Warn("Ban alert delivery failed",
				zap.String("subject", subject),
				zap.Error(err),
			)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			s.logger.Warn("Ban alert rejected by webhook",
				zap.String("subject", subject),
				zap.Error(fmt.Errorf("unexpected status %d", resp.StatusCode)),
			)
			return
		}

		s.logger.Info("Ban alert delivered",
			zap.String("subject", subject),
			zap.String("reason", reason),
		)
	}()
}
