// internal/geo/client.go
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"blogware/internal/config"
	"blogware/internal/models"

	"go.uber.org/zap"
)

// Client looks up IP location data against an external HTTP service.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new geolocation client
func NewClient(cfg *config.GeoConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// lookupResponse matches the ip-api.com JSON shape.
type lookupResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Country    string `json:"country"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
	ISP        string `json:"isp"`
}

// Lookup resolves the location of a public IP address.
func (c *Client) Lookup(ctx context.Context, ip string) (*models.GeoDetail, error) {
	url := fmt.Sprintf("%s/%s", c.endpoint, ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geo request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo service returned status %d", resp.StatusCode)
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode geo response: %w", err)
	}

	if payload.Status != "success" {
		return nil, fmt.Errorf("geo lookup rejected: %s", payload.Message)
	}

	return &models.GeoDetail{
		Country: payload.Country,
		Region:  payload.RegionName,
		City:    payload.City,
		ISP:     payload.ISP,
	}, nil
}

// IsLookupable reports whether the address is worth sending to the geo
// service. Private, loopback and unparseable addresses are not.
func IsLookupable(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !parsed.IsPrivate() && !parsed.IsLoopback() && !parsed.IsUnspecified() && !parsed.IsLinkLocalUnicast()
}
