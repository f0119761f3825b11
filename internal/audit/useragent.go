// internal/audit/useragent.go
package audit

import (
	"strings"

	"blogware/internal/models"
)

// parseUserAgent extracts a coarse browser and OS label from a User-Agent
// header. Unrecognized or missing agents map to the unknown sentinel.
func parseUserAgent(ua string) (browser, os string) {
	browser = models.UnknownUserAgent
	os = models.UnknownUserAgent
	if ua == "" {
		return browser, os
	}

	lower := strings.ToLower(ua)

	switch {
	case strings.Contains(lower, "edg/"), strings.Contains(lower, "edge"):
		browser = "Edge"
	case strings.Contains(lower, "opr/"), strings.Contains(lower, "opera"):
		browser = "Opera"
	case strings.Contains(lower, "chrome"):
		browser = "Chrome"
	case strings.Contains(lower, "firefox"):
		browser = "Firefox"
	case strings.Contains(lower, "safari"):
		browser = "Safari"
	case strings.Contains(lower, "curl"):
		browser = "curl"
	case strings.Contains(lower, "wget"):
		browser = "wget"
	case strings.Contains(lower, "postman"):
		browser = "Postman"
	case strings.Contains(lower, "bot"), strings.Contains(lower, "spider"):
		browser = "Bot"
	}

	switch {
	case strings.Contains(lower, "android"):
		os = "Android"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"), strings.Contains(lower, "ios"):
		os = "iOS"
	case strings.Contains(lower, "windows"):
		os = "Windows"
	case strings.Contains(lower, "mac os"), strings.Contains(lower, "macintosh"):
		os = "macOS"
	case strings.Contains(lower, "linux"):
		os = "Linux"
	}

	return browser, os
}
