// internal/audit/useragent_test.go
package audit

import (
	"testing"

	"blogware/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestParseUserAgent(t *testing.T) {
	cases := []struct {
		name    string
		ua      string
		browser string
		os      string
	}{
		{
			name:    "chrome on windows",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/125.0.0.0 Safari/537.36",
			browser: "Chrome",
			os:      "Windows",
		},
		{
			name:    "firefox on linux",
			ua:      "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0",
			browser: "Firefox",
			os:      "Linux",
		},
		{
			name:    "safari on iphone",
			ua:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 Version/17.5 Safari/604.1",
			browser: "Safari",
			os:      "iOS",
		},
		{
			name:    "edge outranks chrome token",
			ua:      "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/125.0.0.0 Safari/537.36 Edg/125.0.0.0",
			browser: "Edge",
			os:      "Windows",
		},
		{
			name:    "curl",
			ua:      "curl/8.5.0",
			browser: "curl",
			os:      models.UnknownUserAgent,
		},
		{
			name:    "empty",
			ua:      "",
			browser: models.UnknownUserAgent,
			os:      models.UnknownUserAgent,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			browser, os := parseUserAgent(tc.ua)
			assert.Equal(t, tc.browser, browser)
			assert.Equal(t, tc.os, os)
		})
	}
}
