// Package device extracts client device metadata from request headers,
// falling back to user-agent parsing when the client sends no explicit
// device headers.
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"storygate/internal/auth/models"
	"storygate/pkg/platform/middleware/metadata"
)

// Client device headers. X-Platform is the legacy spelling kept for older
// app builds.
const (
	HeaderDeviceID       = "X-Device-ID"
	HeaderDeviceType     = "X-Device-Type"
	HeaderClientPlatform = "X-Client-Platform"
	HeaderPlatformLegacy = "X-Platform"
	HeaderAppVersion     = "X-App-Version"
)

// FromRequest builds DeviceInfo from request headers. Missing device type
// and name are derived from the User-Agent header.
func FromRequest(r *http.Request) models.DeviceInfo {
	info := models.DeviceInfo{
		DeviceID:   strings.TrimSpace(r.Header.Get(HeaderDeviceID)),
		DeviceType: strings.TrimSpace(r.Header.Get(HeaderDeviceType)),
		Platform:   platformFrom(r),
		AppVersion: strings.TrimSpace(r.Header.Get(HeaderAppVersion)),
		IPAddress:  metadata.ClientIPFromRequest(r),
	}

	ua := r.UserAgent()
	if info.DeviceType == "" {
		info.DeviceType = typeFromUserAgent(ua)
	}
	info.DeviceName = ParseUserAgent(ua)
	return info
}

func platformFrom(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderClientPlatform)); v != "" {
		return v
	}
	return strings.TrimSpace(r.Header.Get(HeaderPlatformLegacy))
}

func typeFromUserAgent(ua string) string {
	if ua == "" {
		return "unknown"
	}
	parsed := useragent.New(ua)
	switch {
	case parsed.Mobile():
		return "mobile"
	case parsed.Bot():
		return "bot"
	default:
		return "desktop"
	}
}

// ParseUserAgent renders a human-readable device name like "Chrome on Mac OS X".
func ParseUserAgent(ua string) string {
	if ua == "" {
		return "Unknown Device"
	}

	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	os := parsed.OS()

	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}
