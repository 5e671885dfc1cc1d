package results

import (
	"net/http"
	"strings"
)

// SimplifyUserAgent reduces a User-Agent header to "Browser/OS", e.g.
// "Chrome/Win10". Order of the checks matters: Edge and Opera also announce
// themselves as Chrome, and Chrome announces itself as Safari.
func SimplifyUserAgent(userAgent string) string {
	ua := strings.ToLower(userAgent)

	var browser string
	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	case strings.Contains(ua, "opera"), strings.Contains(ua, "opr"):
		browser = "Opera"
	default:
		browser = "Unknown"
	}

	var os string
	switch {
	case strings.Contains(ua, "windows nt 10"):
		os = "Win10"
	case strings.Contains(ua, "windows nt 11"):
		os = "Win11"
	case strings.Contains(ua, "windows"):
		os = "Windows"
	case strings.Contains(ua, "mac os x"), strings.Contains(ua, "macintosh"):
		os = "macOS"
	case strings.Contains(ua, "android"):
		os = "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		os = "iOS"
	case strings.Contains(ua, "linux"):
		os = "Linux"
	default:
		os = "Unknown"
	}

	return browser + "/" + os
}

// ClientIP returns the first address of X-Forwarded-For when present, else
// fallback.
func ClientIP(r *http.Request, fallback string) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	return fallback
}
