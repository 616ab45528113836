package server

import (
	"net/http"
	"strings"
)

// CSPConfig holds Content-Security-Policy configuration.
type CSPConfig struct {
	// DefaultSrc specifies default source for all directives
	DefaultSrc []string
	// ScriptSrc specifies valid sources for JavaScript
	ScriptSrc []string
	// StyleSrc specifies valid sources for CSS
	StyleSrc []string
	// ImgSrc specifies valid sources for images
	ImgSrc []string
	// ConnectSrc specifies valid sources for fetch and WebSocket
	ConnectSrc []string
	// FrameAncestors specifies valid parents that may embed the page
	FrameAncestors []string
	// BaseURI restricts URLs that can be used in <base> element
	BaseURI []string
	// FormAction restricts URLs that can be used as form action targets
	FormAction []string
	// UpgradeInsecureRequests forces HTTPS
	UpgradeInsecureRequests bool
}

// WebUICSPConfig returns the CSP for the control panel: everything from the
// same origin, nothing inline, no framing.
func WebUICSPConfig() CSPConfig {
	return CSPConfig{
		DefaultSrc:     []string{"'self'"},
		ScriptSrc:      []string{"'self'"},
		StyleSrc:       []string{"'self'"},
		ImgSrc:         []string{"'self'", "data:"},
		ConnectSrc:     []string{"'self'"},
		FrameAncestors: []string{"'none'"},
		BaseURI:        []string{"'self'"},
		FormAction:     []string{"'self'"},
	}
}

// APICSPConfig returns a strict CSP for JSON endpoints.
func APICSPConfig() CSPConfig {
	return CSPConfig{
		DefaultSrc:     []string{"'none'"},
		FrameAncestors: []string{"'none'"},
	}
}

// BuildCSPHeader builds a Content-Security-Policy header value from config.
func (cfg CSPConfig) BuildCSPHeader() string {
	var directives []string
	add := func(name string, sources []string) {
		if len(sources) > 0 {
			directives = append(directives, name+" "+strings.Join(sources, " "))
		}
	}

	add("default-src", cfg.DefaultSrc)
	add("script-src", cfg.ScriptSrc)
	add("style-src", cfg.StyleSrc)
	add("img-src", cfg.ImgSrc)
	add("connect-src", cfg.ConnectSrc)
	add("frame-ancestors", cfg.FrameAncestors)
	add("base-uri", cfg.BaseURI)
	add("form-action", cfg.FormAction)
	if cfg.UpgradeInsecureRequests {
		directives = append(directives, "upgrade-insecure-requests")
	}

	return strings.Join(directives, "; ")
}

// SecurityHeadersWithCSP adds the standard security headers plus the
// configured CSP.
func SecurityHeadersWithCSP(cfg CSPConfig, next http.Handler) http.Handler {
	cspHeader := cfg.BuildCSPHeader()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if cspHeader != "" {
			w.Header().Set("Content-Security-Policy", cspHeader)
		}
		next.ServeHTTP(w, r)
	})
}

// SanitizeUserInput trims whitespace and removes control characters.
func SanitizeUserInput(input string) string {
	input = strings.TrimSpace(input)

	var result strings.Builder
	for _, r := range input {
		if r >= 0x20 && r != 0x7f {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// LimitStringLength truncates a string to at most maxLength bytes without
// splitting a UTF-8 sequence.
func LimitStringLength(input string, maxLength int) string {
	if len(input) <= maxLength {
		return input
	}
	cut := maxLength
	for cut > 0 && !isRuneStart(input[cut]) {
		cut--
	}
	return input[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
