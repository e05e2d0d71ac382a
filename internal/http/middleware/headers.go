package middleware

import (
	"net/http"
	"strconv"

	"github.com/tendant/simple-idm-recovery/internal/config"
)

type header struct{ name, value string }

// SecurityHeaders sets the configured response headers. Responses are
// also marked uncacheable since they may echo session or recovery state.
func SecurityHeaders(cfg config.SecurityHeadersConfig) func(http.Handler) http.Handler {
	headers := []header{{"Cache-Control", "no-store"}}
	if cfg.Enabled {
		headers = appendIfSet(headers,
			header{"Content-Security-Policy", cfg.CSP},
			header{"X-Frame-Options", cfg.FrameOptions},
			header{"X-Content-Type-Options", cfg.ContentTypeOptions},
			header{"X-XSS-Protection", cfg.XSSProtection},
			header{"Referrer-Policy", cfg.ReferrerPolicy},
			header{"Permissions-Policy", cfg.PermissionsPolicy},
		)
		if cfg.HSTSMaxAge > 0 {
			headers = append(headers, header{"Strict-Transport-Security", "max-age=" + strconv.Itoa(cfg.HSTSMaxAge) + "; includeSubDomains"})
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, hdr := range headers {
				h.Set(hdr.name, hdr.value)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func appendIfSet(dst []header, hs ...header) []header {
	for _, h := range hs {
		if h.value != "" {
			dst = append(dst, h)
		}
	}
	return dst
}

// RequestSizeLimit caps request bodies at maxBytes. A non-positive limit
// disables the cap. Handlers decoding with httputil.DecodeJSON answer 413
// once it is exceeded.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
