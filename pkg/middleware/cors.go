// Package middleware carries the HTTP middleware shared by the chat API.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSConfig holds cross-origin policy for the browser-facing chat API.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// CORS enforces the cross-origin policy. Disallowed origins get no CORS
// headers at all rather than headers with empty values.
type CORS struct {
	allowedOrigins   []string
	allowedMethods   []string
	allowedHeaders   []string
	allowCredentials bool
	maxAge           int
	logger           *slog.Logger
}

// NewCORS creates the middleware. Methods and headers default to what the
// chat endpoints actually use; origins have no default and must be
// configured.
func NewCORS(config CORSConfig) *CORS {
	if len(config.AllowedMethods) == 0 {
		config.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	}
	if len(config.AllowedHeaders) == 0 {
		config.AllowedHeaders = []string{"Content-Type", "Accept", "Last-Event-ID"}
	}

	maxAge := int(config.MaxAge.Seconds())
	if maxAge == 0 {
		maxAge = 3600
	}

	return &CORS{
		allowedOrigins:   config.AllowedOrigins,
		allowedMethods:   config.AllowedMethods,
		allowedHeaders:   config.AllowedHeaders,
		allowCredentials: config.AllowCredentials,
		maxAge:           maxAge,
		logger:           slog.Default().With("component", "cors"),
	}
}

// Middleware wraps next with the CORS policy, answering preflight requests
// directly.
func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if !c.originAllowed(origin) {
			c.logger.Warn("Cross-origin request blocked",
				"origin", origin,
				"method", r.Method,
				"path", r.URL.Path,
			)
			next.ServeHTTP(w, r)
			return
		}

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(c.allowedMethods, ", "))
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(c.allowedHeaders, ", "))
		if c.allowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(c.maxAge))

		if r.Method == http.MethodOptions {
			requested := r.Header.Get("Access-Control-Request-Method")
			if requested != "" && !c.methodAllowed(requested) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (c *CORS) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range c.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (c *CORS) methodAllowed(method string) bool {
	for _, allowed := range c.allowedMethods {
		if allowed == method {
			return true
		}
	}
	return false
}

// ValidateCORSConfig rejects configurations that would be unsafe to serve.
func ValidateCORSConfig(config CORSConfig) error {
	for _, origin := range config.AllowedOrigins {
		if origin == "*" && config.AllowCredentials {
			return fmt.Errorf("wildcard origin cannot be combined with credentials")
		}
		if strings.Contains(origin, "*") && origin != "*" {
			return fmt.Errorf("partial wildcard origin %q is not supported", origin)
		}
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("origin %q must start with http:// or https://", origin)
		}
	}
	return nil
}
