package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
)

// RequestIDHeader is echoed on every response
const RequestIDHeader = "X-Request-ID"

// Middleware authenticates HTTP requests by the x-api-key header or a Bearer token. Paths in
// open bypass authentication. When no keys are configured every request passes.
func (v *APIKeyValidator) Middleware(open ...string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(open))
	for _, p := range open {
		bypass[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithRequestID(r.Context(), r.Header.Get(RequestIDHeader))
			w.Header().Set(RequestIDHeader, RequestID(ctx))
			r = r.WithContext(ctx)

			if !v.Enabled() || bypass[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if err := v.authorize(httpAPIKey(r), r.Method+" "+r.URL.Path, RequestID(ctx), httpClientIP(r)); err != nil {
				code := http.StatusUnauthorized
				if errors.Is(err, errRateLimited) {
					code = http.StatusTooManyRequests
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(code)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func httpAPIKey(r *http.Request) string {
	if k := r.Header.Get(MetadataKeyAPIKey); k != "" {
		return k
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func httpClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
