package liveserver

import (
	"net"
	"net/http"
	"net/url"
	"regexp"

	"golang.org/x/time/rate"
)

// Rejection reasons, used as the metric label
const (
	rejectMissingOrigin = "missing_origin"
	rejectInvalidOrigin = "invalid_origin"
	rejectRateLimit     = "rate_limit"
	rejectConnLimit     = "connection_limit"
	rejectBadRun        = "bad_run"
)

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// originPolicy decides which browser origins may open the stream
type originPolicy struct {
	allowed      []string
	production   bool
	allowMissing bool
}

// check returns "" when origin is admitted, otherwise the rejection reason. A wildcard entry
// admits everything outside production.
func (p originPolicy) check(origin string) string {
	if origin == "" {
		if p.allowMissing {
			return ""
		}
		return rejectMissingOrigin
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rejectInvalidOrigin
	}
	normalized := u.Scheme + "://" + u.Host

	for _, allowed := range p.allowed {
		if allowed == "*" && !p.production {
			return ""
		}
		if allowed == normalized {
			return ""
		}
	}
	return rejectInvalidOrigin
}

func (s *Server) checkOrigin(r *http.Request) bool {
	s.mu.Lock()
	policy := originPolicy{allowed: s.allowedOrigins, production: s.production, allowMissing: s.allowMissingOrigin}
	s.mu.Unlock()

	origin := r.Header.Get("Origin")
	reason := policy.check(origin)
	if reason == "" {
		return true
	}
	if s.logger != nil {
		s.logger.Warn("Rejected stream connection", "reason", reason, "origin", origin, "remote_addr", r.RemoteAddr)
	}
	websocketRejectedTotal.WithLabelValues(reason).Inc()
	return false
}

// admit applies the per-IP rate and the global connection cap. The returned release must be
// called when the connection ends.
func (s *Server) admit(r *http.Request) (release func(), reason string) {
	if s.rateLimitEnabled {
		ip := remoteIP(r)
		if !s.ipLimiter(ip).Allow() {
			return nil, rejectRateLimit
		}
	}

	s.mu.Lock()
	sem := s.connSemaphore
	s.mu.Unlock()

	select {
	case sem <- struct{}{}:
		websocketActiveConnections.WithLabelValues(r.URL.Path).Inc()
		return func() {
			<-sem
			websocketActiveConnections.WithLabelValues(r.URL.Path).Dec()
		}, ""
	default:
		return nil, rejectConnLimit
	}
}

func (s *Server) ipLimiter(ip string) *rate.Limiter {
	if val, ok := s.ipLimiters.Load(ip); ok {
		return val.(*rate.Limiter)
	}

	s.mu.Lock()
	limit, burst := s.rateLimit, s.rateBurst
	s.mu.Unlock()

	actual, _ := s.ipLimiters.LoadOrStore(ip, rate.NewLimiter(limit, burst))
	return actual.(*rate.Limiter)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
