package httputil

import (
	"net/http"
	"sync"
	"time"

	"github.com/element-hq/typingserver/setup/config"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

var (
	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "typingserver",
			Subsystem: "clientapi",
			Name:      "rate_limit_rejections",
			Help:      "Total number of requests rejected by rate limiting",
		},
		[]string{"endpoint"},
	)
	rateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "typingserver",
			Subsystem: "clientapi",
			Name:      "rate_limit_allowed",
			Help:      "Total number of requests allowed by rate limiting",
		},
		[]string{"endpoint"},
	)
)

var registerRateLimiterMetrics sync.Once

func init() {
	registerRateLimiterMetrics.Do(func() {
		prometheus.MustRegister(rateLimitRejections, rateLimitAllowed)
	})
}

type limiterConfig struct {
	threshold int64
	cooloff   time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimits gates state-changing requests per sender using token buckets.
// Entries for idle senders are cleaned up in the background.
type RateLimits struct {
	limits        map[string]*limiterEntry
	mutex         sync.Mutex
	enabled       bool
	cfg           limiterConfig
	exemptUserIDs map[string]struct{}
	cleanupDone   chan struct{} // Signal channel to stop cleanup goroutine
}

func NewRateLimits(cfg *config.RateLimiting) *RateLimits {
	l := &RateLimits{
		limits:      make(map[string]*limiterEntry),
		enabled:     cfg.Enabled,
		cleanupDone: make(chan struct{}),
		cfg: limiterConfig{
			threshold: cfg.Threshold,
			cooloff:   time.Duration(cfg.CooloffMS) * time.Millisecond,
		},
		exemptUserIDs: map[string]struct{}{},
	}
	for _, userID := range cfg.ExemptUserIDs {
		l.exemptUserIDs[userID] = struct{}{}
	}
	if l.enabled {
		go l.clean()
	}
	return l
}

// clean runs periodically to remove rate limiter entries for senders that
// have not been seen recently, so the limits map cannot grow without bound.
func (l *RateLimits) clean() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-l.cleanupDone:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Minute)
			l.mutex.Lock()
			for key, entry := range l.limits {
				if entry.lastSeen.Before(cutoff) {
					delete(l.limits, key)
				}
			}
			l.mutex.Unlock()
		}
	}
}

// Stop gracefully stops the cleanup goroutine. Safe to call multiple times.
func (l *RateLimits) Stop() {
	if l.enabled && l.cleanupDone != nil {
		select {
		case <-l.cleanupDone:
			// Already closed, do nothing
		default:
			close(l.cleanupDone)
		}
	}
}

// Limit returns a rate-limit error response if the sender has exceeded their
// allowance, or nil if the request may proceed. No state is mutated when a
// request is rejected.
func (l *RateLimits) Limit(req *http.Request, senderUserID string) *util.JSONResponse {
	endpoint := endpointLabel(req)

	// If rate limiting is disabled then do nothing.
	if !l.enabled {
		rateLimitAllowed.WithLabelValues(endpoint).Inc()
		return nil
	}

	if _, ok := l.exemptUserIDs[senderUserID]; ok {
		rateLimitAllowed.WithLabelValues(endpoint).Inc()
		return nil
	}

	// Fall back to the remote address when there is no authenticated user,
	// so unauthenticated paths still get limited by something.
	caller := senderUserID
	if caller == "" && req != nil {
		caller = req.RemoteAddr
	}

	limiter, block := l.getLimiter(caller)
	if block || (limiter != nil && !limiter.Allow()) {
		rateLimitRejections.WithLabelValues(endpoint).Inc()
		return &util.JSONResponse{
			Code: http.StatusTooManyRequests,
			JSON: spec.LimitExceeded("You are sending too many requests too quickly!", l.cfg.cooloff.Milliseconds()),
		}
	}

	rateLimitAllowed.WithLabelValues(endpoint).Inc()
	return nil
}

// getLimiter retrieves or creates a rate limiter for the given sender. The
// token bucket refills at threshold requests per cooloff period and allows
// bursts up to the threshold. It returns (nil, true) when the configured
// threshold blocks everything, and (nil, false) when a non-positive cooloff
// disables limiting for this config.
func (l *RateLimits) getLimiter(key string) (*rate.Limiter, bool) {
	if l.cfg.threshold <= 0 {
		return nil, true
	}

	if l.cfg.cooloff <= 0 {
		return nil, false
	}

	burst := int(l.cfg.threshold)
	if burst < 1 {
		burst = 1
	}

	requestsPerSecond := rate.Limit(float64(l.cfg.threshold) * float64(time.Second) / float64(l.cfg.cooloff))
	if requestsPerSecond <= 0 {
		requestsPerSecond = rate.Limit(1)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	entry, ok := l.limits[key]
	if ok {
		entry.lastSeen = time.Now()
		return entry.limiter, false
	}

	limiter := rate.NewLimiter(requestsPerSecond, burst)
	l.limits[key] = &limiterEntry{
		limiter:  limiter,
		lastSeen: time.Now(),
	}

	return limiter, false
}

func endpointLabel(req *http.Request) string {
	if req == nil || req.URL == nil {
		return "unknown"
	}
	return req.URL.Path
}
