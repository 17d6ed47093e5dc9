package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/retroquest/storefront-backend/api/responses"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/logger"
	"github.com/retroquest/storefront-backend/pkg/redis"
)

type throttleStore interface {
	Throttle(ctx context.Context, scope string, limit int64, window time.Duration) (redis.Window, error)
}

// RateLimitPolicy is one request budget. A request is counted against every
// policy whose matcher accepts it.
type RateLimitPolicy struct {
	name   string
	window time.Duration
	limit  int
	match  func(*http.Request) bool
}

// APIPolicy budgets every authenticated request.
func APIPolicy(window time.Duration, limit int) RateLimitPolicy {
	return RateLimitPolicy{name: "api", window: window, limit: limit}
}

// CheckoutPolicy budgets order placement on top of APIPolicy.
func CheckoutPolicy(window time.Duration, limit int) RateLimitPolicy {
	return RateLimitPolicy{
		name:   "checkout",
		window: window,
		limit:  limit,
		match: func(r *http.Request) bool {
			return r.Method == http.MethodPost && strings.TrimSuffix(r.URL.Path, "/") == "/api/orders"
		},
	}
}

func (p RateLimitPolicy) applies(r *http.Request) bool {
	if p.window <= 0 || p.limit <= 0 {
		return false
	}
	return p.match == nil || p.match(r)
}

// subject identifies the caller: the user when authenticated, else the client IP.
func subject(r *http.Request) (string, string) {
	if userID := UserIDFromContext(r.Context()); userID != "" {
		return "user:" + userID, "user"
	}
	if ip := clientIP(r); ip != "" {
		return "ip:" + ip, "ip"
	}
	return "", ""
}

// RateLimit rejects callers that exhausted any applicable policy with 429.
// Store failures let the request through.
func RateLimit(store throttleStore, logg *logger.Logger, policies ...RateLimitPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || len(policies) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			who, kind := subject(r)
			if who == "" {
				next.ServeHTTP(w, r)
				return
			}
			for _, policy := range policies {
				if !policy.applies(r) {
					continue
				}
				window, err := store.Throttle(ctx, policy.name+":"+who, int64(policy.limit), policy.window)
				if err != nil {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{"policy": policy.name, "error": err.Error()}), "rate_limit.store_unavailable")
					}
					continue
				}
				if !window.Allowed {
					rejectThrottled(ctx, logg, w, policy, kind, window)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectThrottled(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, kind string, window redis.Window) {
	retryAfter := retryAfterSeconds(window.ResetIn, policy.window)
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":      policy.name,
			"scope":       kind,
			"attempts":    window.Count,
			"limit":       policy.limit,
			"retry_after": retryAfter,
		}), "rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded").
		WithDetails(map[string]any{"policy": policy.name, "retry_after_seconds": retryAfter}))
}

func retryAfterSeconds(resetIn, window time.Duration) int {
	if resetIn <= 0 {
		resetIn = window
	}
	return int(math.Max(1, math.Ceil(resetIn.Seconds())))
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
