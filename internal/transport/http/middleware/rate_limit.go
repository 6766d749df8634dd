package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atymri/Promptino/internal/core/port"
	appLogger "github.com/atymri/Promptino/internal/infra/logger"
)

const (
	rateLimitProblemType  = "https://promptino.app/problems/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// IdentifierFunc extracts the key a limit is scoped to. Returning false skips the limit.
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule is a sliding-window limit of Limit requests per Window.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

func (r RateLimitRule) enabled() bool {
	return r.Identifier != nil && r.Limit > 0 && r.Window > 0
}

// ProblemDetails is the RFC 9457 body returned with a 429.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// RateLimiter enforces sliding-window rules against a shared attempt store.
// Store failures are logged and the request is let through.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

type window struct {
	allowed    bool
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

// NewRateLimiter builds a RateLimiter. A nil store disables limiting.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the clock used for window arithmetic.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier scopes a rule to the client IP as resolved by gin.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// Limit returns a middleware enforcing rule. Disabled rules yield a pass-through.
func (rl *RateLimiter) Limit(rule RateLimitRule) gin.HandlerFunc {
	if rl == nil || rl.store == nil || !rule.enabled() {
		return func(c *gin.Context) { c.Next() }
	}
	if rule.Name == "" {
		rule.Name = "default"
	}

	return func(c *gin.Context) {
		identifier, ok := rule.Identifier(c)
		if !ok {
			c.Next()
			return
		}

		key := rule.Name + ":" + identifier
		w, err := rl.evaluate(c, rule, key)
		if err != nil {
			appLogger.WithContext(c.Request.Context(), rl.logger).Warn("rate limit check failed",
				zap.String("rule", rule.Name),
				zap.String("client_ip", appLogger.MaskIP(identifier)),
				zap.Error(err),
			)
			c.Next()
			return
		}

		setRateLimitHeaders(c, rule.Limit, w)
		if !w.allowed {
			rl.reject(c, w)
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) evaluate(c *gin.Context, rule RateLimitRule, key string) (window, error) {
	ctx := c.Request.Context()
	now := rl.now()

	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return window{}, fmt.Errorf("trim window: %w", err)
	}
	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return window{}, fmt.Errorf("count attempts: %w", err)
	}
	oldest, found, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return window{}, fmt.Errorf("oldest attempt: %w", err)
	}

	w := window{reset: now.Add(rule.Window)}
	if found {
		w.reset = oldest.Add(rule.Window)
	}
	w.retryAfter = max(w.reset.Sub(now), 0)

	if count >= rule.Limit {
		return w, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return window{}, fmt.Errorf("record attempt: %w", err)
	}
	w.allowed = true
	w.remaining = max(rule.Limit-count-1, 0)
	return w, nil
}

func setRateLimitHeaders(c *gin.Context, limit int, w window) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(w.remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(w.reset.Unix(), 10))
	if !w.allowed {
		c.Header("Retry-After", strconv.Itoa(retrySeconds(w.retryAfter)))
	}
}

func (rl *RateLimiter) reject(c *gin.Context, w window) {
	seconds := retrySeconds(w.retryAfter)
	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}

func retrySeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 0)
}
