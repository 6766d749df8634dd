package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	redisrepo "github.com/atymri/Promptino/internal/repository/redis"
)

type fakeRateLimitStore struct {
	trimErr   error
	count     int
	countErr  error
	oldest    time.Time
	hasOldest bool
	oldestErr error
	recordErr error

	keys        []string
	recordCalls int
}

func (f *fakeRateLimitStore) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	f.keys = append(f.keys, identifier)
	return f.trimErr
}

func (f *fakeRateLimitStore) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	return f.count, f.countErr
}

func (f *fakeRateLimitStore) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	f.recordCalls++
	return f.recordErr
}

func (f *fakeRateLimitStore) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	return f.oldest, f.hasOldest, f.oldestErr
}

var limiterNow = time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)

func loginRule() RateLimitRule {
	return RateLimitRule{
		Name:   "auth_login_ip",
		Limit:  5,
		Window: time.Minute,
		Identifier: func(c *gin.Context) (string, bool) {
			return "192.0.2.1", true
		},
	}
}

func newLimitedRouter(t *testing.T, limiter *RateLimiter, rule RateLimitRule) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/api/v1/auth/login", limiter.Limit(rule), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func postLogin(router *gin.Engine) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
	return rr
}

func TestRateLimiterAllowsWhenBelowLimit(t *testing.T) {
	oldest := limiterNow.Add(-30 * time.Second)
	store := &fakeRateLimitStore{count: 2, oldest: oldest, hasOldest: true}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return limiterNow })

	rr := postLogin(newLimitedRouter(t, limiter, loginRule()))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if store.recordCalls != 1 {
		t.Fatalf("expected one recorded attempt, got %d", store.recordCalls)
	}
	if len(store.keys) != 1 || store.keys[0] != "auth_login_ip:192.0.2.1" {
		t.Fatalf("unexpected store keys %v", store.keys)
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("expected limit header 5, got %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Fatalf("expected remaining header 2, got %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(oldest.Add(time.Minute).Unix(), 10) {
		t.Fatalf("unexpected reset header %q", got)
	}
	if got := rr.Header().Get("Retry-After"); got != "" {
		t.Fatalf("expected no retry-after header, got %q", got)
	}
}

func TestRateLimiterBlocksWhenLimitExceeded(t *testing.T) {
	store := &fakeRateLimitStore{count: 5, oldest: limiterNow.Add(-30 * time.Second), hasOldest: true}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return limiterNow })

	rr := postLogin(newLimitedRouter(t, limiter, loginRule()))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if store.recordCalls != 0 {
		t.Fatalf("expected no recorded attempt when blocked, got %d", store.recordCalls)
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected retry-after 30, got %q", got)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if problem.Type != rateLimitProblemType || problem.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected problem %+v", problem)
	}
	if problem.RetryAfter != 30 {
		t.Fatalf("expected retry_after 30, got %d", problem.RetryAfter)
	}
	if problem.Instance != "/api/v1/auth/login" {
		t.Fatalf("expected route as instance, got %q", problem.Instance)
	}
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	store := &fakeRateLimitStore{trimErr: errors.New("redis down")}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return limiterNow })

	rr := postLogin(newLimitedRouter(t, limiter, loginRule()))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 when failing open, got %d", rr.Code)
	}
	if store.recordCalls != 0 {
		t.Fatalf("expected no recorded attempt on failure, got %d", store.recordCalls)
	}
}

func TestRateLimiterDisabledRuleIsPassThrough(t *testing.T) {
	store := &fakeRateLimitStore{count: 100}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t))

	rule := loginRule()
	rule.Limit = 0

	rr := postLogin(newLimitedRouter(t, limiter, rule))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(store.keys) != 0 {
		t.Fatalf("expected store untouched, got %v", store.keys)
	}
}

func TestRateLimiterWithRedisStore(t *testing.T) {
	server := miniredis.RunT(t)
	client := red.NewClient(&red.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisrepo.NewRateLimitRepository(client, redisrepo.SlidingWindowConfig{
		KeyPrefix: "promptino:ratelimit",
		TTL:       time.Hour,
	})

	now := limiterNow
	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	rule := loginRule()
	rule.Limit = 2
	router := newLimitedRouter(t, limiter, rule)

	for i := 0; i < 2; i++ {
		if rr := postLogin(router); rr.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i+1, rr.Code)
		}
		now = now.Add(10 * time.Second)
	}

	if rr := postLogin(router); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected third attempt to be limited, got %d", rr.Code)
	}

	now = limiterNow.Add(61 * time.Second)
	if rr := postLogin(router); rr.Code != http.StatusOK {
		t.Fatalf("expected attempt after the first slid out to pass, got %d", rr.Code)
	}
}
