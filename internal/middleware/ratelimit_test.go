package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/plantcare/internal/model"
)

func testLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1, // 1 req/sec
		GeneralBurst:    3,
		LoginRate:       0.1,
		LoginBurst:      2,
		CleanupInterval: time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	return req.WithContext(ContextWithCaller(req.Context(), model.Caller{UserID: userID}))
}

// --- GeneralMiddleware ---

func TestGeneralMiddleware_AllowsBurstThenReturns429(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
}

func TestGeneralMiddleware_UsersAreIndependent(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 4; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAs("heavy-user"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("light-user"))
	if w.Code != http.StatusOK {
		t.Errorf("other user status = %d, want 200", w.Code)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("limiter count = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestGeneralMiddleware_WithoutCaller_Returns401(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	defer rl.Stop()

	w := httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// --- LoginMiddleware ---

func TestLoginMiddleware_LimitsPerClientIP(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	defer rl.Stop()
	handler := rl.LoginMiddleware()(okHandler())

	login := func(remoteAddr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	// ポートが異なっても同じIPとして数える
	if got := login("203.0.113.5:1000"); got != http.StatusOK {
		t.Fatalf("1st = %d", got)
	}
	if got := login("203.0.113.5:2000"); got != http.StatusOK {
		t.Fatalf("2nd = %d", got)
	}
	if got := login("203.0.113.5:3000"); got != http.StatusTooManyRequests {
		t.Errorf("3rd = %d, want 429", got)
	}

	if got := login("198.51.100.7:1000"); got != http.StatusOK {
		t.Errorf("other IP = %d, want 200", got)
	}
	if rl.LoginLimiterCount() != 2 {
		t.Errorf("login limiter count = %d, want 2", rl.LoginLimiterCount())
	}
}

func TestClientIP_WithoutPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Errorf("clientIP = %q, want 192.0.2.1", got)
	}
}

// --- cleanup ---

func TestRateLimiter_CleanupEvictsIdleEntries(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestAs("idle-user"))
	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("limiter count = %d, want 1", rl.GeneralLimiterCount())
	}

	rl.cleanup(time.Now())
	if rl.GeneralLimiterCount() != 1 {
		t.Error("recently used entry should be kept")
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.GeneralLimiterCount() != 0 {
		t.Error("idle entry should be evicted")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(NewRateLimiterConfig(6000, 6000))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-"+strconv.Itoa(i%5)))
		}(i)
	}
	wg.Wait()

	if rl.GeneralLimiterCount() != 5 {
		t.Errorf("limiter count = %d, want 5", rl.GeneralLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	if cfg.GeneralBurst != 120 || cfg.LoginBurst != 10 {
		t.Errorf("bursts = %d/%d, want 120/10", cfg.GeneralBurst, cfg.LoginBurst)
	}
}
