package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"servermon/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_AllowsBurstThenBlocks(t *testing.T) {
	h := rateLimit(600, 2)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:1234"

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: want 200, got %d", i, w.Code)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", w.Code)
	}

	// 600/min refills a token in 100ms
	time.Sleep(150 * time.Millisecond)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200 after refill, got %d", w.Code)
	}
}

func TestRateLimit_ClientsAreIndependent(t *testing.T) {
	h := rateLimit(60, 1)(okHandler())

	a := httptest.NewRequest(http.MethodGet, "/", nil)
	a.RemoteAddr = "1.2.3.4:1234"
	b := httptest.NewRequest(http.MethodGet, "/", nil)
	b.RemoteAddr = "5.6.7.8:1234"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, a)
	if w.Code != http.StatusOK {
		t.Fatalf("first client: want 200, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, a)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("first client: want 429, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, b)
	if w.Code != http.StatusOK {
		t.Fatalf("second client must have its own budget, got %d", w.Code)
	}
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	h := rateLimit(0, 0)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:1234"

	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: want 200, got %d", i, w.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	if got := clientIP(r); got != "10.0.0.9" {
		t.Fatalf("want 10.0.0.9, got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.7" {
		t.Fatalf("want first forwarded hop, got %q", got)
	}
}

func TestRateLimitWiredIntoRoutes(t *testing.T) {
	s := New(config.HealthConfig{Listen: ":0", RateLimitPerMin: 2}, testDaemon(), nil, zap.NewNop())
	h := s.Handler()

	if w := get(h, "/status", ""); w.Code != http.StatusOK {
		t.Fatalf("first request: want 200, got %d", w.Code)
	}
	if w := get(h, "/status", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: want 429, got %d", w.Code)
	}
	// liveness has no rate budget
	for i := 0; i < 5; i++ {
		if w := get(h, "/healthz", ""); w.Code != http.StatusOK {
			t.Fatalf("healthz must never be limited, got %d", w.Code)
		}
	}
}
