package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/dailyquote/internal/observability"
)

type checkerFunc func(ctx context.Context, clientID string, class Class, limit Limit) (Decision, error)

func (f checkerFunc) Check(ctx context.Context, clientID string, class Class, limit Limit) (Decision, error) {
	return f(ctx, clientID, class, limit)
}

func serveGuarded(t *testing.T, checker Checker, req *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	g := NewGuard(checker, zerolog.Nop(), observability.NopMetrics())
	rec := httptest.NewRecorder()
	g.Middleware(ClassManual, LimitFor(ClassManual))(next).ServeHTTP(rec, req)
	return rec, called
}

func TestMiddlewareFailsOpen(t *testing.T) {
	cases := map[string]Checker{
		"error": checkerFunc(func(context.Context, string, Class, Limit) (Decision, error) {
			return Decision{}, errors.New("store down")
		}),
		"panic": checkerFunc(func(context.Context, string, Class, Limit) (Decision, error) {
			panic("boom")
		}),
		"nil": nil,
	}
	for name, checker := range cases {
		t.Run(name, func(t *testing.T) {
			rec, called := serveGuarded(t, checker, httptest.NewRequest(http.MethodPost, "/api/admin/generate", nil))
			if !called {
				t.Fatalf("handler not invoked when limiter failed")
			}
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
		})
	}
}

func TestMiddlewareRejectsSecondManualCall(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := New(NewMemoryStore()).WithClock(clock.Now)

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/admin/generate", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.9")
		return r
	}

	rec, called := serveGuarded(t, l, req())
	if !called || rec.Code != http.StatusOK {
		t.Fatalf("first call = %d called=%v, want 200", rec.Code, called)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("X-RateLimit-Remaining = %q, want 0", got)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Fatalf("X-RateLimit-Limit = %q, want 1", got)
	}

	clock.Advance(10 * time.Second)
	rec, called = serveGuarded(t, l, req())
	if called {
		t.Fatalf("handler invoked for rejected request")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "50" {
		t.Fatalf("Retry-After = %q, want 50", got)
	}
	var body struct {
		Success    bool   `json:"success"`
		Message    string `json:"message"`
		RetryAfter int    `json:"retryAfter"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success || body.RetryAfter != 50 || body.Message == "" {
		t.Fatalf("body = %+v", body)
	}
}
