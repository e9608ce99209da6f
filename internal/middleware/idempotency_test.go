package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/auth"
)

type memCache struct {
	mu      sync.Mutex
	values  map[string]string
	failing bool
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string]string)}
}

func (m *memCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return "", false, errors.New("connection refused")
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memCache) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, errors.New("connection refused")
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	return true, nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// countingHandler answers with an incrementing counter.
func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"call":%d}`, *calls)
	})
}

func idempotentRequest(partnerID int64, key string) *http.Request {
	req := httptest.NewRequest("POST", "/api/scanner/redeem", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req.WithContext(auth.WithPartner(req.Context(), partnerID))
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	var calls int
	h := Idempotency(newMemCache(), discard)(countingHandler(&calls, http.StatusOK))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(1, "abc"))
	if rec.Body.String() != `{"call":1}` {
		t.Fatalf("first body = %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(1, "abc"))
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if rec.Body.String() != `{"call":1}` {
		t.Errorf("replayed body = %q, want %q", rec.Body.String(), `{"call":1}`)
	}
	if rec.Header().Get("X-Idempotency-Replayed") != "true" {
		t.Error("expected X-Idempotency-Replayed header")
	}
}

// racingCache runs before once, just ahead of the first lock attempt.
type racingCache struct {
	*memCache
	before func()
}

func (r *racingCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if f := r.before; f != nil {
		r.before = nil
		f()
	}
	return r.memCache.SetNX(ctx, key, value, ttl)
}

func TestIdempotencyRechecksAfterLock(t *testing.T) {
	c := &racingCache{memCache: newMemCache()}
	var calls int
	h := Idempotency(c, discard)(countingHandler(&calls, http.StatusOK))

	// The duplicate completes between the first request's lookup and its lock.
	c.before = func() {
		h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(1, "abc"))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(1, "abc"))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if rec.Body.String() != `{"call":1}` {
		t.Errorf("body = %q, want replayed %q", rec.Body.String(), `{"call":1}`)
	}
	if rec.Header().Get("X-Idempotency-Replayed") != "true" {
		t.Error("expected X-Idempotency-Replayed header")
	}
}

func TestIdempotencyReplaysClientErrors(t *testing.T) {
	var calls int
	h := Idempotency(newMemCache(), discard)(countingHandler(&calls, http.StatusConflict))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, idempotentRequest(1, "k"))
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
		}
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIdempotencyDoesNotStoreServerErrors(t *testing.T) {
	var calls int
	h := Idempotency(newMemCache(), discard)(countingHandler(&calls, http.StatusInternalServerError))

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(1, "k"))
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestIdempotencyKeysAreScopedPerPartner(t *testing.T) {
	var calls int
	h := Idempotency(newMemCache(), discard)(countingHandler(&calls, http.StatusOK))

	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(1, "same"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(2, "same"))

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if rec.Header().Get("X-Idempotency-Replayed") != "" {
		t.Error("another partner's response was replayed")
	}
}

func TestIdempotencyWithoutKeyPassesThrough(t *testing.T) {
	var calls int
	h := Idempotency(newMemCache(), discard)(countingHandler(&calls, http.StatusOK))

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(1, ""))
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestIdempotencyInFlightConflict(t *testing.T) {
	c := newMemCache()
	var calls int
	h := Idempotency(c, discard)(countingHandler(&calls, http.StatusOK))

	req := idempotentRequest(1, "busy")
	c.SetNX(context.Background(), "idempotency:"+PartnerOrIP(req)+":/api/scanner/redeem:busy:lock", "1", time.Minute)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestIdempotencyCacheDownServesRequest(t *testing.T) {
	c := newMemCache()
	c.failing = true
	var calls int
	h := Idempotency(c, discard)(countingHandler(&calls, http.StatusOK))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(1, "k"))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIdempotencyIgnoresGet(t *testing.T) {
	var calls int
	h := Idempotency(newMemCache(), discard)(countingHandler(&calls, http.StatusOK))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/api/scanner/items/x/status", nil)
		req.Header.Set(IdempotencyKeyHeader, "k")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
