package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/cache"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	IdempotencyTTL       = 24 * time.Hour

	// idempotencyLockTTL bounds how long a crashed request holds its key.
	idempotencyLockTTL = 30 * time.Second
	maxIdempotencyKey  = 128
)

type cachedResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// bodyRecorder copies the response body while passing it through.
type bodyRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *bodyRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated Idempotency-Key so
// a scanner retrying after a dropped connection cannot redeem twice. Keys
// are scoped per caller. Requests without a key pass through. Server errors
// are not stored, so the retry runs again.
func Idempotency(c cache.Cache, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKey {
				writeError(w, http.StatusBadRequest, "Idempotency-Key is too long")
				return
			}

			ctx := r.Context()
			cacheKey := "idempotency:" + PartnerOrIP(r) + ":" + r.URL.Path + ":" + key

			cached, found, err := c.Get(ctx, cacheKey)
			if err != nil {
				logger.Warn("idempotency lookup", "error", err)
			}
			if found && replay(w, cached) {
				return
			}

			lockKey := cacheKey + ":lock"
			acquired, err := c.SetNX(ctx, lockKey, "1", idempotencyLockTTL)
			if err != nil {
				// Redis is down: serve the request unprotected rather than fail it.
				logger.Warn("idempotency lock", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				writeError(w, http.StatusConflict, "a request with this Idempotency-Key is in progress")
				return
			}
			defer c.Delete(ctx, lockKey)

			// A duplicate may have finished between the lookup and the lock.
			if cached, found, _ := c.Get(ctx, cacheKey); found && replay(w, cached) {
				return
			}

			rec := &bodyRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= 500 {
				return
			}
			resp := cachedResponse{
				StatusCode: rec.statusCode,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       rec.body.String(),
			}
			b, err := json.Marshal(resp)
			if err != nil {
				return
			}
			if err := c.Set(ctx, cacheKey, string(b), IdempotencyTTL); err != nil {
				logger.Warn("idempotency store", "error", err)
			}
		})
	}
}

// replay writes a stored response. It reports false if the entry is unreadable.
func replay(w http.ResponseWriter, cached string) bool {
	var resp cachedResponse
	if err := json.Unmarshal([]byte(cached), &resp); err != nil {
		return false
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("X-Idempotency-Replayed", "true")
	w.WriteHeader(resp.StatusCode)
	w.Write([]byte(resp.Body))
	return true
}
