package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the hijacker for websocket upgrades.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// caller is filled in by the auth middleware further down the chain, which
// cannot hand its context back up to RequestLogger.
type caller struct {
	userID    string
	partnerID int64
}

type callerKey struct{}

func withCaller(ctx context.Context) (context.Context, *caller) {
	c := &caller{}
	return context.WithValue(ctx, callerKey{}, c), c
}

// noteUser and notePartner record who was authenticated for the request log.
func noteUser(r *http.Request, userID string) {
	if c, ok := r.Context().Value(callerKey{}).(*caller); ok {
		c.userID = userID
	}
}

func notePartner(r *http.Request, partnerID int64) {
	if c, ok := r.Context().Value(callerKey{}).(*caller); ok {
		c.partnerID = partnerID
	}
}

// RequestLogger logs one line per request. Scanner calls carry the partner,
// subscriber calls the user, and failures log above info.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx, who := withCaller(r.Context())

			next.ServeHTTP(rec, r.WithContext(ctx))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", RealIP(r)),
			}
			if who.userID != "" {
				attrs = append(attrs, slog.String("user_id", who.userID))
			}
			if who.partnerID != 0 {
				attrs = append(attrs, slog.Int64("partner_id", who.partnerID))
			}
			if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
				attrs = append(attrs, slog.String("idempotency_key", key))
			}

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request", attrs...)
		})
	}
}
