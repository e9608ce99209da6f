package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/auth"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
)

// PartnerKeyHeader carries a scanner's "<partner id>.<secret>" key.
const PartnerKeyHeader = "X-Partner-Key"

// TokenVerifier checks bearer tokens issued by the auth provider. Tokens are
// HS256 with the subscriber ID in "sub".
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify returns the subject of a valid token.
func (v *TokenVerifier) Verify(raw string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	// Browsers cannot set headers on a websocket upgrade.
	if r.URL.Path == "/ws" {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// RequireUser rejects requests without a valid bearer token and stores the
// subscriber ID in the request context.
func RequireUser(v *TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			sub, err := v.Verify(raw)
			if err != nil {
				logger.Debug("rejected token", "error", err, "remote", RealIP(r))
				unauthorized(w, "invalid token")
				return
			}
			noteUser(r, sub)
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), sub)))
		})
	}
}

// OptionalUser attaches the subscriber when a valid token is present and
// lets anonymous requests through. An invalid token is still rejected.
func OptionalUser(v *TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	require := RequireUser(v, logger)
	return func(next http.Handler) http.Handler {
		authed := require(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearerToken(r) == "" {
				next.ServeHTTP(w, r)
				return
			}
			authed.ServeHTTP(w, r)
		})
	}
}

// PartnerAuthenticator is implemented by *store.PartnerStore.
type PartnerAuthenticator interface {
	Authenticate(ctx context.Context, id int64, secret string) (*model.Partner, error)
}

// RequirePartner authenticates scanner requests by their partner key.
func RequirePartner(partners PartnerAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, secret, ok := parsePartnerKey(r.Header.Get(PartnerKeyHeader))
			if !ok {
				unauthorized(w, "missing or malformed partner key")
				return
			}
			p, err := partners.Authenticate(r.Context(), id, secret)
			if err != nil {
				logger.Error("authenticate partner", "error", err, "partner_id", id)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if p == nil {
				logger.Warn("rejected partner key", "partner_id", id, "remote", RealIP(r))
				unauthorized(w, "invalid partner key")
				return
			}
			notePartner(r, p.ID)
			next.ServeHTTP(w, r.WithContext(auth.WithPartner(r.Context(), p.ID)))
		})
	}
}

func parsePartnerKey(key string) (int64, string, bool) {
	idPart, secret, found := strings.Cut(key, ".")
	if !found || secret == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, secret, true
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
