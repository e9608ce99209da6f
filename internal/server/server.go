package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/auth"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/cache"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/handler"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/middleware"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/redemption"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/store"
	ws "github.com/tripzydevops/tripzytravelanti-sub001/internal/websocket"
)

type Options struct {
	ScannerRateLimit  int
	ScannerRateWindow time.Duration
	OriginPatterns    []string
	// Cache enables Idempotency-Key handling on scanner redeems. Optional.
	Cache cache.Cache
	// Redis is reported by /health when set.
	Redis handler.Pinger
}

type Server struct {
	hub         *ws.Hub
	verifier    *middleware.TokenVerifier
	partners    *store.PartnerStore
	rateLimiter *middleware.RateLimiter
	dealH       *handler.DealHandler
	walletH     *handler.WalletHandler
	scannerH    *handler.ScannerHandler
	healthH     *handler.HealthHandler
	opts        Options
	logger      *slog.Logger
}

func New(db *sql.DB, svc *redemption.Service, hub *ws.Hub, verifier *middleware.TokenVerifier, opts Options, logger *slog.Logger) *Server {
	if opts.ScannerRateWindow == 0 {
		opts.ScannerRateWindow = time.Minute
	}
	return &Server{
		hub:         hub,
		verifier:    verifier,
		partners:    store.NewPartnerStore(db),
		rateLimiter: middleware.NewRateLimiter(),
		dealH:       handler.NewDealHandler(svc),
		walletH:     handler.NewWalletHandler(svc),
		scannerH:    handler.NewScannerHandler(svc),
		healthH:     handler.NewHealthHandler(db, opts.Redis),
		opts:        opts,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	authLogger := s.logger.With("component", "auth")

	mux.HandleFunc("GET /health", s.healthH.Health)

	// Catalog: anonymous browsing allowed
	optional := middleware.OptionalUser(s.verifier, authLogger)
	mux.Handle("GET /api/deals", optional(http.HandlerFunc(s.dealH.List)))
	mux.Handle("GET /api/deals/{id}", optional(http.HandlerFunc(s.dealH.Get)))

	// Subscriber routes
	userMux := http.NewServeMux()
	s.registerUserRoutes(userMux)
	requireUser := middleware.RequireUser(s.verifier, authLogger)
	mux.Handle("/api/wallet", requireUser(userMux))
	mux.Handle("/api/wallet/", requireUser(userMux))
	mux.Handle("/api/quota", requireUser(userMux))
	mux.Handle("GET /ws", requireUser(ws.HandleWebSocket(s.hub, func(r *http.Request) string {
		return auth.UserID(r.Context())
	}, s.opts.OriginPatterns, s.logger.With("component", "websocket"))))

	// Partner scanner routes
	scannerMux := http.NewServeMux()
	s.registerScannerRoutes(scannerMux)
	mux.Handle("/api/scanner/", middleware.RequirePartner(s.partners, authLogger)(scannerMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) registerUserRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/wallet", s.walletH.List)
	mux.HandleFunc("POST /api/wallet/claim", s.walletH.Claim)
	mux.HandleFunc("GET /api/quota", s.walletH.Quota)
	mux.HandleFunc("POST /api/wallet/{id}/redeem", s.walletH.Redeem)
	mux.HandleFunc("GET /api/wallet/{id}/qr", s.walletH.QR)
	mux.HandleFunc("GET /api/wallet/{id}/status", s.walletH.Status)
	mux.HandleFunc("POST /api/wallet/{id}/confirm", s.walletH.Confirm)
	mux.HandleFunc("POST /api/wallet/{id}/deny", s.walletH.Deny)
}

func (s *Server) registerScannerRoutes(mux *http.ServeMux) {
	redeem := http.Handler(http.HandlerFunc(s.scannerH.Redeem))
	if s.opts.Cache != nil {
		redeem = middleware.Idempotency(s.opts.Cache, s.logger.With("component", "idempotency"))(redeem)
	}
	if s.opts.ScannerRateLimit > 0 {
		redeem = middleware.RateLimit(s.rateLimiter, middleware.PartnerOrIP, s.opts.ScannerRateLimit, s.opts.ScannerRateWindow)(redeem)
	}
	mux.Handle("POST /api/scanner/redeem", redeem)
	mux.HandleFunc("GET /api/scanner/items/{id}/status", s.scannerH.Status)
}
