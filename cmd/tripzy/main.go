package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/cache"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/config"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/database"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/logging"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/middleware"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/redemption"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/server"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/store"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/sweeper"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/websocket"
)

// commands are one-shot operator tasks run instead of the server.
var commands = map[string]func(args []string) error{
	"create-partner": createPartner,
	"set-user":       setUser,
}

func main() {
	if len(os.Args) > 1 {
		if cmd, ok := commands[os.Args[1]]; ok {
			if err := cmd(os.Args[2:]); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			return
		}
	}

	configPath := flag.String("config", os.Getenv("TRIPZY_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(logger.With("component", "websocket"))
	svc := redemption.New(db, logger.With("component", "redemption"),
		redemption.WithNotifier(hub),
		redemption.WithQuotaTable(cfg.QuotaTable()),
		redemption.WithHighValueThreshold(cfg.Redeem.HighValueThreshold),
	)

	opts := server.Options{
		ScannerRateLimit:  cfg.Scanner.RateLimit,
		ScannerRateWindow: cfg.Scanner.RateWindow,
		OriginPatterns:    cfg.Websocket.OriginPatterns,
	}
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rc.Close()
		opts.Cache = rc
		opts.Redis = rc
		logger.Info("scanner idempotency enabled", "redis", cfg.Redis.Addr)
	} else {
		logger.Warn("redis not configured; scanner redeems are not idempotent")
	}

	srv := server.New(db, svc, hub, middleware.NewTokenVerifier(cfg.Auth.Secret, cfg.Auth.Issuer), opts, logger)

	sw := sweeper.New(svc, cfg.SweepInterval, logger.With("component", "sweeper"), srv.RateLimiter())
	sw.Sweep(ctx)
	sw.Start(ctx)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("tripzy starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	sw.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// createPartner registers a scanner partner and prints its key once. Only
// the bcrypt hash is stored.
func createPartner(args []string) error {
	fs := flag.NewFlagSet("create-partner", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("TRIPZY_CONFIG"), "path to YAML config file")
	name := fs.String("name", "", "partner display name")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		return errors.New("create-partner: -name is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	p, secret, err := store.NewPartnerStore(db).Create(context.Background(), strings.TrimSpace(*name))
	if err != nil {
		return err
	}
	fmt.Printf("partner %d (%s)\nscanner key: %d.%s\n", p.ID, p.Name, p.ID, secret)
	return nil
}

// setUser creates or updates a member's subscription state. Flags left at
// their zero value are not touched.
func setUser(args []string) error {
	fs := flag.NewFlagSet("set-user", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("TRIPZY_CONFIG"), "path to YAML config file")
	id := fs.String("id", "", "user ID (auth subject)")
	tierName := fs.String("tier", "", "subscription tier: NONE, FREE, BASIC, PREMIUM or VIP")
	start := fs.String("start", "", "subscription start date, YYYY-MM-DD (default today when -tier is set)")
	walletLimit := fs.String("wallet-limit", "", "wallet ceiling override, or \"default\" to clear it")
	extra := fs.Int("extra", 0, "bonus redemptions to add")
	fs.Parse(args)

	if strings.TrimSpace(*id) == "" {
		return errors.New("set-user: -id is required")
	}
	t := model.Tier(strings.ToUpper(*tierName))
	if *tierName != "" && !t.Valid() {
		return fmt.Errorf("set-user: unknown tier %q", *tierName)
	}
	var limit *int
	if *walletLimit != "" && *walletLimit != "default" {
		n, err := strconv.Atoi(*walletLimit)
		if err != nil || n < 0 {
			return fmt.Errorf("set-user: invalid -wallet-limit %q", *walletLimit)
		}
		limit = &n
	}
	startAt := time.Now().UTC()
	if *start != "" {
		d, err := time.Parse(time.DateOnly, *start)
		if err != nil {
			return fmt.Errorf("set-user: invalid -start: %w", err)
		}
		startAt = d
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	users := store.NewUserStore(db)
	u, err := users.GetByID(ctx, *id)
	if err != nil {
		return err
	}
	if u == nil {
		if _, err := users.Create(ctx, model.User{ID: *id}); err != nil {
			return err
		}
	}
	if *tierName != "" {
		if err := users.UpdateSubscription(ctx, *id, t, &startAt); err != nil {
			return err
		}
	}
	if *walletLimit != "" {
		if err := users.SetWalletLimit(ctx, *id, limit); err != nil {
			return err
		}
	}
	if *extra != 0 {
		if err := users.AddExtraRedemptions(ctx, *id, *extra); err != nil {
			return err
		}
	}

	u, err = users.GetByID(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Printf("user %s: tier=%s extra=%d\n", u.ID, u.Tier, u.ExtraRedemptions)
	return nil
}
