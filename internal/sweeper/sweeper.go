// Package sweeper runs periodic housekeeping: writing the expired status for
// lapsed wallet items and dropping confirmations whose window has closed.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultInterval = time.Minute

// Expirer is implemented by *redemption.Service.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
	PurgeConfirmations(ctx context.Context) (int, error)
}

// Cleaner is implemented by *middleware.RateLimiter.
type Cleaner interface {
	Cleanup()
}

type Sweeper struct {
	mu       sync.RWMutex
	expirer  Expirer
	cleaners []Cleaner
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(expirer Expirer, interval time.Duration, logger *slog.Logger, cleaners ...Cleaner) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		expirer:  expirer,
		cleaners: cleaners,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	expired, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("expire wallet items", "error", err)
	} else if expired > 0 {
		s.logger.Info("expired wallet items", "count", expired)
	}

	purged, err := s.expirer.PurgeConfirmations(ctx)
	if err != nil {
		s.logger.Error("purge confirmations", "error", err)
	} else if purged > 0 {
		s.logger.Debug("purged confirmations", "count", purged)
	}

	for _, c := range s.cleaners {
		c.Cleanup()
	}
}
