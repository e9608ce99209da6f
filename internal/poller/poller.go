// Package poller waits, on the vendor side, for the owner of a wallet item to
// answer a confirmation request.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
)

const (
	DefaultInterval = 2 * time.Second
	// DefaultAttempts spans the 60 second confirmation window.
	DefaultAttempts = 30
)

type Outcome int

const (
	// Pending is returned only with an error: polling stopped undecided.
	Pending Outcome = iota
	Redeemed
	Failed
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Redeemed:
		return "redeemed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	}
	return "pending"
}

// Fetch reads the current item and confirmation state.
type Fetch func(ctx context.Context) (model.WalletStatus, model.ConfirmationState, error)

type Options struct {
	Interval time.Duration
	Attempts int
	// OnAttempt, if set, is called after every successful fetch.
	OnAttempt func(attempt int, status model.WalletStatus, confirmation model.ConfirmationState)
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	return o
}

var errPending = errors.New("confirmation still pending")

// Poll fetches until the item is redeemed, the confirmation is settled
// against redemption, or the attempts run out. The first fetch happens one
// interval in, so the last lands at Attempts*Interval and sees the end of the
// confirmation window. Cancelling ctx stops it with ctx.Err(). Fetch errors
// count as attempts; if the final attempt failed, its error is returned
// alongside TimedOut.
func Poll(ctx context.Context, fetch Fetch, opts Options) (Outcome, error) {
	opts = opts.withDefaults()

	first := time.NewTimer(opts.Interval)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return Pending, ctx.Err()
	case <-first.C:
	}

	b := retry.WithMaxRetries(uint64(opts.Attempts-1), retry.NewConstant(opts.Interval))

	outcome := Pending
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		status, confirmation, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(err)
		}
		if opts.OnAttempt != nil {
			opts.OnAttempt(attempt, status, confirmation)
		}

		if o, done := settle(status, confirmation); done {
			outcome = o
			return nil
		}
		return retry.RetryableError(errPending)
	})

	switch {
	case err == nil:
		return outcome, nil
	case ctx.Err() != nil:
		return Pending, ctx.Err()
	case errors.Is(err, errPending):
		return TimedOut, nil
	default:
		return TimedOut, err
	}
}

func settle(status model.WalletStatus, confirmation model.ConfirmationState) (Outcome, bool) {
	switch status {
	case model.WalletRedeemed:
		return Redeemed, true
	case model.WalletExpired:
		return Failed, true
	}
	switch confirmation {
	case model.ConfirmationDenied, model.ConfirmationExpired, model.ConfirmationNone:
		return Failed, true
	}
	return Pending, false
}
