// Command scanner submits a scanned QR payload or a typed code on behalf of
// a partner and, when the deal needs the customer's approval, waits for it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/client"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/poller"
)

func main() {
	server := flag.String("server", envOr("TRIPZY_SERVER", "http://localhost:8080"), "Tripzy API base URL")
	key := flag.String("key", os.Getenv("TRIPZY_PARTNER_KEY"), "partner scanner key (<id>.<secret>)")
	payload := flag.String("payload", "", "scanned QR text or manual redemption code")
	interval := flag.Duration("interval", poller.DefaultInterval, "status polling interval")
	attempts := flag.Int("attempts", poller.DefaultAttempts, "status polling attempts")
	flag.Parse()

	if *payload == "" && flag.NArg() > 0 {
		*payload = flag.Arg(0)
	}
	if *key == "" || *payload == "" {
		fmt.Fprintln(os.Stderr, "usage: scanner -key <id>.<secret> -payload <qr text or code>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{BaseURL: *server, PartnerKey: *key})
	os.Exit(run(ctx, c, *payload, poller.Options{Interval: *interval, Attempts: *attempts}))
}

func run(ctx context.Context, c *client.Client, payload string, opts poller.Options) int {
	// One key per scan: a retry of this submission replays, a new scan does not.
	res, err := c.Redeem(ctx, payload, uuid.NewString())
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			fmt.Printf("REJECTED: %s\n", apiErr.Message)
			return 1
		}
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		return 1
	}

	if !res.RequiresConfirmation {
		fmt.Println("REDEEMED:", describe(res.Deal))
		return 0
	}

	fmt.Printf("Waiting for the customer to confirm (until %s). Ctrl-C to stop waiting.\n", formatTime(res.ExpiresAt))
	opts.OnAttempt = func(attempt int, _ model.WalletStatus, _ model.ConfirmationState) {
		fmt.Print(".")
	}
	outcome, err := poller.Poll(ctx, func(ctx context.Context) (model.WalletStatus, model.ConfirmationState, error) {
		st, err := c.Status(ctx, res.WalletItemID)
		if err != nil {
			return "", "", err
		}
		return st.Status, st.Confirmation, nil
	}, opts)
	fmt.Println()

	switch {
	case ctx.Err() != nil:
		fmt.Println("Stopped waiting. The customer can still confirm until the window closes.")
		return 130
	case err != nil:
		fmt.Fprintf(os.Stderr, "polling failed: %v\n", err)
		return 1
	}

	switch outcome {
	case poller.Redeemed:
		fmt.Println("REDEEMED:", describe(res.Deal))
		return 0
	case poller.Failed:
		fmt.Println("NOT REDEEMED: the customer declined or the confirmation expired.")
	default:
		fmt.Println("NOT REDEEMED: no answer from the customer.")
	}
	return 1
}

func describe(d *model.Deal) string {
	if d == nil {
		return "deal redeemed"
	}
	return d.Title
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "the window closes"
	}
	return t.Local().Format("15:04:05")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
