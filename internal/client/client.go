// Package client talks to the Tripzy API on behalf of a partner scanner.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
)

// PartnerKeyHeader carries "<partner id>.<secret>".
const PartnerKeyHeader = "X-Partner-Key"

// Config holds scanner client configuration.
type Config struct {
	BaseURL    string
	PartnerKey string
	Timeout    time.Duration
}

// ScanResult is the server's answer to a scan.
type ScanResult struct {
	Success              bool        `json:"success"`
	Message              string      `json:"message"`
	Deal                 *model.Deal `json:"deal,omitempty"`
	RequiresConfirmation bool        `json:"requires_confirmation"`
	WalletItemID         string      `json:"wallet_item_id"`
	ExpiresAt            *time.Time  `json:"expires_at"`
}

// ItemStatus is a wallet item as the vendor sees it while polling.
type ItemStatus struct {
	WalletItemID string                  `json:"wallet_item_id"`
	Status       model.WalletStatus      `json:"status"`
	Confirmation model.ConfirmationState `json:"confirmation"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.StatusCode, e.Kind)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type redeemRequest struct {
	Payload string `json:"payload"`
}

// Redeem submits scanned text. idempotencyKey lets the server answer a
// retried submission from cache instead of redeeming twice.
func (c *Client) Redeem(ctx context.Context, payload, idempotencyKey string) (*ScanResult, error) {
	body, err := json.Marshal(redeemRequest{Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/scanner/redeem", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	var res ScanResult
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Status reads the current state of a wallet item.
func (c *Client) Status(ctx context.Context, walletItemID string) (*ItemStatus, error) {
	u := c.cfg.BaseURL + "/api/scanner/items/" + url.PathEscape(walletItemID) + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var st ItemStatus
	if err := c.do(req, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set(PartnerKeyHeader, c.cfg.PartnerKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Kind: body.Kind, Message: body.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
