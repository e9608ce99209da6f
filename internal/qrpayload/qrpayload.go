// Package qrpayload encodes and decodes the text carried by wallet QR codes.
//
// The current format is a compact JSON object naming one wallet item and its
// per-instance redemption code. Older payloads identified a deal and a user
// instead; those are recognised so the scanner can say why they fail.
package qrpayload

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	// ErrLegacyFormat is returned for payloads from the deal/user era.
	ErrLegacyFormat = errors.New("qrpayload: legacy QR format")
	// ErrInvalid is returned for anything that is neither a current payload
	// nor a plausible manual code.
	ErrInvalid = errors.New("qrpayload: invalid payload")
)

// maxManualCode bounds what is accepted as a hand-typed code.
const maxManualCode = 64

// Payload is a decoded scan. Manual payloads carry only a code; the wallet
// item must be looked up from it.
type Payload struct {
	WalletItemID   string
	RedemptionCode string
	Manual         bool
}

type wire struct {
	WalletItemID   string `json:"wi"`
	RedemptionCode string `json:"rc"`
}

// Encode returns the QR text for a wallet item. Both values must be
// non-empty valid UTF-8, or they would not survive the JSON round trip.
func Encode(walletItemID, code string) (string, error) {
	if walletItemID == "" || code == "" || !utf8.ValidString(walletItemID) || !utf8.ValidString(code) {
		return "", ErrInvalid
	}
	b, err := json.Marshal(wire{WalletItemID: walletItemID, RedemptionCode: code})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var legacyKeys = []string{"dealid", "deal_id", "userid", "user_id"}

// Decode parses scanned text.
func Decode(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, ErrInvalid
	}

	if !strings.HasPrefix(raw, "{") {
		return decodeManual(raw)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Payload{}, ErrInvalid
	}

	for key := range fields {
		k := strings.ToLower(key)
		for _, legacy := range legacyKeys {
			if k == legacy {
				return Payload{}, ErrLegacyFormat
			}
		}
	}

	wi, hasWI := stringField(fields, "wi")
	rc, hasRC := stringField(fields, "rc")
	if !hasWI {
		if _, ok := fields["code"]; ok {
			return Payload{}, ErrLegacyFormat
		}
		return Payload{}, ErrInvalid
	}
	if !hasRC || wi == "" || rc == "" {
		return Payload{}, ErrInvalid
	}
	return Payload{WalletItemID: wi, RedemptionCode: rc}, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeManual(raw string) (Payload, error) {
	if len(raw) > maxManualCode || strings.ContainsAny(raw, " \t\r\n") {
		return Payload{}, ErrInvalid
	}
	return Payload{RedemptionCode: raw, Manual: true}, nil
}
