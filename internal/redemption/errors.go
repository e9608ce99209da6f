package redemption

import (
	"errors"
	"fmt"
)

// Kind classifies a failed wallet or redemption operation. Clients branch on
// the kind, never on the message.
type Kind string

const (
	KindSoldOut              Kind = "SoldOut"
	KindLimitReached         Kind = "LimitReached"
	KindWalletFull           Kind = "WalletFull"
	KindAlreadyOwned         Kind = "AlreadyOwned"
	KindAlreadyRedeemed      Kind = "AlreadyRedeemed"
	KindExpired              Kind = "Expired"
	KindInvalidOrExpiredCode Kind = "InvalidOrExpiredCode"
	KindLegacyFormat         Kind = "LegacyFormat"
	KindConfirmationExpired  Kind = "ConfirmationExpired"
	KindConfirmationDenied   Kind = "ConfirmationDenied"
	KindInvalidToken         Kind = "InvalidToken"
	KindNotEntitled          Kind = "NotEntitled"
	KindForbidden            Kind = "Forbidden"
	KindNotFound             Kind = "NotFound"
	KindInternal             Kind = "Internal"
)

var messages = map[Kind]string{
	KindSoldOut:              "This deal is sold out.",
	KindLimitReached:         "You have used all of your redemptions for this month.",
	KindWalletFull:           "Your wallet is full. Use or remove a deal, or upgrade your plan.",
	KindAlreadyOwned:         "This deal is already in your wallet.",
	KindAlreadyRedeemed:      "This deal has already been redeemed.",
	KindExpired:              "This deal has expired.",
	KindInvalidOrExpiredCode: "Invalid or expired code.",
	KindLegacyFormat:         "This QR code uses an old format. Ask the customer to open the deal again to get a new code.",
	KindConfirmationExpired:  "The confirmation window has closed. Please scan again.",
	KindConfirmationDenied:   "The customer declined this redemption.",
	KindInvalidToken:         "This confirmation request is not valid.",
	KindNotEntitled:          "Your plan does not include this deal.",
	KindForbidden:            "You are not allowed to redeem this item.",
	KindNotFound:             "Not found.",
	KindInternal:             "Something went wrong. Please try again.",
}

// Error is the typed failure returned by every Service operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrSoldOut) works
// regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrSoldOut              = newError(KindSoldOut)
	ErrLimitReached         = newError(KindLimitReached)
	ErrWalletFull           = newError(KindWalletFull)
	ErrAlreadyOwned         = newError(KindAlreadyOwned)
	ErrAlreadyRedeemed      = newError(KindAlreadyRedeemed)
	ErrExpired              = newError(KindExpired)
	ErrInvalidOrExpiredCode = newError(KindInvalidOrExpiredCode)
	ErrLegacyFormat         = newError(KindLegacyFormat)
	ErrConfirmationExpired  = newError(KindConfirmationExpired)
	ErrConfirmationDenied   = newError(KindConfirmationDenied)
	ErrInvalidToken         = newError(KindInvalidToken)
	ErrNotEntitled          = newError(KindNotEntitled)
	ErrForbidden            = newError(KindForbidden)
	ErrNotFound             = newError(KindNotFound)
	ErrInternal             = newError(KindInternal)
)

func newError(kind Kind) *Error {
	return &Error{Kind: kind, Message: messages[kind]}
}

// internal hides a persistence failure behind the generic message.
func internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: messages[KindInternal], Err: err}
}

// asError returns err as an *Error, translating anything untyped to Internal.
func asError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internal(err)
}

// KindOf returns the kind of err, KindInternal for untyped errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return asError(err).Kind
}
