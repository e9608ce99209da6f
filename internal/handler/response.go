package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/redemption"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a redemption error kind to its HTTP status.
func statusFor(kind redemption.Kind) int {
	switch kind {
	case redemption.KindNotFound:
		return http.StatusNotFound
	case redemption.KindNotEntitled, redemption.KindForbidden, redemption.KindLimitReached:
		return http.StatusForbidden
	case redemption.KindSoldOut, redemption.KindAlreadyOwned, redemption.KindAlreadyRedeemed,
		redemption.KindWalletFull, redemption.KindConfirmationDenied:
		return http.StatusConflict
	case redemption.KindExpired, redemption.KindConfirmationExpired:
		return http.StatusGone
	case redemption.KindInvalidOrExpiredCode, redemption.KindLegacyFormat, redemption.KindInvalidToken:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError answers with the error's kind and user-facing message.
// Internal causes are never written to the client.
func writeServiceError(w http.ResponseWriter, err error) {
	var e *redemption.Error
	if !errors.As(err, &e) {
		e = &redemption.Error{Kind: redemption.KindInternal, Message: "Something went wrong. Please try again."}
	}
	writeJSON(w, statusFor(e.Kind), map[string]string{
		"error": e.Message,
		"kind":  string(e.Kind),
	})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}
