package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/auth"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/redemption"
)

// WalletHandler serves the subscriber's own wallet. Every route requires an
// authenticated user.
type WalletHandler struct {
	svc *redemption.Service
}

func NewWalletHandler(svc *redemption.Service) *WalletHandler {
	return &WalletHandler{svc: svc}
}

func (h *WalletHandler) List(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Wallet(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type claimRequest struct {
	DealID int64 `json:"deal_id"`
}

func (h *WalletHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DealID <= 0 {
		writeError(w, http.StatusBadRequest, "deal_id is required")
		return
	}

	item, err := h.svc.Claim(r.Context(), auth.UserID(r.Context()), req.DealID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *WalletHandler) Quota(w http.ResponseWriter, r *http.Request) {
	usage, err := h.svc.CheckMonthlyLimit(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

type redeemRequest struct {
	RedemptionCode string `json:"redemption_code"`
}

// Redeem is the owner's self-service redemption, used when the vendor reads
// the code off the screen instead of scanning it.
func (h *WalletHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	code := strings.TrimSpace(req.RedemptionCode)
	if code == "" {
		writeError(w, http.StatusBadRequest, "redemption_code is required")
		return
	}

	userID := auth.UserID(r.Context())
	res, err := h.svc.Redeem(r.Context(), r.PathValue("id"), code, redemption.Owner(userID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *WalletHandler) QR(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	payload, err := h.svc.QRPayload(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"wallet_item_id": id,
		"payload":        payload,
	})
}

func (h *WalletHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	report, err := h.svc.WalletItemStatus(r.Context(), r.PathValue("id"), redemption.Owner(userID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *WalletHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.svc.ConfirmRedemption)
}

// Deny is also what the app calls when the owner dismisses the prompt.
func (h *WalletHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.svc.DenyRedemption)
}

type resolveFunc func(ctx context.Context, userID, walletItemID, token string) redemption.ConfirmResult

// resolve answers with the ConfirmResult itself; a failure carries the
// status of its kind.
func (h *WalletHandler) resolve(w http.ResponseWriter, r *http.Request, fn resolveFunc) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	res := fn(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), req.Token)
	status := http.StatusOK
	if !res.Success {
		status = statusFor(res.Kind)
	}
	writeJSON(w, status, res)
}
