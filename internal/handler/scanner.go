package handler

import (
	"net/http"
	"strings"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/auth"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/redemption"
)

// ScannerHandler serves partner scanners, authenticated by partner key.
type ScannerHandler struct {
	svc *redemption.Service
}

func NewScannerHandler(svc *redemption.Service) *ScannerHandler {
	return &ScannerHandler{svc: svc}
}

type scanRequest struct {
	Payload string `json:"payload"`
}

// Redeem accepts a scanned QR payload or a hand-typed code. A high-value
// deal answers 202 with a confirmation the scanner must poll.
func (h *ScannerHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Payload) == "" {
		writeError(w, http.StatusBadRequest, "payload is required")
		return
	}

	res, err := h.svc.RedeemScan(r.Context(), req.Payload, auth.PartnerID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if res.RequiresConfirmation {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (h *ScannerHandler) Status(w http.ResponseWriter, r *http.Request) {
	partnerID := auth.PartnerID(r.Context())
	report, err := h.svc.WalletItemStatus(r.Context(), r.PathValue("id"), redemption.Partner(partnerID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
