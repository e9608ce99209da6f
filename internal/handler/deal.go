package handler

import (
	"net/http"
	"strconv"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/auth"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/redemption"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/tier"
)

type DealHandler struct {
	svc *redemption.Service
}

func NewDealHandler(svc *redemption.Service) *DealHandler {
	return &DealHandler{svc: svc}
}

// dealView is a deal as the caller sees it.
type dealView struct {
	model.Deal
	Locked  bool `json:"locked"`
	SoldOut bool `json:"sold_out"`
	Expired bool `json:"expired"`
}

func (h *DealHandler) view(d model.Deal, user *model.User) dealView {
	return dealView{
		Deal:    d,
		Locked:  tier.IsLocked(user, d),
		SoldOut: d.IsSoldOut(),
		Expired: d.IsExpired(h.svc.Now()),
	}
}

// List returns the catalog. Anonymous callers see every deal above FREE as locked.
func (h *DealHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.User(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	deals, err := h.svc.Deals(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	views := make([]dealView, 0, len(deals))
	for _, d := range deals {
		views = append(views, h.view(d, user))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *DealHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	user, err := h.svc.User(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	d, err := h.svc.Deal(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(*d, user))
}
