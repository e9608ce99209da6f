package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/auth"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/database"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/qrpayload"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/redemption"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/store"
)

type testEnv struct {
	db      *sql.DB
	mux     *http.ServeMux
	partner *model.Partner
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	p, _, err := store.NewPartnerStore(db).Create(context.Background(), "Galata Cafe")
	if err != nil {
		t.Fatalf("create partner: %v", err)
	}

	svc := redemption.New(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	deals := NewDealHandler(svc)
	wallet := NewWalletHandler(svc)
	scanner := NewScannerHandler(svc)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", NewHealthHandler(db, nil).Health)
	mux.HandleFunc("GET /api/deals", deals.List)
	mux.HandleFunc("GET /api/deals/{id}", deals.Get)
	mux.HandleFunc("GET /api/wallet", wallet.List)
	mux.HandleFunc("POST /api/wallet/claim", wallet.Claim)
	mux.HandleFunc("GET /api/quota", wallet.Quota)
	mux.HandleFunc("POST /api/wallet/{id}/redeem", wallet.Redeem)
	mux.HandleFunc("GET /api/wallet/{id}/qr", wallet.QR)
	mux.HandleFunc("GET /api/wallet/{id}/status", wallet.Status)
	mux.HandleFunc("POST /api/wallet/{id}/confirm", wallet.Confirm)
	mux.HandleFunc("POST /api/wallet/{id}/deny", wallet.Deny)
	mux.HandleFunc("POST /api/scanner/redeem", scanner.Redeem)
	mux.HandleFunc("GET /api/scanner/items/{id}/status", scanner.Status)

	return &testEnv{db: db, mux: mux, partner: p}
}

func (e *testEnv) user(t *testing.T, id string, tr model.Tier) {
	t.Helper()
	if _, err := store.NewUserStore(e.db).Create(context.Background(), model.User{ID: id, Tier: tr}); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func (e *testEnv) deal(t *testing.T, d model.Deal) *model.Deal {
	t.Helper()
	if d.Title == "" {
		d.Title = "Bosphorus cruise"
	}
	if d.PartnerID == nil {
		d.PartnerID = &e.partner.ID
	}
	created, err := store.NewDealStore(e.db).Create(context.Background(), d)
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}
	return created
}

// do serves one request as id and decodes the JSON response into out.
func (e *testEnv) do(t *testing.T, id auth.Identity, method, path, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if id != (auth.Identity{}) {
		req = req.WithContext(auth.WithIdentity(req.Context(), id))
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)

	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec
}

func (e *testEnv) claim(t *testing.T, userID string, dealID int64) model.WalletItem {
	t.Helper()
	var item model.WalletItem
	rec := e.do(t, auth.Identity{UserID: userID}, "POST", "/api/wallet/claim", `{"deal_id":`+strconv.FormatInt(dealID, 10)+`}`, &item)
	if rec.Code != http.StatusCreated {
		t.Fatalf("claim: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return item
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func wantError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind redemption.Kind) {
	t.Helper()
	if rec.Code != status {
		t.Errorf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var body errorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Kind != string(kind) {
		t.Errorf("kind = %q, want %q", body.Kind, kind)
	}
	if body.Error == "" {
		t.Error("error message is empty")
	}
}

type dealResponse struct {
	ID      int64 `json:"id"`
	Locked  bool  `json:"locked"`
	SoldOut bool  `json:"sold_out"`
}

func TestDealsListLocking(t *testing.T) {
	e := setup(t)
	e.user(t, "alice", model.TierBasic)
	free := e.deal(t, model.Deal{RequiredTier: model.TierFree})
	premium := e.deal(t, model.Deal{RequiredTier: model.TierPremium})
	soldOut := e.deal(t, model.Deal{RequiredTier: model.TierFree})
	if err := store.NewDealStore(e.db).MarkSoldOut(context.Background(), soldOut.ID); err != nil {
		t.Fatalf("mark sold out: %v", err)
	}

	tests := []struct {
		name       string
		id         auth.Identity
		wantLocked map[int64]bool
	}{
		{"anonymous", auth.Identity{}, map[int64]bool{free.ID: false, premium.ID: true}},
		{"basic", auth.Identity{UserID: "alice"}, map[int64]bool{free.ID: false, premium.ID: true}},
		{"no subscription", auth.Identity{UserID: "stranger"}, map[int64]bool{free.ID: true, premium.ID: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var deals []dealResponse
			rec := e.do(t, tt.id, "GET", "/api/deals", "", &deals)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if len(deals) != 3 {
				t.Fatalf("len(deals) = %d, want 3", len(deals))
			}
			for _, d := range deals {
				if want, ok := tt.wantLocked[d.ID]; ok && d.Locked != want {
					t.Errorf("deal %d locked = %v, want %v", d.ID, d.Locked, want)
				}
				if d.SoldOut != (d.ID == soldOut.ID) {
					t.Errorf("deal %d sold_out = %v", d.ID, d.SoldOut)
				}
			}
		})
	}
}

func TestGetDeal(t *testing.T) {
	e := setup(t)
	d := e.deal(t, model.Deal{RequiredTier: model.TierVIP})

	var got dealResponse
	rec := e.do(t, auth.Identity{}, "GET", "/api/deals/"+strconv.FormatInt(d.ID, 10), "", &got)
	if rec.Code != http.StatusOK || !got.Locked {
		t.Errorf("status = %d locked = %v, want 200 and locked", rec.Code, got.Locked)
	}

	rec = e.do(t, auth.Identity{}, "GET", "/api/deals/999", "", nil)
	wantError(t, rec, http.StatusNotFound, redemption.KindNotFound)

	rec = e.do(t, auth.Identity{}, "GET", "/api/deals/abc", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestClaimAndListWallet(t *testing.T) {
	e := setup(t)
	e.user(t, "alice", model.TierFree)
	d := e.deal(t, model.Deal{})

	item := e.claim(t, "alice", d.ID)
	if item.Status != model.WalletActive {
		t.Errorf("status = %q, want active", item.Status)
	}

	var view struct {
		Items []struct {
			ID     string             `json:"id"`
			Status model.WalletStatus `json:"status"`
			Deal   *model.Deal        `json:"deal"`
		} `json:"items"`
		Capacity struct {
			Active int `json:"active"`
			Limit  int `json:"limit"`
		} `json:"capacity"`
	}
	rec := e.do(t, auth.Identity{UserID: "alice"}, "GET", "/api/wallet", "", &view)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(view.Items) != 1 || view.Items[0].ID != item.ID {
		t.Fatalf("items = %+v, want the claimed item", view.Items)
	}
	if view.Items[0].Deal == nil || view.Items[0].Deal.ID != d.ID {
		t.Error("wallet entry is missing its deal")
	}
	if view.Capacity.Active != 1 || view.Capacity.Limit != 3 {
		t.Errorf("capacity = %+v, want 1 of 3", view.Capacity)
	}
}

func TestClaimErrors(t *testing.T) {
	e := setup(t)
	e.user(t, "alice", model.TierFree)
	premium := e.deal(t, model.Deal{RequiredTier: model.TierPremium})
	alice := auth.Identity{UserID: "alice"}

	rec := e.do(t, alice, "POST", "/api/wallet/claim", `{"deal_id":`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	rec = e.do(t, alice, "POST", "/api/wallet/claim", `{}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing deal_id: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = e.do(t, alice, "POST", "/api/wallet/claim", `{"deal_id":`+strconv.FormatInt(premium.ID, 10)+`}`, nil)
	wantError(t, rec, http.StatusForbidden, redemption.KindNotEntitled)

	rec = e.do(t, alice, "POST", "/api/wallet/claim", `{"deal_id":999}`, nil)
	wantError(t, rec, http.StatusNotFound, redemption.KindNotFound)
}

func TestOwnerRedeem(t *testing.T) {
	e := setup(t)
	e.user(t, "alice", model.TierFree)
	d := e.deal(t, model.Deal{})
	item := e.claim(t, "alice", d.ID)
	alice := auth.Identity{UserID: "alice"}
	path := "/api/wallet/" + item.ID + "/redeem"

	rec := e.do(t, alice, "POST", path, `{"redemption_code":"WRONG123"}`, nil)
	wantError(t, rec, http.StatusUnprocessableEntity, redemption.KindInvalidOrExpiredCode)

	var res redemption.RedeemResult
	rec = e.do(t, alice, "POST", path, `{"redemption_code":"`+item.RedemptionCode+`"}`, &res)
	if rec.Code != http.StatusOK || !res.Success {
		t.Fatalf("status = %d result = %+v, want success", rec.Code, res)
	}
	if res.Deal == nil || res.Deal.RedemptionsCount != 1 {
		t.Errorf("deal = %+v, want redemptions_count 1", res.Deal)
	}

	rec = e.do(t, alice, "POST", path, `{"redemption_code":"`+item.RedemptionCode+`"}`, nil)
	wantError(t, rec, http.StatusConflict, redemption.KindAlreadyRedeemed)

	rec = e.do(t, alice, "POST", path, `{}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing code: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestQuota(t *testing.T) {
	e := setup(t)
	e.user(t, "alice", model.TierBasic)
	d := e.deal(t, model.Deal{})
	item := e.claim(t, "alice", d.ID)
	e.do(t, auth.Identity{UserID: "alice"}, "POST", "/api/wallet/"+item.ID+"/redeem", `{"redemption_code":"`+item.RedemptionCode+`"}`, nil)

	var usage struct {
		Used      int `json:"used"`
		Total     int `json:"total"`
		Remaining int `json:"remaining"`
	}
	rec := e.do(t, auth.Identity{UserID: "alice"}, "GET", "/api/quota", "", &usage)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if usage.Used != 1 || usage.Total != 5 || usage.Remaining != 4 {
		t.Errorf("usage = %+v, want 1 used of 5", usage)
	}
}

func TestQRPayload(t *testing.T) {
	e := setup(t)
	e.user(t, "alice", model.TierFree)
	e.user(t, "bob", model.TierFree)
	item := e.claim(t, "alice", e.deal(t, model.Deal{}).ID)

	var body struct {
		Payload string `json:"payload"`
	}
	rec := e.do(t, auth.Identity{UserID: "alice"}, "GET", "/api/wallet/"+item.ID+"/qr", "", &body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	p, err := qrpayload.Decode(body.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.WalletItemID != item.ID {
		t.Errorf("wallet item = %q, want %q", p.WalletItemID, item.ID)
	}

	rec = e.do(t, auth.Identity{UserID: "bob"}, "GET", "/api/wallet/"+item.ID+"/qr", "", nil)
	wantError(t, rec, http.StatusForbidden, redemption.KindForbidden)
}

func TestScannerConfirmationFlow(t *testing.T) {
	e := setup(t)
	e.user(t, "alice", model.TierFree)
	d := e.deal(t, model.Deal{RequiresConfirmation: true})
	item := e.claim(t, "alice", d.ID)
	vendor := auth.Identity{PartnerID: e.partner.ID}
	alice := auth.Identity{UserID: "alice"}

	payload, _ := qrpayload.Encode(item.ID, item.RedemptionCode)
	body, _ := json.Marshal(map[string]string{"payload": payload})

	var res redemption.RedeemResult
	rec := e.do(t, vendor, "POST", "/api/scanner/redeem", string(body), &res)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	if !res.RequiresConfirmation || res.ConfirmationToken == "" || res.Success {
		t.Fatalf("result = %+v, want a pending confirmation", res)
	}

	var report redemption.StatusReport
	e.do(t, vendor, "GET", "/api/scanner/items/"+item.ID+"/status", "", &report)
	if report.Status != model.WalletActive || report.Confirmation != model.ConfirmationPending {
		t.Errorf("report = %+v, want active and pending", report)
	}

	var bad redemption.ConfirmResult
	rec = e.do(t, alice, "POST", "/api/wallet/"+item.ID+"/confirm", `{"token":"nope"}`, &bad)
	if rec.Code != http.StatusUnprocessableEntity || bad.Success || bad.Kind != redemption.KindInvalidToken {
		t.Errorf("wrong token: status = %d result = %+v", rec.Code, bad)
	}

	var ok redemption.ConfirmResult
	rec = e.do(t, alice, "POST", "/api/wallet/"+item.ID+"/confirm", `{"token":"`+res.ConfirmationToken+`"}`, &ok)
	if rec.Code != http.StatusOK || !ok.Success {
		t.Fatalf("confirm: status = %d result = %+v", rec.Code, ok)
	}

	e.do(t, vendor, "GET", "/api/scanner/items/"+item.ID+"/status", "", &report)
	if report.Status != model.WalletRedeemed {
		t.Errorf("status = %q, want redeemed", report.Status)
	}

	// The owner sees the same report.
	rec = e.do(t, alice, "GET", "/api/wallet/"+item.ID+"/status", "", &report)
	if rec.Code != http.StatusOK || report.Status != model.WalletRedeemed {
		t.Errorf("owner status: code = %d report = %+v", rec.Code, report)
	}
}

func TestScannerDeny(t *testing.T) {
	e := setup(t)
	e.user(t, "alice", model.TierFree)
	item := e.claim(t, "alice", e.deal(t, model.Deal{RequiresConfirmation: true}).ID)
	vendor := auth.Identity{PartnerID: e.partner.ID}

	var res redemption.RedeemResult
	e.do(t, vendor, "POST", "/api/scanner/redeem", `{"payload":"`+item.RedemptionCode+`"}`, &res)

	var denied redemption.ConfirmResult
	rec := e.do(t, auth.Identity{UserID: "alice"}, "POST", "/api/wallet/"+item.ID+"/deny", `{"token":"`+res.ConfirmationToken+`"}`, &denied)
	if rec.Code != http.StatusOK || !denied.Success {
		t.Fatalf("deny: status = %d result = %+v", rec.Code, denied)
	}

	var report redemption.StatusReport
	e.do(t, vendor, "GET", "/api/scanner/items/"+item.ID+"/status", "", &report)
	if report.Status != model.WalletActive || report.Confirmation != model.ConfirmationDenied {
		t.Errorf("report = %+v, want active and denied", report)
	}
}

func TestScannerRejections(t *testing.T) {
	e := setup(t)
	e.user(t, "alice", model.TierFree)
	item := e.claim(t, "alice", e.deal(t, model.Deal{}).ID)

	other, _, err := store.NewPartnerStore(e.db).Create(context.Background(), "Other Vendor")
	if err != nil {
		t.Fatalf("create partner: %v", err)
	}
	stranger := auth.Identity{PartnerID: other.ID}
	vendor := auth.Identity{PartnerID: e.partner.ID}

	rec := e.do(t, stranger, "POST", "/api/scanner/redeem", `{"payload":"`+item.RedemptionCode+`"}`, nil)
	wantError(t, rec, http.StatusForbidden, redemption.KindForbidden)

	rec = e.do(t, stranger, "GET", "/api/scanner/items/"+item.ID+"/status", "", nil)
	wantError(t, rec, http.StatusForbidden, redemption.KindForbidden)

	rec = e.do(t, vendor, "POST", "/api/scanner/redeem", `{"payload":"{\"dealId\":1,\"userId\":\"alice\"}"}`, nil)
	wantError(t, rec, http.StatusUnprocessableEntity, redemption.KindLegacyFormat)

	rec = e.do(t, vendor, "POST", "/api/scanner/redeem", `{"payload":"  "}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank payload: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind redemption.Kind
		want int
	}{
		{redemption.KindNotFound, http.StatusNotFound},
		{redemption.KindNotEntitled, http.StatusForbidden},
		{redemption.KindLimitReached, http.StatusForbidden},
		{redemption.KindSoldOut, http.StatusConflict},
		{redemption.KindWalletFull, http.StatusConflict},
		{redemption.KindAlreadyOwned, http.StatusConflict},
		{redemption.KindExpired, http.StatusGone},
		{redemption.KindConfirmationExpired, http.StatusGone},
		{redemption.KindInvalidToken, http.StatusUnprocessableEntity},
		{redemption.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.kind); got != tt.want {
			t.Errorf("statusFor(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestWriteServiceErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, errors.New("database is locked"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if strings.Contains(rec.Body.String(), "locked") {
		t.Errorf("body leaks the cause: %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	e := setup(t)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	rec := e.do(t, auth.Identity{}, "GET", "/health", "", &body)
	if rec.Code != http.StatusOK || body.Status != "ok" {
		t.Errorf("status = %d body = %+v", rec.Code, body)
	}
	if _, ok := body.Checks["redis"]; ok {
		t.Error("redis reported without a redis client")
	}
}
