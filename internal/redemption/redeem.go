package redemption

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/qrpayload"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/quota"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/store"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/tier"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/websocket"
)

// ActingParty identifies who asks for a redemption: the item's owner, or the
// partner whose deal it is. Exactly one field is set.
type ActingParty struct {
	UserID    string
	PartnerID int64
}

func Owner(userID string) ActingParty { return ActingParty{UserID: userID} }

func Partner(partnerID int64) ActingParty { return ActingParty{PartnerID: partnerID} }

// isPartnerOf reports whether p acts as the partner that lists deal.
func (p ActingParty) isPartnerOf(deal model.Deal) bool {
	return p.PartnerID != 0 && deal.PartnerID != nil && *deal.PartnerID == p.PartnerID
}

func (p ActingParty) authorized(item model.WalletItem, deal model.Deal) bool {
	if p.UserID != "" {
		return p.UserID == item.UserID
	}
	return p.isPartnerOf(deal)
}

// RedeemResult is the outcome of a successful Redeem call. Either the item
// was consumed, or an owner confirmation was opened and the vendor must poll.
type RedeemResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Deal    *model.Deal `json:"deal,omitempty"`

	RequiresConfirmation bool       `json:"requires_confirmation,omitempty"`
	ConfirmationToken    string     `json:"confirmation_token,omitempty"`
	WalletItemID         string     `json:"wallet_item_id,omitempty"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
}

// Redeem consumes a wallet item. A partner redeeming a high-value deal gets a
// pending confirmation instead; the owner must approve it in time.
func (s *Service) Redeem(ctx context.Context, walletItemID, code string, party ActingParty) (RedeemResult, error) {
	res, err := s.redeem(ctx, walletItemID, code, party)
	if err != nil {
		e := asError(err)
		s.logRejection("redeem", e, "wallet_item_id", walletItemID, "user_id", party.UserID, "partner_id", party.PartnerID)
		return RedeemResult{Success: false, Message: e.Message}, e
	}
	return res, nil
}

func (s *Service) redeem(ctx context.Context, walletItemID, code string, party ActingParty) (RedeemResult, error) {
	now := s.now()

	item, err := s.wallet.GetByID(ctx, walletItemID)
	if err != nil {
		return RedeemResult{}, internal(err)
	}
	if item == nil || subtle.ConstantTimeCompare([]byte(item.RedemptionCode), []byte(code)) != 1 {
		return RedeemResult{}, newError(KindInvalidOrExpiredCode)
	}
	deal, err := s.deals.GetByID(ctx, item.DealID)
	if err != nil {
		return RedeemResult{}, internal(err)
	}
	if deal == nil {
		return RedeemResult{}, newError(KindNotFound)
	}
	if err := checkActive(*item, *deal, now); err != nil {
		return RedeemResult{}, err
	}
	if !party.authorized(*item, *deal) {
		return RedeemResult{}, newError(KindForbidden)
	}
	user, err := s.users.GetByID(ctx, item.UserID)
	if err != nil {
		return RedeemResult{}, internal(err)
	}
	if err := s.checkRedeemable(user, *deal, now); err != nil {
		return RedeemResult{}, err
	}

	if party.PartnerID != 0 && deal.IsHighValue(s.highValue) {
		return s.initiateConfirmation(ctx, *item, *deal, party.PartnerID)
	}

	var partnerID *int64
	if party.PartnerID != 0 {
		partnerID = &party.PartnerID
	}

	var out *redeemOutcome
	err = store.Transact(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		out, err = s.redeemTx(ctx, tx, walletItemID, partnerID, now)
		return err
	})
	if err != nil {
		return RedeemResult{}, err
	}

	s.announce(out)
	return RedeemResult{Success: true, Message: "Redeemed.", Deal: out.deal}, nil
}

func checkActive(item model.WalletItem, deal model.Deal, now time.Time) error {
	switch item.EffectiveStatus(deal, now) {
	case model.WalletRedeemed:
		return newError(KindAlreadyRedeemed)
	case model.WalletExpired:
		return newError(KindExpired)
	}
	return nil
}

// checkRedeemable holds the deal and owner gates shared by every
// redemption path, direct or confirmed.
func (s *Service) checkRedeemable(user *model.User, deal model.Deal, now time.Time) error {
	if deal.IsSoldOut() {
		return newError(KindSoldOut)
	}
	if !tier.CanClaim(user, deal) {
		return newError(KindNotEntitled)
	}
	if quota.Remaining(*user, s.quotas, now).Exhausted() {
		return newError(KindLimitReached)
	}
	return nil
}

type redeemOutcome struct {
	item    model.WalletItem
	deal    *model.Deal
	soldOut bool
}

// redeemTx performs the redemption transition inside tx. Every gate is
// re-read under the write lock; the status flip and the counter increment
// are conditional updates, so a concurrent redemption that slipped past the
// reads still fails here.
func (s *Service) redeemTx(ctx context.Context, tx *sql.Tx, walletItemID string, partnerID *int64, now time.Time) (*redeemOutcome, error) {
	users, deals, wallet := s.users.WithTx(tx), s.deals.WithTx(tx), s.wallet.WithTx(tx)

	item, err := wallet.GetByID(ctx, walletItemID)
	if err != nil {
		return nil, internal(err)
	}
	if item == nil {
		return nil, newError(KindInvalidOrExpiredCode)
	}
	deal, err := deals.GetByID(ctx, item.DealID)
	if err != nil {
		return nil, internal(err)
	}
	if deal == nil {
		return nil, newError(KindNotFound)
	}
	if err := checkActive(*item, *deal, now); err != nil {
		return nil, err
	}
	user, err := users.GetByID(ctx, item.UserID)
	if err != nil {
		return nil, internal(err)
	}
	if err := s.checkRedeemable(user, *deal, now); err != nil {
		return nil, err
	}

	ok, err := wallet.MarkRedeemed(ctx, item.ID, now)
	if err != nil {
		return nil, internal(err)
	}
	if !ok {
		return nil, newError(KindAlreadyRedeemed)
	}
	ok, err = deals.IncrementRedemptions(ctx, deal.ID)
	if err != nil {
		return nil, internal(err)
	}
	if !ok {
		return nil, newError(KindSoldOut)
	}
	if _, err := users.AddRedemption(ctx, model.Redemption{
		DealID:       deal.ID,
		UserID:       item.UserID,
		WalletItemID: item.ID,
		PartnerID:    partnerID,
		RedeemedAt:   now,
	}); err != nil {
		return nil, internal(err)
	}

	updated, err := deals.GetByID(ctx, deal.ID)
	if err != nil {
		return nil, internal(err)
	}
	out := &redeemOutcome{item: *item, deal: updated}
	if updated.MaxRedemptions != nil && updated.RedemptionsCount >= *updated.MaxRedemptions {
		if err := deals.MarkSoldOut(ctx, deal.ID); err != nil {
			return nil, internal(err)
		}
		updated.SoldOut = true
		out.soldOut = true
	}
	return out, nil
}

// announce pushes the events for a completed redemption.
func (s *Service) announce(out *redeemOutcome) {
	s.logger.Info("wallet item redeemed",
		"wallet_item_id", out.item.ID, "user_id", out.item.UserID, "deal_id", out.deal.ID,
		"redemptions_count", out.deal.RedemptionsCount)

	s.notifier.SendToUser(out.item.UserID, websocket.NewMessage("wallet_item", "redeemed", out.item.ID, map[string]any{
		"deal_id": out.deal.ID,
	}))
	if out.soldOut {
		s.logger.Info("deal sold out", "deal_id", out.deal.ID)
		s.notifier.Broadcast(websocket.NewMessage("deal", "sold_out", strconv.FormatInt(out.deal.ID, 10), nil))
	}
}

// ResolveManualCode finds the single active wallet item carrying a hand-typed
// code. No match, or an ambiguous one, is an invalid code; a deal's old
// shared code is reported as a legacy format.
func (s *Service) ResolveManualCode(ctx context.Context, code string) (*model.WalletItem, error) {
	items, err := s.wallet.ListActiveByCode(ctx, code)
	if err != nil {
		return nil, internal(err)
	}
	if len(items) == 1 {
		return &items[0], nil
	}
	if len(items) == 0 {
		deal, err := s.deals.GetByLegacyCode(ctx, code)
		if err != nil {
			return nil, internal(err)
		}
		if deal != nil {
			return nil, newError(KindLegacyFormat)
		}
	}
	return nil, newError(KindInvalidOrExpiredCode)
}

// RedeemScan redeems whatever a partner's scanner read: a QR payload or a
// manually typed code.
func (s *Service) RedeemScan(ctx context.Context, raw string, partnerID int64) (RedeemResult, error) {
	p, err := qrpayload.Decode(raw)
	if err != nil {
		e := newError(KindInvalidOrExpiredCode)
		if errors.Is(err, qrpayload.ErrLegacyFormat) {
			e = newError(KindLegacyFormat)
		}
		s.logRejection("scan", e, "partner_id", partnerID)
		return RedeemResult{Success: false, Message: e.Message}, e
	}

	if p.Manual {
		item, err := s.ResolveManualCode(ctx, p.RedemptionCode)
		if err != nil {
			e := asError(err)
			s.logRejection("scan", e, "partner_id", partnerID)
			return RedeemResult{Success: false, Message: e.Message}, e
		}
		p.WalletItemID = item.ID
	}
	return s.Redeem(ctx, p.WalletItemID, p.RedemptionCode, Partner(partnerID))
}

// QRPayload encodes the scannable payload for one of the user's active items.
func (s *Service) QRPayload(ctx context.Context, userID, walletItemID string) (string, error) {
	item, err := s.wallet.GetByID(ctx, walletItemID)
	if err != nil {
		return "", internal(err)
	}
	if item == nil {
		return "", newError(KindNotFound)
	}
	if item.UserID != userID {
		return "", newError(KindForbidden)
	}
	deal, err := s.deals.GetByID(ctx, item.DealID)
	if err != nil {
		return "", internal(err)
	}
	if deal == nil {
		return "", newError(KindNotFound)
	}
	if err := checkActive(*item, *deal, s.now()); err != nil {
		return "", err
	}
	payload, err := qrpayload.Encode(item.ID, item.RedemptionCode)
	if err != nil {
		return "", internal(err)
	}
	return payload, nil
}

// StatusReport is what the vendor poller sees.
type StatusReport struct {
	WalletItemID          string                  `json:"wallet_item_id"`
	Status                model.WalletStatus      `json:"status"`
	Confirmation          model.ConfirmationState `json:"confirmation"`
	ConfirmationExpiresAt *time.Time              `json:"confirmation_expires_at,omitempty"`
}

// WalletItemStatus reports the effective status of an item and of any
// confirmation opened for it.
func (s *Service) WalletItemStatus(ctx context.Context, walletItemID string, party ActingParty) (StatusReport, error) {
	item, err := s.wallet.GetByID(ctx, walletItemID)
	if err != nil {
		return StatusReport{}, internal(err)
	}
	if item == nil {
		return StatusReport{}, newError(KindNotFound)
	}
	deal, err := s.deals.GetByID(ctx, item.DealID)
	if err != nil {
		return StatusReport{}, internal(err)
	}
	if deal == nil {
		return StatusReport{}, newError(KindNotFound)
	}
	if !party.authorized(*item, *deal) {
		return StatusReport{}, newError(KindForbidden)
	}

	now := s.now()
	report := StatusReport{
		WalletItemID: item.ID,
		Status:       item.EffectiveStatus(*deal, now),
		Confirmation: model.ConfirmationNone,
	}

	c, err := s.confirmations.Get(ctx, walletItemID)
	if err != nil {
		return StatusReport{}, internal(err)
	}
	if c != nil {
		report.Confirmation = c.StateAt(now)
		expiresAt := c.ExpiresAt
		report.ConfirmationExpiresAt = &expiresAt
	}
	return report, nil
}
