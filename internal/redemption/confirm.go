package redemption

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/store"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/websocket"
)

// ConfirmationWindow is how long the owner has to approve a vendor scan.
const ConfirmationWindow = 60 * time.Second

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// initiateConfirmation opens a fresh confirmation for item, replacing any
// earlier one, and prompts the owner's devices.
func (s *Service) initiateConfirmation(ctx context.Context, item model.WalletItem, deal model.Deal, partnerID int64) (RedeemResult, error) {
	token, err := newToken()
	if err != nil {
		return RedeemResult{}, internal(err)
	}
	now := s.now()
	c := model.PendingConfirmation{
		WalletItemID: item.ID,
		Token:        token,
		PartnerID:    partnerID,
		State:        model.ConfirmationPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ConfirmationWindow),
	}
	if err := s.confirmations.Put(ctx, c); err != nil {
		return RedeemResult{}, internal(err)
	}

	sent := s.notifier.SendToUser(item.UserID, websocket.NewMessage("redemption", "confirmation_requested", item.ID, map[string]any{
		"token":             token,
		"expires_at":        c.ExpiresAt,
		"seconds_remaining": int(ConfirmationWindow / time.Second),
		"deal_id":           deal.ID,
		"deal_title":        deal.Title,
		"deal_title_tr":     deal.TitleTR,
		"partner_id":        partnerID,
	}))
	if sent == 0 {
		s.logger.Warn("confirmation requested but owner has no open connection",
			"wallet_item_id", item.ID, "user_id", item.UserID)
	}
	s.logger.Info("confirmation requested",
		"wallet_item_id", item.ID, "deal_id", deal.ID, "partner_id", partnerID, "expires_at", c.ExpiresAt)

	expiresAt := c.ExpiresAt
	return RedeemResult{
		Success:              false,
		Message:              "Waiting for the customer to confirm.",
		RequiresConfirmation: true,
		ConfirmationToken:    token,
		WalletItemID:         item.ID,
		ExpiresAt:            &expiresAt,
	}, nil
}

// ConfirmResult is the structured answer to a confirm or deny. It never
// carries a Go error; failures are described by Kind and Message.
type ConfirmResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Kind    Kind   `json:"kind,omitempty"`
}

func failed(e *Error) ConfirmResult {
	return ConfirmResult{Success: false, Message: e.Message, Kind: e.Kind}
}

// loadPending returns the confirmation for userID's item inside tx. Anything
// other than a live, matching, pending confirmation is a failure.
func (s *Service) loadPending(ctx context.Context, tx *sql.Tx, userID, walletItemID, token string, now time.Time) (*model.PendingConfirmation, error) {
	item, err := s.wallet.WithTx(tx).GetByID(ctx, walletItemID)
	if err != nil {
		return nil, internal(err)
	}
	if item == nil {
		return nil, newError(KindNotFound)
	}
	if item.UserID != userID {
		return nil, newError(KindForbidden)
	}

	c, err := s.confirmations.WithTx(tx).Get(ctx, walletItemID)
	if err != nil {
		return nil, internal(err)
	}
	if c == nil || subtle.ConstantTimeCompare([]byte(c.Token), []byte(token)) != 1 {
		return nil, newError(KindInvalidToken)
	}

	switch c.StateAt(now) {
	case model.ConfirmationConfirmed:
		return nil, newError(KindAlreadyRedeemed)
	case model.ConfirmationDenied:
		return nil, newError(KindConfirmationDenied)
	case model.ConfirmationExpired:
		return nil, newError(KindConfirmationExpired)
	}
	return c, nil
}

// ConfirmRedemption approves a pending vendor redemption. The token check,
// the window check and the redemption share one transaction; a late or
// mismatched confirm leaves the item active.
func (s *Service) ConfirmRedemption(ctx context.Context, userID, walletItemID, token string) ConfirmResult {
	now := s.now()
	var out *redeemOutcome
	var transitionFailed bool

	err := store.Transact(ctx, s.db, func(tx *sql.Tx) error {
		c, err := s.loadPending(ctx, tx, userID, walletItemID, token, now)
		if err != nil {
			return err
		}
		ok, err := s.confirmations.WithTx(tx).Resolve(ctx, walletItemID, model.ConfirmationConfirmed)
		if err != nil {
			return internal(err)
		}
		if !ok {
			return newError(KindConfirmationExpired)
		}
		partnerID := c.PartnerID
		out, err = s.redeemTx(ctx, tx, walletItemID, &partnerID, now)
		transitionFailed = err != nil
		return err
	})
	if err != nil {
		e := asError(err)
		s.logRejection("confirm", e, "wallet_item_id", walletItemID, "user_id", userID)
		if transitionFailed && e.Kind.settlesConfirmation() {
			s.closeFailedConfirmation(ctx, userID, walletItemID)
		}
		return failed(e)
	}

	s.announce(out)
	s.notifyResolved(userID, walletItemID, model.ConfirmationConfirmed)
	return ConfirmResult{Success: true, Message: "Redemption confirmed."}
}

// settlesConfirmation reports whether a failed confirm can never succeed on
// retry, so the pending confirmation should be closed.
func (k Kind) settlesConfirmation() bool {
	switch k {
	case KindSoldOut, KindLimitReached, KindNotEntitled, KindAlreadyRedeemed, KindExpired:
		return true
	}
	return false
}

// closeFailedConfirmation marks a confirmation whose redemption was refused
// as denied, so the vendor's poll stops instead of waiting out the window.
func (s *Service) closeFailedConfirmation(ctx context.Context, userID, walletItemID string) {
	ok, err := s.confirmations.Resolve(ctx, walletItemID, model.ConfirmationDenied)
	if err != nil {
		s.logger.Error("close failed confirmation", "wallet_item_id", walletItemID, "error", err)
		return
	}
	if ok {
		s.notifyResolved(userID, walletItemID, model.ConfirmationDenied)
	}
}

// DenyRedemption rejects a pending vendor redemption. The item stays active.
func (s *Service) DenyRedemption(ctx context.Context, userID, walletItemID, token string) ConfirmResult {
	now := s.now()

	err := store.Transact(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.loadPending(ctx, tx, userID, walletItemID, token, now); err != nil {
			return err
		}
		ok, err := s.confirmations.WithTx(tx).Resolve(ctx, walletItemID, model.ConfirmationDenied)
		if err != nil {
			return internal(err)
		}
		if !ok {
			return newError(KindConfirmationExpired)
		}
		return nil
	})
	if err != nil {
		e := asError(err)
		s.logRejection("deny", e, "wallet_item_id", walletItemID, "user_id", userID)
		return failed(e)
	}

	s.logger.Info("confirmation denied", "wallet_item_id", walletItemID, "user_id", userID)
	s.notifyResolved(userID, walletItemID, model.ConfirmationDenied)
	return ConfirmResult{Success: true, Message: "Redemption declined."}
}

// notifyResolved closes the prompt on the owner's other devices.
func (s *Service) notifyResolved(userID, walletItemID string, state model.ConfirmationState) {
	s.notifier.SendToUser(userID, websocket.NewMessage("redemption", "confirmation_resolved", walletItemID, map[string]any{
		"state": state,
	}))
}

// ExpireStale writes the expired status for active items whose deal has
// lapsed. It returns how many items changed.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	now := s.now()
	expiries, err := s.wallet.ActiveDealExpiries(ctx, "")
	if err != nil {
		return 0, err
	}

	n := 0
	for id, expiresAt := range expiries {
		if !(model.Deal{ExpiresAt: expiresAt}).IsExpired(now) {
			continue
		}
		ok, err := s.wallet.MarkExpired(ctx, id)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// PurgeConfirmations deletes confirmations whose window has closed,
// whatever their state.
func (s *Service) PurgeConfirmations(ctx context.Context) (int, error) {
	now := s.now()
	all, err := s.confirmations.List(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, c := range all {
		if now.Before(c.ExpiresAt) {
			continue
		}
		if err := s.confirmations.Delete(ctx, c.WalletItemID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
