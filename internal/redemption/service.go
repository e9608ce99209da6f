// Package redemption owns the wallet lifecycle: claiming deals into a wallet,
// redeeming wallet items directly or through the owner-confirmation
// handshake, and reporting status to vendors.
package redemption

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/capacity"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/quota"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/store"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/tier"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/websocket"
)

// Notifier delivers realtime events. *websocket.Hub implements it.
type Notifier interface {
	SendToUser(userID string, msg websocket.Message) int
	Broadcast(msg websocket.Message)
}

type nopNotifier struct{}

func (nopNotifier) SendToUser(string, websocket.Message) int { return 0 }
func (nopNotifier) Broadcast(websocket.Message)              {}

type Service struct {
	db            *sql.DB
	users         *store.UserStore
	deals         *store.DealStore
	wallet        *store.WalletStore
	confirmations *store.ConfirmationStore
	notifier      Notifier
	logger        *slog.Logger

	quotas    quota.Table
	highValue int
	now       func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithQuotaTable(t quota.Table) Option {
	return func(s *Service) { s.quotas = t }
}

// WithHighValueThreshold sets the savings, in minor currency units, at which
// vendor redemptions need the owner's confirmation. Zero disables the rule.
func WithHighValueThreshold(minor int) Option {
	return func(s *Service) { s.highValue = minor }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func New(db *sql.DB, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		db:            db,
		users:         store.NewUserStore(db),
		deals:         store.NewDealStore(db),
		wallet:        store.NewWalletStore(db),
		confirmations: store.NewConfirmationStore(db),
		notifier:      nopNotifier{},
		logger:        logger,
		quotas:        quota.DefaultTable,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deals returns the catalog, for display.
func (s *Service) Deals(ctx context.Context) ([]model.Deal, error) {
	deals, err := s.deals.List(ctx)
	if err != nil {
		return nil, internal(err)
	}
	return deals, nil
}

// Now is the service clock.
func (s *Service) Now() time.Time { return s.now() }

func (s *Service) Deal(ctx context.Context, id int64) (*model.Deal, error) {
	d, err := s.deals.GetByID(ctx, id)
	if err != nil {
		return nil, internal(err)
	}
	if d == nil {
		return nil, newError(KindNotFound)
	}
	return d, nil
}

// User returns the stored user, or a NONE-tier stand-in for an identity that
// has no subscription record. An empty ID yields nil.
func (s *Service) User(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, nil
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, internal(err)
	}
	if u == nil {
		return &model.User{ID: userID, Tier: model.TierNone}, nil
	}
	return u, nil
}

// Claim reserves one instance of a deal in the user's wallet. Deal counters
// are not touched; they move only on redemption.
func (s *Service) Claim(ctx context.Context, userID string, dealID int64) (*model.WalletItem, error) {
	now := s.now()
	var item *model.WalletItem

	err := store.Transact(ctx, s.db, func(tx *sql.Tx) error {
		users, deals, wallet := s.users.WithTx(tx), s.deals.WithTx(tx), s.wallet.WithTx(tx)

		var user *model.User
		if userID != "" {
			u, err := users.GetByID(ctx, userID)
			if err != nil {
				return internal(err)
			}
			user = u
		}
		deal, err := deals.GetByID(ctx, dealID)
		if err != nil {
			return internal(err)
		}
		if deal == nil {
			return newError(KindNotFound)
		}

		if !tier.CanClaim(user, *deal) {
			return newError(KindNotEntitled)
		}
		if deal.IsExpired(now) {
			return newError(KindExpired)
		}
		if deal.IsSoldOut() {
			return newError(KindSoldOut)
		}
		if limit := deal.PerUserLimit(); limit > 0 {
			owned, err := wallet.CountByUserDeal(ctx, userID, dealID)
			if err != nil {
				return internal(err)
			}
			if owned >= limit {
				return newError(KindAlreadyOwned)
			}
		}
		if quota.Remaining(*user, s.quotas, now).Exhausted() {
			return newError(KindLimitReached)
		}
		active, err := activeCount(ctx, wallet, userID, now)
		if err != nil {
			return internal(err)
		}
		if capacity.IsFull(active, user.Tier, user.WalletLimit) {
			return newError(KindWalletFull)
		}

		code, err := uniqueCode(ctx, wallet)
		if err != nil {
			return internal(err)
		}
		item, err = wallet.Create(ctx, userID, dealID, code, now)
		if err != nil {
			return internal(err)
		}
		return nil
	})
	if err != nil {
		e := asError(err)
		s.logRejection("claim", e, "user_id", userID, "deal_id", dealID)
		return nil, e
	}

	s.logger.Info("deal claimed", "user_id", userID, "deal_id", dealID, "wallet_item_id", item.ID)
	return item, nil
}

// activeCount counts wallet items that still occupy a slot: active and not
// past their deal's expiry.
func activeCount(ctx context.Context, wallet *store.WalletStore, userID string, now time.Time) (int, error) {
	expiries, err := wallet.ActiveDealExpiries(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, expiresAt := range expiries {
		if !(model.Deal{ExpiresAt: expiresAt}).IsExpired(now) {
			n++
		}
	}
	return n, nil
}

// CheckMonthlyLimit reports the user's redemption allowance for this month.
func (s *Service) CheckMonthlyLimit(ctx context.Context, userID string) (quota.Usage, error) {
	user, err := s.User(ctx, userID)
	if err != nil {
		return quota.Usage{}, err
	}
	if user == nil {
		return quota.Usage{}, newError(KindNotFound)
	}
	return quota.Remaining(*user, s.quotas, s.now()), nil
}

// WalletEntry is a wallet item with its effective status and its deal.
type WalletEntry struct {
	model.WalletItem
	Deal *model.Deal `json:"deal"`
}

type WalletView struct {
	Items    []WalletEntry    `json:"items"`
	Capacity capacity.Summary `json:"capacity"`
}

// Wallet lists the user's items. Items whose deal has lapsed are reported
// as expired whether or not the sweeper has written that yet.
func (s *Service) Wallet(ctx context.Context, userID string) (*WalletView, error) {
	user, err := s.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, newError(KindNotFound)
	}

	items, err := s.wallet.ListByUser(ctx, userID)
	if err != nil {
		return nil, internal(err)
	}

	now := s.now()
	view := &WalletView{Items: make([]WalletEntry, 0, len(items))}
	deals := make(map[int64]*model.Deal)
	active := 0
	for _, item := range items {
		deal, ok := deals[item.DealID]
		if !ok {
			deal, err = s.deals.GetByID(ctx, item.DealID)
			if err != nil {
				return nil, internal(err)
			}
			deals[item.DealID] = deal
		}
		if deal != nil {
			item.Status = item.EffectiveStatus(*deal, now)
		}
		if item.Status == model.WalletActive {
			active++
		}
		view.Items = append(view.Items, WalletEntry{WalletItem: item, Deal: deal})
	}
	view.Capacity = capacity.Summarize(active, user.Tier, user.WalletLimit)
	return view, nil
}

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 8
	codeAttempts = 5
)

// generateCode returns a random code from an alphabet without look-alike
// characters, so vendors can type it.
func generateCode() (string, error) {
	b := make([]byte, codeLength)
	size := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

func uniqueCode(ctx context.Context, wallet *store.WalletStore) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		taken, err := wallet.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", errors.New("no free redemption code after retries")
}

func (s *Service) logRejection(op string, e *Error, attrs ...any) {
	attrs = append(attrs, "kind", e.Kind)
	if e.Kind == KindInternal {
		s.logger.Error(op+" failed", append(attrs, "error", e.Err)...)
		return
	}
	s.logger.Info(op+" rejected", attrs...)
}
