// Package ledger coordinates snack bar transactions: it validates a
// request against the live catalog and account, persists the resulting
// entry in a single store unit of work, and broadcasts events only after
// the commit is durable.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
)

// Store is the persistence surface the coordinator writes through.
type Store interface {
	AccountByID(ctx context.Context, id string) (*domain.Account, error)
	ProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	AppendEntry(ctx context.Context, draft domain.EntryDraft) (*domain.LedgerEntry, decimal.Decimal, error)
	EntryByID(ctx context.Context, id string) (*domain.LedgerEntry, error)
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
	Entries(ctx context.Context, accountID string, limit int) ([]domain.LedgerEntry, error)
	PendingPrep(ctx context.Context) ([]domain.PrepItem, error)
	CompletePrepItem(ctx context.Context, id string, actor domain.Actor, at time.Time) (*domain.PrepItem, error)
}

// Publisher receives events for committed writes. Publish must not block.
type Publisher interface {
	Publish(ev domain.Event)
}

// Config bounds the retry loop around transient store contention.
type Config struct {
	RetryAttempts int
	RetryInitial  time.Duration
	RetryMax      time.Duration
}

// Service is the transaction coordinator. One instance serves all request
// goroutines; it holds no mutable state of its own, the store transaction
// is the only synchronization point.
type Service struct {
	store  Store
	pub    Publisher
	cfg    Config
	logger *log.Logger
}

func New(store Store, pub Publisher, cfg Config, logger *log.Logger) *Service {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 5
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 25 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 500 * time.Millisecond
	}
	return &Service{store: store, pub: pub, cfg: cfg, logger: logger}
}

// PurchaseRequest buys catalog items on account.
type PurchaseRequest struct {
	AccountID string
	Items     []domain.PurchaseItem
	Note      string
	Rush      bool
	Actor     domain.Actor
}

// PaymentRequest credits money onto an account.
type PaymentRequest struct {
	AccountID string
	Amount    decimal.Decimal
	Note      string
	Actor     domain.Actor
}

// AdjustmentRequest is a signed staff correction. AdjustsEntryID marks it
// as a refund of a specific earlier entry; at most one such refund may
// reference any entry.
type AdjustmentRequest struct {
	AccountID      string
	Amount         decimal.Decimal
	Note           string
	AdjustsEntryID string
	Actor          domain.Actor
}

// Purchase validates the basket, snapshots product names and prices as of
// now, appends the purchase entry with its derived prep items, and
// returns the committed entry and resulting balance.
func (s *Service) Purchase(ctx context.Context, req PurchaseRequest) (*domain.LedgerEntry, decimal.Decimal, error) {
	if err := req.Actor.Validate(); err != nil {
		return nil, decimal.Zero, err
	}
	if err := domain.ValidateNote(req.Note); err != nil {
		return nil, decimal.Zero, err
	}
	account, err := s.activeAccount(ctx, req.AccountID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.store.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, err
	}
	lines, total, err := domain.SnapshotLines(req.Items, products)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if !total.IsPositive() {
		return nil, decimal.Zero, domain.NewValidationError(domain.ReasonInvalidAmount, "items",
			"purchase total must be positive")
	}

	now := time.Now().UTC()
	entry := domain.LedgerEntry{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Kind:      domain.EntryPurchase,
		Amount:    total.Neg(),
		Note:      req.Note,
		ActorID:   req.Actor.ID,
		ActorRole: req.Actor.Role,
		CreatedAt: now,
		Items:     lines,
	}
	draft := domain.EntryDraft{
		Entry: entry,
		Prep:  domain.DerivePrepItems(entry, *account, products, req.Rush, now),
	}

	stored, balance, err := s.append(ctx, draft)
	if err != nil {
		return nil, decimal.Zero, err
	}
	s.announceEntry(stored, balance)
	for _, item := range draft.Prep {
		s.announcePrep(domain.PrepItemCreated, item)
	}
	return stored, balance, nil
}

// Payment records money received for an account.
func (s *Service) Payment(ctx context.Context, req PaymentRequest) (*domain.LedgerEntry, decimal.Decimal, error) {
	if err := req.Actor.Validate(); err != nil {
		return nil, decimal.Zero, err
	}
	if err := domain.ValidateNote(req.Note); err != nil {
		return nil, decimal.Zero, err
	}
	if req.Amount.LessThan(domain.MinPayment) || req.Amount.GreaterThan(domain.MaxAmount) {
		return nil, decimal.Zero, domain.NewValidationError(domain.ReasonInvalidAmount, "amount",
			"payment must be between 0.01 and 10000")
	}
	account, err := s.activeAccount(ctx, req.AccountID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	draft := domain.EntryDraft{Entry: domain.LedgerEntry{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Kind:      domain.EntryPayment,
		Amount:    req.Amount,
		Note:      req.Note,
		ActorID:   req.Actor.ID,
		ActorRole: req.Actor.Role,
		CreatedAt: time.Now().UTC(),
	}}

	stored, balance, err := s.append(ctx, draft)
	if err != nil {
		return nil, decimal.Zero, err
	}
	s.announceEntry(stored, balance)
	return stored, balance, nil
}

// Adjust appends a signed correction entry. Unlike purchases and payments
// it is allowed on deactivated accounts, since corrections happen during
// end-of-season settlement.
func (s *Service) Adjust(ctx context.Context, req AdjustmentRequest) (*domain.LedgerEntry, decimal.Decimal, error) {
	if err := req.Actor.Validate(); err != nil {
		return nil, decimal.Zero, err
	}
	if err := domain.ValidateNote(req.Note); err != nil {
		return nil, decimal.Zero, err
	}
	if req.Amount.IsZero() {
		return nil, decimal.Zero, domain.NewValidationError(domain.ReasonInvalidAmount, "amount",
			"adjustment amount must not be zero")
	}
	if req.Amount.Abs().GreaterThan(domain.MaxAmount) {
		return nil, decimal.Zero, domain.NewValidationError(domain.ReasonInvalidAmount, "amount",
			"adjustment amount must not exceed 10000")
	}
	account, err := s.store.AccountByID(ctx, req.AccountID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if req.AdjustsEntryID != "" {
		target, err := s.store.EntryByID(ctx, req.AdjustsEntryID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if target.AccountID != account.ID {
			return nil, decimal.Zero, domain.NewValidationError(domain.ReasonWrongAccount, "adjustsEntryId",
				"entry "+target.ID+" belongs to a different account")
		}
	}

	draft := domain.EntryDraft{Entry: domain.LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      account.ID,
		Kind:           domain.EntryAdjustment,
		Amount:         req.Amount,
		Note:           req.Note,
		ActorID:        req.Actor.ID,
		ActorRole:      req.Actor.Role,
		AdjustsEntryID: req.AdjustsEntryID,
		CreatedAt:      time.Now().UTC(),
	}}

	stored, balance, err := s.append(ctx, draft)
	if err != nil {
		return nil, decimal.Zero, err
	}
	s.announceEntry(stored, balance)
	return stored, balance, nil
}

// Balance returns the summed balance for an account.
func (s *Service) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.store.Balance(ctx, accountID)
}

// Entries returns recent entries, newest first.
func (s *Service) Entries(ctx context.Context, accountID string, limit int) ([]domain.LedgerEntry, error) {
	return s.store.Entries(ctx, accountID, limit)
}

// PendingPrep returns the open kitchen queue, oldest first.
func (s *Service) PendingPrep(ctx context.Context) ([]domain.PrepItem, error) {
	return s.store.PendingPrep(ctx)
}

// CompletePrep marks a prep item done and announces it. A second
// completion surfaces the store's conflict, keeping the first completer.
func (s *Service) CompletePrep(ctx context.Context, id string, actor domain.Actor) (*domain.PrepItem, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	var item *domain.PrepItem
	err := s.withRetry(ctx, "complete prep item", func() error {
		var err error
		item, err = s.store.CompletePrepItem(ctx, id, actor, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.announcePrep(domain.PrepItemCompleted, *item)
	return item, nil
}

func (s *Service) activeAccount(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.store.AccountByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, domain.NewValidationError(domain.ReasonInactiveAccount, "accountId",
			"account "+account.Number+" is closed")
	}
	return account, nil
}

func (s *Service) append(ctx context.Context, draft domain.EntryDraft) (*domain.LedgerEntry, decimal.Decimal, error) {
	var entry *domain.LedgerEntry
	var balance decimal.Decimal
	err := s.withRetry(ctx, "append entry", func() error {
		var err error
		entry, balance, err = s.store.AppendEntry(ctx, draft)
		return err
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	return entry, balance, nil
}

// withRetry runs fn, retrying with jittered exponential backoff while it
// reports transient store contention. Exhausted retries and cancellation
// both surface as ErrStoreBusy so callers can tell clients to come back.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, domain.ErrStoreContention) {
			return err
		}
		if attempt >= s.cfg.RetryAttempts {
			s.logger.WithError(err).Warnf("%s: store still contended after %d attempts", op, attempt)
			return fmt.Errorf("%s: %w", op, domain.ErrStoreBusy)
		}
		delay := exponentialBackoff(attempt, s.cfg.RetryInitial, s.cfg.RetryMax)
		s.logger.Debugf("%s: store contention, attempt=%d, retrying in %s", op, attempt, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, domain.ErrStoreBusy)
		}
	}
}

func (s *Service) announceEntry(entry *domain.LedgerEntry, balance decimal.Decimal) {
	ev, err := domain.NewEvent(domain.BalanceChanged, domain.TopicAccounts, entry.AccountID, domain.BalanceChangedData{
		AccountID: entry.AccountID,
		EntryID:   entry.ID,
		Kind:      entry.Kind,
		Amount:    entry.Amount,
		Balance:   balance,
	})
	if err != nil {
		s.logger.WithError(err).Error("failed to encode balance-changed event")
		return
	}
	s.pub.Publish(ev)
}

func (s *Service) announcePrep(typ string, item domain.PrepItem) {
	ev, err := domain.NewEvent(typ, domain.TopicPrep, item.AccountID, item)
	if err != nil {
		s.logger.WithError(err).Errorf("failed to encode %s event", typ)
		return
	}
	s.pub.Publish(ev)
}
