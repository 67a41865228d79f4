package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
)

func adjustmentDraft(acct *domain.Account, amount, adjusts string) domain.EntryDraft {
	return domain.EntryDraft{Entry: domain.LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      acct.ID,
		Kind:           domain.EntryAdjustment,
		Amount:         decimal.RequireFromString(amount),
		ActorID:        "admin-1",
		ActorRole:      domain.RoleAdmin,
		AdjustsEntryID: adjusts,
		CreatedAt:      time.Now().UTC(),
	}}
}

func TestAppendEntryPurchaseAndPayment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := seedAccount(t, s, "Smith Family", domain.AccountFamily)
	burger := seedProduct(t, s, "Hamburger", "5.00", true)
	cola := seedProduct(t, s, "Cola", "2.00", false)

	draft := purchaseDraft(t, s, acct, []domain.PurchaseItem{
		{ProductID: burger.ID, Quantity: 2},
		{ProductID: cola.ID, Quantity: 1},
	}, false)
	entry, balance, err := s.AppendEntry(ctx, draft)
	if err != nil {
		t.Fatalf("append purchase: %v", err)
	}
	if entry.Seq == 0 {
		t.Fatal("entry seq not assigned")
	}
	if !entry.Amount.Equal(decimal.RequireFromString("-12.00")) {
		t.Fatalf("amount = %s, want -12.00", entry.Amount)
	}
	if !balance.Equal(decimal.RequireFromString("-12.00")) {
		t.Fatalf("balance = %s, want -12.00", balance)
	}

	pending, err := s.PendingPrep(ctx)
	if err != nil {
		t.Fatalf("pending prep: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending prep items = %d, want 1", len(pending))
	}
	if pending[0].ProductName != "Hamburger" || pending[0].Quantity != 2 {
		t.Fatalf("prep item = %+v", pending[0])
	}

	_, balance, err = s.AppendEntry(ctx, paymentDraft(acct, "12.00"))
	if err != nil {
		t.Fatalf("append payment: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("balance after payment = %s, want 0", balance)
	}

	derived, err := s.Balance(ctx, acct.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !derived.IsZero() {
		t.Fatalf("derived balance = %s, want 0", derived)
	}
}

func TestEntriesNewestFirstWithItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := seedAccount(t, s, "Smith Family", domain.AccountFamily)
	cola := seedProduct(t, s, "Cola", "2.00", false)

	first := purchaseDraft(t, s, acct, []domain.PurchaseItem{{ProductID: cola.ID, Quantity: 1}}, false)
	if _, _, err := s.AppendEntry(ctx, first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, _, err := s.AppendEntry(ctx, paymentDraft(acct, "2.00")); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := s.Entries(ctx, acct.ID, 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Kind != domain.EntryPayment || entries[1].Kind != domain.EntryPurchase {
		t.Fatalf("order = %s, %s", entries[0].Kind, entries[1].Kind)
	}
	if len(entries[0].Items) != 0 {
		t.Fatalf("payment carries %d items", len(entries[0].Items))
	}
	if len(entries[1].Items) != 1 || entries[1].Items[0].ProductName != "Cola" {
		t.Fatalf("purchase items = %+v", entries[1].Items)
	}

	limited, err := s.Entries(ctx, acct.ID, 1)
	if err != nil {
		t.Fatalf("entries limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Kind != domain.EntryPayment {
		t.Fatalf("limited = %+v", limited)
	}
}

func TestEntriesAcrossAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	smith := seedAccount(t, s, "Smith Family", domain.AccountFamily)
	jones := seedAccount(t, s, "Jones Family", domain.AccountFamily)

	if _, _, err := s.AppendEntry(ctx, paymentDraft(smith, "5.00")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, _, err := s.AppendEntry(ctx, paymentDraft(jones, "3.00")); err != nil {
		t.Fatalf("append: %v", err)
	}

	all, err := s.Entries(ctx, "", 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("feed entries = %d, want 2", len(all))
	}
	if all[0].AccountID != jones.ID || all[1].AccountID != smith.ID {
		t.Fatalf("feed order = %s, %s", all[0].AccountID, all[1].AccountID)
	}
}

func TestPriceSnapshotSurvivesCatalogEdit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := seedAccount(t, s, "Smith Family", domain.AccountFamily)
	cola := seedProduct(t, s, "Cola", "2.00", false)

	draft := purchaseDraft(t, s, acct, []domain.PurchaseItem{{ProductID: cola.ID, Quantity: 1}}, false)
	entry, _, err := s.AppendEntry(ctx, draft)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	newPrice := decimal.RequireFromString("3.50")
	if _, err := s.UpdateProduct(ctx, cola.ID, domain.ProductUpdate{Price: &newPrice}); err != nil {
		t.Fatalf("update product: %v", err)
	}

	stored, err := s.EntryByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("entry by id: %v", err)
	}
	if !stored.Items[0].UnitPrice.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("snapshot price = %s, want 2.00", stored.Items[0].UnitPrice)
	}
	if !stored.Amount.Equal(decimal.RequireFromString("-2.00")) {
		t.Fatalf("entry amount = %s, want -2.00", stored.Amount)
	}
}

func TestAppendAdjustmentSecondCorrectionConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := seedAccount(t, s, "Smith Family", domain.AccountFamily)
	cola := seedProduct(t, s, "Cola", "2.00", false)

	draft := purchaseDraft(t, s, acct, []domain.PurchaseItem{{ProductID: cola.ID, Quantity: 1}}, false)
	purchase, _, err := s.AppendEntry(ctx, draft)
	if err != nil {
		t.Fatalf("append purchase: %v", err)
	}

	_, balance, err := s.AppendEntry(ctx, adjustmentDraft(acct, "2.00", purchase.ID))
	if err != nil {
		t.Fatalf("append adjustment: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("balance after refund = %s, want 0", balance)
	}

	_, _, err = s.AppendEntry(ctx, adjustmentDraft(acct, "2.00", purchase.ID))
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second adjustment error = %v, want conflict", err)
	}
	if conflict.Reason != domain.ReasonAlreadyAdjusted {
		t.Fatalf("conflict reason = %q", conflict.Reason)
	}

	entries, err := s.Entries(ctx, acct.ID, 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries after conflict = %d, want 2", len(entries))
	}
	final, err := s.Balance(ctx, acct.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !final.IsZero() {
		t.Fatalf("balance after conflict = %s, want 0", final)
	}
}

func TestAppendEntryFailureLeavesNoPartialState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := seedAccount(t, s, "Smith Family", domain.AccountFamily)
	burger := seedProduct(t, s, "Hamburger", "5.00", true)

	draft := purchaseDraft(t, s, acct, []domain.PurchaseItem{{ProductID: burger.ID, Quantity: 1}}, false)
	// Duplicating the derived prep item makes its second insert violate the
	// primary key after the entry and line items are already written, so the
	// whole transaction has to roll back.
	draft.Prep = append(draft.Prep, draft.Prep[0])

	if _, _, err := s.AppendEntry(ctx, draft); err == nil {
		t.Fatal("append with duplicate prep item should fail")
	}

	entries, err := s.Entries(ctx, acct.ID, 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries after failed append = %d, want 0", len(entries))
	}
	balance, err := s.Balance(ctx, acct.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("balance after failed append = %s, want 0", balance)
	}
	pending, err := s.PendingPrep(ctx)
	if err != nil {
		t.Fatalf("pending prep: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending prep after failed append = %d, want 0", len(pending))
	}
}

func TestEntryByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	var nf *domain.NotFoundError
	if _, err := s.EntryByID(context.Background(), "missing"); !errors.As(err, &nf) {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestConcurrentAppendsBothCommit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := seedAccount(t, s, "Smith Family", domain.AccountFamily)
	burger := seedProduct(t, s, "Hamburger", "5.00", true)
	chips := seedProduct(t, s, "Chips", "3.00", false)

	drafts := []domain.EntryDraft{
		purchaseDraft(t, s, acct, []domain.PurchaseItem{{ProductID: burger.ID, Quantity: 1}}, false),
		purchaseDraft(t, s, acct, []domain.PurchaseItem{{ProductID: chips.ID, Quantity: 1}}, false),
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(drafts))
	for _, draft := range drafts {
		wg.Add(1)
		go func(d domain.EntryDraft) {
			defer wg.Done()
			_, _, err := s.AppendEntry(ctx, d)
			errs <- err
		}(draft)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent append: %v", err)
		}
	}

	balance, err := s.Balance(ctx, acct.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("-8.00")) {
		t.Fatalf("balance = %s, want -8.00", balance)
	}
}
