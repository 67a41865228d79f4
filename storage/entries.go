package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
)

type entryRow struct {
	Seq            int64           `db:"seq"`
	ID             string          `db:"id"`
	AccountID      string          `db:"account_id"`
	Kind           string          `db:"kind"`
	Amount         decimal.Decimal `db:"amount"`
	Note           string          `db:"note"`
	ActorID        string          `db:"actor_id"`
	ActorRole      string          `db:"actor_role"`
	AdjustsEntryID sql.NullString  `db:"adjusts_entry_id"`
	CreatedAt      string          `db:"created_at"`
}

type lineRow struct {
	ID          string          `db:"id"`
	EntryID     string          `db:"entry_id"`
	ProductID   string          `db:"product_id"`
	ProductName string          `db:"product_name"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	Quantity    int             `db:"quantity"`
	LineTotal   decimal.Decimal `db:"line_total"`
	Position    int             `db:"position"`
}

const selectEntrySQL = `SELECT seq, id, account_id, kind, amount, note, actor_id, actor_role, adjusts_entry_id, created_at FROM ledger_entries`

func (r entryRow) toDomain() (domain.LedgerEntry, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	e := domain.LedgerEntry{
		Seq:       r.Seq,
		ID:        r.ID,
		AccountID: r.AccountID,
		Kind:      r.Kind,
		Amount:    r.Amount,
		Note:      r.Note,
		ActorID:   r.ActorID,
		ActorRole: r.ActorRole,
		CreatedAt: created,
	}
	if r.AdjustsEntryID.Valid {
		e.AdjustsEntryID = r.AdjustsEntryID.String
	}
	return e, nil
}

func (r lineRow) toDomain() domain.LineItem {
	return domain.LineItem{
		ID:          r.ID,
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		UnitPrice:   r.UnitPrice,
		Quantity:    r.Quantity,
		LineTotal:   r.LineTotal,
	}
}

// AppendEntry persists the draft entry with its line items and derived prep
// items in one transaction and returns the stored entry together with the
// account balance after the write. Ledger rows are never updated afterwards.
//
// An adjustment that references an entry which already has an adjustment is
// rejected with a conflict; the check runs inside the same transaction as
// the insert so two concurrent corrections cannot both land.
func (s *Store) AppendEntry(ctx context.Context, draft domain.EntryDraft) (*domain.LedgerEntry, decimal.Decimal, error) {
	entry := draft.Entry

	tx, err := s.beginWrite(ctx)
	if err != nil {
		return nil, decimal.Zero, markContention(err)
	}
	defer tx.Rollback()

	if entry.Kind == domain.EntryAdjustment && entry.AdjustsEntryID != "" {
		var n int
		err := tx.GetContext(ctx, &n,
			tx.Rebind(`SELECT COUNT(*) FROM ledger_entries WHERE adjusts_entry_id = ?`),
			entry.AdjustsEntryID)
		if err != nil {
			return nil, decimal.Zero, markContention(err)
		}
		if n > 0 {
			return nil, decimal.Zero, domain.NewConflictError(domain.ReasonAlreadyAdjusted,
				fmt.Sprintf("entry %s has already been adjusted", entry.AdjustsEntryID))
		}
	}

	seq, err := s.insertEntry(ctx, tx, entry)
	if err != nil {
		return nil, decimal.Zero, markContention(err)
	}
	entry.Seq = seq

	const insertLineSQL = `INSERT INTO line_items (id, entry_id, product_id, product_name, unit_price, quantity, line_total, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for i, item := range entry.Items {
		if _, err := tx.ExecContext(ctx, tx.Rebind(insertLineSQL),
			item.ID, entry.ID, item.ProductID, item.ProductName,
			item.UnitPrice, item.Quantity, item.LineTotal, i); err != nil {
			return nil, decimal.Zero, markContention(err)
		}
	}

	const insertPrepSQL = `INSERT INTO prep_items (id, entry_id, line_item_id, account_id, account_name, product_name, quantity, priority, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, p := range draft.Prep {
		if _, err := tx.ExecContext(ctx, tx.Rebind(insertPrepSQL),
			p.ID, p.EntryID, p.LineItemID, p.AccountID, p.AccountName,
			p.ProductName, p.Quantity, p.Priority, p.Status, formatTime(p.CreatedAt)); err != nil {
			return nil, decimal.Zero, markContention(err)
		}
	}

	balance, err := sumBalance(ctx, tx, entry.AccountID)
	if err != nil {
		return nil, decimal.Zero, markContention(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, decimal.Zero, markContention(err)
	}
	return &entry, balance, nil
}

func (s *Store) insertEntry(ctx context.Context, tx *sqlx.Tx, entry domain.LedgerEntry) (int64, error) {
	var adjusts sql.NullString
	if entry.AdjustsEntryID != "" {
		adjusts = sql.NullString{String: entry.AdjustsEntryID, Valid: true}
	}
	const insertSQL = `INSERT INTO ledger_entries (id, account_id, kind, amount, note, actor_id, actor_role, adjusts_entry_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{entry.ID, entry.AccountID, entry.Kind, entry.Amount, entry.Note,
		entry.ActorID, entry.ActorRole, adjusts, formatTime(entry.CreatedAt)}

	if s.driver == DriverPostgres {
		var seq int64
		err := tx.QueryRowContext(ctx, tx.Rebind(insertSQL+` RETURNING seq`), args...).Scan(&seq)
		return seq, err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(insertSQL), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Balance sums the account's ledger. The total is always derived from the
// entry rows, never read from a stored column.
func (s *Store) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if _, err := s.AccountByID(ctx, accountID); err != nil {
		return decimal.Zero, err
	}
	return sumBalance(ctx, s.db, accountID)
}

// Entries lists ledger entries newest first, with their line items attached.
// An empty accountID returns the cross-account feed.
func (s *Store) Entries(ctx context.Context, accountID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := selectEntrySQL
	args := []any{}
	if accountID != "" {
		if _, err := s.AccountByID(ctx, accountID); err != nil {
			return nil, err
		}
		q += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	q += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	entries := make([]domain.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := s.attachItems(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// EntryByID fetches a single entry with its line items.
func (s *Store) EntryByID(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectEntrySQL+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("entry", id)
	}
	if err != nil {
		return nil, err
	}
	e, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	entries := []domain.LedgerEntry{e}
	if err := s.attachItems(ctx, entries); err != nil {
		return nil, err
	}
	return &entries[0], nil
}

func (s *Store) attachItems(ctx context.Context, entries []domain.LedgerEntry) error {
	ids := make([]string, 0, len(entries))
	byID := make(map[string]*domain.LedgerEntry, len(entries))
	for i := range entries {
		if entries[i].Kind != domain.EntryPurchase {
			continue
		}
		ids = append(ids, entries[i].ID)
		byID[entries[i].ID] = &entries[i]
	}
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`SELECT id, entry_id, product_id, product_name, unit_price, quantity, line_total, position
		FROM line_items WHERE entry_id IN (?) ORDER BY entry_id, position`, ids)
	if err != nil {
		return err
	}
	var rows []lineRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, r := range rows {
		e, ok := byID[r.EntryID]
		if !ok {
			continue
		}
		e.Items = append(e.Items, r.toDomain())
	}
	return nil
}
