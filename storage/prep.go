package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
)

type prepRow struct {
	ID          string         `db:"id"`
	EntryID     string         `db:"entry_id"`
	LineItemID  string         `db:"line_item_id"`
	AccountID   string         `db:"account_id"`
	AccountName string         `db:"account_name"`
	ProductName string         `db:"product_name"`
	Quantity    int            `db:"quantity"`
	Priority    int            `db:"priority"`
	Status      string         `db:"status"`
	CreatedAt   string         `db:"created_at"`
	CompletedAt sql.NullString `db:"completed_at"`
	CompletedBy sql.NullString `db:"completed_by"`
}

const selectPrepSQL = `SELECT id, entry_id, line_item_id, account_id, account_name, product_name, quantity, priority, status, created_at, completed_at, completed_by FROM prep_items`

func (r prepRow) toDomain() (domain.PrepItem, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.PrepItem{}, err
	}
	p := domain.PrepItem{
		ID:          r.ID,
		EntryID:     r.EntryID,
		LineItemID:  r.LineItemID,
		AccountID:   r.AccountID,
		AccountName: r.AccountName,
		ProductName: r.ProductName,
		Quantity:    r.Quantity,
		Priority:    r.Priority,
		Status:      r.Status,
		CreatedAt:   created,
	}
	if r.CompletedAt.Valid {
		at, err := parseTime(r.CompletedAt.String)
		if err != nil {
			return domain.PrepItem{}, err
		}
		p.CompletedAt = &at
	}
	if r.CompletedBy.Valid {
		p.CompletedBy = r.CompletedBy.String
	}
	return p, nil
}

// PendingPrep lists open prep items oldest first. Rush priority is carried
// on each item; ordering stays strictly by creation so nothing starves.
func (s *Store) PendingPrep(ctx context.Context) ([]domain.PrepItem, error) {
	var rows []prepRow
	q := s.db.Rebind(selectPrepSQL + ` WHERE status = ? ORDER BY created_at, id`)
	if err := s.db.SelectContext(ctx, &rows, q, domain.PrepPending); err != nil {
		return nil, err
	}
	out := make([]domain.PrepItem, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// PrepItemByID fetches one prep item.
func (s *Store) PrepItemByID(ctx context.Context, id string) (*domain.PrepItem, error) {
	var row prepRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectPrepSQL+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("prep item", id)
	}
	if err != nil {
		return nil, err
	}
	p, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CompletePrepItem marks a pending prep item completed by the given actor.
// The guarded update only touches rows still pending, so of two racing
// completions exactly one wins; the loser gets a conflict naming whoever
// got there first.
func (s *Store) CompletePrepItem(ctx context.Context, id string, actor domain.Actor, at time.Time) (*domain.PrepItem, error) {
	tx, err := s.beginWrite(ctx)
	if err != nil {
		return nil, markContention(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE prep_items SET status = ?, completed_at = ?, completed_by = ? WHERE id = ? AND status = ?`),
		domain.PrepCompleted, formatTime(at.UTC()), actor.ID, id, domain.PrepPending)
	if err != nil {
		return nil, markContention(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	var row prepRow
	err = tx.GetContext(ctx, &row, tx.Rebind(selectPrepSQL+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("prep item", id)
	}
	if err != nil {
		return nil, markContention(err)
	}
	item, err := row.toDomain()
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return nil, domain.NewConflictError(domain.ReasonAlreadyCompleted,
			fmt.Sprintf("prep item already completed by %s", item.CompletedBy))
	}

	if err := tx.Commit(); err != nil {
		return nil, markContention(err)
	}
	return &item, nil
}
