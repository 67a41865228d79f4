package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
)

type accountRow struct {
	ID        string `db:"id"`
	Number    string `db:"number"`
	Name      string `db:"name"`
	Type      string `db:"type"`
	Active    bool   `db:"active"`
	Notes     string `db:"notes"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

const selectAccountSQL = `SELECT id, number, name, type, active, notes, created_at, updated_at FROM accounts`

func (r accountRow) toDomain() (domain.Account, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.Account{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return domain.Account{}, err
	}
	return domain.Account{
		ID:        r.ID,
		Number:    r.Number,
		Name:      r.Name,
		Type:      r.Type,
		Active:    r.Active,
		Notes:     r.Notes,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

// CreateAccount assigns the next account number and inserts the account in
// one transaction, so concurrent creates never share a number.
func (s *Store) CreateAccount(ctx context.Context, name, typ, notes string) (*domain.Account, error) {
	now := time.Now().UTC()
	acct := domain.Account{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      typ,
		Active:    true,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.beginWrite(ctx)
	if err != nil {
		return nil, markContention(err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxNum int
	if err := tx.GetContext(ctx, &maxNum,
		`SELECT COALESCE(MAX(CAST(substr(number, 2) AS INTEGER)), 0) FROM accounts`); err != nil {
		return nil, markContention(err)
	}
	acct.Number = domain.FormatAccountNumber(maxNum + 1)

	const q = `INSERT INTO accounts (id, number, name, type, active, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, tx.Rebind(q),
		acct.ID, acct.Number, acct.Name, acct.Type, acct.Active, acct.Notes,
		formatTime(acct.CreatedAt), formatTime(acct.UpdatedAt)); err != nil {
		return nil, markContention(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, markContention(err)
	}
	return &acct, nil
}

// AccountByID fetches one account.
func (s *Store) AccountByID(ctx context.Context, id string) (*domain.Account, error) {
	return s.accountWhere(ctx, `id = ?`, id)
}

// AccountByNumber fetches one account by its printable number, as scanned
// from a QR code.
func (s *Store) AccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return s.accountWhere(ctx, `number = ?`, number)
}

func (s *Store) accountWhere(ctx context.Context, cond, arg string) (*domain.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectAccountSQL+` WHERE `+cond), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("account", arg)
	}
	if err != nil {
		return nil, err
	}
	acct, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// SearchAccounts lists accounts ordered by number, optionally narrowed by a
// name/number substring and an account type.
func (s *Store) SearchAccounts(ctx context.Context, query, typ string) ([]domain.Account, error) {
	q := selectAccountSQL
	var conds []string
	var args []any
	if query != "" {
		pattern := "%" + query + "%"
		conds = append(conds, `(name LIKE ? OR number LIKE ?)`)
		args = append(args, pattern, pattern)
	}
	if typ != "" {
		conds = append(conds, `type = ?`)
		args = append(args, typ)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY number"

	var rows []accountRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	out := make([]domain.Account, 0, len(rows))
	for _, r := range rows {
		acct, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, nil
}

// UpdateAccount applies the set fields of the update and returns the fresh
// account. Ledger history is untouched by any of them.
func (s *Store) UpdateAccount(ctx context.Context, id string, upd domain.AccountUpdate) (*domain.Account, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now().UTC())}
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, *upd.Type)
	}
	if upd.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *upd.Notes)
	}
	if upd.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *upd.Active)
	}
	args = append(args, id)

	q := "UPDATE accounts SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return nil, markContention(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.NewNotFoundError("account", id)
	}
	return s.AccountByID(ctx, id)
}

// AccountStats summarizes the account's ledger: how many entries it has and
// how much has been spent on purchases.
func (s *Store) AccountStats(ctx context.Context, id string) (domain.AccountStats, error) {
	var amounts []decimal.Decimal
	if err := s.db.SelectContext(ctx, &amounts,
		s.db.Rebind(`SELECT amount FROM ledger_entries WHERE account_id = ? AND kind = ?`),
		id, domain.EntryPurchase); err != nil {
		return domain.AccountStats{}, err
	}
	stats := domain.AccountStats{TotalSpent: decimal.Zero}
	for _, a := range amounts {
		stats.TotalSpent = stats.TotalSpent.Add(a.Neg())
	}
	if err := s.db.GetContext(ctx, &stats.EntryCount,
		s.db.Rebind(`SELECT COUNT(*) FROM ledger_entries WHERE account_id = ?`), id); err != nil {
		return domain.AccountStats{}, err
	}
	return stats, nil
}
