package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
)

type productRow struct {
	ID           string          `db:"id"`
	Name         string          `db:"name"`
	Price        decimal.Decimal `db:"price"`
	RequiresPrep bool            `db:"requires_prep"`
	Active       bool            `db:"active"`
	DisplayOrder int             `db:"display_order"`
	CreatedAt    string          `db:"created_at"`
	UpdatedAt    string          `db:"updated_at"`
}

const selectProductSQL = `SELECT id, name, price, requires_prep, active, display_order, created_at, updated_at FROM products`

func (r productRow) toDomain() (domain.Product, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:           r.ID,
		Name:         r.Name,
		Price:        r.Price,
		RequiresPrep: r.RequiresPrep,
		Active:       r.Active,
		DisplayOrder: r.DisplayOrder,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}, nil
}

// Products lists the catalog in display order. Inactive items are kept out
// unless asked for.
func (s *Store) Products(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	q := selectProductSQL
	if !includeInactive {
		q += ` WHERE active = ?`
	}
	q += ` ORDER BY display_order, name`

	var rows []productRow
	var err error
	if includeInactive {
		err = s.db.SelectContext(ctx, &rows, q)
	} else {
		err = s.db.SelectContext(ctx, &rows, s.db.Rebind(q), true)
	}
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ProductByID fetches one product.
func (s *Store) ProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectProductSQL+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("product", id)
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

// ProductsByIDs fetches the referenced products keyed by id. Missing ids
// are simply absent from the map; the caller decides what that means.
func (s *Store) ProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	query, args, err := sqlx.In(selectProductSQL+` WHERE id IN (?)`, unique)
	if err != nil {
		return nil, err
	}
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, nil
}

// CreateProduct inserts a catalog item.
func (s *Store) CreateProduct(ctx context.Context, name string, price decimal.Decimal, requiresPrep bool, displayOrder int) (*domain.Product, error) {
	now := time.Now().UTC()
	p := domain.Product{
		ID:           uuid.NewString(),
		Name:         name,
		Price:        price,
		RequiresPrep: requiresPrep,
		Active:       true,
		DisplayOrder: displayOrder,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	const q = `INSERT INTO products (id, name, price, requires_prep, active, display_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(q),
		p.ID, p.Name, p.Price, p.RequiresPrep, p.Active, p.DisplayOrder,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt)); err != nil {
		return nil, markContention(err)
	}
	return &p, nil
}

// UpdateProduct applies the set fields of the update and returns the fresh
// product. Existing line item snapshots are unaffected.
func (s *Store) UpdateProduct(ctx context.Context, id string, upd domain.ProductUpdate) (*domain.Product, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now().UTC())}
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Price != nil {
		sets = append(sets, "price = ?")
		args = append(args, *upd.Price)
	}
	if upd.RequiresPrep != nil {
		sets = append(sets, "requires_prep = ?")
		args = append(args, *upd.RequiresPrep)
	}
	if upd.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *upd.Active)
	}
	if upd.DisplayOrder != nil {
		sets = append(sets, "display_order = ?")
		args = append(args, *upd.DisplayOrder)
	}
	args = append(args, id)

	q := "UPDATE products SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return nil, markContention(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.NewNotFoundError("product", id)
	}
	return s.ProductByID(ctx, id)
}
