package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxAmount bounds product prices and manually entered amounts.
var MaxAmount = decimal.NewFromInt(10000)

// Product is a catalog item. Name and price are snapshotted onto line items
// at purchase time, so later catalog edits never rewrite history.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	RequiresPrep bool            `json:"requiresPrep"`
	Active       bool            `json:"active"`
	DisplayOrder int             `json:"displayOrder"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// ProductUpdate carries the fields a catalog update may change. Nil fields
// are left untouched.
type ProductUpdate struct {
	Name         *string          `json:"name"`
	Price        *decimal.Decimal `json:"price"`
	RequiresPrep *bool            `json:"requiresPrep"`
	Active       *bool            `json:"active"`
	DisplayOrder *int             `json:"displayOrder"`
}

// ValidatePrice bounds a catalog price. Zero is allowed for giveaway items.
func ValidatePrice(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(MaxAmount) {
		return NewValidationError(ReasonInvalidAmount, "price", "price must be between 0 and 10000")
	}
	return nil
}
