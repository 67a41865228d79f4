package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger entry kinds. Purchases carry negative amounts, payments positive;
// adjustments are signed corrections entered by staff.
const (
	EntryPurchase   = "purchase"
	EntryPayment    = "payment"
	EntryAdjustment = "adjustment"
)

// Quantity bounds for a single purchase line.
const (
	MinQuantity = 1
	MaxQuantity = 100
)

// MinPayment is the smallest accepted payment amount.
var MinPayment = decimal.New(1, -2)

// LedgerEntry is one immutable row of an account's history. Entries are
// written once and never updated; corrections append adjustment entries.
type LedgerEntry struct {
	ID             string          `json:"id"`
	Seq            int64           `json:"seq"`
	AccountID      string          `json:"accountId"`
	Kind           string          `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	Note           string          `json:"note,omitempty"`
	ActorID        string          `json:"actorId"`
	ActorRole      string          `json:"actorRole"`
	AdjustsEntryID string          `json:"adjustsEntryId,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	Items          []LineItem      `json:"items,omitempty"`
}

// LineItem is a product snapshot captured when its purchase was validated.
// Catalog changes after that moment do not reach it.
type LineItem struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// PurchaseItem references a product and quantity in a purchase request.
type PurchaseItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// EntryDraft is a fully validated entry ready for one persistence unit of
// work: the entry, its line items, and its derived prep items commit or
// fail together.
type EntryDraft struct {
	Entry LedgerEntry
	Prep  []PrepItem
}

// SnapshotLines builds line item snapshots for the requested items from the
// current catalog and returns them with their combined total. The same
// product may appear on several lines.
func SnapshotLines(items []PurchaseItem, products map[string]Product) ([]LineItem, decimal.Decimal, error) {
	if len(items) == 0 {
		return nil, decimal.Zero, NewValidationError(ReasonEmptyItems, "items", "purchase needs at least one item")
	}
	lines := make([]LineItem, 0, len(items))
	total := decimal.Zero
	for i, it := range items {
		field := fmt.Sprintf("items[%d]", i)
		if it.Quantity < MinQuantity || it.Quantity > MaxQuantity {
			return nil, decimal.Zero, NewValidationError(ReasonInvalidQuantity, field+".quantity",
				fmt.Sprintf("quantity must be between %d and %d", MinQuantity, MaxQuantity))
		}
		p, ok := products[it.ProductID]
		if !ok {
			return nil, decimal.Zero, NewNotFoundError("product", it.ProductID)
		}
		if !p.Active {
			return nil, decimal.Zero, NewValidationError(ReasonInactiveProduct, field+".productId",
				"product "+p.Name+" is not for sale")
		}
		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		lines = append(lines, LineItem{
			ID:          uuid.NewString(),
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    it.Quantity,
			LineTotal:   lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return lines, total, nil
}
