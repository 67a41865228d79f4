package domain

import (
	"time"

	"github.com/google/uuid"
)

// Prep item statuses. Completed is terminal.
const (
	PrepPending   = "pending"
	PrepCompleted = "completed"
)

// Prep priorities. Lower sorts more urgent on kitchen displays.
const (
	PriorityRush   = 1
	PriorityNormal = 2
)

// PrepItem is one unit of kitchen work, derived from a purchase line whose
// product requires preparation. It is created pending inside the purchase's
// unit of work and completed exactly once.
type PrepItem struct {
	ID          string     `json:"id"`
	EntryID     string     `json:"entryId"`
	LineItemID  string     `json:"lineItemId"`
	AccountID   string     `json:"accountId"`
	AccountName string     `json:"accountName"`
	ProductName string     `json:"productName"`
	Quantity    int        `json:"quantity"`
	Priority    int        `json:"priority"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CompletedBy string     `json:"completedBy,omitempty"`
}

// Age reports how long the item has been waiting.
func (p PrepItem) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// DerivePrepItems returns one pending prep item per line whose product
// requires preparation. Lines for other products produce nothing. The
// account name rides along so kitchen displays need no extra lookup.
func DerivePrepItems(entry LedgerEntry, account Account, products map[string]Product, rush bool, now time.Time) []PrepItem {
	priority := PriorityNormal
	if rush {
		priority = PriorityRush
	}
	var out []PrepItem
	for _, line := range entry.Items {
		p, ok := products[line.ProductID]
		if !ok || !p.RequiresPrep {
			continue
		}
		out = append(out, PrepItem{
			ID:          uuid.NewString(),
			EntryID:     entry.ID,
			LineItemID:  line.ID,
			AccountID:   account.ID,
			AccountName: account.Name,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			Priority:    priority,
			Status:      PrepPending,
			CreatedAt:   now,
		})
	}
	return out
}
