package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Account types.
const (
	AccountIndividual = "individual"
	AccountFamily     = "family"
)

const (
	maxNameLen = 100
	maxNoteLen = 500
)

// Account is a charge account. Its balance is never stored: it is always
// the sum of the account's ledger entries. Accounts are deactivated, never
// deleted, so history stays resolvable.
type Account struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Active    bool      `json:"active"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AccountUpdate carries the fields a directory update may change. Nil
// fields are left untouched.
type AccountUpdate struct {
	Name   *string `json:"name"`
	Type   *string `json:"type"`
	Notes  *string `json:"notes"`
	Active *bool   `json:"active"`
}

// AccountStats summarizes an account's ledger without storing any of it.
type AccountStats struct {
	EntryCount int             `json:"entryCount"`
	TotalSpent decimal.Decimal `json:"totalSpent"`
}

// FormatAccountNumber renders the printable number for a sequence position,
// A001 onward.
func FormatAccountNumber(n int) string {
	return fmt.Sprintf("A%03d", n)
}

// ValidateAccountName bounds account and product display names.
func ValidateAccountName(name string) error {
	if name == "" || len(name) > maxNameLen {
		return NewValidationError(ReasonInvalidName, "name", fmt.Sprintf("name must be 1-%d characters", maxNameLen))
	}
	return nil
}

// ValidateAccountType accepts the known account types.
func ValidateAccountType(typ string) error {
	switch typ {
	case AccountIndividual, AccountFamily:
		return nil
	}
	return NewValidationError(ReasonInvalidType, "type", "unknown account type "+typ)
}

// ValidateNote bounds free-text notes on accounts and ledger entries.
func ValidateNote(note string) error {
	if len(note) > maxNoteLen {
		return NewValidationError(ReasonInvalidNote, "note", fmt.Sprintf("note must be at most %d characters", maxNoteLen))
	}
	return nil
}
