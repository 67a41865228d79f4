package domain

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stream topics. A connection's role decides which topics it receives.
const (
	TopicAccounts = "accounts"
	TopicPrep     = "prep"
	TopicCatalog  = "catalog"
)

// Event types.
const (
	BalanceChanged    = "balance-changed"
	PrepItemCreated   = "prep-item-created"
	PrepItemCompleted = "prep-item-completed"
	AccountCreated    = "account-created"
	AccountUpdated    = "account-updated"
	ProductChanged    = "product-changed"
)

// Event is the envelope broadcast to stream subscribers. AccountID is the
// ordering key: events for one account reach a given connection in publish
// order. Events for different accounts carry no relative order.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	AccountID string          `json:"accountId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Time      int64           `json:"time"`
	Origin    string          `json:"origin,omitempty"`
}

// BalanceChangedData reports a committed ledger entry and the balance that
// resulted from it.
type BalanceChangedData struct {
	AccountID string          `json:"accountId"`
	EntryID   string          `json:"entryId"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
}

// NewEvent wraps a payload into a broadcast envelope.
func NewEvent(typ, topic, accountID string, data any) (Event, error) {
	raw, err := sonic.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Topic:     topic,
		AccountID: accountID,
		Data:      raw,
		Time:      time.Now().UnixNano(),
	}, nil
}

// TopicsForRole maps a connection's role to the topics it receives. POS
// tablets follow accounts and the catalog, kitchen displays follow prep,
// admins follow everything.
func TopicsForRole(role string) []string {
	switch role {
	case RolePrep:
		return []string{TopicPrep}
	case RolePOS:
		return []string{TopicAccounts, TopicCatalog}
	case RoleAdmin:
		return []string{TopicAccounts, TopicPrep, TopicCatalog}
	}
	return nil
}
