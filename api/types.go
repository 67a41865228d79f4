// Package api exposes the POS backend over HTTP: transaction submission,
// account and catalog management, the prep queue and the live event stream.
package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
	"github.com/JimRearick/camp-snackbar-pos-sub001/events"
	"github.com/JimRearick/camp-snackbar-pos-sub001/ledger"
)

// Coordinator runs everything that touches the ledger's unit of work.
type Coordinator interface {
	Purchase(ctx context.Context, req ledger.PurchaseRequest) (*domain.LedgerEntry, decimal.Decimal, error)
	Payment(ctx context.Context, req ledger.PaymentRequest) (*domain.LedgerEntry, decimal.Decimal, error)
	Adjust(ctx context.Context, req ledger.AdjustmentRequest) (*domain.LedgerEntry, decimal.Decimal, error)
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
	Entries(ctx context.Context, accountID string, limit int) ([]domain.LedgerEntry, error)
	PendingPrep(ctx context.Context) ([]domain.PrepItem, error)
	CompletePrep(ctx context.Context, id string, actor domain.Actor) (*domain.PrepItem, error)
}

// Directory manages charge accounts.
type Directory interface {
	CreateAccount(ctx context.Context, name, typ, notes string) (*domain.Account, error)
	AccountByID(ctx context.Context, id string) (*domain.Account, error)
	SearchAccounts(ctx context.Context, query, typ string) ([]domain.Account, error)
	UpdateAccount(ctx context.Context, id string, upd domain.AccountUpdate) (*domain.Account, error)
	AccountStats(ctx context.Context, id string) (domain.AccountStats, error)
}

// Catalog manages the product list.
type Catalog interface {
	Products(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	CreateProduct(ctx context.Context, name string, price decimal.Decimal, requiresPrep bool, displayOrder int) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, upd domain.ProductUpdate) (*domain.Product, error)
}

// Streamer hands out live event subscriptions for the SSE endpoint.
type Streamer interface {
	Subscribe(actor domain.Actor) *events.Subscription
}

// Publisher broadcasts directory and catalog changes. Ledger events are
// published by the coordinator after commit; these are the rest.
type Publisher interface {
	Publish(ev domain.Event)
}

// Deduper remembers idempotency keys so a resubmitted transaction is
// rejected on whichever instance it lands.
type Deduper interface {
	Add(ctx context.Context, actorID, key string) (bool, error)
	Remove(ctx context.Context, actorID, key string) error
}

// Pinger reports store liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config carries presentation settings served to clients.
type Config struct {
	PrepWarnAfter   time.Duration
	PrepUrgentAfter time.Duration
}

// Deps bundles everything the handlers need. Deduper may be nil when no
// Redis connection is configured; idempotency checks are skipped then.
type Deps struct {
	Coordinator Coordinator
	Directory   Directory
	Catalog     Catalog
	Streamer    Streamer
	Publisher   Publisher
	Deduper     Deduper
	Pinger      Pinger
	Config      Config
	Logger      *log.Logger
}

// Register wires all routes into the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.POST("/api/transactions", postTransaction(d))
	e.GET("/api/transactions", getTransactions(d))
	e.GET("/api/accounts", getAccounts(d))
	e.POST("/api/accounts", postAccount(d))
	e.GET("/api/accounts/:id", getAccount(d))
	e.PUT("/api/accounts/:id", putAccount(d))
	e.GET("/api/accounts/:id/balance", getBalance(d))
	e.GET("/api/accounts/:id/entries", getEntries(d))
	e.GET("/api/accounts/:id/qr", getAccountQR(d))
	e.GET("/api/products", getProducts(d))
	e.POST("/api/products", postProduct(d))
	e.PUT("/api/products/:id", putProduct(d))
	e.GET("/api/prep/pending", getPendingPrep(d))
	e.POST("/api/prep/:id/complete", postCompletePrep(d))
	e.GET("/api/config", getConfig(d))
	e.GET("/api/stream", getStream(d))
	e.GET("/healthz", healthz(d))
}
