package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
	"github.com/JimRearick/camp-snackbar-pos-sub001/ledger"
)

const requestMaxSize = 64 << 10

type transactionRequest struct {
	AccountID      string                `json:"accountId"`
	Kind           string                `json:"kind"`
	Items          []domain.PurchaseItem `json:"items,omitempty"`
	Amount         *decimal.Decimal      `json:"amount,omitempty"`
	Note           string                `json:"note,omitempty"`
	Rush           bool                  `json:"rush,omitempty"`
	AdjustsEntryID string                `json:"adjustsEntryId,omitempty"`
}

type transactionResponse struct {
	Entry     *domain.LedgerEntry `json:"entry,omitempty"`
	Balance   decimal.Decimal     `json:"balance"`
	Duplicate bool                `json:"duplicate,omitempty"`
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func publishChange(d Deps, typ, topic, accountID string, data any) {
	if d.Publisher == nil {
		return
	}
	ev, err := domain.NewEvent(typ, topic, accountID, data)
	if err != nil {
		d.Logger.WithError(err).Errorf("failed to encode change event, type=%s", typ)
		return
	}
	d.Publisher.Publish(ev)
}

func postTransaction(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTxnRequestMetrics(ctx, d.Logger)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		actor, actorErr := actorFromRequest(c)
		if actorErr != nil {
			metrics.SetErrorStage("actor")
			err = c.String(http.StatusUnauthorized, actorErr.Error())
			return err
		}

		decodeStart := time.Now()
		var req transactionRequest
		decodeErr := decodeBody(c, &req)
		metrics.ObserveDecode(time.Since(decodeStart))
		if decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}
		metrics.SetKind(req.Kind)

		key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
		if key != "" && d.Deduper != nil {
			added, dedupeErr := d.Deduper.Add(ctx, actor.ID, key)
			switch {
			case dedupeErr != nil:
				d.Logger.WithError(dedupeErr).Warn("idempotency check unavailable, accepting request")
			case !added:
				metrics.SetDuplicate(true)
				err = c.JSON(http.StatusOK, transactionResponse{Duplicate: true})
				return err
			default:
				// release the key when the transaction does not commit so
				// the client may resubmit
				defer func() {
					if err == nil && c.Response().Status < http.StatusBadRequest {
						return
					}
					releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					if remErr := d.Deduper.Remove(releaseCtx, actor.ID, key); remErr != nil {
						d.Logger.WithError(remErr).Warn("failed to release idempotency key")
					}
				}()
			}
		}

		persistStart := time.Now()
		var entry *domain.LedgerEntry
		var balance decimal.Decimal
		var opErr error
		switch req.Kind {
		case domain.EntryPurchase:
			entry, balance, opErr = d.Coordinator.Purchase(ctx, ledger.PurchaseRequest{
				AccountID: req.AccountID,
				Items:     req.Items,
				Note:      req.Note,
				Rush:      req.Rush,
				Actor:     actor,
			})
		case domain.EntryPayment:
			if req.Amount == nil {
				metrics.SetErrorStage("validate")
				err = writeDomainError(c, domain.NewValidationError(domain.ReasonInvalidAmount, "amount", "payment amount is required"))
				return err
			}
			entry, balance, opErr = d.Coordinator.Payment(ctx, ledger.PaymentRequest{
				AccountID: req.AccountID,
				Amount:    *req.Amount,
				Note:      req.Note,
				Actor:     actor,
			})
		case domain.EntryAdjustment:
			if req.Amount == nil {
				metrics.SetErrorStage("validate")
				err = writeDomainError(c, domain.NewValidationError(domain.ReasonInvalidAmount, "amount", "adjustment amount is required"))
				return err
			}
			entry, balance, opErr = d.Coordinator.Adjust(ctx, ledger.AdjustmentRequest{
				AccountID:      req.AccountID,
				Amount:         *req.Amount,
				Note:           req.Note,
				AdjustsEntryID: req.AdjustsEntryID,
				Actor:          actor,
			})
		default:
			metrics.SetErrorStage("validate")
			err = writeDomainError(c, domain.NewValidationError(domain.ReasonInvalidKind, "kind", "kind must be purchase, payment or adjustment"))
			return err
		}
		metrics.ObservePersist(time.Since(persistStart))
		if opErr != nil {
			metrics.SetErrorStage(stageForError(opErr))
			err = writeDomainError(c, opErr)
			return err
		}

		encodeStart := time.Now()
		err = c.JSON(http.StatusCreated, transactionResponse{Entry: entry, Balance: balance})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode")
		}
		return err
	}
}

type entriesResponse struct {
	Entries []domain.LedgerEntry `json:"entries"`
}

func parseLimit(c echo.Context) (int, bool) {
	raw := strings.TrimSpace(c.QueryParam("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, false
	}
	return limit, true
}

func getTransactions(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		limit, ok := parseLimit(c)
		if !ok {
			return c.String(http.StatusBadRequest, "invalid limit")
		}
		entries, err := d.Coordinator.Entries(ctx, c.QueryParam("accountId"), limit)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, entriesResponse{Entries: entries})
	}
}

func getEntries(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		limit, ok := parseLimit(c)
		if !ok {
			return c.String(http.StatusBadRequest, "invalid limit")
		}
		account, err := d.Directory.AccountByID(ctx, c.Param("id"))
		if err != nil {
			return writeDomainError(c, err)
		}
		entries, err := d.Coordinator.Entries(ctx, account.ID, limit)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, entriesResponse{Entries: entries})
	}
}

type balanceResponse struct {
	AccountID string          `json:"accountId"`
	Balance   decimal.Decimal `json:"balance"`
}

func getBalance(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		balance, err := d.Coordinator.Balance(c.Request().Context(), id)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, balanceResponse{AccountID: id, Balance: balance})
	}
}

type accountsResponse struct {
	Accounts []domain.Account `json:"accounts"`
}

func getAccounts(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		accounts, err := d.Directory.SearchAccounts(c.Request().Context(), c.QueryParam("search"), c.QueryParam("type"))
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, accountsResponse{Accounts: accounts})
	}
}

type createAccountRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Notes string `json:"notes,omitempty"`
}

func postAccount(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := actorFromRequest(c); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createAccountRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Type == "" {
			req.Type = domain.AccountIndividual
		}
		if err := domain.ValidateAccountName(req.Name); err != nil {
			return writeDomainError(c, err)
		}
		if err := domain.ValidateAccountType(req.Type); err != nil {
			return writeDomainError(c, err)
		}
		if err := domain.ValidateNote(req.Notes); err != nil {
			return writeDomainError(c, err)
		}
		account, err := d.Directory.CreateAccount(ctx, req.Name, req.Type, req.Notes)
		if err != nil {
			return writeDomainError(c, err)
		}
		publishChange(d, domain.AccountCreated, domain.TopicAccounts, account.ID, account)
		return c.JSON(http.StatusCreated, account)
	}
}

type accountDetail struct {
	Account *domain.Account     `json:"account"`
	Balance decimal.Decimal     `json:"balance"`
	Stats   domain.AccountStats `json:"stats"`
}

func getAccount(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		account, err := d.Directory.AccountByID(ctx, c.Param("id"))
		if err != nil {
			return writeDomainError(c, err)
		}
		balance, err := d.Coordinator.Balance(ctx, account.ID)
		if err != nil {
			return writeDomainError(c, err)
		}
		stats, err := d.Directory.AccountStats(ctx, account.ID)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, accountDetail{Account: account, Balance: balance, Stats: stats})
	}
}

func putAccount(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := actorFromRequest(c); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var upd domain.AccountUpdate
		if err := decodeBody(c, &upd); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if upd.Name != nil {
			if err := domain.ValidateAccountName(*upd.Name); err != nil {
				return writeDomainError(c, err)
			}
		}
		if upd.Type != nil {
			if err := domain.ValidateAccountType(*upd.Type); err != nil {
				return writeDomainError(c, err)
			}
		}
		if upd.Notes != nil {
			if err := domain.ValidateNote(*upd.Notes); err != nil {
				return writeDomainError(c, err)
			}
		}
		account, err := d.Directory.UpdateAccount(ctx, c.Param("id"), upd)
		if err != nil {
			return writeDomainError(c, err)
		}
		publishChange(d, domain.AccountUpdated, domain.TopicAccounts, account.ID, account)
		return c.JSON(http.StatusOK, account)
	}
}

type productsResponse struct {
	Products []domain.Product `json:"products"`
}

func getProducts(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		includeInactive := c.QueryParam("includeInactive") == "true"
		products, err := d.Catalog.Products(c.Request().Context(), includeInactive)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, productsResponse{Products: products})
	}
}

type createProductRequest struct {
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	RequiresPrep bool            `json:"requiresPrep,omitempty"`
	DisplayOrder int             `json:"displayOrder,omitempty"`
}

func postProduct(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := actorFromRequest(c); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createProductRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := domain.ValidateAccountName(req.Name); err != nil {
			return writeDomainError(c, err)
		}
		if err := domain.ValidatePrice(req.Price); err != nil {
			return writeDomainError(c, err)
		}
		product, err := d.Catalog.CreateProduct(ctx, req.Name, req.Price, req.RequiresPrep, req.DisplayOrder)
		if err != nil {
			return writeDomainError(c, err)
		}
		publishChange(d, domain.ProductChanged, domain.TopicCatalog, "", product)
		return c.JSON(http.StatusCreated, product)
	}
}

func putProduct(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := actorFromRequest(c); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var upd domain.ProductUpdate
		if err := decodeBody(c, &upd); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if upd.Name != nil {
			if err := domain.ValidateAccountName(*upd.Name); err != nil {
				return writeDomainError(c, err)
			}
		}
		if upd.Price != nil {
			if err := domain.ValidatePrice(*upd.Price); err != nil {
				return writeDomainError(c, err)
			}
		}
		product, err := d.Catalog.UpdateProduct(ctx, c.Param("id"), upd)
		if err != nil {
			return writeDomainError(c, err)
		}
		publishChange(d, domain.ProductChanged, domain.TopicCatalog, "", product)
		return c.JSON(http.StatusOK, product)
	}
}

type prepItemView struct {
	domain.PrepItem
	AgeSeconds float64 `json:"ageSeconds"`
}

type prepResponse struct {
	Items []prepItemView `json:"items"`
}

func getPendingPrep(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		items, err := d.Coordinator.PendingPrep(c.Request().Context())
		if err != nil {
			return writeDomainError(c, err)
		}
		now := time.Now()
		views := make([]prepItemView, len(items))
		for i, item := range items {
			views[i] = prepItemView{PrepItem: item, AgeSeconds: item.Age(now).Seconds()}
		}
		return c.JSON(http.StatusOK, prepResponse{Items: views})
	}
}

func postCompletePrep(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := actorFromRequest(c)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		item, err := d.Coordinator.CompletePrep(c.Request().Context(), c.Param("id"), actor)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, item)
	}
}

type configResponse struct {
	PrepWarnAfterSeconds   int `json:"prepWarnAfterSeconds"`
	PrepUrgentAfterSeconds int `json:"prepUrgentAfterSeconds"`
}

func getConfig(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, configResponse{
			PrepWarnAfterSeconds:   int(d.Config.PrepWarnAfter.Seconds()),
			PrepUrgentAfterSeconds: int(d.Config.PrepUrgentAfter.Seconds()),
		})
	}
}

func healthz(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := d.Pinger.Ping(ctx); err != nil {
			return c.String(http.StatusServiceUnavailable, "store unavailable")
		}
		return c.NoContent(http.StatusOK)
	}
}
