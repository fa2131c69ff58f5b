package pos

import (
	"context"
	"errors"
	"time"

	"github.com/posdesk/pos-core.git/internal/apperr"
)

var (
	// ErrNotFound is returned by store getters; services translate it into
	// an apperr.NotFound naming the entity.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict signals a lost optimistic-concurrency race on a
	// version-checked update. Callers retry from a fresh read.
	ErrVersionConflict = errors.New("version conflict")

	// ErrOpenPaymentExists signals the one-open-payment-per-order rule.
	ErrOpenPaymentExists = errors.New("open payment already exists for order")
)

// Store is the persistence boundary. Implementations: postgres (pgx) and the
// in-memory store used by tests and STORE=memory mode.
//
// UpdateStockItem and UpdateGiftCard compare-and-swap on expectedVersion and
// return ErrVersionConflict on a lost race. InsertPayment returns
// ErrOpenPaymentExists when the order already has an open payment.
type Store interface {
	// WithinTx runs fn atomically: either every write inside fn is applied,
	// or none are. Nested calls are not supported.
	WithinTx(ctx context.Context, fn func(Store) error) error

	GetBusiness(ctx context.Context, id string) (Business, error)
	InsertBusiness(ctx context.Context, b Business) error

	GetCatalogItem(ctx context.Context, id string) (CatalogItem, error)
	InsertCatalogItem(ctx context.Context, it CatalogItem) error

	InsertOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	DeleteOrder(ctx context.Context, id string) error

	InsertOrderLine(ctx context.Context, l OrderLine) error
	GetOrderLine(ctx context.Context, id string) (OrderLine, error)
	UpdateOrderLine(ctx context.Context, l OrderLine) error
	DeleteOrderLine(ctx context.Context, id string) error
	ListOrderLines(ctx context.Context, orderID string) ([]OrderLine, error)

	InsertDiscount(ctx context.Context, d Discount) error
	GetDiscount(ctx context.Context, id string) (Discount, error)
	ListActiveDiscounts(ctx context.Context, businessID string, scope DiscountScope, now time.Time) ([]Discount, error)
	InsertDiscountEligibility(ctx context.Context, e DiscountEligibility) error
	HasDiscountEligibility(ctx context.Context, discountID, catalogItemID string) (bool, error)

	InsertTaxRule(ctx context.Context, r TaxRule) error
	ListTaxRules(ctx context.Context, country, taxClass string, now time.Time) ([]TaxRule, error)

	InsertStockItem(ctx context.Context, s StockItem) error
	GetStockItem(ctx context.Context, id string) (StockItem, error)
	GetStockItemByCatalogItem(ctx context.Context, catalogItemID string) (StockItem, error)
	UpdateStockItem(ctx context.Context, s StockItem, expectedVersion int) error
	InsertStockMovement(ctx context.Context, m StockMovement) error
	ListStockMovements(ctx context.Context, stockItemID string) ([]StockMovement, error)

	InsertGiftCard(ctx context.Context, g GiftCard) error
	GetGiftCard(ctx context.Context, id string) (GiftCard, error)
	GetGiftCardByCode(ctx context.Context, businessID, code string) (GiftCard, error)
	UpdateGiftCard(ctx context.Context, g GiftCard, expectedVersion int) error

	InsertPayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id string) (Payment, error)
	GetPaymentBySession(ctx context.Context, sessionID string) (Payment, error)
	UpdatePayment(ctx context.Context, p Payment) error
}

// TxAttempts bounds optimistic-concurrency retries before surfacing a
// fatal conflict.
const TxAttempts = 5

// WithRetry runs fn in a transaction, retrying the whole read-modify-write
// from a fresh read when a version-checked update lost its race.
func WithRetry(ctx context.Context, st Store, fn func(Store) error) error {
	var err error
	for i := 0; i < TxAttempts; i++ {
		err = st.WithinTx(ctx, fn)
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return apperr.Conflict("operation kept losing concurrent updates after %d attempts", TxAttempts)
}
