package pos

import (
	"time"

	"github.com/shopspring/decimal"
)

type Business struct {
	ID        string
	Name      string
	Country   string // ISO 3166-1 alpha-2, drives tax resolution
	CreatedAt time.Time
}

type CatalogType string

const (
	CatalogProduct CatalogType = "PRODUCT"
	CatalogService CatalogType = "SERVICE"
)

type CatalogItem struct {
	ID         string
	BusinessID string
	Name       string
	Type       CatalogType
	UnitPrice  decimal.Decimal
	TaxClass   string
	CreatedAt  time.Time
}

type Order struct {
	ID            string
	BusinessID    string
	EmployeeID    string // who opened the tab
	ReservationID string // optional
	Status        OrderStatus
	TableLabel    string
	TipAmount     decimal.Decimal
	// Order-level discount, frozen at assignment time.
	DiscountID       string
	DiscountSnapshot string // versioned JSON, see discount.SnapshotCodec
	CreatedAt        time.Time
	ClosedAt         *time.Time // set iff Status != Open
}

// OrderLine carries frozen snapshots captured when the line was written.
// They are the contractual basis for totals and audits and are never
// recomputed from current catalog/discount/tax state.
type OrderLine struct {
	ID         string
	OrderID    string
	BusinessID string

	CatalogItemID string
	Qty           decimal.Decimal // > 0

	ItemName         string
	UnitPrice        decimal.Decimal
	TaxClass         string
	TaxRatePercent   decimal.Decimal
	CatalogType      CatalogType
	DiscountID       string
	DiscountSnapshot string

	PerformedBy string
	PerformedAt time.Time
}

type DiscountType string

const (
	DiscountPercent DiscountType = "PERCENT"
	DiscountAmount  DiscountType = "AMOUNT"
)

type DiscountScope string

const (
	ScopeOrder DiscountScope = "ORDER"
	ScopeLine  DiscountScope = "LINE"
)

type DiscountStatus string

const (
	DiscountActive   DiscountStatus = "ACTIVE"
	DiscountInactive DiscountStatus = "INACTIVE"
)

type Discount struct {
	ID         string
	BusinessID string
	Code       string // unique per business, case-insensitive
	Type       DiscountType
	Scope      DiscountScope
	Value      decimal.Decimal
	StartsAt   time.Time
	EndsAt     time.Time
	Status     DiscountStatus
}

// DiscountEligibility keys (discountID, catalogItemID). Required for
// Line-scope discounts; Order-scope discounts have no rows.
type DiscountEligibility struct {
	DiscountID    string
	CatalogItemID string
}

type TaxRule struct {
	ID          string
	Country     string
	TaxClass    string
	RatePercent decimal.Decimal
	ValidFrom   time.Time
	ValidTo     time.Time
}

type StockItem struct {
	ID            string
	BusinessID    string
	CatalogItemID string // one-to-one with a Product-type catalog item
	Qty           decimal.Decimal
	AvgUnitCost   decimal.Decimal // 4dp
	Version       int             // optimistic concurrency token
}

type MovementType string

const (
	MovementReceive      MovementType = "RECEIVE"
	MovementSale         MovementType = "SALE"
	MovementRefundReturn MovementType = "REFUND_RETURN"
	MovementWaste        MovementType = "WASTE"
	MovementAdjust       MovementType = "ADJUST"
)

func KnownMovementType(t MovementType) bool {
	switch t {
	case MovementReceive, MovementSale, MovementRefundReturn, MovementWaste, MovementAdjust:
		return true
	}
	return false
}

// StockMovement is append-only: rows are never edited or deleted, and the
// running sum of deltas equals the stock item's quantity on hand.
type StockMovement struct {
	ID          string
	StockItemID string
	Type        MovementType
	Delta       decimal.Decimal  // signed
	UnitCost    *decimal.Decimal // required for Receive with positive delta
	OrderLineID string           // optional link back to the originating line
	Note        string
	At          time.Time
}

type GiftCardStatus string

const (
	GiftCardActive   GiftCardStatus = "ACTIVE"
	GiftCardInactive GiftCardStatus = "INACTIVE"
)

type GiftCard struct {
	ID           string
	BusinessID   string
	Code         string // unique per business
	BalanceCents int64
	Status       GiftCardStatus
	ExpiresAt    *time.Time
	IssuedAt     time.Time
	Version      int
}

type PaymentMethod string

const (
	MethodGiftCard       PaymentMethod = "GIFT_CARD"
	MethodStripe         PaymentMethod = "STRIPE"
	MethodGiftCardStripe PaymentMethod = "GIFT_CARD_STRIPE"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSuccess   PaymentStatus = "SUCCESS"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

type Payment struct {
	ID         string
	BusinessID string
	OrderID    string
	EmployeeID string

	AmountCents int64
	TipCents    int64
	Currency    string
	Method      PaymentMethod
	Status      PaymentStatus
	IsOpen      bool // at most one open payment per order

	GiftCardID      string
	GiftCardPlanned int64 // cents planned to draw from the card
	GiftCardCharged int64 // cents actually redeemed

	SessionID string // external checkout session, empty for pure gift-card payments

	InventoryApplied   bool
	InventoryAppliedAt *time.Time

	CreatedAt   time.Time
	CompletedAt *time.Time
	RefundedAt  *time.Time
}

func (p Payment) TotalCents() int64 { return p.AmountCents + p.TipCents }
