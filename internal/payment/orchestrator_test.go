package payment

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/posdesk/pos-core.git/internal/apperr"
	"github.com/posdesk/pos-core.git/internal/discount"
	"github.com/posdesk/pos-core.git/internal/pos"
	"github.com/posdesk/pos-core.git/internal/store"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fix struct {
	st     *store.Mem
	gw     *StubGateway
	orch   *Orchestrator
	caller pos.Caller

	order   pos.Order
	line    pos.OrderLine
	stockID string
}

// newFix seeds an open order with one Product line: 100.00 x 1 with a 10%
// line discount, so the order amounts to 9000 cents. The sale already moved
// stock from 10 down to 9, mirroring what the orders service would have done.
func newFix(t *testing.T) *fix {
	t.Helper()
	ctx := context.Background()
	st := store.NewMem()
	now := time.Now().UTC()

	require.NoError(t, st.InsertBusiness(ctx, pos.Business{ID: "biz-1", Name: "Corner Cafe", Country: "US", CreatedAt: now}))
	item := pos.CatalogItem{
		ID: "item-1", BusinessID: "biz-1", Name: "Espresso",
		Type: pos.CatalogProduct, UnitPrice: dec("100.00"), TaxClass: "standard",
	}
	require.NoError(t, st.InsertCatalogItem(ctx, item))
	require.NoError(t, st.InsertStockItem(ctx, pos.StockItem{
		ID: "stk-1", BusinessID: "biz-1", CatalogItemID: item.ID,
		Qty: dec("9"), AvgUnitCost: dec("2.0000"),
	}))

	order := pos.Order{
		ID: "ord-1", BusinessID: "biz-1", EmployeeID: "emp-1",
		Status: pos.OrderOpen, TipAmount: decimal.Zero, CreatedAt: now,
	}
	require.NoError(t, st.InsertOrder(ctx, order))

	codec := discount.NewSnapshotCodec()
	line := pos.OrderLine{
		ID: "line-1", OrderID: order.ID, BusinessID: "biz-1",
		CatalogItemID: item.ID, Qty: dec("1"),
		ItemName: item.Name, UnitPrice: item.UnitPrice, TaxClass: "standard",
		TaxRatePercent: dec("8.5"), CatalogType: pos.CatalogProduct,
		DiscountID: "d-10",
		DiscountSnapshot: codec.Encode(pos.Discount{
			ID: "d-10", Code: "TEN", Type: pos.DiscountPercent, Scope: pos.ScopeLine,
			Value: dec("10"), StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
		}, item.ID, now),
		PerformedBy: "emp-1", PerformedAt: now,
	}
	require.NoError(t, st.InsertOrderLine(ctx, line))

	gw := NewStubGateway()
	orch := NewOrchestrator(st, gw, Config{
		Currency:   "usd",
		SuccessURL: "https://pos.local/success",
		CancelURL:  "https://pos.local/cancel",
	}, nil)

	return &fix{
		st: st, gw: gw, orch: orch,
		caller:  pos.Caller{EmployeeID: "emp-1", BusinessID: "biz-1", Role: pos.RoleStaff},
		order:   order,
		line:    line,
		stockID: "stk-1",
	}
}

func (f *fix) seedCard(t *testing.T, balance int64) pos.GiftCard {
	t.Helper()
	card := pos.GiftCard{
		ID: "gc-1", BusinessID: "biz-1", Code: "GIFT1",
		BalanceCents: balance, Status: pos.GiftCardActive, IssuedAt: time.Now().UTC(),
	}
	require.NoError(t, f.st.InsertGiftCard(context.Background(), card))
	return card
}

func (f *fix) orderStatus(t *testing.T) pos.OrderStatus {
	t.Helper()
	o, err := f.st.GetOrder(context.Background(), f.order.ID)
	require.NoError(t, err)
	return o.Status
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("negative tip", func(t *testing.T) {
		f := newFix(t)
		_, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID, TipCents: -1})
		require.True(t, apperr.IsValidation(err))
	})

	t.Run("non-positive gift card amount", func(t *testing.T) {
		f := newFix(t)
		zero := int64(0)
		_, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID, GiftCardCode: "GIFT1", GiftCardAmount: &zero})
		require.True(t, apperr.IsValidation(err))
	})

	t.Run("closed order", func(t *testing.T) {
		f := newFix(t)
		o, err := f.st.GetOrder(ctx, f.order.ID)
		require.NoError(t, err)
		o.Status = pos.OrderClosed
		require.NoError(t, f.st.UpdateOrder(ctx, o))

		_, err = f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID})
		require.True(t, apperr.IsInvalidState(err))
	})

	t.Run("empty order totals to nothing", func(t *testing.T) {
		f := newFix(t)
		require.NoError(t, f.st.DeleteOrderLine(ctx, f.line.ID))
		_, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID})
		require.True(t, apperr.IsValidation(err))
	})

	t.Run("unknown gift card code", func(t *testing.T) {
		f := newFix(t)
		_, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID, GiftCardCode: "NOPE"})
		require.True(t, apperr.IsNotFound(err))
	})

	t.Run("expired gift card", func(t *testing.T) {
		f := newFix(t)
		past := time.Now().UTC().Add(-time.Hour)
		card := f.seedCard(t, 1000)
		card.ExpiresAt = &past
		require.NoError(t, f.st.InsertGiftCard(ctx, card))

		_, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID, GiftCardCode: card.Code})
		require.True(t, apperr.IsInvalidState(err))
	})
}

func TestCreateGatewayOnly(t *testing.T) {
	ctx := context.Background()
	f := newFix(t)

	res, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID, TipCents: 500})
	require.NoError(t, err)

	p := res.Payment
	require.Equal(t, pos.MethodStripe, p.Method)
	require.Equal(t, pos.PaymentPending, p.Status)
	require.True(t, p.IsOpen)
	require.Equal(t, int64(9000), p.AmountCents)
	require.Equal(t, int64(500), p.TipCents)
	require.NotEmpty(t, p.SessionID)
	require.NotEmpty(t, res.CheckoutURL)
	require.Equal(t, pos.OrderOpen, f.orderStatus(t), "order stays open until the webhook")
}

func TestCreateFullGiftCard(t *testing.T) {
	ctx := context.Background()
	f := newFix(t)
	card := f.seedCard(t, 20000)

	res, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID, GiftCardCode: card.Code})
	require.NoError(t, err)

	p := res.Payment
	require.Equal(t, pos.MethodGiftCard, p.Method)
	require.Equal(t, pos.PaymentSuccess, p.Status, "full coverage settles immediately")
	require.Empty(t, p.SessionID)
	require.Empty(t, res.CheckoutURL)
	require.Equal(t, int64(9000), p.GiftCardCharged)
	require.Equal(t, pos.OrderClosed, f.orderStatus(t))

	got, err := f.st.GetGiftCard(ctx, card.ID)
	require.NoError(t, err)
	require.Equal(t, int64(11000), got.BalanceCents)
}

func TestCreateSplit(t *testing.T) {
	ctx := context.Background()
	f := newFix(t)
	card := f.seedCard(t, 5000)

	res, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID, GiftCardCode: card.Code})
	require.NoError(t, err)

	p := res.Payment
	require.Equal(t, pos.MethodGiftCardStripe, p.Method)
	require.Equal(t, pos.PaymentPending, p.Status)
	require.Equal(t, int64(5000), p.GiftCardPlanned)
	require.Equal(t, int64(0), p.GiftCardCharged, "card is charged at settlement, not planning")
	require.NotEmpty(t, p.SessionID)

	// The card is untouched until the webhook settles the payment.
	got, err := f.st.GetGiftCard(ctx, card.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5000), got.BalanceCents)
}

func TestCreateCapsPlannedAmount(t *testing.T) {
	ctx := context.Background()
	f := newFix(t)
	card := f.seedCard(t, 50000)
	req := int64(2000)

	res, err := f.orch.Create(ctx, f.caller, CreateInput{
		OrderID: f.order.ID, GiftCardCode: card.Code, GiftCardAmount: &req,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2000), res.Payment.GiftCardPlanned, "explicit request caps the draw")
	require.Equal(t, pos.MethodGiftCardStripe, res.Payment.Method)
}

func TestOneOpenPaymentPerOrder(t *testing.T) {
	ctx := context.Background()
	f := newFix(t)

	_, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID})
	require.NoError(t, err)

	_, err = f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID})
	require.True(t, apperr.IsInvalidState(err))
	require.Equal(t, 1, f.gw.Sessions(), "rejected duplicate must not open a second checkout session")
}

func TestConfirmSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFix(t)
	card := f.seedCard(t, 5000)

	res, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID, GiftCardCode: card.Code, TipCents: 1000})
	require.NoError(t, err)
	sessionID := res.Payment.SessionID

	require.NoError(t, f.orch.ConfirmSuccess(ctx, sessionID))

	p, err := f.st.GetPayment(ctx, res.Payment.ID)
	require.NoError(t, err)
	require.Equal(t, pos.PaymentSuccess, p.Status)
	require.False(t, p.IsOpen)
	require.NotNil(t, p.CompletedAt)
	require.True(t, p.InventoryApplied)
	require.Equal(t, int64(5000), p.GiftCardCharged)
	require.Equal(t, int64(10000), p.TotalCents())
	require.Equal(t, int64(5000), p.TotalCents()-p.GiftCardCharged, "gateway covers the remainder")
	require.Equal(t, pos.OrderClosed, f.orderStatus(t))

	got, err := f.st.GetGiftCard(ctx, card.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.BalanceCents)

	t.Run("replayed webhook is a no-op", func(t *testing.T) {
		require.NoError(t, f.orch.ConfirmSuccess(ctx, sessionID))
		p2, err := f.st.GetPayment(ctx, res.Payment.ID)
		require.NoError(t, err)
		require.Equal(t, int64(5000), p2.GiftCardCharged, "replay must not charge the card twice")
	})

	t.Run("tip is recorded on the order", func(t *testing.T) {
		o, err := f.st.GetOrder(ctx, f.order.ID)
		require.NoError(t, err)
		require.True(t, o.TipAmount.Equal(dec("10")))
	})

	t.Run("settlement never moves stock", func(t *testing.T) {
		item, err := f.st.GetStockItem(ctx, f.stockID)
		require.NoError(t, err)
		require.True(t, item.Qty.Equal(dec("9")), "stock moved at line-add time, not settlement")
	})
}

func TestCancelPending(t *testing.T) {
	ctx := context.Background()
	f := newFix(t)

	res, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID})
	require.NoError(t, err)

	require.NoError(t, f.orch.CancelPending(ctx, res.Payment.SessionID))
	p, err := f.st.GetPayment(ctx, res.Payment.ID)
	require.NoError(t, err)
	require.Equal(t, pos.PaymentCancelled, p.Status)
	require.False(t, p.IsOpen)
	require.Equal(t, pos.OrderOpen, f.orderStatus(t))

	t.Run("cancel after cancel is a no-op", func(t *testing.T) {
		require.NoError(t, f.orch.CancelPending(ctx, res.Payment.SessionID))
	})

	t.Run("a cancelled payment cannot settle", func(t *testing.T) {
		err := f.orch.ConfirmSuccess(ctx, res.Payment.SessionID)
		require.True(t, apperr.IsInvalidState(err))
	})

	t.Run("a new payment may be opened afterwards", func(t *testing.T) {
		_, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID})
		require.NoError(t, err)
	})
}

func TestRefundFull(t *testing.T) {
	ctx := context.Background()
	f := newFix(t)
	card := f.seedCard(t, 5000)

	res, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID, GiftCardCode: card.Code})
	require.NoError(t, err)
	require.NoError(t, f.orch.ConfirmSuccess(ctx, res.Payment.SessionID))

	require.NoError(t, f.orch.RefundFull(ctx, f.caller, res.Payment.ID))

	p, err := f.st.GetPayment(ctx, res.Payment.ID)
	require.NoError(t, err)
	require.Equal(t, pos.PaymentRefunded, p.Status)
	require.NotNil(t, p.RefundedAt)
	require.Equal(t, pos.OrderCancelled, f.orderStatus(t))

	t.Run("gift card is topped back up", func(t *testing.T) {
		got, err := f.st.GetGiftCard(ctx, card.ID)
		require.NoError(t, err)
		require.Equal(t, int64(5000), got.BalanceCents)
	})

	t.Run("gateway portion was refunded", func(t *testing.T) {
		require.Equal(t, int64(4000), f.gw.Refunded(res.Payment.SessionID))
	})

	t.Run("product quantities return to stock", func(t *testing.T) {
		item, err := f.st.GetStockItem(ctx, f.stockID)
		require.NoError(t, err)
		require.True(t, item.Qty.Equal(dec("10")))
		require.Equal(t, "2.0000", item.AvgUnitCost.StringFixed(4), "refunds never recompute cost")
	})

	t.Run("refunding twice is invalid", func(t *testing.T) {
		err := f.orch.RefundFull(ctx, f.caller, res.Payment.ID)
		require.True(t, apperr.IsInvalidState(err))
	})

	t.Run("pending payments cannot be refunded", func(t *testing.T) {
		f2 := newFix(t)
		res2, err := f2.orch.Create(ctx, f2.caller, CreateInput{OrderID: f2.order.ID})
		require.NoError(t, err)
		err = f2.orch.RefundFull(ctx, f2.caller, res2.Payment.ID)
		require.True(t, apperr.IsInvalidState(err))
	})
}

func TestRefundFullRequiresOrderOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFix(t)
	card := f.seedCard(t, 5000)

	res, err := f.orch.Create(ctx, f.caller, CreateInput{OrderID: f.order.ID, GiftCardCode: card.Code})
	require.NoError(t, err)
	require.NoError(t, f.orch.ConfirmSuccess(ctx, res.Payment.SessionID))

	t.Run("staff cannot refund another employee's payment", func(t *testing.T) {
		other := pos.Caller{EmployeeID: "emp-2", BusinessID: "biz-1", Role: pos.RoleStaff}
		err := f.orch.RefundFull(ctx, other, res.Payment.ID)
		require.True(t, apperr.IsForbidden(err))

		require.Equal(t, pos.OrderClosed, f.orderStatus(t), "order must stay closed")
		require.Equal(t, int64(0), f.gw.Refunded(res.Payment.SessionID), "no gateway money moved")
		got, err := f.st.GetGiftCard(ctx, card.ID)
		require.NoError(t, err)
		require.Equal(t, int64(0), got.BalanceCents, "card must stay charged")
	})

	t.Run("another business's caller sees nothing", func(t *testing.T) {
		foreign := pos.Caller{EmployeeID: "emp-9", BusinessID: "biz-2", Role: pos.RoleOwner}
		err := f.orch.RefundFull(ctx, foreign, res.Payment.ID)
		require.True(t, apperr.IsNotFound(err))
	})

	t.Run("a manager may refund another employee's payment", func(t *testing.T) {
		mgr := pos.Caller{EmployeeID: "emp-2", BusinessID: "biz-1", Role: pos.RoleManager}
		require.NoError(t, f.orch.RefundFull(ctx, mgr, res.Payment.ID))
		require.Equal(t, pos.OrderCancelled, f.orderStatus(t))
	})
}
