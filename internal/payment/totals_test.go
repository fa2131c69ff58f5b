package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/posdesk/pos-core.git/internal/discount"
	"github.com/posdesk/pos-core.git/internal/pos"
)

func snap(t *testing.T, typ pos.DiscountType, value string) string {
	t.Helper()
	codec := discount.NewSnapshotCodec()
	return codec.Encode(pos.Discount{
		ID: "d1", Code: "D", Type: typ, Scope: pos.ScopeLine,
		Value:    decimal.RequireFromString(value),
		StartsAt: time.Now().UTC().Add(-time.Hour),
		EndsAt:   time.Now().UTC().Add(time.Hour),
	}, "", time.Now().UTC())
}

func TestOrderAmountCents(t *testing.T) {
	codec := discount.NewSnapshotCodec()
	price := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }

	t.Run("line discount then order discount", func(t *testing.T) {
		lines := []pos.OrderLine{
			{UnitPrice: price("100.00"), Qty: price("1"), DiscountSnapshot: snap(t, pos.DiscountPercent, "10")},
			{UnitPrice: price("40.00"), Qty: price("2")},
		}
		order := pos.Order{DiscountSnapshot: snap(t, pos.DiscountAmount, "20")}
		// (100*0.9 + 80) - 20 = 150.00
		assert.Equal(t, int64(15000), OrderAmountCents(codec, order, lines))
	})

	t.Run("discounts clamp at zero per stage", func(t *testing.T) {
		lines := []pos.OrderLine{
			{UnitPrice: price("5.00"), Qty: price("1"), DiscountSnapshot: snap(t, pos.DiscountAmount, "50")},
		}
		assert.Equal(t, int64(0), OrderAmountCents(codec, pos.Order{}, lines))
	})

	t.Run("malformed snapshots are ignored", func(t *testing.T) {
		lines := []pos.OrderLine{
			{UnitPrice: price("10.00"), Qty: price("3"), DiscountSnapshot: "{broken"},
		}
		assert.Equal(t, int64(3000), OrderAmountCents(codec, pos.Order{}, lines))
	})

	t.Run("rounds half away from zero", func(t *testing.T) {
		lines := []pos.OrderLine{
			{UnitPrice: price("0.335"), Qty: price("1")},
		}
		assert.Equal(t, int64(34), OrderAmountCents(codec, pos.Order{}, lines))
	})

	t.Run("empty order totals to zero", func(t *testing.T) {
		assert.Equal(t, int64(0), OrderAmountCents(codec, pos.Order{}, nil))
	})
}
