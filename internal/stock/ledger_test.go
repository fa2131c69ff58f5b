package stock

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/posdesk/pos-core.git/internal/apperr"
	"github.com/posdesk/pos-core.git/internal/pos"
	"github.com/posdesk/pos-core.git/internal/store"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedItem(t *testing.T, st pos.Store, qty, cost string) pos.StockItem {
	t.Helper()
	item := pos.StockItem{
		ID:            "stk-1",
		BusinessID:    "biz-1",
		CatalogItemID: "item-1",
		Qty:           dec(qty),
		AvgUnitCost:   dec(cost),
	}
	require.NoError(t, st.InsertStockItem(context.Background(), item))
	return item
}

func receive(t *testing.T, l *Ledger, itemID, qty, cost string) {
	t.Helper()
	c := dec(cost)
	require.NoError(t, l.ApplyMovement(context.Background(), ApplyInput{
		StockItemID: itemID,
		Type:        pos.MovementReceive,
		Delta:       dec(qty),
		UnitCost:    &c,
	}))
}

func TestApplyValidation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	item := seedItem(t, st, "10", "1.00")
	l := NewLedger(st)

	t.Run("zero delta", func(t *testing.T) {
		err := l.ApplyMovement(ctx, ApplyInput{StockItemID: item.ID, Type: pos.MovementAdjust, Delta: decimal.Zero})
		require.True(t, apperr.IsValidation(err))
	})

	t.Run("unknown movement type", func(t *testing.T) {
		err := l.ApplyMovement(ctx, ApplyInput{StockItemID: item.ID, Type: "TELEPORT", Delta: dec("1")})
		require.True(t, apperr.IsValidation(err))
	})

	t.Run("receive without unit cost", func(t *testing.T) {
		err := l.ApplyMovement(ctx, ApplyInput{StockItemID: item.ID, Type: pos.MovementReceive, Delta: dec("5")})
		require.True(t, apperr.IsValidation(err))
	})

	t.Run("missing stock item", func(t *testing.T) {
		err := l.ApplyMovement(ctx, ApplyInput{StockItemID: "nope", Type: pos.MovementAdjust, Delta: dec("1")})
		require.True(t, apperr.IsNotFound(err))
	})
}

func TestAverageCost(t *testing.T) {
	ctx := context.Background()

	t.Run("weighted mean across receives", func(t *testing.T) {
		st := store.NewMem()
		item := seedItem(t, st, "0", "0")
		l := NewLedger(st)

		receive(t, l, item.ID, "20", "1.00")
		receive(t, l, item.ID, "30", "2.00")

		got, err := st.GetStockItem(ctx, item.ID)
		require.NoError(t, err)
		require.True(t, got.Qty.Equal(dec("50")))
		require.Equal(t, "1.6000", got.AvgUnitCost.StringFixed(4))
	})

	t.Run("sales and refunds leave cost untouched", func(t *testing.T) {
		st := store.NewMem()
		item := seedItem(t, st, "0", "0")
		l := NewLedger(st)
		receive(t, l, item.ID, "10", "3.50")

		require.NoError(t, l.ApplyMovement(ctx, ApplyInput{
			StockItemID: item.ID, Type: pos.MovementSale, Delta: dec("-4"),
		}))
		require.NoError(t, l.ApplyMovement(ctx, ApplyInput{
			StockItemID: item.ID, Type: pos.MovementRefundReturn, Delta: dec("4"),
		}))

		got, err := st.GetStockItem(ctx, item.ID)
		require.NoError(t, err)
		require.True(t, got.Qty.Equal(dec("10")))
		require.Equal(t, "3.5000", got.AvgUnitCost.StringFixed(4))
	})

	t.Run("cost rounds to four decimals", func(t *testing.T) {
		st := store.NewMem()
		item := seedItem(t, st, "0", "0")
		l := NewLedger(st)
		receive(t, l, item.ID, "3", "1.00")
		receive(t, l, item.ID, "3", "2.00")
		// (3*1 + 3*2) / 6 = 1.5
		got, err := st.GetStockItem(ctx, item.ID)
		require.NoError(t, err)
		require.Equal(t, "1.5000", got.AvgUnitCost.StringFixed(4))

		receive(t, l, item.ID, "1", "1.00")
		// (6*1.5 + 1) / 7 = 1.428571... -> 1.4286
		got, err = st.GetStockItem(ctx, item.ID)
		require.NoError(t, err)
		require.Equal(t, "1.4286", got.AvgUnitCost.StringFixed(4))
	})
}

func TestSaleCannotOverdraw(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	item := seedItem(t, st, "5", "1.00")
	l := NewLedger(st)

	err := l.ApplyMovement(ctx, ApplyInput{
		StockItemID: item.ID, Type: pos.MovementSale, Delta: dec("-6"),
	})
	require.True(t, apperr.IsInvalidState(err))

	// Nothing was written: projection and ledger are both unchanged.
	got, err := st.GetStockItem(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, got.Qty.Equal(dec("5")))
	require.Equal(t, 0, got.Version)
	moves, err := st.ListStockMovements(ctx, item.ID)
	require.NoError(t, err)
	require.Empty(t, moves)

	// Adjust and waste may drive quantity negative; only sales are fenced.
	require.NoError(t, l.ApplyMovement(ctx, ApplyInput{
		StockItemID: item.ID, Type: pos.MovementAdjust, Delta: dec("-8"),
	}))
	got, err = st.GetStockItem(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, got.Qty.Equal(dec("-3")))
}

func TestMovementSumMatchesQty(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	item := seedItem(t, st, "0", "0")
	l := NewLedger(st)

	receive(t, l, item.ID, "20", "1.00")
	require.NoError(t, l.ApplyMovement(ctx, ApplyInput{StockItemID: item.ID, Type: pos.MovementSale, Delta: dec("-7")}))
	require.NoError(t, l.ApplyMovement(ctx, ApplyInput{StockItemID: item.ID, Type: pos.MovementWaste, Delta: dec("-2")}))
	require.NoError(t, l.ApplyMovement(ctx, ApplyInput{StockItemID: item.ID, Type: pos.MovementRefundReturn, Delta: dec("3")}))

	moves, err := st.ListStockMovements(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, moves, 4)

	sum := decimal.Zero
	for _, m := range moves {
		sum = sum.Add(m.Delta)
	}
	got, err := st.GetStockItem(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, sum.Equal(got.Qty), "ledger sum %s != projection %s", sum, got.Qty)
}
