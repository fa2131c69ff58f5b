// Package stock keeps the append-only movement log and the derived
// quantity/average-cost projection per stock item. The projection row and the
// movement are always written together; quantity on hand equals the running
// sum of movement deltas.
package stock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/posdesk/pos-core.git/internal/apperr"
	"github.com/posdesk/pos-core.git/internal/money"
	"github.com/posdesk/pos-core.git/internal/pos"
)

type ApplyInput struct {
	StockItemID string
	Type        pos.MovementType
	Delta       decimal.Decimal
	UnitCost    *decimal.Decimal // required for Receive with positive delta
	OrderLineID string
	Note        string
}

type Ledger struct {
	Store pos.Store
}

func NewLedger(st pos.Store) *Ledger { return &Ledger{Store: st} }

// ApplyMovement applies one movement in its own transaction, retrying lost
// optimistic races from a fresh read.
func (l *Ledger) ApplyMovement(ctx context.Context, in ApplyInput) error {
	return pos.WithRetry(ctx, l.Store, func(tx pos.Store) error {
		return Apply(ctx, tx, in)
	})
}

// Apply performs a single attempt against st, which is expected to be a
// transaction when the movement is part of a larger operation (line add,
// cancel, refund). A lost race surfaces as pos.ErrVersionConflict so the
// caller can retry the whole transaction.
func Apply(ctx context.Context, st pos.Store, in ApplyInput) error {
	if in.Delta.IsZero() {
		return apperr.Validation("movement delta must not be zero")
	}
	if !pos.KnownMovementType(in.Type) {
		return apperr.Validation("unknown movement type %q", in.Type)
	}
	if in.Type == pos.MovementReceive && in.Delta.IsPositive() && in.UnitCost == nil {
		return apperr.Validation("receive movements require a unit cost")
	}

	item, err := st.GetStockItem(ctx, in.StockItemID)
	if errors.Is(err, pos.ErrNotFound) {
		return apperr.NotFound("stock item %s not found", in.StockItemID)
	}
	if err != nil {
		return err
	}

	newQty := item.Qty.Add(in.Delta)
	if in.Type == pos.MovementSale && newQty.IsNegative() {
		return apperr.InvalidState("insufficient stock for item %s: have %s, need %s",
			item.ID, item.Qty, in.Delta.Neg())
	}

	// Only Receive recomputes average cost, and only while the projection
	// stays positive. Refunds restore quantity without touching cost.
	if in.Type == pos.MovementReceive && in.UnitCost != nil && newQty.IsPositive() {
		weighted := item.Qty.Mul(item.AvgUnitCost).Add(in.Delta.Mul(*in.UnitCost))
		item.AvgUnitCost = money.RoundCost(weighted.Div(newQty))
	}

	expected := item.Version
	item.Qty = newQty
	item.Version++
	if err := st.UpdateStockItem(ctx, item, expected); err != nil {
		return err
	}
	return st.InsertStockMovement(ctx, pos.StockMovement{
		ID:          uuid.NewString(),
		StockItemID: item.ID,
		Type:        in.Type,
		Delta:       in.Delta,
		UnitCost:    in.UnitCost,
		OrderLineID: in.OrderLineID,
		Note:        in.Note,
		At:          time.Now().UTC(),
	})
}
