package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/posdesk/pos-core.git/internal/apperr"
	"github.com/posdesk/pos-core.git/internal/pos"
)

type LineMove struct {
	LineID string
	// Qty nil means move the full line quantity.
	Qty *decimal.Decimal
}

type MoveInput struct {
	SourceOrderID string
	TargetOrderID string
	Moves         []LineMove
}

// MoveLines moves lines (or partial quantities) between two open orders of
// the same business, all-or-nothing. A full move reassigns the line in
// place; a partial move decrements the source line and clones its snapshots
// onto a new target line. Stock is untouched: the goods were already sold.
func (s *Service) MoveLines(ctx context.Context, caller pos.Caller, in MoveInput) error {
	if len(in.Moves) == 0 {
		return apperr.Validation("nothing to move")
	}
	if in.SourceOrderID == in.TargetOrderID {
		return apperr.Validation("source and target order are the same")
	}
	seen := make(map[string]bool, len(in.Moves))
	for _, m := range in.Moves {
		if seen[m.LineID] {
			return apperr.Validation("duplicate line id %s in move request", m.LineID)
		}
		seen[m.LineID] = true
	}

	return s.Store.WithinTx(ctx, func(tx pos.Store) error {
		src, err := loadMutable(ctx, tx, caller, in.SourceOrderID)
		if err != nil {
			return err
		}
		tgt, err := tx.GetOrder(ctx, in.TargetOrderID)
		if errors.Is(err, pos.ErrNotFound) || (err == nil && tgt.BusinessID != src.BusinessID) {
			return apperr.NotFound("order %s not found", in.TargetOrderID)
		}
		if err != nil {
			return err
		}
		if tgt.Status != pos.OrderOpen {
			return apperr.InvalidState("order %s is %s, not open", tgt.ID, tgt.Status)
		}

		for _, m := range in.Moves {
			line, err := tx.GetOrderLine(ctx, m.LineID)
			if errors.Is(err, pos.ErrNotFound) || (err == nil && line.OrderID != src.ID) {
				return apperr.NotFound("line %s not found on order %s", m.LineID, src.ID)
			}
			if err != nil {
				return err
			}

			qty := line.Qty
			if m.Qty != nil {
				qty = *m.Qty
			}
			if !qty.IsPositive() {
				return apperr.Validation("move quantity must be positive")
			}
			if qty.GreaterThan(line.Qty) {
				return apperr.Validation("move quantity %s exceeds line quantity %s", qty, line.Qty)
			}

			if qty.Equal(line.Qty) {
				line.OrderID = tgt.ID
				if err := tx.UpdateOrderLine(ctx, line); err != nil {
					return err
				}
				continue
			}

			line.Qty = line.Qty.Sub(qty)
			if err := tx.UpdateOrderLine(ctx, line); err != nil {
				return err
			}
			clone := line
			clone.ID = uuid.NewString()
			clone.OrderID = tgt.ID
			clone.Qty = qty
			clone.PerformedBy = caller.EmployeeID
			clone.PerformedAt = time.Now().UTC()
			if err := tx.InsertOrderLine(ctx, clone); err != nil {
				return err
			}
		}
		return nil
	})
}
