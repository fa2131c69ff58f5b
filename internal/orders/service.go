// Package orders owns the order lifecycle and the line mutation pipeline.
// Every line write freezes price/tax/discount snapshots, and Product lines
// move stock through the ledger in the same transaction.
package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/posdesk/pos-core.git/internal/apperr"
	"github.com/posdesk/pos-core.git/internal/discount"
	"github.com/posdesk/pos-core.git/internal/events"
	"github.com/posdesk/pos-core.git/internal/pos"
	"github.com/posdesk/pos-core.git/internal/stock"
	"github.com/posdesk/pos-core.git/internal/tax"
)

type Service struct {
	Store     pos.Store
	Discounts *discount.Engine
	Events    *events.Emitter
}

func NewService(st pos.Store, eng *discount.Engine, em *events.Emitter) *Service {
	return &Service{Store: st, Discounts: eng, Events: em}
}

type CreateInput struct {
	ReservationID string
	TableLabel    string
}

func (s *Service) Create(ctx context.Context, caller pos.Caller, in CreateInput) (pos.Order, error) {
	o := pos.Order{
		ID:            uuid.NewString(),
		BusinessID:    caller.BusinessID,
		EmployeeID:    caller.EmployeeID,
		ReservationID: in.ReservationID,
		Status:        pos.OrderOpen,
		TableLabel:    in.TableLabel,
		TipAmount:     decimal.Zero,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.Store.InsertOrder(ctx, o); err != nil {
		return pos.Order{}, err
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, caller pos.Caller, orderID string) (pos.Order, []pos.OrderLine, error) {
	o, err := loadVisible(ctx, s.Store, caller, orderID)
	if err != nil {
		return pos.Order{}, nil, err
	}
	lines, err := s.Store.ListOrderLines(ctx, orderID)
	if err != nil {
		return pos.Order{}, nil, err
	}
	return o, lines, nil
}

type AddLineInput struct {
	OrderID       string
	CatalogItemID string
	Qty           decimal.Decimal
	DiscountID    string // empty: auto-select newest eligible line discount
}

func (s *Service) AddLine(ctx context.Context, caller pos.Caller, in AddLineInput) (pos.OrderLine, error) {
	if !in.Qty.IsPositive() {
		return pos.OrderLine{}, apperr.Validation("quantity must be positive")
	}
	var line pos.OrderLine
	err := pos.WithRetry(ctx, s.Store, func(tx pos.Store) error {
		order, err := loadMutable(ctx, tx, caller, in.OrderID)
		if err != nil {
			return err
		}
		item, err := tx.GetCatalogItem(ctx, in.CatalogItemID)
		if errors.Is(err, pos.ErrNotFound) || (err == nil && item.BusinessID != order.BusinessID) {
			return apperr.NotFound("catalog item %s not found", in.CatalogItemID)
		}
		if err != nil {
			return err
		}
		biz, err := tx.GetBusiness(ctx, order.BusinessID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		rate, err := tax.RateFor(ctx, tx, biz.Country, item.TaxClass, now)
		if err != nil {
			return err
		}

		var d *pos.Discount
		if in.DiscountID != "" {
			dd, err := s.Discounts.EnsureLineDiscount(ctx, tx, order.BusinessID, in.DiscountID, item.ID, now)
			if err != nil {
				return err
			}
			d = &dd
		} else if d, err = s.Discounts.NewestLineDiscount(ctx, tx, order.BusinessID, item.ID, now); err != nil {
			return err
		}

		line = pos.OrderLine{
			ID:             uuid.NewString(),
			OrderID:        order.ID,
			BusinessID:     order.BusinessID,
			CatalogItemID:  item.ID,
			Qty:            in.Qty,
			ItemName:       item.Name,
			UnitPrice:      item.UnitPrice,
			TaxClass:       item.TaxClass,
			TaxRatePercent: rate,
			CatalogType:    item.Type,
			PerformedBy:    caller.EmployeeID,
			PerformedAt:    now,
		}
		if d != nil {
			line.DiscountID = d.ID
			line.DiscountSnapshot = s.Discounts.Codec.Encode(*d, item.ID, now)
		}
		if err := tx.InsertOrderLine(ctx, line); err != nil {
			return err
		}
		if item.Type == pos.CatalogProduct {
			return s.moveStock(ctx, tx, item.ID, line.ID, pos.MovementSale, in.Qty.Neg())
		}
		return nil
	})
	if err != nil {
		return pos.OrderLine{}, err
	}
	return line, nil
}

type UpdateLineInput struct {
	LineID string
	// Qty, when set, replaces the line quantity; the signed stock delta is
	// applied for Product lines.
	Qty *decimal.Decimal
	// DiscountID semantics: nil leaves the discount alone, empty string
	// clears it, anything else is re-validated and re-snapshotted.
	DiscountID *string
}

func (s *Service) UpdateLine(ctx context.Context, caller pos.Caller, in UpdateLineInput) (pos.OrderLine, error) {
	var out pos.OrderLine
	err := pos.WithRetry(ctx, s.Store, func(tx pos.Store) error {
		line, order, err := loadLine(ctx, tx, caller, in.LineID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()

		if in.Qty != nil {
			newQty := *in.Qty
			if !newQty.IsPositive() {
				return apperr.Validation("quantity must be positive")
			}
			delta := newQty.Sub(line.Qty)
			if line.CatalogType == pos.CatalogProduct && !delta.IsZero() {
				if delta.IsPositive() {
					// Selling more: a further sale movement.
					err = s.moveStock(ctx, tx, line.CatalogItemID, line.ID, pos.MovementSale, delta.Neg())
				} else {
					// Selling less: return the difference.
					err = s.moveStock(ctx, tx, line.CatalogItemID, line.ID, pos.MovementRefundReturn, delta.Neg())
				}
				if err != nil {
					return err
				}
			}
			line.Qty = newQty
		}

		if in.DiscountID != nil {
			if *in.DiscountID == "" {
				line.DiscountID = ""
				line.DiscountSnapshot = ""
			} else {
				d, err := s.Discounts.EnsureLineDiscount(ctx, tx, order.BusinessID, *in.DiscountID, line.CatalogItemID, now)
				if err != nil {
					return err
				}
				line.DiscountID = d.ID
				line.DiscountSnapshot = s.Discounts.Codec.Encode(d, line.CatalogItemID, now)
			}
		}

		// Price/tax snapshots are deliberately left untouched.
		line.PerformedBy = caller.EmployeeID
		line.PerformedAt = now
		if err := tx.UpdateOrderLine(ctx, line); err != nil {
			return err
		}
		out = line
		return nil
	})
	if err != nil {
		return pos.OrderLine{}, err
	}
	return out, nil
}

func (s *Service) RemoveLine(ctx context.Context, caller pos.Caller, lineID string) error {
	return pos.WithRetry(ctx, s.Store, func(tx pos.Store) error {
		line, _, err := loadLine(ctx, tx, caller, lineID)
		if err != nil {
			return err
		}
		if line.CatalogType == pos.CatalogProduct {
			if err := s.moveStock(ctx, tx, line.CatalogItemID, line.ID, pos.MovementRefundReturn, line.Qty); err != nil {
				return err
			}
		}
		return tx.DeleteOrderLine(ctx, line.ID)
	})
}

// SetOrderDiscount assigns (or, with an empty id, clears) the order-level
// discount, freezing its snapshot.
func (s *Service) SetOrderDiscount(ctx context.Context, caller pos.Caller, orderID, discountID string) error {
	return s.Store.WithinTx(ctx, func(tx pos.Store) error {
		order, err := loadMutable(ctx, tx, caller, orderID)
		if err != nil {
			return err
		}
		if discountID == "" {
			order.DiscountID = ""
			order.DiscountSnapshot = ""
			return tx.UpdateOrder(ctx, order)
		}
		now := time.Now().UTC()
		d, err := s.Discounts.EnsureOrderDiscount(ctx, tx, order.BusinessID, discountID, now)
		if err != nil {
			return err
		}
		order.DiscountID = d.ID
		order.DiscountSnapshot = s.Discounts.Codec.Encode(d, "", now)
		return tx.UpdateOrder(ctx, order)
	})
}

// AutoOrderDiscount picks the newest active order-scope discount for the
// business and freezes it onto the order. No candidate is not an error.
func (s *Service) AutoOrderDiscount(ctx context.Context, caller pos.Caller, orderID string) error {
	return s.Store.WithinTx(ctx, func(tx pos.Store) error {
		order, err := loadMutable(ctx, tx, caller, orderID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		d, err := s.Discounts.NewestOrderDiscount(ctx, tx, order.BusinessID, now)
		if err != nil || d == nil {
			return err
		}
		order.DiscountID = d.ID
		order.DiscountSnapshot = s.Discounts.Codec.Encode(*d, "", now)
		return tx.UpdateOrder(ctx, order)
	})
}

func (s *Service) Close(ctx context.Context, caller pos.Caller, orderID string) error {
	err := s.Store.WithinTx(ctx, func(tx pos.Store) error {
		order, err := loadMutable(ctx, tx, caller, orderID)
		if err != nil {
			return err
		}
		// Closing moves no stock: the sale already happened at line-add time.
		now := time.Now().UTC()
		order.Status = pos.OrderClosed
		order.ClosedAt = &now
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return err
	}
	s.Events.EmitOrderClosed(orderID, caller.BusinessID)
	return nil
}

// Cancel voids an open order and returns every remaining Product line's
// quantity to stock, atomically.
func (s *Service) Cancel(ctx context.Context, caller pos.Caller, orderID string) error {
	return pos.WithRetry(ctx, s.Store, func(tx pos.Store) error {
		order, err := loadMutable(ctx, tx, caller, orderID)
		if err != nil {
			return err
		}
		lines, err := tx.ListOrderLines(ctx, orderID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if l.CatalogType != pos.CatalogProduct {
				continue
			}
			if err := s.moveStock(ctx, tx, l.CatalogItemID, l.ID, pos.MovementRefundReturn, l.Qty); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		order.Status = pos.OrderCancelled
		order.ClosedAt = &now
		return tx.UpdateOrder(ctx, order)
	})
}

// Reopen returns a closed or cancelled order to Open. Managers/owners only.
func (s *Service) Reopen(ctx context.Context, caller pos.Caller, orderID string) error {
	if !caller.CanManage() {
		return apperr.Forbidden("only managers or owners may reopen orders")
	}
	return s.Store.WithinTx(ctx, func(tx pos.Store) error {
		order, err := loadVisible(ctx, tx, caller, orderID)
		if err != nil {
			return err
		}
		if !pos.CanTransition(order.Status, pos.OrderOpen) {
			return apperr.InvalidState("order %s is already open", orderID)
		}
		order.Status = pos.OrderOpen
		order.ClosedAt = nil
		return tx.UpdateOrder(ctx, order)
	})
}

// Delete physically removes an order. Orders that still have lines are never
// deleted; that is a safety invariant, not a workflow.
func (s *Service) Delete(ctx context.Context, caller pos.Caller, orderID string) error {
	return s.Store.WithinTx(ctx, func(tx pos.Store) error {
		order, err := loadVisible(ctx, tx, caller, orderID)
		if err != nil {
			return err
		}
		lines, err := tx.ListOrderLines(ctx, order.ID)
		if err != nil {
			return err
		}
		if len(lines) > 0 {
			return apperr.InvalidState("order %s still has %d lines", orderID, len(lines))
		}
		return tx.DeleteOrder(ctx, order.ID)
	})
}

func (s *Service) moveStock(ctx context.Context, tx pos.Store, catalogItemID, lineID string, typ pos.MovementType, delta decimal.Decimal) error {
	item, err := tx.GetStockItemByCatalogItem(ctx, catalogItemID)
	if errors.Is(err, pos.ErrNotFound) {
		return apperr.NotFound("no stock item for catalog item %s", catalogItemID)
	}
	if err != nil {
		return err
	}
	return stock.Apply(ctx, tx, stock.ApplyInput{
		StockItemID: item.ID,
		Type:        typ,
		Delta:       delta,
		OrderLineID: lineID,
	})
}

// loadVisible fetches an order the caller may see: managers/owners see every
// order in their business, staff only orders they created.
func loadVisible(ctx context.Context, st pos.Store, caller pos.Caller, orderID string) (pos.Order, error) {
	order, err := st.GetOrder(ctx, orderID)
	if errors.Is(err, pos.ErrNotFound) {
		return pos.Order{}, apperr.NotFound("order %s not found", orderID)
	}
	if err != nil {
		return pos.Order{}, err
	}
	if order.BusinessID != caller.BusinessID {
		return pos.Order{}, apperr.NotFound("order %s not found", orderID)
	}
	if !caller.CanManage() && order.EmployeeID != caller.EmployeeID {
		return pos.Order{}, apperr.Forbidden("order %s belongs to another employee", orderID)
	}
	return order, nil
}

// loadMutable additionally requires the order to be Open.
func loadMutable(ctx context.Context, st pos.Store, caller pos.Caller, orderID string) (pos.Order, error) {
	order, err := loadVisible(ctx, st, caller, orderID)
	if err != nil {
		return pos.Order{}, err
	}
	if order.Status != pos.OrderOpen {
		return pos.Order{}, apperr.InvalidState("order %s is %s, not open", orderID, order.Status)
	}
	return order, nil
}

func loadLine(ctx context.Context, st pos.Store, caller pos.Caller, lineID string) (pos.OrderLine, pos.Order, error) {
	line, err := st.GetOrderLine(ctx, lineID)
	if errors.Is(err, pos.ErrNotFound) {
		return pos.OrderLine{}, pos.Order{}, apperr.NotFound("order line %s not found", lineID)
	}
	if err != nil {
		return pos.OrderLine{}, pos.Order{}, err
	}
	order, err := loadMutable(ctx, st, caller, line.OrderID)
	if err != nil {
		return pos.OrderLine{}, pos.Order{}, err
	}
	return line, order, nil
}
