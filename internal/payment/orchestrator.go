// Package payment drives a payment through its settlement, cancellation and
// refund state machine, allocating the order total between the gift card
// ledger and the external gateway.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/posdesk/pos-core.git/internal/apperr"
	"github.com/posdesk/pos-core.git/internal/discount"
	"github.com/posdesk/pos-core.git/internal/events"
	"github.com/posdesk/pos-core.git/internal/giftcard"
	"github.com/posdesk/pos-core.git/internal/money"
	"github.com/posdesk/pos-core.git/internal/pos"
	"github.com/posdesk/pos-core.git/internal/stock"
)

type Config struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

type Orchestrator struct {
	Store   pos.Store
	Gateway Gateway
	Codec   discount.SnapshotCodec
	Cfg     Config
	Events  *events.Emitter
}

func NewOrchestrator(st pos.Store, gw Gateway, cfg Config, em *events.Emitter) *Orchestrator {
	return &Orchestrator{Store: st, Gateway: gw, Codec: discount.NewSnapshotCodec(), Cfg: cfg, Events: em}
}

type CreateInput struct {
	OrderID      string
	GiftCardCode string
	// GiftCardAmount nil means draw as much from the card as the total allows.
	GiftCardAmount *int64
	TipCents       int64
}

// CreateResult carries the new payment plus the checkout URL to send the
// client to, when a gateway remainder exists.
type CreateResult struct {
	Payment     pos.Payment
	CheckoutURL string
}

// Create opens a payment for an open order. A fully gift-card-covered total
// settles immediately with no gateway call; any remainder goes through a
// checkout session and the payment stays pending until the webhook arrives.
func (o *Orchestrator) Create(ctx context.Context, caller pos.Caller, in CreateInput) (CreateResult, error) {
	if in.TipCents < 0 {
		return CreateResult{}, apperr.Validation("tip must not be negative")
	}
	if in.GiftCardAmount != nil && *in.GiftCardAmount <= 0 {
		return CreateResult{}, apperr.Validation("gift card amount must be positive")
	}
	var out pos.Payment
	var checkoutURL string
	err := pos.WithRetry(ctx, o.Store, func(tx pos.Store) error {
		order, err := o.loadOrder(ctx, tx, caller, in.OrderID)
		if err != nil {
			return err
		}
		if order.Status != pos.OrderOpen {
			return apperr.InvalidState("order %s is %s, not open", order.ID, order.Status)
		}
		lines, err := tx.ListOrderLines(ctx, order.ID)
		if err != nil {
			return err
		}
		amount := OrderAmountCents(o.Codec, order, lines)
		if amount <= 0 {
			return apperr.Validation("order %s totals to nothing to pay", order.ID)
		}
		total := amount + in.TipCents

		p := pos.Payment{
			ID:          uuid.NewString(),
			BusinessID:  order.BusinessID,
			OrderID:     order.ID,
			EmployeeID:  caller.EmployeeID,
			AmountCents: amount,
			TipCents:    in.TipCents,
			Currency:    o.Cfg.Currency,
			Method:      pos.MethodStripe,
			Status:      pos.PaymentPending,
			IsOpen:      true,
			CreatedAt:   time.Now().UTC(),
		}

		if in.GiftCardCode != "" {
			card, err := tx.GetGiftCardByCode(ctx, caller.BusinessID, in.GiftCardCode)
			if errors.Is(err, pos.ErrNotFound) {
				return apperr.NotFound("gift card %q not found", in.GiftCardCode)
			}
			if err != nil {
				return err
			}
			if card.Status != pos.GiftCardActive {
				return apperr.InvalidState("gift card %q is not active", in.GiftCardCode)
			}
			if card.ExpiresAt != nil && time.Now().UTC().After(*card.ExpiresAt) {
				return apperr.InvalidState("gift card %q is expired", in.GiftCardCode)
			}
			requested := total
			if in.GiftCardAmount != nil {
				requested = *in.GiftCardAmount
			}
			planned := min3(requested, card.BalanceCents, total)
			if planned > 0 {
				p.GiftCardID = card.ID
				p.GiftCardPlanned = planned
				if planned == total {
					p.Method = pos.MethodGiftCard
				} else {
					p.Method = pos.MethodGiftCardStripe
				}
			}
		}

		// The insert claims the order's one-open-payment slot, so a duplicate
		// attempt fails before any session exists at the gateway.
		if err := tx.InsertPayment(ctx, p); err != nil {
			if errors.Is(err, pos.ErrOpenPaymentExists) {
				return apperr.InvalidState("order %s already has a pending payment", order.ID)
			}
			return err
		}

		if p.Method == pos.MethodGiftCard {
			// Fully covered by the card: settle right here, no gateway involved.
			if err := o.settle(ctx, tx, &p); err != nil {
				return err
			}
		} else {
			sess, err := o.Gateway.CreateCheckoutSession(ctx, total-p.GiftCardPlanned,
				p.Currency, o.Cfg.SuccessURL, o.Cfg.CancelURL, p.ID)
			if err != nil {
				return err
			}
			p.SessionID = sess.SessionID
			checkoutURL = sess.URL
			if err := tx.UpdatePayment(ctx, p); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}
	if out.Status == pos.PaymentSuccess {
		o.emitSettled(out)
	}
	return CreateResult{Payment: out, CheckoutURL: checkoutURL}, nil
}

// ConfirmSuccess handles the "checkout completed" webhook. Idempotent:
// already-settled payments are a no-op, and the gift card redeem is gated on
// charged == 0 so a re-delivered event never charges twice.
func (o *Orchestrator) ConfirmSuccess(ctx context.Context, sessionID string) error {
	var settled *pos.Payment
	err := pos.WithRetry(ctx, o.Store, func(tx pos.Store) error {
		settled = nil
		p, err := o.bySession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		switch p.Status {
		case pos.PaymentSuccess:
			return nil
		case pos.PaymentRefunded, pos.PaymentCancelled:
			return apperr.InvalidState("payment %s is %s and cannot be confirmed", p.ID, p.Status)
		}
		if err := o.settle(ctx, tx, &p); err != nil {
			return err
		}
		settled = &p
		return nil
	})
	if err != nil {
		return err
	}
	if settled != nil {
		o.emitSettled(*settled)
	}
	return nil
}

// CancelPending handles the "checkout expired" webhook. Only pending
// payments react; everything else is a no-op. No stock or money moves.
func (o *Orchestrator) CancelPending(ctx context.Context, sessionID string) error {
	return o.Store.WithinTx(ctx, func(tx pos.Store) error {
		p, err := o.bySession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if p.Status != pos.PaymentPending {
			return nil
		}
		p.Status = pos.PaymentCancelled
		p.IsOpen = false
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		order, err := tx.GetOrder(ctx, p.OrderID)
		if err != nil {
			return err
		}
		order.Status = pos.OrderOpen
		order.ClosedAt = nil
		return tx.UpdateOrder(ctx, order)
	})
}

// RefundFull reverses a settled payment: gateway refund for the non-gift
// portion first, then one transaction topping the card back up, returning
// every Product line's quantity to stock, marking the payment refunded and
// cancelling the order.
func (o *Orchestrator) RefundFull(ctx context.Context, caller pos.Caller, paymentID string) error {
	p, err := o.byID(ctx, o.Store, caller, paymentID)
	if err != nil {
		return err
	}
	if p.Status != pos.PaymentSuccess {
		return apperr.InvalidState("payment %s is %s, only successful payments can be refunded", p.ID, p.Status)
	}
	gatewayPortion := p.TotalCents() - p.GiftCardCharged
	if gatewayPortion > 0 && p.SessionID != "" {
		if err := o.Gateway.Refund(ctx, p.SessionID, gatewayPortion); err != nil {
			return err
		}
	}
	var refunded pos.Payment
	err = pos.WithRetry(ctx, o.Store, func(tx pos.Store) error {
		p, err := o.byID(ctx, tx, caller, paymentID)
		if err != nil {
			return err
		}
		if p.Status != pos.PaymentSuccess {
			return apperr.InvalidState("payment %s is %s, only successful payments can be refunded", p.ID, p.Status)
		}
		if p.GiftCardCharged > 0 {
			if err := giftcard.TopUpIn(ctx, tx, p.GiftCardID, p.GiftCardCharged); err != nil {
				return err
			}
		}
		lines, err := tx.ListOrderLines(ctx, p.OrderID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if l.CatalogType != pos.CatalogProduct {
				continue
			}
			item, err := tx.GetStockItemByCatalogItem(ctx, l.CatalogItemID)
			if errors.Is(err, pos.ErrNotFound) {
				return apperr.NotFound("no stock item for catalog item %s", l.CatalogItemID)
			}
			if err != nil {
				return err
			}
			err = stock.Apply(ctx, tx, stock.ApplyInput{
				StockItemID: item.ID,
				Type:        pos.MovementRefundReturn,
				Delta:       l.Qty,
				OrderLineID: l.ID,
				Note:        "full refund of payment " + p.ID,
			})
			if err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		p.Status = pos.PaymentRefunded
		p.IsOpen = false
		p.RefundedAt = &now
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		order, err := tx.GetOrder(ctx, p.OrderID)
		if err != nil {
			return err
		}
		order.Status = pos.OrderCancelled
		order.TipAmount = decimal.Zero
		order.ClosedAt = &now
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		refunded = p
		return nil
	})
	if err != nil {
		return err
	}
	o.Events.EmitPaymentRefunded(refunded.OrderID, events.PaymentRefundedPayload{
		PaymentID:        refunded.ID,
		OrderID:          refunded.OrderID,
		BusinessID:       refunded.BusinessID,
		GiftCardToppedUp: refunded.GiftCardCharged,
		GatewayRefunded:  gatewayPortion,
	})
	return nil
}

// settle flips a payment to Success inside the caller's transaction:
// one-shot gift card redeem, inventory-applied flag (a guard, not a stock
// mutation — stock already moved when lines were written), order closed.
func (o *Orchestrator) settle(ctx context.Context, tx pos.Store, p *pos.Payment) error {
	if p.GiftCardID != "" && p.GiftCardCharged == 0 && p.GiftCardPlanned > 0 {
		charged, err := giftcard.RedeemIn(ctx, tx, p.GiftCardID, p.GiftCardPlanned, p.BusinessID)
		if err != nil {
			return err
		}
		p.GiftCardCharged = charged
	}
	now := time.Now().UTC()
	p.Status = pos.PaymentSuccess
	p.IsOpen = false
	p.CompletedAt = &now
	if !p.InventoryApplied {
		p.InventoryApplied = true
		p.InventoryAppliedAt = &now
	}
	if err := tx.UpdatePayment(ctx, *p); err != nil {
		return err
	}
	order, err := tx.GetOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}
	order.Status = pos.OrderClosed
	order.TipAmount = money.FromCents(p.TipCents)
	order.ClosedAt = &now
	return tx.UpdateOrder(ctx, order)
}

func (o *Orchestrator) emitSettled(p pos.Payment) {
	o.Events.EmitPaymentSettled(p.OrderID, events.PaymentSettledPayload{
		PaymentID:       p.ID,
		OrderID:         p.OrderID,
		BusinessID:      p.BusinessID,
		AmountCents:     p.AmountCents,
		TipCents:        p.TipCents,
		GiftCardCharged: p.GiftCardCharged,
		GatewayCharged:  p.TotalCents() - p.GiftCardCharged,
	})
}

func (o *Orchestrator) loadOrder(ctx context.Context, st pos.Store, caller pos.Caller, orderID string) (pos.Order, error) {
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

func (o *Orchestrator) byID(ctx context.Context, st pos.Store, caller pos.Caller, id string) (pos.Payment, error) {
	p, err := st.GetPayment(ctx, id)
	if errors.Is(err, pos.ErrNotFound) {
		return pos.Payment{}, apperr.NotFound("payment %s not found", id)
	}
	if err != nil {
		return pos.Payment{}, err
	}
	if p.BusinessID != caller.BusinessID {
		return pos.Payment{}, apperr.NotFound("payment %s not found", id)
	}
	// Same ownership gate as the order itself: staff only touch payments on
	// orders they created.
	if _, err := o.loadOrder(ctx, st, caller, p.OrderID); err != nil {
		return pos.Payment{}, err
	}
	return p, nil
}

func (o *Orchestrator) bySession(ctx context.Context, st pos.Store, sessionID string) (pos.Payment, error) {
	p, err := st.GetPaymentBySession(ctx, sessionID)
	if errors.Is(err, pos.ErrNotFound) {
		return pos.Payment{}, apperr.NotFound("no payment for session %s", sessionID)
	}
	return p, err
}

func min3(a, b, c int64) int64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
