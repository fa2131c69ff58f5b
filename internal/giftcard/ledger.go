// Package giftcard is the balance store for gift cards, mutated under
// optimistic concurrency.
package giftcard

import (
	"context"
	"errors"
	"time"

	"github.com/posdesk/pos-core.git/internal/apperr"
	"github.com/posdesk/pos-core.git/internal/pos"
)

type Ledger struct {
	Store pos.Store
}

func NewLedger(st pos.Store) *Ledger { return &Ledger{Store: st} }

// TopUp adds amountCents to an active, unexpired card.
func (l *Ledger) TopUp(ctx context.Context, id string, amountCents int64) error {
	if amountCents <= 0 {
		return apperr.Validation("top-up amount must be positive")
	}
	return pos.WithRetry(ctx, l.Store, func(tx pos.Store) error {
		return TopUpIn(ctx, tx, id, amountCents)
	})
}

// Redeem charges min(balance, amountCents) from the card and returns the
// amount actually charged. A zero charge on an empty card is a valid no-op.
func (l *Ledger) Redeem(ctx context.Context, id string, amountCents int64, businessID string) (int64, error) {
	if amountCents <= 0 {
		return 0, apperr.Validation("redeem amount must be positive")
	}
	var charged int64
	err := pos.WithRetry(ctx, l.Store, func(tx pos.Store) error {
		var err error
		charged, err = RedeemIn(ctx, tx, id, amountCents, businessID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return charged, nil
}

// TopUpIn is the single-attempt body, usable inside a larger transaction
// (refund tops the card back up atomically with the rest of the refund).
func TopUpIn(ctx context.Context, st pos.Store, id string, amountCents int64) error {
	card, err := load(ctx, st, id)
	if err != nil {
		return err
	}
	if err := usable(card); err != nil {
		return err
	}
	expected := card.Version
	card.BalanceCents += amountCents
	card.Version++
	return st.UpdateGiftCard(ctx, card, expected)
}

// RedeemIn is the single-attempt redeem body.
func RedeemIn(ctx context.Context, st pos.Store, id string, amountCents int64, businessID string) (int64, error) {
	card, err := load(ctx, st, id)
	if err != nil {
		return 0, err
	}
	if card.BusinessID != businessID {
		return 0, apperr.InvalidState("gift card %s belongs to another business", id)
	}
	if err := usable(card); err != nil {
		return 0, err
	}
	charged := amountCents
	if card.BalanceCents < charged {
		charged = card.BalanceCents
	}
	if charged == 0 {
		return 0, nil
	}
	expected := card.Version
	card.BalanceCents -= charged
	card.Version++
	if err := st.UpdateGiftCard(ctx, card, expected); err != nil {
		return 0, err
	}
	return charged, nil
}

func load(ctx context.Context, st pos.Store, id string) (pos.GiftCard, error) {
	card, err := st.GetGiftCard(ctx, id)
	if errors.Is(err, pos.ErrNotFound) {
		return pos.GiftCard{}, apperr.NotFound("gift card %s not found", id)
	}
	return card, err
}

func usable(card pos.GiftCard) error {
	if card.Status != pos.GiftCardActive {
		return apperr.InvalidState("gift card %s is not active", card.ID)
	}
	if card.ExpiresAt != nil && time.Now().UTC().After(*card.ExpiresAt) {
		return apperr.InvalidState("gift card %s is expired", card.ID)
	}
	return nil
}
