// Package discount finds the newest applicable discount for an order or a
// catalog item and freezes it into a versioned JSON snapshot.
package discount

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/posdesk/pos-core.git/internal/apperr"
	"github.com/posdesk/pos-core.git/internal/pos"
)

type Engine struct {
	Codec SnapshotCodec
}

func NewEngine() *Engine { return &Engine{Codec: NewSnapshotCodec()} }

// newestFirst orders candidates by startsAt descending, then id descending,
// so repeated resolution against unchanged data is reproducible.
func newestFirst(ds []pos.Discount) {
	sort.Slice(ds, func(i, j int) bool {
		if !ds[i].StartsAt.Equal(ds[j].StartsAt) {
			return ds[i].StartsAt.After(ds[j].StartsAt)
		}
		return ds[i].ID > ds[j].ID
	})
}

// NewestOrderDiscount returns the newest active in-window Order-scope
// discount for the business, or nil when none applies.
func (e *Engine) NewestOrderDiscount(ctx context.Context, st pos.Store, businessID string, now time.Time) (*pos.Discount, error) {
	ds, err := st.ListActiveDiscounts(ctx, businessID, pos.ScopeOrder, now)
	if err != nil {
		return nil, err
	}
	if len(ds) == 0 {
		return nil, nil
	}
	newestFirst(ds)
	d := ds[0]
	return &d, nil
}

// NewestLineDiscount returns the newest active in-window Line-scope discount
// with an eligibility row for the catalog item, or nil.
func (e *Engine) NewestLineDiscount(ctx context.Context, st pos.Store, businessID, catalogItemID string, now time.Time) (*pos.Discount, error) {
	ds, err := st.ListActiveDiscounts(ctx, businessID, pos.ScopeLine, now)
	if err != nil {
		return nil, err
	}
	newestFirst(ds)
	for i := range ds {
		ok, err := st.HasDiscountEligibility(ctx, ds[i].ID, catalogItemID)
		if err != nil {
			return nil, err
		}
		if ok {
			d := ds[i]
			return &d, nil
		}
	}
	return nil, nil
}

// EnsureOrderDiscount validates an explicitly assigned order discount.
func (e *Engine) EnsureOrderDiscount(ctx context.Context, st pos.Store, businessID, discountID string, now time.Time) (pos.Discount, error) {
	return e.ensure(ctx, st, businessID, discountID, pos.ScopeOrder, "", now)
}

// EnsureLineDiscount validates an explicitly assigned line discount against
// the catalog item's eligibility.
func (e *Engine) EnsureLineDiscount(ctx context.Context, st pos.Store, businessID, discountID, catalogItemID string, now time.Time) (pos.Discount, error) {
	return e.ensure(ctx, st, businessID, discountID, pos.ScopeLine, catalogItemID, now)
}

func (e *Engine) ensure(ctx context.Context, st pos.Store, businessID, discountID string, scope pos.DiscountScope, catalogItemID string, now time.Time) (pos.Discount, error) {
	d, err := st.GetDiscount(ctx, discountID)
	if errors.Is(err, pos.ErrNotFound) {
		return pos.Discount{}, apperr.NotFound("discount %s not found", discountID)
	}
	if err != nil {
		return pos.Discount{}, err
	}
	if d.BusinessID != businessID {
		return pos.Discount{}, apperr.NotFound("discount %s not found", discountID)
	}
	if d.Scope != scope {
		return pos.Discount{}, apperr.InvalidState("discount %s has scope %s, want %s", discountID, d.Scope, scope)
	}
	if d.Status != pos.DiscountActive {
		return pos.Discount{}, apperr.InvalidState("discount %s is not active", discountID)
	}
	if now.Before(d.StartsAt) || now.After(d.EndsAt) {
		return pos.Discount{}, apperr.InvalidState("discount %s is outside its validity window", discountID)
	}
	if scope == pos.ScopeLine {
		ok, err := st.HasDiscountEligibility(ctx, d.ID, catalogItemID)
		if err != nil {
			return pos.Discount{}, err
		}
		if !ok {
			return pos.Discount{}, apperr.InvalidState("discount %s is not eligible for item %s", discountID, catalogItemID)
		}
	}
	return d, nil
}
