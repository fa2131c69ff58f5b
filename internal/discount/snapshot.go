package discount

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/posdesk/pos-core.git/internal/pos"
)

// Snapshot is the immutable copy of a discount frozen into an order or line.
// Stored as versioned JSON so historical records survive later edits to the
// discount itself.
type Snapshot struct {
	Version       int               `json:"version"`
	DiscountID    string            `json:"discount_id"`
	Code          string            `json:"code"`
	Type          pos.DiscountType  `json:"type"`
	Scope         pos.DiscountScope `json:"scope"`
	Value         decimal.Decimal   `json:"value"`
	CatalogItemID string            `json:"catalog_item_id,omitempty"`
	ValidFrom     time.Time         `json:"valid_from"`
	ValidTo       time.Time         `json:"valid_to"`
	CapturedAt    time.Time         `json:"captured_at_utc"`
}

// Apply returns amount after the discount, clamped at zero. A nil snapshot
// leaves the amount unchanged.
func (s *Snapshot) Apply(amount decimal.Decimal) decimal.Decimal {
	if s == nil {
		return amount
	}
	var out decimal.Decimal
	switch s.Type {
	case pos.DiscountPercent:
		factor := decimal.NewFromInt(1).Sub(s.Value.Div(decimal.NewFromInt(100)))
		out = amount.Mul(factor)
	case pos.DiscountAmount:
		out = amount.Sub(s.Value)
	default:
		return amount
	}
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// SnapshotCodec writes and reads discount snapshots. It is an explicit value
// handed to whoever needs it, not process-wide serializer state.
type SnapshotCodec struct {
	Version int
}

func NewSnapshotCodec() SnapshotCodec { return SnapshotCodec{Version: 1} }

func (c SnapshotCodec) Encode(d pos.Discount, catalogItemID string, now time.Time) string {
	b, err := json.Marshal(Snapshot{
		Version:       c.Version,
		DiscountID:    d.ID,
		Code:          d.Code,
		Type:          d.Type,
		Scope:         d.Scope,
		Value:         d.Value,
		CatalogItemID: catalogItemID,
		ValidFrom:     d.StartsAt,
		ValidTo:       d.EndsAt,
		CapturedAt:    now.UTC(),
	})
	if err != nil {
		return ""
	}
	return string(b)
}

// Decode parses a stored snapshot. Malformed or absent JSON decodes to nil
// ("no discount"), never to an error: snapshots come from our own writes but
// historical rows must not be able to wedge totals computation.
func (c SnapshotCodec) Decode(raw string) *Snapshot {
	if raw == "" {
		return nil
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil
	}
	if s.Version < 1 || s.DiscountID == "" {
		return nil
	}
	return &s
}
