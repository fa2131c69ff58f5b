package payment

import (
	"github.com/shopspring/decimal"

	"github.com/posdesk/pos-core.git/internal/discount"
	"github.com/posdesk/pos-core.git/internal/money"
	"github.com/posdesk/pos-core.git/internal/pos"
)

// OrderAmountCents computes the order total from stored snapshots only:
// per line, unitPrice x qty through the line's discount snapshot (clamped at
// zero), summed, then through the order-level snapshot, rounded to cents
// half away from zero. Current catalog/discount/tax state plays no part.
func OrderAmountCents(codec discount.SnapshotCodec, order pos.Order, lines []pos.OrderLine) int64 {
	sum := decimal.Zero
	for _, l := range lines {
		lineTotal := l.UnitPrice.Mul(l.Qty)
		lineTotal = codec.Decode(l.DiscountSnapshot).Apply(lineTotal)
		sum = sum.Add(lineTotal)
	}
	sum = codec.Decode(order.DiscountSnapshot).Apply(sum)
	return money.Cents(sum)
}
