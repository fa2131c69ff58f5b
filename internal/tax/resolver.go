// Package tax resolves the applicable tax rate for a country + tax class at
// a point in time. The resolved rate is captured once into line snapshots;
// later rule changes never touch existing lines.
package tax

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/posdesk/pos-core.git/internal/pos"
)

// RateFor picks the rule with the latest validFrom among rules whose window
// contains now (tie-break: highest id). No matching rule means rate zero.
func RateFor(ctx context.Context, st pos.Store, country, taxClass string, now time.Time) (decimal.Decimal, error) {
	rules, err := st.ListTaxRules(ctx, country, taxClass, now)
	if err != nil {
		return decimal.Zero, err
	}
	if len(rules) == 0 {
		return decimal.Zero, nil
	}
	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].ValidFrom.Equal(rules[j].ValidFrom) {
			return rules[i].ValidFrom.After(rules[j].ValidFrom)
		}
		return rules[i].ID > rules[j].ID
	})
	return rules[0].RatePercent, nil
}
