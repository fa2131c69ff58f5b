package tax

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/posdesk/pos-core.git/internal/pos"
	"github.com/posdesk/pos-core.git/internal/store"
)

func TestRateFor(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	year := func(y int) time.Time { return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC) }

	t.Run("no matching rule resolves to zero", func(t *testing.T) {
		st := store.NewMem()
		rate, err := RateFor(ctx, st, "US", "standard", now)
		require.NoError(t, err)
		require.True(t, rate.IsZero())
	})

	t.Run("latest validFrom wins among overlapping rules", func(t *testing.T) {
		st := store.NewMem()
		require.NoError(t, st.InsertTaxRule(ctx, pos.TaxRule{
			ID: "r1", Country: "US", TaxClass: "standard",
			RatePercent: decimal.RequireFromString("8.0"),
			ValidFrom:   year(2020), ValidTo: year(2030),
		}))
		require.NoError(t, st.InsertTaxRule(ctx, pos.TaxRule{
			ID: "r2", Country: "US", TaxClass: "standard",
			RatePercent: decimal.RequireFromString("8.5"),
			ValidFrom:   year(2024), ValidTo: year(2030),
		}))
		rate, err := RateFor(ctx, st, "US", "standard", now)
		require.NoError(t, err)
		require.True(t, rate.Equal(decimal.RequireFromString("8.5")))
	})

	t.Run("equal validFrom tie-breaks on highest id", func(t *testing.T) {
		st := store.NewMem()
		require.NoError(t, st.InsertTaxRule(ctx, pos.TaxRule{
			ID: "a", Country: "US", TaxClass: "standard",
			RatePercent: decimal.RequireFromString("5"),
			ValidFrom:   year(2024), ValidTo: year(2030),
		}))
		require.NoError(t, st.InsertTaxRule(ctx, pos.TaxRule{
			ID: "b", Country: "US", TaxClass: "standard",
			RatePercent: decimal.RequireFromString("6"),
			ValidFrom:   year(2024), ValidTo: year(2030),
		}))
		rate, err := RateFor(ctx, st, "US", "standard", now)
		require.NoError(t, err)
		require.True(t, rate.Equal(decimal.RequireFromString("6")))
	})

	t.Run("expired and future rules are ignored", func(t *testing.T) {
		st := store.NewMem()
		require.NoError(t, st.InsertTaxRule(ctx, pos.TaxRule{
			ID: "old", Country: "US", TaxClass: "standard",
			RatePercent: decimal.RequireFromString("4"),
			ValidFrom:   year(2010), ValidTo: year(2015),
		}))
		require.NoError(t, st.InsertTaxRule(ctx, pos.TaxRule{
			ID: "future", Country: "US", TaxClass: "standard",
			RatePercent: decimal.RequireFromString("9"),
			ValidFrom:   year(2030), ValidTo: year(2040),
		}))
		rate, err := RateFor(ctx, st, "US", "standard", now)
		require.NoError(t, err)
		require.True(t, rate.IsZero())
	})

	t.Run("classes and countries do not bleed into each other", func(t *testing.T) {
		st := store.NewMem()
		require.NoError(t, st.InsertTaxRule(ctx, pos.TaxRule{
			ID: "de", Country: "DE", TaxClass: "standard",
			RatePercent: decimal.RequireFromString("19"),
			ValidFrom:   year(2020), ValidTo: year(2030),
		}))
		require.NoError(t, st.InsertTaxRule(ctx, pos.TaxRule{
			ID: "us-reduced", Country: "US", TaxClass: "reduced",
			RatePercent: decimal.RequireFromString("2"),
			ValidFrom:   year(2020), ValidTo: year(2030),
		}))
		rate, err := RateFor(ctx, st, "US", "standard", now)
		require.NoError(t, err)
		require.True(t, rate.IsZero())
	})
}
