package valuation

import (
	"maps"
	"slices"

	"github.com/wattsup/nummus/internal/domain"
	"github.com/wattsup/nummus/internal/usecase/series"
)

// Calculator evaluates value, profit, cash flow and quantity series over one
// fixed date range. It holds the dense hold-last price series of every asset
// it was given valuations for; assets without valuations are priced at zero.
//
// The single-entity Service and the batch planner both compute through a
// Calculator, so their results agree exactly.
type Calculator struct {
	start, end domain.Ordinal
	days       int
	prices     map[int64][]domain.Currency
}

// NewCalculator densifies valuations (any order, may predate start) into price series.
// Panics if end < start.
func NewCalculator(start, end domain.Ordinal, valuations []domain.Valuation) *Calculator {
	byAsset := make(map[int64]map[domain.Ordinal]domain.Currency)
	for _, v := range valuations {
		events, ok := byAsset[v.AssetID]
		if !ok {
			events = make(map[domain.Ordinal]domain.Currency)
			byAsset[v.AssetID] = events
		}
		events[v.Date] = v.Value
	}

	prices := make(map[int64][]domain.Currency, len(byAsset))
	for assetID, events := range byAsset {
		prices[assetID] = series.Build(events, start, end, series.HoldLast)
	}

	return &Calculator{
		start:  start,
		end:    end,
		days:   len(series.Dates(start, end)),
		prices: prices,
	}
}

// Dates returns the calculator's date axis
func (c *Calculator) Dates() []domain.Ordinal {
	return series.Dates(c.start, c.end)
}

// Price returns a copy of the asset's hold-last price series
func (c *Calculator) Price(assetID int64) []domain.Currency {
	if p, ok := c.prices[assetID]; ok {
		return slices.Clone(p)
	}
	return make([]domain.Currency, c.days)
}

// AssetValue is the value of one unit of the asset: its price series
func (c *Calculator) AssetValue(assetID int64) []domain.Currency {
	return c.Price(assetID)
}

// AccountQty returns the full-history held quantity of every asset the splits
// touch, keyed by asset ID. Non-asset splits are ignored.
func (c *Calculator) AccountQty(splits []domain.Split) map[int64][]domain.Quantity {
	deltas := make(map[int64]map[domain.Ordinal]domain.Quantity)
	for _, split := range splits {
		if !split.IsAssetLinked() {
			continue
		}
		events, ok := deltas[*split.AssetID]
		if !ok {
			events = make(map[domain.Ordinal]domain.Quantity)
			deltas[*split.AssetID] = events
		}
		series.Accumulate(events, split.Date, split.AdjustedQuantity)
	}

	held := make(map[int64][]domain.Quantity, len(deltas))
	for assetID, events := range deltas {
		held[assetID] = series.Build(series.Rebase(events, c.start), c.start, c.end, series.CumulativeDelta)
	}
	return held
}

// AccountValue = cash balance + Σ held quantity × price.
// The cash balance is the running sum of every split amount since the
// beginning of history, not just inside the window.
func (c *Calculator) AccountValue(splits []domain.Split) []domain.Currency {
	cash := c.running(splits, func(domain.Split) bool { return true })
	return addInto(cash, c.holdings(splits))
}

// AccountProfit = holdings value + running sum of asset-linked split amounts.
// Cash that never touched an asset contributes nothing.
func (c *Calculator) AccountProfit(splits []domain.Split) []domain.Currency {
	linked := c.running(splits, func(s domain.Split) bool { return s.IsAssetLinked() })
	return addInto(linked, c.holdings(splits))
}

// AssetProfit = total held quantity × price + running sum of the amounts of
// the asset's splits across every account.
// splits must be the asset-linked splits of assetID.
func (c *Calculator) AssetProfit(assetID int64, splits []domain.Split) []domain.Currency {
	linked := c.running(splits, func(s domain.Split) bool {
		return s.IsAssetLinked() && *s.AssetID == assetID
	})
	held := c.AccountQty(splits)[assetID]
	if held == nil {
		return linked
	}

	price := c.Price(assetID)
	for i := range linked {
		linked[i] = linked[i].Add(held[i].MulPrice(price[i]))
	}
	return linked
}

// CashFlow splits each day's amounts into inflow (positive) and outflow
// (negative). With integrate the series are running totals from the first day
// of the window; amounts dated before the window never contribute.
func (c *Calculator) CashFlow(splits []domain.Split, integrate bool) (inflow, outflow []domain.Currency) {
	in := make(map[domain.Ordinal]domain.Currency)
	out := make(map[domain.Ordinal]domain.Currency)
	for _, split := range splits {
		switch {
		case split.Amount.IsPositive():
			series.Accumulate(in, split.Date, split.Amount)
		case split.Amount.IsNegative():
			series.Accumulate(out, split.Date, split.Amount)
		}
	}

	policy := series.Daily
	if integrate {
		policy = series.CumulativeDelta
	}
	return series.Build(in, c.start, c.end, policy), series.Build(out, c.start, c.end, policy)
}

// holdings returns Σ_asset held quantity × price, each product truncated to
// currency scale before the sum
func (c *Calculator) holdings(splits []domain.Split) []domain.Currency {
	total := make([]domain.Currency, c.days)
	held := c.AccountQty(splits)
	for _, assetID := range slices.Sorted(maps.Keys(held)) {
		qty := held[assetID]
		price := c.prices[assetID]
		if price == nil {
			continue
		}
		for i := range total {
			total[i] = total[i].Add(qty[i].MulPrice(price[i]))
		}
	}
	return total
}

// running returns the full-history running sum of the amounts of splits that pass keep
func (c *Calculator) running(splits []domain.Split, keep func(domain.Split) bool) []domain.Currency {
	deltas := make(map[domain.Ordinal]domain.Currency)
	for _, split := range splits {
		if keep(split) {
			series.Accumulate(deltas, split.Date, split.Amount)
		}
	}
	return series.Build(series.Rebase(deltas, c.start), c.start, c.end, series.CumulativeDelta)
}

func addInto(dst, src []domain.Currency) []domain.Currency {
	for i := range dst {
		dst[i] = dst[i].Add(src[i])
	}
	return dst
}
