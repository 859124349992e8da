package adjuster

import (
	"cmp"
	"fmt"
	"slices"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wattsup/nummus/internal/domain"
)

// MultiplierFunc returns the cumulative split multiplier for a trade dated d
type MultiplierFunc func(d domain.Ordinal) domain.Multiplier

// Multipliers builds the cumulative multiplier lookup for an asset's split events.
//
// A split executes after the close of its date, so a trade dated d is scaled by
// every event dated strictly after d; events on d itself or earlier do not apply.
// Events on the same date chain multiplicatively.
func Multipliers(events []domain.CorporateSplit) MultiplierFunc {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b domain.CorporateSplit) int {
		return cmp.Compare(a.Date, b.Date)
	})

	// suffix[i] is the product of sorted[i:]
	suffix := make([]domain.Multiplier, len(sorted)+1)
	suffix[len(sorted)] = domain.MultiplierOne
	for i := len(sorted) - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1].Mul(sorted[i].Multiplier)
	}

	return func(d domain.Ordinal) domain.Multiplier {
		i := sort.Search(len(sorted), func(i int) bool { return sorted[i].Date > d })
		return suffix[i]
	}
}

// AdjustQuantity applies multiplier m to one split's recorded quantity,
// truncating toward zero at quantity scale.
// Returns ErrNonAssetTransaction if the split carries no unadjusted quantity.
func AdjustQuantity(split domain.Split, m domain.Multiplier) (domain.Quantity, error) {
	if split.UnadjustedQuantity == nil {
		return domain.Quantity{}, fmt.Errorf("adjust split %d: %w", split.ID, domain.ErrNonAssetTransaction)
	}
	return split.UnadjustedQuantity.Mul(m), nil
}

type siblingKey struct {
	transactionID int64
	assetID       int64
}

type siblings struct {
	first     int64           // lowest split ID, absorbs the residual
	exact     decimal.Decimal // untruncated sum
	truncated domain.Quantity // sum of per-split truncated quantities
	count     int
}

// Adjust recomputes adjusted quantities for splits of a single asset.
// Returns a map of split ID to adjusted quantity.
//
// Logic:
//  1. Each split gets truncate(unadjusted × multiplier) at quantity scale
//  2. Splits sharing a parent transaction and asset are grouped
//  3. For groups of two or more, the difference between the truncated exact
//     group total and the sum of truncated parts is added to the split with
//     the lowest ID
//
// Adjust is pure: the same inputs always produce the same output.
func Adjust(splits []domain.Split, events []domain.CorporateSplit) (map[int64]domain.Quantity, error) {
	multiplierAt := Multipliers(events)

	sorted := slices.Clone(splits)
	slices.SortFunc(sorted, func(a, b domain.Split) int { return cmp.Compare(a.ID, b.ID) })

	adjusted := make(map[int64]domain.Quantity, len(sorted))
	groups := make(map[siblingKey]*siblings)

	for _, split := range sorted {
		m := multiplierAt(split.Date)
		q, err := AdjustQuantity(split, m)
		if err != nil {
			return nil, err
		}
		adjusted[split.ID] = q

		var assetID int64
		if split.AssetID != nil {
			assetID = *split.AssetID
		}
		key := siblingKey{transactionID: split.TransactionID, assetID: assetID}
		g, ok := groups[key]
		if !ok {
			g = &siblings{first: split.ID}
			groups[key] = g
		}
		g.exact = g.exact.Add(split.UnadjustedQuantity.MulExact(m))
		g.truncated = g.truncated.Add(q)
		g.count++
	}

	// Safety: no fraction of a share lost across siblings
	for _, g := range groups {
		if g.count < 2 {
			continue
		}
		residual := domain.NewQuantity(g.exact).Sub(g.truncated)
		if !residual.IsZero() {
			adjusted[g.first] = adjusted[g.first].Add(residual)
		}
	}

	return adjusted, nil
}
