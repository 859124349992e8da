package valuation

import (
	"fmt"
	"slices"

	"github.com/wattsup/nummus/internal/domain"
	"github.com/wattsup/nummus/internal/usecase/series"
)

// CheckRange returns ErrInvalidRange if end < start
func CheckRange(start, end domain.Ordinal) error {
	if end < start {
		return fmt.Errorf("%w: start %s, end %s", domain.ErrInvalidRange, start, end)
	}
	return nil
}

// SeriesDates is the shared date axis of every series over [start, end]
func SeriesDates(start, end domain.Ordinal) []domain.Ordinal {
	return series.Dates(start, end)
}

// CashFlowFilter selects the splits that feed an entity's cash flow.
// Accounts count every split they own, assets only the splits linked to them.
func CashFlowFilter(kind domain.EntityKind, ids []int64, end domain.Ordinal) (domain.SplitFilter, error) {
	switch kind {
	case domain.EntityAccount:
		return domain.SplitFilter{AccountIDs: ids, Until: &end}, nil
	case domain.EntityAsset:
		return domain.SplitFilter{AssetIDs: ids, AssetLinkedOnly: true, Until: &end}, nil
	default:
		return domain.SplitFilter{}, unknownKind(kind)
	}
}

// LinkedAssets returns the distinct asset IDs referenced by splits, ascending
func LinkedAssets(splits []domain.Split) []int64 {
	ids := make([]int64, 0)
	for _, split := range splits {
		if split.AssetID != nil {
			ids = append(ids, *split.AssetID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
