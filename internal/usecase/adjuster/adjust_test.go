package adjuster

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wattsup/nummus/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func assetSplit(id, txnID, assetID int64, date domain.Ordinal, qty string) domain.Split {
	return domain.Split{
		ID:                 id,
		TransactionID:      txnID,
		AccountID:          1,
		Date:               date,
		AssetID:            ptr(assetID),
		UnadjustedQuantity: ptr(domain.MustQuantity(qty)),
	}
}

func event(date domain.Ordinal, m string) domain.CorporateSplit {
	return domain.CorporateSplit{AssetID: 7, Date: date, Multiplier: domain.MustMultiplier(m)}
}

func third() domain.Multiplier {
	m, err := domain.NewMultiplier(decimal.NewFromInt(1).Div(decimal.NewFromInt(3)))
	if err != nil {
		panic(err)
	}
	return m
}

func TestAdjust_SameDaySplitsChain(t *testing.T) {
	// Two splits on day 10; one trade the day before, one on the split day.
	splits := []domain.Split{
		assetSplit(1, 100, 7, 9, "1"),
		assetSplit(2, 101, 7, 10, "1"),
	}
	events := []domain.CorporateSplit{event(10, "2"), event(10, "3")}

	adjusted, err := Adjust(splits, events)

	require.NoError(t, err)
	assert.Equal(t, "6", adjusted[1].String())
	assert.Equal(t, "1", adjusted[2].String())
}

func TestMultipliers(t *testing.T) {
	lookup := Multipliers([]domain.CorporateSplit{
		event(20, "0.5"), // unsorted on purpose
		event(10, "2"),
		event(15, "3"),
	})

	tests := []struct {
		name string
		date domain.Ordinal
		want string
	}{
		{"Before every event", 5, "3"},
		{"On the first event date", 10, "1.5"},
		{"Between events", 12, "1.5"},
		{"On the last event date", 20, "1"},
		{"After every event", 30, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lookup(tt.date).String())
		})
	}
}

func TestMultipliers_NoEvents(t *testing.T) {
	assert.Equal(t, "1", Multipliers(nil)(100).String())
}

func TestAdjustQuantity(t *testing.T) {
	q, err := AdjustQuantity(assetSplit(1, 1, 7, 0, "1.5"), domain.MustMultiplier("2"))
	require.NoError(t, err)
	assert.Equal(t, "3", q.String())

	q, err = AdjustQuantity(assetSplit(1, 1, 7, 0, "-1"), third())
	require.NoError(t, err)
	assert.Equal(t, "-0.333333333", q.String(), "truncates toward zero")
}

func TestAdjustQuantity_NonAssetSplit(t *testing.T) {
	cash := domain.Split{ID: 3, Amount: domain.CurrencyFromInt(10)}

	_, err := AdjustQuantity(cash, domain.MultiplierOne)
	assert.ErrorIs(t, err, domain.ErrNonAssetTransaction)

	_, err = Adjust([]domain.Split{cash}, nil)
	assert.ErrorIs(t, err, domain.ErrNonAssetTransaction)
}

func TestAdjust_SiblingResidual(t *testing.T) {
	// One transaction, three lots, reverse split 1:2 the next day.
	// Each lot truncates 0.5000000005 to 0.5; the exact total is 1.5000000015.
	splits := []domain.Split{
		assetSplit(12, 100, 7, 0, "1.000000001"),
		assetSplit(11, 100, 7, 0, "1.000000001"),
		assetSplit(13, 100, 7, 0, "1.000000001"),
		assetSplit(20, 200, 7, 0, "1.000000001"), // separate transaction, no siblings
	}

	adjusted, err := Adjust(splits, []domain.CorporateSplit{event(1, "0.5")})
	require.NoError(t, err)

	assert.Equal(t, "0.500000001", adjusted[11].String(), "lowest split ID absorbs the residual")
	assert.Equal(t, "0.5", adjusted[12].String())
	assert.Equal(t, "0.5", adjusted[13].String())
	assert.Equal(t, "0.5", adjusted[20].String())

	sum := adjusted[11].Add(adjusted[12]).Add(adjusted[13])
	assert.Equal(t, "1.500000001", sum.String())
}

func TestAdjust_NoResidualWhenExact(t *testing.T) {
	splits := []domain.Split{
		assetSplit(1, 100, 7, 0, "1.25"),
		assetSplit(2, 100, 7, 0, "0.75"),
	}

	adjusted, err := Adjust(splits, []domain.CorporateSplit{event(5, "2")})
	require.NoError(t, err)
	assert.Equal(t, "2.5", adjusted[1].String())
	assert.Equal(t, "1.5", adjusted[2].String())
}

func TestAdjust_Idempotent(t *testing.T) {
	splits := []domain.Split{
		assetSplit(1, 100, 7, 0, "1"),
		assetSplit(2, 100, 7, 0, "2"),
		assetSplit(3, 101, 7, 3, "-0.5"),
	}
	events := []domain.CorporateSplit{{AssetID: 7, Date: 1, Multiplier: third()}, event(4, "10")}

	first, err := Adjust(splits, events)
	require.NoError(t, err)

	// Feed the result back in as already-adjusted state; the output must not move.
	for i := range splits {
		splits[i].AdjustedQuantity = first[splits[i].ID]
	}
	second, err := Adjust(splits, events)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for id, q := range first {
		assert.True(t, q.Equal(second[id]), "split %d: %s != %s", id, q, second[id])
	}
}

func TestAdjust_NoMultiplierLeavesQuantities(t *testing.T) {
	splits := []domain.Split{assetSplit(1, 100, 7, 0, "0.123456789")}

	adjusted, err := Adjust(splits, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.123456789", adjusted[1].String())
}
