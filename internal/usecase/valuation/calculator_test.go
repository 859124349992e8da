package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wattsup/nummus/internal/domain"
)

func linked(id, assetID int64, date domain.Ordinal, amount, qty string) domain.Split {
	q := domain.MustQuantity(qty)
	return domain.Split{
		ID:                 id,
		AccountID:          1,
		Date:               date,
		Amount:             domain.MustCurrency(amount),
		AssetID:            ptr(assetID),
		UnadjustedQuantity: ptr(q),
		AdjustedQuantity:   q,
	}
}

func TestCalculator_HoldingsTruncatePerAsset(t *testing.T) {
	// Two assets, each 0.333333333 × 3 = 0.999999999 truncated to 0.999999
	calc := NewCalculator(0, 0, []domain.Valuation{
		{AssetID: 1, Date: 0, Value: domain.CurrencyFromInt(3)},
		{AssetID: 2, Date: 0, Value: domain.CurrencyFromInt(3)},
	})
	splits := []domain.Split{
		linked(1, 1, 0, "0", "0.333333333"),
		linked(2, 2, 0, "0", "0.333333333"),
	}

	assert.Equal(t, []string{"1.999998"}, strs(calc.AccountValue(splits)))
}

func TestCalculator_PriceBeforeWindow(t *testing.T) {
	calc := NewCalculator(10, 12, []domain.Valuation{
		{AssetID: 1, Date: 2, Value: domain.MustCurrency("4.5")},
		{AssetID: 1, Date: 11, Value: domain.MustCurrency("5")},
	})

	assert.Equal(t, []string{"4.5", "5", "5"}, strs(calc.AssetValue(1)))
	assert.Equal(t, []string{"0", "0", "0"}, strs(calc.AssetValue(2)))
}

func TestCalculator_PriceIsCopied(t *testing.T) {
	calc := NewCalculator(0, 1, []domain.Valuation{{AssetID: 1, Date: 0, Value: domain.CurrencyFromInt(1)}})

	p := calc.Price(1)
	p[0] = domain.CurrencyFromInt(100)

	assert.Equal(t, "1", calc.Price(1)[0].String())
}

func TestCalculator_UnpricedHoldingsAreWorthZero(t *testing.T) {
	calc := NewCalculator(0, 1, nil)
	splits := []domain.Split{linked(1, 1, 0, "-50", "5")}

	assert.Equal(t, []string{"-50", "-50"}, strs(calc.AccountValue(splits)))
	assert.Equal(t, []string{"-50", "-50"}, strs(calc.AccountProfit(splits)))
	assert.Equal(t, []string{"5", "5"}, strs(calc.AccountQty(splits)[1]))
}

func TestCalculator_CashFlowNetsSameDay(t *testing.T) {
	calc := NewCalculator(0, 0, nil)
	splits := []domain.Split{
		{ID: 1, Date: 0, Amount: domain.MustCurrency("5")},
		{ID: 2, Date: 0, Amount: domain.MustCurrency("2.5")},
		{ID: 3, Date: 0, Amount: domain.MustCurrency("-1")},
		{ID: 4, Date: 0, Amount: domain.MustCurrency("0")},
	}

	inflow, outflow := calc.CashFlow(splits, false)
	assert.Equal(t, []string{"7.5"}, strs(inflow))
	assert.Equal(t, []string{"-1"}, strs(outflow))
}

func TestLinkedAssets(t *testing.T) {
	splits := []domain.Split{
		linked(1, 9, 0, "0", "1"),
		{ID: 2},
		linked(3, 4, 0, "0", "1"),
		linked(4, 9, 0, "0", "1"),
	}

	assert.Equal(t, []int64{4, 9}, LinkedAssets(splits))
	assert.Empty(t, LinkedAssets(nil))
}

func TestCheckRange(t *testing.T) {
	assert.NoError(t, CheckRange(3, 3))
	assert.ErrorIs(t, CheckRange(3, 2), domain.ErrInvalidRange)
}
