package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wattsup/nummus/internal/adapter/repository/memory"
	"github.com/wattsup/nummus/internal/domain"
	"github.com/wattsup/nummus/internal/usecase/valuation"
)

func ptr[T any](v T) *T { return &v }

func strs[T fmt.Stringer](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}

type fixture struct {
	store        *memory.Store
	accounts     *memory.AccountRepository
	assets       *memory.AssetRepository
	transactions *memory.TransactionRepository
	valuations   *memory.ValuationRepository

	accountIDs []int64
	assetIDs   []int64
}

// newFixture builds three accounts and two assets with overlapping activity,
// prices before and inside the test window, and a multi-split transaction.
func newFixture(t *testing.T) *fixture {
	ctx := context.Background()
	store := memory.New()
	f := &fixture{
		store:        store,
		accounts:     memory.NewAccountRepository(store),
		assets:       memory.NewAssetRepository(store),
		transactions: memory.NewTransactionRepository(store),
		valuations:   memory.NewValuationRepository(store),
	}

	for _, name := range []string{"Checking", "Brokerage", "Empty"} {
		a := &domain.Account{Name: name}
		require.NoError(t, f.accounts.Create(ctx, a))
		f.accountIDs = append(f.accountIDs, a.ID)
	}
	for _, name := range []string{"BANANA", "APPLE"} {
		a := &domain.Asset{Name: name}
		require.NoError(t, f.assets.Create(ctx, a))
		f.assetIDs = append(f.assetIDs, a.ID)
	}
	checking, brokerage := f.accountIDs[0], f.accountIDs[1]
	banana, apple := f.assetIDs[0], f.assetIDs[1]

	record := func(accountID int64, date domain.Ordinal, splits ...domain.Split) {
		total := domain.Currency{}
		for _, s := range splits {
			total = total.Add(s.Amount)
		}
		require.NoError(t, f.transactions.Create(ctx, &domain.Transaction{
			AccountID: accountID, Date: date, Amount: total, Splits: splits,
		}))
	}
	cash := func(amount string) domain.Split {
		return domain.Split{Amount: domain.MustCurrency(amount)}
	}
	lot := func(assetID int64, amount, qty string) domain.Split {
		q := domain.MustQuantity(qty)
		return domain.Split{
			Amount:             domain.MustCurrency(amount),
			AssetID:            ptr(assetID),
			UnadjustedQuantity: ptr(q),
			AdjustedQuantity:   q,
		}
	}

	record(checking, -20, cash("2500.5"))
	record(checking, 3, cash("-40.25"), cash("12"))
	record(brokerage, -5, cash("1000"))
	record(brokerage, -5, lot(banana, "-300", "3"))
	record(brokerage, 2, lot(banana, "-101.5", "1"), lot(apple, "-33.333333", "0.333333333"))
	record(brokerage, 6, lot(banana, "220", "-2"), cash("-1.25"))

	price := func(assetID int64, date domain.Ordinal, value string) {
		require.NoError(t, f.valuations.Add(ctx, &domain.Valuation{
			AssetID: assetID, Date: date, Value: domain.MustCurrency(value),
		}))
	}
	price(banana, -10, "99")
	price(banana, 1, "101.5")
	price(banana, 5, "110.123456")
	price(apple, 2, "100")
	price(apple, 8, "97.5")

	return f
}

func (f *fixture) planner(cache domain.SeriesCache) *Planner {
	return NewPlanner(f.store, f.accounts, f.assets, f.transactions, f.valuations, cache, zerolog.Nop())
}

func (f *fixture) single() *valuation.Service {
	return valuation.NewService(f.store, f.transactions, f.valuations, zerolog.Nop())
}

var windows = [][2]domain.Ordinal{{0, 0}, {-3, 10}, {4, 7}, {-30, -25}}

func TestGetValueAll_EqualsSingle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	planner, single := f.planner(nil), f.single()

	for _, w := range windows {
		for _, kind := range []domain.EntityKind{domain.EntityAccount, domain.EntityAsset} {
			set, err := planner.GetValueAll(ctx, kind, nil, w[0], w[1])
			require.NoError(t, err)

			ids := f.accountIDs
			if kind == domain.EntityAsset {
				ids = f.assetIDs
			}
			require.Len(t, set.Values, len(ids))
			for _, id := range ids {
				want, err := single.GetValue(ctx, domain.Entity{Kind: kind, ID: id}, w[0], w[1])
				require.NoError(t, err)
				assert.Equal(t, want.Dates, set.Dates)
				assert.Equal(t, strs(want.Values), strs(set.Values[id]), "%s %d over %v", kind, id, w)
			}
		}
	}
}

func TestGetProfitAll_EqualsSingle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	planner, single := f.planner(nil), f.single()

	for _, w := range windows {
		for _, kind := range []domain.EntityKind{domain.EntityAccount, domain.EntityAsset} {
			set, err := planner.GetProfitAll(ctx, kind, nil, w[0], w[1])
			require.NoError(t, err)

			for id, got := range set.Values {
				want, err := single.GetProfit(ctx, domain.Entity{Kind: kind, ID: id}, w[0], w[1])
				require.NoError(t, err)
				assert.Equal(t, strs(want.Values), strs(got), "%s %d over %v", kind, id, w)
			}
		}
	}
}

func TestGetCashFlowAll_EqualsSingle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	planner, single := f.planner(nil), f.single()

	for _, integrate := range []bool{false, true} {
		for _, kind := range []domain.EntityKind{domain.EntityAccount, domain.EntityAsset} {
			set, err := planner.GetCashFlowAll(ctx, kind, nil, -3, 10, integrate)
			require.NoError(t, err)

			for id := range set.Inflow {
				want, err := single.GetCashFlow(ctx, domain.Entity{Kind: kind, ID: id}, -3, 10, integrate)
				require.NoError(t, err)
				assert.Equal(t, strs(want.Inflow), strs(set.Inflow[id]))
				assert.Equal(t, strs(want.Outflow), strs(set.Outflow[id]))
			}
		}
	}
}

func TestGetAssetQtyAll_EqualsSingle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	planner, single := f.planner(nil), f.single()

	set, err := planner.GetAssetQtyAll(ctx, nil, -3, 10)
	require.NoError(t, err)
	require.Len(t, set.Quantities, len(f.accountIDs))

	for _, id := range f.accountIDs {
		want, err := single.GetAssetQty(ctx, id, -3, 10)
		require.NoError(t, err)
		require.Len(t, set.Quantities[id], len(want.Quantities))
		for assetID, qty := range want.Quantities {
			assert.Equal(t, strs(qty), strs(set.Quantities[id][assetID]))
		}
	}

	brokerage, banana := f.accountIDs[1], f.assetIDs[0]
	got := set.Quantities[brokerage][banana]
	assert.Equal(t, "3", got[0].String())  // day -3
	assert.Equal(t, "4", got[5].String())  // day 2
	assert.Equal(t, "2", got[13].String()) // day 10
}

func TestGetValueAll_SelectedAndUnknownIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	planner := f.planner(nil)

	set, err := planner.GetValueAll(ctx, domain.EntityAccount, []int64{f.accountIDs[0], 999}, 0, 2)
	require.NoError(t, err)
	require.Len(t, set.Values, 2)
	assert.Equal(t, []string{"2500.5", "2500.5", "2500.5"}, strs(set.Values[f.accountIDs[0]]))
	assert.Equal(t, []string{"0", "0", "0"}, strs(set.Values[999]))

	empty, err := planner.GetValueAll(ctx, domain.EntityAsset, []int64{}, 0, 2)
	require.NoError(t, err)
	assert.Empty(t, empty.Values)
	assert.Len(t, empty.Dates, 3)
}

func TestPlanner_InvalidInput(t *testing.T) {
	ctx := context.Background()
	planner := newFixture(t).planner(nil)

	_, err := planner.GetValueAll(ctx, domain.EntityAccount, nil, 2, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = planner.GetCashFlowAll(ctx, domain.EntityAsset, nil, 2, 1, false)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = planner.GetProfitAll(ctx, "BUDGET", nil, 0, 1)
	assert.Error(t, err)
}

// MockSeriesCache is a mock implementation of SeriesCache for testing
type MockSeriesCache struct {
	mock.Mock
}

func (m *MockSeriesCache) Generation(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSeriesCache) Load(ctx context.Context, generation int64, key string, dst any) (bool, error) {
	args := m.Called(ctx, generation, key, dst)
	return args.Bool(0), args.Error(1)
}

func (m *MockSeriesCache) Store(ctx context.Context, generation int64, key string, value any) error {
	args := m.Called(ctx, generation, key, value)
	return args.Error(0)
}

func (m *MockSeriesCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestPlanner_CacheMissStores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cache := new(MockSeriesCache)
	planner := f.planner(cache)

	key := "value:ASSET:*:0:1"
	cache.On("Generation", ctx).Return(int64(3), nil)
	cache.On("Load", ctx, int64(3), key, mock.AnythingOfType("*batch.SeriesSet")).Return(false, nil)
	cache.On("Store", ctx, int64(3), key, mock.MatchedBy(func(set *SeriesSet) bool {
		return len(set.Values) == 2
	})).Return(nil)

	set, err := planner.GetValueAll(ctx, domain.EntityAsset, nil, 0, 1)

	require.NoError(t, err)
	assert.Len(t, set.Values, 2)
	cache.AssertExpectations(t)
}

func TestPlanner_CacheHitSkipsStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cache := new(MockSeriesCache)
	planner := f.planner(cache)

	cache.On("Generation", ctx).Return(int64(0), nil)
	cache.On("Load", ctx, int64(0), "profit:ACCOUNT:7:0:0", mock.Anything).Return(true, nil).Run(func(args mock.Arguments) {
		dst := args.Get(3).(*SeriesSet)
		dst.Dates = []domain.Ordinal{0}
		dst.Values = map[int64][]domain.Currency{7: {domain.CurrencyFromInt(42)}}
	})

	set, err := planner.GetProfitAll(ctx, domain.EntityAccount, []int64{7}, 0, 0)

	require.NoError(t, err)
	assert.Equal(t, "42", set.Values[7][0].String())
	cache.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPlanner_CacheErrorsFallThrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cache := new(MockSeriesCache)
	planner := f.planner(cache)

	cache.On("Generation", ctx).Return(int64(1), nil)
	cache.On("Load", ctx, int64(1), mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
	cache.On("Store", ctx, int64(1), mock.Anything, mock.Anything).Return(errors.New("redis down"))

	set, err := planner.GetAssetQtyAll(ctx, []int64{f.accountIDs[1]}, 0, 0)

	require.NoError(t, err)
	assert.Len(t, set.Quantities, 1)
}

func TestPlanner_GenerationErrorBypassesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cache := new(MockSeriesCache)
	planner := f.planner(cache)

	cache.On("Generation", ctx).Return(int64(0), errors.New("redis down"))

	set, err := planner.GetCashFlowAll(ctx, domain.EntityAccount, nil, 0, 0, false)

	require.NoError(t, err)
	assert.Len(t, set.Inflow, 3)
	cache.AssertNotCalled(t, "Load", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	cache.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// generationCache is an in-process SeriesCache with the same generation
// semantics as the redis one
type generationCache struct {
	mu      sync.Mutex
	gen     int64
	entries map[string][]byte
}

func newGenerationCache() *generationCache {
	return &generationCache{entries: map[string][]byte{}}
}

func (c *generationCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *generationCache) Load(_ context.Context, gen int64, key string, dst any) (bool, error) {
	c.mu.Lock()
	raw, ok := c.entries[fmt.Sprintf("%d:%s", gen, key)]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, msgpack.Unmarshal(raw, dst)
}

func (c *generationCache) Store(_ context.Context, gen int64, key string, value any) error {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fmt.Sprintf("%d:%s", gen, key)] = raw
	return nil
}

func (c *generationCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return nil
}

// interleavingTransactor runs afterSnapshot once, right after the next
// snapshot closes and before the planner stores its result
type interleavingTransactor struct {
	domain.Transactor
	afterSnapshot func(ctx context.Context)
}

func (it *interleavingTransactor) WithinSnapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	err := it.Transactor.WithinSnapshot(ctx, fn)
	if hook := it.afterSnapshot; hook != nil {
		it.afterSnapshot = nil
		hook(ctx)
	}
	return err
}

func TestPlanner_WriteDuringComputeIsNotServedStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cache := newGenerationCache()
	checking := f.accountIDs[0]

	tx := &interleavingTransactor{Transactor: f.store}
	tx.afterSnapshot = func(ctx context.Context) {
		require.NoError(t, f.transactions.Create(ctx, &domain.Transaction{
			AccountID: checking,
			Date:      1,
			Amount:    domain.MustCurrency("500"),
			Splits:    []domain.Split{{Amount: domain.MustCurrency("500")}},
		}))
		require.NoError(t, cache.Invalidate(ctx))
	}
	planner := NewPlanner(tx, f.accounts, f.assets, f.transactions, f.valuations, cache, zerolog.Nop())

	before, err := planner.GetValueAll(ctx, domain.EntityAccount, []int64{checking}, 0, 2)
	require.NoError(t, err)

	after, err := planner.GetValueAll(ctx, domain.EntityAccount, []int64{checking}, 0, 2)
	require.NoError(t, err)

	single, err := f.single().GetValue(ctx, domain.Entity{Kind: domain.EntityAccount, ID: checking}, 0, 2)
	require.NoError(t, err)

	assert.NotEqual(t, strs(before.Values[checking]), strs(after.Values[checking]))
	assert.Equal(t, strs(single.Values), strs(after.Values[checking]))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "value:ACCOUNT:*:1:2", cacheKey("value", domain.EntityAccount, nil, 1, 2))
	assert.Equal(t, "qty:ACCOUNT:3,1:-1:2", cacheKey("qty", domain.EntityAccount, []int64{3, 1}, -1, 2))
	assert.Equal(t, "value:ASSET::0:0", cacheKey("value", domain.EntityAsset, []int64{}, 0, 0))
}
