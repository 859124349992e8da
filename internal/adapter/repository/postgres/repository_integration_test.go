//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wattsup/nummus/internal/domain"
	"github.com/wattsup/nummus/internal/usecase/adjuster"
)

var testDB *DB

// TestMain connects to DB_CONN_STR and migrates the schema.
// Run with: go test -tags=integration ./internal/adapter/repository/postgres/...
func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr := os.Getenv("DB_CONN_STR")
	if connStr == "" {
		connStr = "host=localhost port=5432 user=postgres password=postgres dbname=nummus_test sslmode=disable"
	}

	var err error
	testDB, err = NewDB(ctx, connStr, Options{Driver: os.Getenv("DB_DRIVER")})
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	if err := testDB.Migrate(); err != nil {
		panic(fmt.Sprintf("Failed to migrate database: %v", err))
	}

	code := m.Run()
	testDB.Close()
	os.Exit(code)
}

type repos struct {
	accounts     domain.AccountRepository
	assets       domain.AssetRepository
	transactions domain.TransactionRepository
	valuations   domain.ValuationRepository
	splits       domain.CorporateSplitRepository
}

func newRepos() repos {
	return repos{
		accounts:     NewAccountRepository(testDB),
		assets:       NewAssetRepository(testDB),
		transactions: NewTransactionRepository(testDB),
		valuations:   NewValuationRepository(testDB),
		splits:       NewCorporateSplitRepository(testDB),
	}
}

func (r repos) seed(t *testing.T, ctx context.Context) (accountID, assetID int64) {
	account := &domain.Account{Name: "Brokerage"}
	require.NoError(t, r.accounts.Create(ctx, account))
	asset := &domain.Asset{Name: "BANANA", Ticker: "BNN"}
	require.NoError(t, r.assets.Create(ctx, asset))
	return account.ID, asset.ID
}

func TestTransactionRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	r := newRepos()
	accountID, assetID := r.seed(t, ctx)

	qty := domain.MustQuantity("10")
	tx := &domain.Transaction{
		AccountID: accountID,
		Date:      738000,
		Amount:    domain.MustCurrency("-1000.5"),
		Payee:     "Broker",
		Splits: []domain.Split{
			{Amount: domain.MustCurrency("-1000"), AssetID: &assetID, UnadjustedQuantity: &qty, AdjustedQuantity: qty},
			{Amount: domain.MustCurrency("-0.5"), Memo: "fee"},
		},
	}
	require.NoError(t, r.transactions.Create(ctx, tx))
	require.NotZero(t, tx.ID)
	assert.Less(t, tx.Splits[0].ID, tx.Splits[1].ID)

	got, err := r.transactions.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, got.Splits, 2)
	assert.Equal(t, "-1000.5", got.Amount.String())
	assert.Equal(t, "10", got.Splits[0].UnadjustedQuantity.String())
	assert.Nil(t, got.Splits[1].AssetID)

	splits, err := r.transactions.ListSplits(ctx, domain.SplitFilter{AssetIDs: []int64{assetID}, AssetLinkedOnly: true})
	require.NoError(t, err)
	require.Len(t, splits, 1)
	assert.Equal(t, tx.Splits[0].ID, splits[0].ID)

	none, err := r.transactions.ListSplits(ctx, domain.SplitFilter{AccountIDs: []int64{}})
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, r.transactions.UpdateAdjustedQuantities(ctx, map[int64]domain.Quantity{
		splits[0].ID: domain.MustQuantity("20"),
	}))
	got, err = r.transactions.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "20", got.Splits[0].AdjustedQuantity.String())
	assert.Equal(t, "10", got.Splits[0].UnadjustedQuantity.String())

	err = r.transactions.UpdateAdjustedQuantities(ctx, map[int64]domain.Quantity{
		splits[0].ID: domain.MustQuantity("30"),
		-1:           domain.MustQuantity("1"),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	got, err = r.transactions.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "20", got.Splits[0].AdjustedQuantity.String())

	require.NoError(t, r.transactions.Delete(ctx, tx.ID))
	_, err = r.transactions.GetByID(ctx, tx.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, r.transactions.Delete(ctx, tx.ID), domain.ErrNotFound)
}

func TestValuationRepository_Duplicate(t *testing.T) {
	ctx := context.Background()
	r := newRepos()
	_, assetID := r.seed(t, ctx)

	require.NoError(t, r.valuations.Add(ctx, &domain.Valuation{AssetID: assetID, Date: 5, Value: domain.MustCurrency("12.5")}))
	err := r.valuations.Add(ctx, &domain.Valuation{AssetID: assetID, Date: 5, Value: domain.MustCurrency("13")})
	assert.ErrorIs(t, err, domain.ErrDuplicateValuation)

	err = r.valuations.Add(ctx, &domain.Valuation{AssetID: -1, Date: 5, Value: domain.MustCurrency("13")})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	until := domain.Ordinal(4)
	list, err := r.valuations.List(ctx, []int64{assetID}, &until)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = r.valuations.List(ctx, []int64{assetID}, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "12.5", list[0].Value.String())
}

func TestCorporateSplitRepository(t *testing.T) {
	ctx := context.Background()
	r := newRepos()
	_, assetID := r.seed(t, ctx)

	for _, e := range []domain.CorporateSplit{
		{AssetID: assetID, Date: 9, Multiplier: domain.MustMultiplier("2")},
		{AssetID: assetID, Date: 3, Multiplier: domain.MustMultiplier("0.5")},
	} {
		require.NoError(t, r.splits.Add(ctx, &e))
	}

	events, err := r.splits.ListByAsset(ctx, assetID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.Ordinal(3), events[0].Date)
	assert.Equal(t, "2", events[1].Multiplier.String())
}

func TestDB_WithinTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	r := newRepos()

	var id int64
	err := testDB.WithinTransaction(ctx, func(ctx context.Context) error {
		account := &domain.Account{Name: "Rolled back"}
		if err := r.accounts.Create(ctx, account); err != nil {
			return err
		}
		id = account.ID
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	_, err = r.accounts.GetByID(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDB_SnapshotIsReadOnly(t *testing.T) {
	ctx := context.Background()
	r := newRepos()

	err := testDB.WithinSnapshot(ctx, func(ctx context.Context) error {
		return r.accounts.Create(ctx, &domain.Account{Name: "Nope"})
	})
	assert.Error(t, err)
}

func TestAssetRepository_Lock(t *testing.T) {
	ctx := context.Background()
	r := newRepos()
	_, assetID := r.seed(t, ctx)

	err := testDB.WithinTransaction(ctx, func(ctx context.Context) error {
		return r.assets.Lock(ctx, assetID)
	})
	assert.NoError(t, err)

	err = testDB.WithinTransaction(ctx, func(ctx context.Context) error {
		return r.assets.Lock(ctx, -1)
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentCorporateSplitsBothApply(t *testing.T) {
	ctx := context.Background()
	r := newRepos()
	accountID, assetID := r.seed(t, ctx)
	svc := adjuster.NewService(testDB, r.assets, r.transactions, r.splits, nil, zerolog.Nop())

	qty := domain.MustQuantity("10")
	tx := &domain.Transaction{
		AccountID: accountID,
		Date:      100,
		Amount:    domain.MustCurrency("-100"),
		Splits: []domain.Split{
			{Amount: domain.MustCurrency("-100"), AssetID: &assetID, UnadjustedQuantity: &qty, AdjustedQuantity: qty},
		},
	}
	require.NoError(t, r.transactions.Create(ctx, tx))

	multipliers := []string{"2", "3"}
	errs := make([]error, len(multipliers))
	var wg sync.WaitGroup
	for i, m := range multipliers {
		wg.Add(1)
		go func(i int, m string) {
			defer wg.Done()
			_, errs[i] = svc.ApplyCorporateSplit(ctx, assetID, domain.CorporateSplit{
				Date:       domain.Ordinal(200 + i),
				Multiplier: domain.MustMultiplier(m),
			})
		}(i, m)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	events, err := r.splits.ListByAsset(ctx, assetID)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	got, err := r.transactions.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "60", got.Splits[0].AdjustedQuantity.String())
}
