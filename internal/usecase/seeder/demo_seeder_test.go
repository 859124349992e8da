package seeder

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wattsup/nummus/internal/adapter/repository/memory"
	"github.com/wattsup/nummus/internal/domain"
	"github.com/wattsup/nummus/internal/usecase/adjuster"
	"github.com/wattsup/nummus/internal/usecase/ledger"
	"github.com/wattsup/nummus/internal/usecase/valuation"
)

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) ListIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func TestDemoSeeder_Seed(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()

	store := memory.New()
	accounts := memory.NewAccountRepository(store)
	assets := memory.NewAssetRepository(store)
	transactions := memory.NewTransactionRepository(store)
	valuations := memory.NewValuationRepository(store)
	adj := adjuster.NewService(store, assets, transactions, memory.NewCorporateSplitRepository(store), nil, log)
	ledgerService := ledger.NewService(store, accounts, assets, transactions, valuations, adj, nil, log)

	seeder := NewDemoSeeder(accounts, ledgerService, adj, log)
	today := domain.Ordinal(739000)

	require.NoError(t, seeder.Seed(ctx, today))

	ids, err := accounts.ListIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	brokerage := ids[1]

	qty, err := valuation.NewService(store, transactions, valuations, log).GetAssetQty(ctx, brokerage, today-51, today)
	require.NoError(t, err)
	require.Len(t, qty.Quantities, 1)
	for _, held := range qty.Quantities {
		assert.Equal(t, "0", held[0].String())
		assert.Equal(t, "20", held[1].String())  // 10 bought, adjusted for the split
		assert.Equal(t, "16", held[51].String()) // 4 sold
	}

	// Second run is a no-op
	require.NoError(t, seeder.Seed(ctx, today))
	ids, err = accounts.ListIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestDemoSeeder_ListFailure(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAccountRepository)
	repo.On("ListIDs", ctx).Return(nil, errors.New("connection refused"))

	err := NewDemoSeeder(repo, nil, nil, zerolog.Nop()).Seed(ctx, 100)

	assert.ErrorContains(t, err, "connection refused")
	repo.AssertExpectations(t)
}

func TestDemoSeeder_SkipsNonEmptyLedger(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAccountRepository)
	repo.On("ListIDs", ctx).Return([]int64{1}, nil)

	require.NoError(t, NewDemoSeeder(repo, nil, nil, zerolog.Nop()).Seed(ctx, 100))

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
