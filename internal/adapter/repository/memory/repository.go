package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/wattsup/nummus/internal/domain"
)

// AccountRepository implements domain.AccountRepository
type AccountRepository struct {
	store *Store
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(store *Store) *AccountRepository {
	return &AccountRepository{store: store}
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	var account domain.Account
	err := r.store.read(ctx, func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	return r.store.write(ctx, func(st *state) error {
		account.ID = st.next(tableAccounts)
		st.accounts[account.ID] = *account
		return nil
	})
}

func (r *AccountRepository) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.store.read(ctx, func(st *state) error {
		ids = sortedKeys(st.accounts)
		return nil
	})
	return ids, err
}

// AssetRepository implements domain.AssetRepository
type AssetRepository struct {
	store *Store
}

// NewAssetRepository creates a new AssetRepository
func NewAssetRepository(store *Store) *AssetRepository {
	return &AssetRepository{store: store}
}

func (r *AssetRepository) GetByID(ctx context.Context, id int64) (*domain.Asset, error) {
	var asset domain.Asset
	err := r.store.read(ctx, func(st *state) error {
		a, ok := st.assets[id]
		if !ok {
			return fmt.Errorf("asset %d: %w", id, domain.ErrNotFound)
		}
		asset = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *AssetRepository) Create(ctx context.Context, asset *domain.Asset) error {
	return r.store.write(ctx, func(st *state) error {
		asset.ID = st.next(tableAssets)
		st.assets[asset.ID] = *asset
		return nil
	})
}

// Lock checks the asset exists. Writers are already serialized by the store.
func (r *AssetRepository) Lock(ctx context.Context, id int64) error {
	return r.store.read(ctx, func(st *state) error {
		if _, ok := st.assets[id]; !ok {
			return fmt.Errorf("asset %d: %w", id, domain.ErrNotFound)
		}
		return nil
	})
}

func (r *AssetRepository) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.store.read(ctx, func(st *state) error {
		ids = sortedKeys(st.assets)
		return nil
	})
	return ids, err
}

// TransactionRepository implements domain.TransactionRepository
type TransactionRepository struct {
	store *Store
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(store *Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

// Create stores the transaction and its splits, assigning IDs in split order
func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	return r.store.write(ctx, func(st *state) error {
		if _, ok := st.accounts[tx.AccountID]; !ok {
			return fmt.Errorf("account %d: %w", tx.AccountID, domain.ErrNotFound)
		}
		for _, split := range tx.Splits {
			if split.AssetID == nil {
				continue
			}
			if _, ok := st.assets[*split.AssetID]; !ok {
				return fmt.Errorf("asset %d: %w", *split.AssetID, domain.ErrNotFound)
			}
		}

		tx.ID = st.next(tableTransactions)
		tx.AttachSplits()

		ids := make([]int64, len(tx.Splits))
		for i := range tx.Splits {
			tx.Splits[i].ID = st.next(tableSplits)
			ids[i] = tx.Splits[i].ID
			st.splits[tx.Splits[i].ID] = detach(tx.Splits[i])
		}

		header := *tx
		header.Splits = nil
		st.transactions[tx.ID] = header
		st.txSplits[tx.ID] = ids
		return nil
	})
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.store.read(ctx, func(st *state) error {
		header, ok := st.transactions[id]
		if !ok {
			return fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
		}
		tx = header
		tx.Splits = make([]domain.Split, 0, len(st.txSplits[id]))
		for _, splitID := range st.txSplits[id] {
			tx.Splits = append(tx.Splits, detach(st.splits[splitID]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) Delete(ctx context.Context, id int64) error {
	return r.store.write(ctx, func(st *state) error {
		if _, ok := st.transactions[id]; !ok {
			return fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
		}
		for _, splitID := range st.txSplits[id] {
			delete(st.splits, splitID)
		}
		delete(st.txSplits, id)
		delete(st.transactions, id)
		return nil
	})
}

func (r *TransactionRepository) ListSplits(ctx context.Context, filter domain.SplitFilter) ([]domain.Split, error) {
	splits := make([]domain.Split, 0)
	match := newSplitMatcher(filter)
	err := r.store.read(ctx, func(st *state) error {
		for _, split := range st.splits {
			if match(split) {
				splits = append(splits, detach(split))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(splits, func(a, b domain.Split) int {
		return cmp.Or(cmp.Compare(a.Date, b.Date), cmp.Compare(a.ID, b.ID))
	})
	return splits, nil
}

// UpdateAdjustedQuantities fails without writing anything if any split ID is unknown
func (r *TransactionRepository) UpdateAdjustedQuantities(ctx context.Context, adjusted map[int64]domain.Quantity) error {
	return r.store.write(ctx, func(st *state) error {
		for id := range adjusted {
			if _, ok := st.splits[id]; !ok {
				return fmt.Errorf("split %d: %w", id, domain.ErrNotFound)
			}
		}
		for id, q := range adjusted {
			split := st.splits[id]
			split.AdjustedQuantity = q
			st.splits[id] = split
		}
		return nil
	})
}

// ValuationRepository implements domain.ValuationRepository
type ValuationRepository struct {
	store *Store
}

// NewValuationRepository creates a new ValuationRepository
func NewValuationRepository(store *Store) *ValuationRepository {
	return &ValuationRepository{store: store}
}

func (r *ValuationRepository) Add(ctx context.Context, valuation *domain.Valuation) error {
	return r.store.write(ctx, func(st *state) error {
		if _, ok := st.assets[valuation.AssetID]; !ok {
			return fmt.Errorf("asset %d: %w", valuation.AssetID, domain.ErrNotFound)
		}
		key := valuationKey{assetID: valuation.AssetID, date: valuation.Date}
		if _, exists := st.valuationIndex[key]; exists {
			return fmt.Errorf("asset %d on %s: %w", valuation.AssetID, valuation.Date, domain.ErrDuplicateValuation)
		}
		valuation.ID = st.next(tableValuations)
		st.valuations[valuation.ID] = *valuation
		st.valuationIndex[key] = valuation.ID
		return nil
	})
}

func (r *ValuationRepository) List(ctx context.Context, assetIDs []int64, until *domain.Ordinal) ([]domain.Valuation, error) {
	valuations := make([]domain.Valuation, 0)
	assets := newIDSet(assetIDs)
	err := r.store.read(ctx, func(st *state) error {
		for _, v := range st.valuations {
			if !assets.has(v.AssetID) {
				continue
			}
			if until != nil && v.Date > *until {
				continue
			}
			valuations = append(valuations, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(valuations, func(a, b domain.Valuation) int {
		return cmp.Or(cmp.Compare(a.AssetID, b.AssetID), cmp.Compare(a.Date, b.Date))
	})
	return valuations, nil
}

// CorporateSplitRepository implements domain.CorporateSplitRepository
type CorporateSplitRepository struct {
	store *Store
}

// NewCorporateSplitRepository creates a new CorporateSplitRepository
func NewCorporateSplitRepository(store *Store) *CorporateSplitRepository {
	return &CorporateSplitRepository{store: store}
}

func (r *CorporateSplitRepository) Add(ctx context.Context, split *domain.CorporateSplit) error {
	return r.store.write(ctx, func(st *state) error {
		if _, ok := st.assets[split.AssetID]; !ok {
			return fmt.Errorf("asset %d: %w", split.AssetID, domain.ErrNotFound)
		}
		split.ID = st.next(tableCorporateSplits)
		st.corporateSplits[split.ID] = *split
		return nil
	})
}

func (r *CorporateSplitRepository) ListByAsset(ctx context.Context, assetID int64) ([]domain.CorporateSplit, error) {
	events := make([]domain.CorporateSplit, 0)
	err := r.store.read(ctx, func(st *state) error {
		for _, e := range st.corporateSplits {
			if e.AssetID == assetID {
				events = append(events, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(events, func(a, b domain.CorporateSplit) int {
		return cmp.Or(cmp.Compare(a.Date, b.Date), cmp.Compare(a.ID, b.ID))
	})
	return events, nil
}

// idSet is nil for "any id"; an empty non-nil set matches nothing
type idSet map[int64]struct{}

func newIDSet(ids []int64) idSet {
	if ids == nil {
		return nil
	}
	set := make(idSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s idSet) has(id int64) bool {
	if s == nil {
		return true
	}
	_, ok := s[id]
	return ok
}

// newSplitMatcher builds the id sets of f once per query
func newSplitMatcher(f domain.SplitFilter) func(domain.Split) bool {
	accounts := newIDSet(f.AccountIDs)
	assets := newIDSet(f.AssetIDs)
	return func(split domain.Split) bool {
		if !accounts.has(split.AccountID) {
			return false
		}
		if (f.AssetLinkedOnly || assets != nil) && split.AssetID == nil {
			return false
		}
		if assets != nil && !assets.has(*split.AssetID) {
			return false
		}
		if f.Until != nil && split.Date > *f.Until {
			return false
		}
		return true
	}
}

// detach copies the pointer fields so callers cannot reach stored state
func detach(split domain.Split) domain.Split {
	if split.AssetID != nil {
		id := *split.AssetID
		split.AssetID = &id
	}
	if split.UnadjustedQuantity != nil {
		q := *split.UnadjustedQuantity
		split.UnadjustedQuantity = &q
	}
	return split
}

func sortedKeys[V any](m map[int64]V) []int64 {
	return slices.Sorted(maps.Keys(m))
}
