package domain

import (
	"context"
)

// AccountRepository defines the interface for account persistence operations
type AccountRepository interface {
	// GetByID retrieves an account by its ID, ErrNotFound if missing
	GetByID(ctx context.Context, id int64) (*Account, error)

	// Create creates a new account and assigns its ID
	Create(ctx context.Context, account *Account) error

	// ListIDs returns every account ID in ascending order
	ListIDs(ctx context.Context) ([]int64, error)
}

// AssetRepository defines the interface for asset persistence operations
type AssetRepository interface {
	GetByID(ctx context.Context, id int64) (*Asset, error)
	Create(ctx context.Context, asset *Asset) error
	ListIDs(ctx context.Context) ([]int64, error)

	// Lock holds an exclusive lock on the asset until the enclosing
	// transaction ends. Returns ErrNotFound if the asset does not exist.
	Lock(ctx context.Context, id int64) error
}

// SplitFilter narrows ListSplits.
// A nil id slice means "any"; an empty non-nil slice matches nothing.
type SplitFilter struct {
	AccountIDs      []int64
	AssetIDs        []int64
	AssetLinkedOnly bool
	Until           *Ordinal // Inclusive upper date bound
}

// TransactionRepository defines the interface for transaction persistence operations
type TransactionRepository interface {
	// Create creates a transaction with all its splits and assigns IDs
	Create(ctx context.Context, tx *Transaction) error

	// GetByID retrieves a transaction with its splits in split order
	GetByID(ctx context.Context, id int64) (*Transaction, error)

	// Delete removes a transaction and cascades to its splits
	Delete(ctx context.Context, id int64) error

	// ListSplits returns splits ordered by date, then split ID
	ListSplits(ctx context.Context, filter SplitFilter) ([]Split, error)

	// UpdateAdjustedQuantities sets AdjustedQuantity for every split ID in the map.
	// Either all rows are updated or none are.
	UpdateAdjustedQuantities(ctx context.Context, adjusted map[int64]Quantity) error
}

// ValuationRepository defines the interface for asset price persistence operations
type ValuationRepository interface {
	// Add creates a valuation, ErrDuplicateValuation if (asset, date) exists
	Add(ctx context.Context, valuation *Valuation) error

	// List returns valuations for the given assets (nil = all) dated at or
	// before until (nil = no bound), ordered by asset then date
	List(ctx context.Context, assetIDs []int64, until *Ordinal) ([]Valuation, error)
}

// CorporateSplitRepository defines the interface for split event persistence operations
type CorporateSplitRepository interface {
	Add(ctx context.Context, split *CorporateSplit) error

	// ListByAsset returns the asset's split events ordered by date then ID
	ListByAsset(ctx context.Context, assetID int64) ([]CorporateSplit, error)
}

// Transactor runs units of work against a consistent view of the ledger store.
// Both methods are reentrant: nested calls join the outer unit of work.
type Transactor interface {
	// WithinTransaction commits when fn returns nil and rolls back otherwise
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// WithinSnapshot runs fn against a read-only point-in-time snapshot
	WithinSnapshot(ctx context.Context, fn func(ctx context.Context) error) error
}

// SeriesCache stores computed series between requests.
//
// Entries live under a generation. Callers read Generation before computing
// and pass it to Load and Store, so a result computed from data older than
// the latest Invalidate is filed under a generation nobody reads any more.
type SeriesCache interface {
	Generation(ctx context.Context) (int64, error)
	Load(ctx context.Context, generation int64, key string, dst any) (bool, error)
	Store(ctx context.Context, generation int64, key string, value any) error
	Invalidate(ctx context.Context) error
}
