package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wattsup/nummus/internal/domain"
)

// accountRepository implements domain.AccountRepository
type accountRepository struct {
	db *DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) domain.AccountRepository {
	return &accountRepository{db: db}
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id int64) (_ *domain.Account, err error) {
	defer observe(ctx, "accounts.GetByID", &err)

	query := `SELECT id, name, institution, closed FROM accounts WHERE id = $1`

	var row accountRow
	if err = r.db.txOrDb(ctx).GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account := row.toDomain()
	return &account, nil
}

// Create inserts an account and assigns its ID
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) (err error) {
	defer observe(ctx, "accounts.Create", &err)

	query := `
		INSERT INTO accounts (name, institution, closed)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err = r.db.txOrDb(ctx).QueryRowxContext(ctx, query,
		account.Name,
		account.Institution,
		account.Closed,
	).Scan(&account.ID)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// ListIDs returns every account ID in ascending order
func (r *accountRepository) ListIDs(ctx context.Context) (ids []int64, err error) {
	defer observe(ctx, "accounts.ListIDs", &err)

	if err = r.db.txOrDb(ctx).SelectContext(ctx, &ids, `SELECT id FROM accounts ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list account ids: %w", err)
	}
	return ids, nil
}

// assetRepository implements domain.AssetRepository
type assetRepository struct {
	db *DB
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *DB) domain.AssetRepository {
	return &assetRepository{db: db}
}

// GetByID retrieves an asset by its ID
func (r *assetRepository) GetByID(ctx context.Context, id int64) (_ *domain.Asset, err error) {
	defer observe(ctx, "assets.GetByID", &err)

	query := `SELECT id, name, ticker, category FROM assets WHERE id = $1`

	var row assetRow
	if err = r.db.txOrDb(ctx).GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("asset %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	asset := row.toDomain()
	return &asset, nil
}

// Create inserts an asset and assigns its ID
func (r *assetRepository) Create(ctx context.Context, asset *domain.Asset) (err error) {
	defer observe(ctx, "assets.Create", &err)

	query := `
		INSERT INTO assets (name, ticker, category)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err = r.db.txOrDb(ctx).QueryRowxContext(ctx, query,
		asset.Name,
		asset.Ticker,
		asset.Category,
	).Scan(&asset.ID)
	if err != nil {
		return fmt.Errorf("failed to insert asset: %w", err)
	}
	return nil
}

// ListIDs returns every asset ID in ascending order
func (r *assetRepository) ListIDs(ctx context.Context) (ids []int64, err error) {
	defer observe(ctx, "assets.ListIDs", &err)

	if err = r.db.txOrDb(ctx).SelectContext(ctx, &ids, `SELECT id FROM assets ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list asset ids: %w", err)
	}
	return ids, nil
}

// Lock takes a row lock on the asset for the rest of the transaction.
// NO KEY UPDATE leaves the key-share locks taken by inserts that reference
// the asset compatible with it.
func (r *assetRepository) Lock(ctx context.Context, id int64) (err error) {
	defer observe(ctx, "assets.Lock", &err)

	var locked int64
	err = r.db.txOrDb(ctx).GetContext(ctx, &locked, `SELECT id FROM assets WHERE id = $1 FOR NO KEY UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("asset %d: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to lock asset: %w", err)
	}
	return nil
}
