package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/wattsup/nummus/internal/domain"
)

// valuationRepository implements domain.ValuationRepository
type valuationRepository struct {
	db *DB
}

// NewValuationRepository creates a new valuation repository
func NewValuationRepository(db *DB) domain.ValuationRepository {
	return &valuationRepository{db: db}
}

// Add creates a new valuation entry
func (r *valuationRepository) Add(ctx context.Context, v *domain.Valuation) (err error) {
	defer observe(ctx, "valuations.Add", &err)

	query := `
		INSERT INTO asset_valuations (asset_id, date_ord, value)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err = r.db.txOrDb(ctx).QueryRowxContext(ctx, query,
		v.AssetID,
		int(v.Date),
		v.Value.Decimal(),
	).Scan(&v.ID)
	if err != nil {
		switch errorCode(err) {
		case codeUniqueViolation:
			return fmt.Errorf("asset %d on %s: %w", v.AssetID, v.Date, domain.ErrDuplicateValuation)
		case codeForeignKeyViolation:
			return fmt.Errorf("asset %d: %w", v.AssetID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to insert valuation: %w", err)
	}
	return nil
}

// List returns valuations ordered by asset then date
func (r *valuationRepository) List(ctx context.Context, assetIDs []int64, until *domain.Ordinal) (_ []domain.Valuation, err error) {
	defer observe(ctx, "valuations.List", &err)

	if assetIDs != nil && len(assetIDs) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	if assetIDs != nil {
		where = append(where, "asset_id IN (?)")
		args = append(args, assetIDs)
	}
	if until != nil {
		where = append(where, "date_ord <= ?")
		args = append(args, int(*until))
	}

	query := `SELECT id, asset_id, date_ord, value FROM asset_valuations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY asset_id, date_ord`

	if len(args) > 0 {
		if query, args, err = sqlx.In(query, args...); err != nil {
			return nil, fmt.Errorf("failed to build valuation query: %w", err)
		}
	}

	q := r.db.txOrDb(ctx)
	var rows []valuationRow
	if err = q.SelectContext(ctx, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list valuations: %w", err)
	}

	valuations := make([]domain.Valuation, len(rows))
	for i, row := range rows {
		valuations[i] = row.toDomain()
	}
	return valuations, nil
}

// corporateSplitRepository implements domain.CorporateSplitRepository
type corporateSplitRepository struct {
	db *DB
}

// NewCorporateSplitRepository creates a new corporate split repository
func NewCorporateSplitRepository(db *DB) domain.CorporateSplitRepository {
	return &corporateSplitRepository{db: db}
}

// Add records a split event for an asset
func (r *corporateSplitRepository) Add(ctx context.Context, s *domain.CorporateSplit) (err error) {
	defer observe(ctx, "corporate_splits.Add", &err)

	query := `
		INSERT INTO asset_splits (asset_id, date_ord, multiplier)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err = r.db.txOrDb(ctx).QueryRowxContext(ctx, query,
		s.AssetID,
		int(s.Date),
		s.Multiplier.Decimal(),
	).Scan(&s.ID)
	if err != nil {
		if errorCode(err) == codeForeignKeyViolation {
			return fmt.Errorf("asset %d: %w", s.AssetID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to insert corporate split: %w", err)
	}
	return nil
}

// ListByAsset returns the asset's split events ordered by date then ID
func (r *corporateSplitRepository) ListByAsset(ctx context.Context, assetID int64) (_ []domain.CorporateSplit, err error) {
	defer observe(ctx, "corporate_splits.ListByAsset", &err)

	query := `
		SELECT id, asset_id, date_ord, multiplier
		FROM asset_splits
		WHERE asset_id = $1
		ORDER BY date_ord, id
	`

	var rows []corporateSplitRow
	if err = r.db.txOrDb(ctx).SelectContext(ctx, &rows, query, assetID); err != nil {
		return nil, fmt.Errorf("failed to list corporate splits: %w", err)
	}

	events := make([]domain.CorporateSplit, len(rows))
	for i, row := range rows {
		if events[i], err = row.toDomain(); err != nil {
			return nil, fmt.Errorf("corporate split %d: %w", row.ID, err)
		}
	}
	return events, nil
}
