package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wattsup/nummus/internal/domain"
)

const splitColumns = `id, transaction_id, account_id, date_ord, amount, memo, asset_id, unadjusted_quantity, adjusted_quantity`

// transactionRepository implements domain.TransactionRepository
type transactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) domain.TransactionRepository {
	return &transactionRepository{db: db}
}

// Create inserts the transaction header and all its splits in one database
// transaction. Split IDs are assigned in split order.
func (r *transactionRepository) Create(ctx context.Context, tx *domain.Transaction) (err error) {
	defer observe(ctx, "transactions.Create", &err)

	return r.db.WithinTransaction(ctx, func(ctx context.Context) error {
		q := r.db.txOrDb(ctx)

		insertTxQuery := `
			INSERT INTO transactions (account_id, date_ord, amount, payee)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`
		err := q.QueryRowxContext(ctx, insertTxQuery,
			tx.AccountID,
			int(tx.Date),
			tx.Amount.Decimal(),
			tx.Payee,
		).Scan(&tx.ID)
		if err != nil {
			if errorCode(err) == codeForeignKeyViolation {
				return fmt.Errorf("account %d: %w", tx.AccountID, domain.ErrNotFound)
			}
			return fmt.Errorf("failed to insert transaction: %w", err)
		}

		insertSplitQuery := `
			INSERT INTO transaction_splits
				(transaction_id, account_id, date_ord, amount, memo, asset_id, unadjusted_quantity, adjusted_quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`
		tx.AttachSplits()
		for i := range tx.Splits {
			row := newSplitRow(tx.Splits[i])
			err := q.QueryRowxContext(ctx, insertSplitQuery,
				row.TransactionID,
				row.AccountID,
				row.DateOrd,
				row.Amount,
				row.Memo,
				row.AssetID,
				row.UnadjustedQuantity,
				row.AdjustedQuantity,
			).Scan(&tx.Splits[i].ID)
			if err != nil {
				if errorCode(err) == codeForeignKeyViolation {
					return fmt.Errorf("split %d references a missing asset: %w", i, domain.ErrNotFound)
				}
				return fmt.Errorf("failed to insert transaction split: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a transaction with its splits in split order
func (r *transactionRepository) GetByID(ctx context.Context, id int64) (_ *domain.Transaction, err error) {
	defer observe(ctx, "transactions.GetByID", &err)

	q := r.db.txOrDb(ctx)

	var header transactionRow
	err = q.GetContext(ctx, &header, `SELECT id, account_id, date_ord, amount, payee FROM transactions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	var rows []splitRow
	query := `SELECT ` + splitColumns + ` FROM transaction_splits WHERE transaction_id = $1 ORDER BY id`
	if err = q.SelectContext(ctx, &rows, query, id); err != nil {
		return nil, fmt.Errorf("failed to get transaction splits: %w", err)
	}

	tx := header.toDomain()
	tx.Splits = make([]domain.Split, len(rows))
	for i, row := range rows {
		tx.Splits[i] = row.toDomain()
	}
	return &tx, nil
}

// Delete removes a transaction; its splits go with it via ON DELETE CASCADE
func (r *transactionRepository) Delete(ctx context.Context, id int64) (err error) {
	defer observe(ctx, "transactions.Delete", &err)

	result, err := r.db.txOrDb(ctx).ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListSplits returns splits matching filter ordered by date, then split ID
func (r *transactionRepository) ListSplits(ctx context.Context, filter domain.SplitFilter) (_ []domain.Split, err error) {
	defer observe(ctx, "transactions.ListSplits", &err)

	if (filter.AccountIDs != nil && len(filter.AccountIDs) == 0) ||
		(filter.AssetIDs != nil && len(filter.AssetIDs) == 0) {
		return nil, nil
	}

	query, args, err := splitQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build split query: %w", err)
	}

	q := r.db.txOrDb(ctx)
	var rows []splitRow
	if err = q.SelectContext(ctx, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list splits: %w", err)
	}

	splits := make([]domain.Split, len(rows))
	for i, row := range rows {
		splits[i] = row.toDomain()
	}
	return splits, nil
}

// splitQuery renders filter with bindvar-neutral placeholders; callers Rebind
func splitQuery(filter domain.SplitFilter) (string, []any, error) {
	var (
		where []string
		args  []any
	)
	if filter.AccountIDs != nil {
		where = append(where, "account_id IN (?)")
		args = append(args, filter.AccountIDs)
	}
	if filter.AssetIDs != nil {
		where = append(where, "asset_id IN (?)")
		args = append(args, filter.AssetIDs)
	}
	if filter.AssetLinkedOnly {
		where = append(where, "asset_id IS NOT NULL")
	}
	if filter.Until != nil {
		where = append(where, "date_ord <= ?")
		args = append(args, int(*filter.Until))
	}

	query := `SELECT ` + splitColumns + ` FROM transaction_splits`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date_ord, id`

	if len(args) == 0 {
		return query, nil, nil
	}
	return sqlx.In(query, args...)
}

// UpdateAdjustedQuantities writes every adjusted quantity in one statement.
// A missing split ID rolls back the whole update.
func (r *transactionRepository) UpdateAdjustedQuantities(ctx context.Context, adjusted map[int64]domain.Quantity) (err error) {
	defer observe(ctx, "transactions.UpdateAdjustedQuantities", &err)

	if len(adjusted) == 0 {
		return nil
	}

	ids, quantities := adjustedArrays(adjusted)

	query := `
		UPDATE transaction_splits AS s
		SET adjusted_quantity = v.quantity
		FROM unnest($1::bigint[], $2::numeric[]) AS v(id, quantity)
		WHERE s.id = v.id
		RETURNING s.id
	`

	return r.db.WithinTransaction(ctx, func(ctx context.Context) error {
		var updated []int64
		if err := r.db.txOrDb(ctx).SelectContext(ctx, &updated, query, pq.Array(ids), pq.Array(quantities)); err != nil {
			return fmt.Errorf("failed to update adjusted quantities: %w", err)
		}
		if id, ok := firstMissing(ids, updated); ok {
			return fmt.Errorf("split %d: %w", id, domain.ErrNotFound)
		}
		return nil
	})
}

// adjustedArrays flattens adjusted into parallel id and quantity arrays,
// ordered by id
func adjustedArrays(adjusted map[int64]domain.Quantity) ([]int64, []string) {
	ids := make([]int64, 0, len(adjusted))
	for id := range adjusted {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	quantities := make([]string, len(ids))
	for i, id := range ids {
		quantities[i] = adjusted[id].String()
	}
	return ids, quantities
}

// firstMissing returns the lowest id in want that is absent from got
func firstMissing(want, got []int64) (int64, bool) {
	seen := make(map[int64]struct{}, len(got))
	for _, id := range got {
		seen[id] = struct{}{}
	}
	for _, id := range want {
		if _, ok := seen[id]; !ok {
			return id, true
		}
	}
	return 0, false
}
