// Package ledger holds the write use cases that change what the valuation
// engine reads: accounts, assets, transactions and prices.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/wattsup/nummus/internal/domain"
)

// Recomputer refreshes the adjusted quantities of one asset inside the
// caller's transaction. Implemented by adjuster.Service.
type Recomputer interface {
	RecomputeWithin(ctx context.Context, assetID int64) error
}

// SplitInput is one line of a transaction being recorded
type SplitInput struct {
	Amount   domain.Currency
	Memo     string
	AssetID  *int64           // Optional: links the split to an asset
	Quantity *domain.Quantity // Required with AssetID, shares as recorded
}

// RecordTransactionInput represents the input for recording a transaction
type RecordTransactionInput struct {
	AccountID int64
	Date      domain.Ordinal
	Amount    domain.Currency
	Payee     string
	Splits    []SplitInput
}

// Service handles ledger write operations
type Service struct {
	Transactor      domain.Transactor
	AccountRepo     domain.AccountRepository
	AssetRepo       domain.AssetRepository
	TransactionRepo domain.TransactionRepository
	ValuationRepo   domain.ValuationRepository
	Adjuster        Recomputer
	Cache           domain.SeriesCache // optional

	log zerolog.Logger
}

// NewService creates a new ledger Service instance
func NewService(
	transactor domain.Transactor,
	accountRepo domain.AccountRepository,
	assetRepo domain.AssetRepository,
	transactionRepo domain.TransactionRepository,
	valuationRepo domain.ValuationRepository,
	adjuster Recomputer,
	cache domain.SeriesCache,
	log zerolog.Logger,
) *Service {
	return &Service{
		Transactor:      transactor,
		AccountRepo:     accountRepo,
		AssetRepo:       assetRepo,
		TransactionRepo: transactionRepo,
		ValuationRepo:   valuationRepo,
		Adjuster:        adjuster,
		Cache:           cache,
		log:             log.With().Str("service", "ledger").Logger(),
	}
}

// CreateAccount validates and stores a new account
func (s *Service) CreateAccount(ctx context.Context, account domain.Account) (*domain.Account, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}
	if err := s.AccountRepo.Create(ctx, &account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.log.Info().Int64("account_id", account.ID).Str("name", account.Name).Msg("Created account")
	s.invalidate(ctx)
	return &account, nil
}

// CreateAsset validates and stores a new asset
func (s *Service) CreateAsset(ctx context.Context, asset domain.Asset) (*domain.Asset, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}
	if err := s.AssetRepo.Create(ctx, &asset); err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}

	s.log.Info().Int64("asset_id", asset.ID).Str("name", asset.Name).Msg("Created asset")
	s.invalidate(ctx)
	return &asset, nil
}

// RecordTransaction stores a transaction and brings the adjusted quantities
// of every asset it touches up to date.
// Logic:
//  1. Build the transaction, copying account and date onto every split
//  2. Validate (split amounts must sum to the transaction amount exactly)
//  3. In one store transaction: verify the account, persist, recompute each
//     linked asset
//  4. Invalidate cached series
func (s *Service) RecordTransaction(ctx context.Context, input RecordTransactionInput) (*domain.Transaction, error) {
	tx := &domain.Transaction{
		AccountID: input.AccountID,
		Date:      input.Date,
		Amount:    input.Amount,
		Payee:     input.Payee,
		Splits:    make([]domain.Split, len(input.Splits)),
	}
	for i, in := range input.Splits {
		tx.Splits[i] = domain.Split{
			Amount:             in.Amount,
			Memo:               in.Memo,
			AssetID:            in.AssetID,
			UnadjustedQuantity: in.Quantity,
		}
		if in.Quantity != nil {
			tx.Splits[i].AdjustedQuantity = *in.Quantity
		}
	}
	tx.AttachSplits()

	if err := tx.Validate(); err != nil {
		return nil, err
	}

	err := s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.AccountRepo.GetByID(ctx, tx.AccountID); err != nil {
			return err
		}

		if err := s.TransactionRepo.Create(ctx, tx); err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}

		// Ascending order keeps asset locks deadlock-free across writers
		assetIDs := tx.LinkedAssetIDs()
		slices.Sort(assetIDs)
		for _, assetID := range assetIDs {
			if err := s.Adjuster.RecomputeWithin(ctx, assetID); err != nil {
				return fmt.Errorf("failed to recompute asset %d: %w", assetID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("transaction_id", tx.ID).
		Int64("account_id", tx.AccountID).
		Str("date", tx.Date.String()).
		Str("amount", tx.Amount.String()).
		Int("splits", len(tx.Splits)).
		Msg("Recorded transaction")

	s.invalidate(ctx)
	return tx, nil
}

// DeleteTransaction removes a transaction together with its splits and
// returns what was deleted
func (s *Service) DeleteTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	var deleted *domain.Transaction
	err := s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		tx, err := s.TransactionRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.TransactionRepo.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete transaction: %w", err)
		}
		deleted = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("transaction_id", id).Msg("Deleted transaction")
	s.invalidate(ctx)
	return deleted, nil
}

// AddValuation records the end-of-day price of an asset.
// Returns ErrDuplicateValuation if the asset already has a price on date.
func (s *Service) AddValuation(ctx context.Context, assetID int64, date domain.Ordinal, value domain.Currency) (*domain.Valuation, error) {
	v := &domain.Valuation{AssetID: assetID, Date: date, Value: value}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	// Verify asset exists
	if _, err := s.AssetRepo.GetByID(ctx, assetID); err != nil {
		return nil, err
	}

	if err := s.ValuationRepo.Add(ctx, v); err != nil {
		if errors.Is(err, domain.ErrDuplicateValuation) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add valuation: %w", err)
	}

	s.log.Debug().Int64("asset_id", assetID).Str("date", date.String()).Str("value", value.String()).Msg("Added valuation")
	s.invalidate(ctx)
	return v, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to invalidate series cache")
	}
}
