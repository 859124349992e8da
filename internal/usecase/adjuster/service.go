// Package adjuster keeps split-adjusted share quantities in line with an
// asset's corporate split history.
package adjuster

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wattsup/nummus/internal/domain"
)

// Service handles quantity adjustment operations.
// It is the only writer of Split.AdjustedQuantity.
type Service struct {
	Transactor         domain.Transactor
	AssetRepo          domain.AssetRepository
	TransactionRepo    domain.TransactionRepository
	CorporateSplitRepo domain.CorporateSplitRepository
	Cache              domain.SeriesCache // optional

	log zerolog.Logger
}

// NewService creates a new adjuster Service instance
func NewService(
	transactor domain.Transactor,
	assetRepo domain.AssetRepository,
	transactionRepo domain.TransactionRepository,
	corporateSplitRepo domain.CorporateSplitRepository,
	cache domain.SeriesCache,
	log zerolog.Logger,
) *Service {
	return &Service{
		Transactor:         transactor,
		AssetRepo:          assetRepo,
		TransactionRepo:    transactionRepo,
		CorporateSplitRepo: corporateSplitRepo,
		Cache:              cache,
		log:                log.With().Str("service", "adjuster").Logger(),
	}
}

// Recompute rewrites the adjusted quantity of every split linked to assetID.
// All rows for the asset are written in one store transaction, so readers see
// either the previous quantities or the new ones, never a mix.
// Cached series are invalidated after the commit.
func (s *Service) Recompute(ctx context.Context, assetID int64) error {
	if err := s.RecomputeWithin(ctx, assetID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// RecomputeWithin is Recompute for callers that own the store transaction.
// It joins the caller's transaction and leaves cache invalidation to the
// caller, which must invalidate once its transaction has committed.
func (s *Service) RecomputeWithin(ctx context.Context, assetID int64) error {
	return s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.recompute(ctx, assetID)
	})
}

// RecomputeAll runs Recompute for every asset, one transaction per asset.
// It stops at the first failure.
func (s *Service) RecomputeAll(ctx context.Context) error {
	ids, err := s.AssetRepo.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}

	for _, id := range ids {
		if err := s.Recompute(ctx, id); err != nil {
			return err
		}
	}

	s.log.Info().Int("assets", len(ids)).Msg("Recomputed adjusted quantities")
	return nil
}

// ApplyCorporateSplit persists a new split event for the asset and recomputes
// the asset's adjusted quantities in the same store transaction.
func (s *Service) ApplyCorporateSplit(ctx context.Context, assetID int64, event domain.CorporateSplit) (*domain.CorporateSplit, error) {
	event.AssetID = assetID
	if err := event.Validate(); err != nil {
		return nil, err
	}

	err := s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.AssetRepo.Lock(ctx, assetID); err != nil {
			return err
		}

		if err := s.CorporateSplitRepo.Add(ctx, &event); err != nil {
			return fmt.Errorf("failed to add corporate split: %w", err)
		}

		return s.recompute(ctx, assetID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("asset_id", assetID).
		Str("date", event.Date.String()).
		Str("multiplier", event.Multiplier.String()).
		Msg("Applied corporate split")

	s.invalidate(ctx)
	return &event, nil
}

// recompute must run inside a store transaction. The asset lock serializes
// concurrent recomputes so each one reads the full committed event set.
func (s *Service) recompute(ctx context.Context, assetID int64) error {
	if err := s.AssetRepo.Lock(ctx, assetID); err != nil {
		return fmt.Errorf("failed to lock asset %d: %w", assetID, err)
	}

	events, err := s.CorporateSplitRepo.ListByAsset(ctx, assetID)
	if err != nil {
		return fmt.Errorf("failed to list corporate splits for asset %d: %w", assetID, err)
	}

	splits, err := s.TransactionRepo.ListSplits(ctx, domain.SplitFilter{
		AssetIDs:        []int64{assetID},
		AssetLinkedOnly: true,
	})
	if err != nil {
		return fmt.Errorf("failed to list splits for asset %d: %w", assetID, err)
	}

	adjusted, err := Adjust(splits, events)
	if err != nil {
		return err
	}

	if len(adjusted) == 0 {
		return nil
	}

	if err := s.TransactionRepo.UpdateAdjustedQuantities(ctx, adjusted); err != nil {
		return fmt.Errorf("failed to update adjusted quantities for asset %d: %w", assetID, err)
	}

	s.log.Debug().
		Int64("asset_id", assetID).
		Int("splits", len(adjusted)).
		Int("events", len(events)).
		Msg("Recomputed asset")
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to invalidate series cache")
	}
}
