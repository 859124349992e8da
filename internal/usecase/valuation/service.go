// Package valuation computes per-day value, profit, cash flow and held
// quantity series for a single account or asset.
package valuation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wattsup/nummus/internal/domain"
)

// Series is a dense per-day currency series
type Series struct {
	Dates  []domain.Ordinal  `json:"dates" msgpack:"dates"`
	Values []domain.Currency `json:"values" msgpack:"values"`
}

// CashFlow holds the inflow and outflow series of one entity
type CashFlow struct {
	Dates   []domain.Ordinal  `json:"dates" msgpack:"dates"`
	Inflow  []domain.Currency `json:"inflow" msgpack:"inflow"`
	Outflow []domain.Currency `json:"outflow" msgpack:"outflow"`
}

// QuantitySeries holds the held quantity of every asset in an account, keyed by asset ID
type QuantitySeries struct {
	Dates      []domain.Ordinal            `json:"dates" msgpack:"dates"`
	Quantities map[int64][]domain.Quantity `json:"quantities" msgpack:"quantities"`
}

// Service answers single-entity series queries.
// Every query reads inside one store snapshot and has no side effects.
type Service struct {
	Transactor      domain.Transactor
	TransactionRepo domain.TransactionRepository
	ValuationRepo   domain.ValuationRepository

	log zerolog.Logger
}

// NewService creates a new valuation Service instance
func NewService(
	transactor domain.Transactor,
	transactionRepo domain.TransactionRepository,
	valuationRepo domain.ValuationRepository,
	log zerolog.Logger,
) *Service {
	return &Service{
		Transactor:      transactor,
		TransactionRepo: transactionRepo,
		ValuationRepo:   valuationRepo,
		log:             log.With().Str("service", "valuation").Logger(),
	}
}

// GetValue returns the entity's value on every day of [start, end].
// Accounts: cash balance plus held assets at market price.
// Assets: the hold-last price.
// Unknown entities yield an all-zero series.
func (s *Service) GetValue(ctx context.Context, entity domain.Entity, start, end domain.Ordinal) (*Series, error) {
	if err := CheckRange(start, end); err != nil {
		return nil, err
	}

	var values []domain.Currency
	err := s.Transactor.WithinSnapshot(ctx, func(ctx context.Context) error {
		switch entity.Kind {
		case domain.EntityAccount:
			splits, calc, err := s.loadAccount(ctx, entity.ID, start, end, false)
			if err != nil {
				return err
			}
			values = calc.AccountValue(splits)
		case domain.EntityAsset:
			calc, err := s.loadPrices(ctx, []int64{entity.ID}, start, end)
			if err != nil {
				return err
			}
			values = calc.AssetValue(entity.ID)
		default:
			return unknownKind(entity.Kind)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Series{Dates: SeriesDates(start, end), Values: values}, nil
}

// GetProfit returns value plus the running sum of asset-linked split amounts.
// For an account only its own splits count; for an asset every account's
// splits of that asset count.
func (s *Service) GetProfit(ctx context.Context, entity domain.Entity, start, end domain.Ordinal) (*Series, error) {
	if err := CheckRange(start, end); err != nil {
		return nil, err
	}

	var values []domain.Currency
	err := s.Transactor.WithinSnapshot(ctx, func(ctx context.Context) error {
		switch entity.Kind {
		case domain.EntityAccount:
			splits, calc, err := s.loadAccount(ctx, entity.ID, start, end, true)
			if err != nil {
				return err
			}
			values = calc.AccountProfit(splits)
		case domain.EntityAsset:
			splits, err := s.TransactionRepo.ListSplits(ctx, domain.SplitFilter{
				AssetIDs:        []int64{entity.ID},
				AssetLinkedOnly: true,
				Until:           &end,
			})
			if err != nil {
				return fmt.Errorf("failed to list splits: %w", err)
			}
			calc, err := s.loadPrices(ctx, []int64{entity.ID}, start, end)
			if err != nil {
				return err
			}
			values = calc.AssetProfit(entity.ID, splits)
		default:
			return unknownKind(entity.Kind)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Series{Dates: SeriesDates(start, end), Values: values}, nil
}

// GetCashFlow returns per-day inflow and outflow. For an account every split
// in the account counts; for an asset only splits linked to it.
func (s *Service) GetCashFlow(ctx context.Context, entity domain.Entity, start, end domain.Ordinal, integrate bool) (*CashFlow, error) {
	if err := CheckRange(start, end); err != nil {
		return nil, err
	}

	filter, err := CashFlowFilter(entity.Kind, []int64{entity.ID}, end)
	if err != nil {
		return nil, err
	}

	var splits []domain.Split
	err = s.Transactor.WithinSnapshot(ctx, func(ctx context.Context) error {
		var err error
		splits, err = s.TransactionRepo.ListSplits(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list splits: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inflow, outflow := NewCalculator(start, end, nil).CashFlow(splits, integrate)
	return &CashFlow{Dates: SeriesDates(start, end), Inflow: inflow, Outflow: outflow}, nil
}

// GetAssetQty returns the held quantity of each asset in the account
func (s *Service) GetAssetQty(ctx context.Context, accountID int64, start, end domain.Ordinal) (*QuantitySeries, error) {
	if err := CheckRange(start, end); err != nil {
		return nil, err
	}

	var splits []domain.Split
	err := s.Transactor.WithinSnapshot(ctx, func(ctx context.Context) error {
		var err error
		splits, err = s.TransactionRepo.ListSplits(ctx, domain.SplitFilter{
			AccountIDs:      []int64{accountID},
			AssetLinkedOnly: true,
			Until:           &end,
		})
		if err != nil {
			return fmt.Errorf("failed to list splits: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &QuantitySeries{
		Dates:      SeriesDates(start, end),
		Quantities: NewCalculator(start, end, nil).AccountQty(splits),
	}, nil
}

// loadAccount reads the account's splits up to end and the prices of every
// asset they touch
func (s *Service) loadAccount(ctx context.Context, accountID int64, start, end domain.Ordinal, linkedOnly bool) ([]domain.Split, *Calculator, error) {
	splits, err := s.TransactionRepo.ListSplits(ctx, domain.SplitFilter{
		AccountIDs:      []int64{accountID},
		AssetLinkedOnly: linkedOnly,
		Until:           &end,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list splits: %w", err)
	}

	assets := LinkedAssets(splits)
	calc, err := s.loadPrices(ctx, assets, start, end)
	if err != nil {
		return nil, nil, err
	}

	s.log.Debug().
		Int64("account_id", accountID).
		Int("splits", len(splits)).
		Int("assets", len(assets)).
		Msg("Loaded account events")
	return splits, calc, nil
}

func (s *Service) loadPrices(ctx context.Context, assetIDs []int64, start, end domain.Ordinal) (*Calculator, error) {
	if len(assetIDs) == 0 {
		return NewCalculator(start, end, nil), nil
	}
	valuations, err := s.ValuationRepo.List(ctx, assetIDs, &end)
	if err != nil {
		return nil, fmt.Errorf("failed to list valuations: %w", err)
	}
	return NewCalculator(start, end, valuations), nil
}

func unknownKind(kind domain.EntityKind) error {
	return fmt.Errorf("unsupported entity kind %q", kind)
}
