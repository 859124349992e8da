// Package batch computes the valuation series of many entities from one
// grouped read of the ledger.
package batch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wattsup/nummus/internal/domain"
	"github.com/wattsup/nummus/internal/usecase/valuation"
)

// SeriesSet holds one currency series per entity over a shared date axis
type SeriesSet struct {
	Dates  []domain.Ordinal            `json:"dates" msgpack:"dates"`
	Values map[int64][]domain.Currency `json:"values" msgpack:"values"`
}

// CashFlowSet holds inflow and outflow series per entity
type CashFlowSet struct {
	Dates   []domain.Ordinal            `json:"dates" msgpack:"dates"`
	Inflow  map[int64][]domain.Currency `json:"inflow" msgpack:"inflow"`
	Outflow map[int64][]domain.Currency `json:"outflow" msgpack:"outflow"`
}

// QuantitySet holds, per account, the held quantity series of each asset
type QuantitySet struct {
	Dates      []domain.Ordinal                      `json:"dates" msgpack:"dates"`
	Quantities map[int64]map[int64][]domain.Quantity `json:"quantities" msgpack:"quantities"`
}

// Planner answers the batch form of every valuation query.
// For any id, the batch result equals the single-entity result exactly.
type Planner struct {
	Transactor      domain.Transactor
	AccountRepo     domain.AccountRepository
	AssetRepo       domain.AssetRepository
	TransactionRepo domain.TransactionRepository
	ValuationRepo   domain.ValuationRepository
	Cache           domain.SeriesCache // optional

	log zerolog.Logger
}

// NewPlanner creates a new Planner instance. cache may be nil.
func NewPlanner(
	transactor domain.Transactor,
	accountRepo domain.AccountRepository,
	assetRepo domain.AssetRepository,
	transactionRepo domain.TransactionRepository,
	valuationRepo domain.ValuationRepository,
	cache domain.SeriesCache,
	log zerolog.Logger,
) *Planner {
	return &Planner{
		Transactor:      transactor,
		AccountRepo:     accountRepo,
		AssetRepo:       assetRepo,
		TransactionRepo: transactionRepo,
		ValuationRepo:   valuationRepo,
		Cache:           cache,
		log:             log.With().Str("service", "batch").Logger(),
	}
}

// GetValueAll returns the value series of every requested entity.
// A nil ids slice selects every entity of the kind; unknown ids get zeros.
func (p *Planner) GetValueAll(ctx context.Context, kind domain.EntityKind, ids []int64, start, end domain.Ordinal) (*SeriesSet, error) {
	if err := valuation.CheckRange(start, end); err != nil {
		return nil, err
	}

	result := &SeriesSet{}
	err := p.cached(ctx, cacheKey("value", kind, ids, start, end), result, func(ctx context.Context) error {
		ids, err := p.resolve(ctx, kind, ids)
		if err != nil {
			return err
		}

		values := make(map[int64][]domain.Currency, len(ids))
		switch kind {
		case domain.EntityAccount:
			byAccount, calc, err := p.loadAccounts(ctx, ids, start, end, false)
			if err != nil {
				return err
			}
			for _, id := range ids {
				values[id] = calc.AccountValue(byAccount[id])
			}
		case domain.EntityAsset:
			calc, err := p.loadPrices(ctx, ids, start, end)
			if err != nil {
				return err
			}
			for _, id := range ids {
				values[id] = calc.AssetValue(id)
			}
		default:
			return unknownKind(kind)
		}

		*result = SeriesSet{Dates: valuation.SeriesDates(start, end), Values: values}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetProfitAll returns the profit series of every requested entity
func (p *Planner) GetProfitAll(ctx context.Context, kind domain.EntityKind, ids []int64, start, end domain.Ordinal) (*SeriesSet, error) {
	if err := valuation.CheckRange(start, end); err != nil {
		return nil, err
	}

	result := &SeriesSet{}
	err := p.cached(ctx, cacheKey("profit", kind, ids, start, end), result, func(ctx context.Context) error {
		ids, err := p.resolve(ctx, kind, ids)
		if err != nil {
			return err
		}

		values := make(map[int64][]domain.Currency, len(ids))
		switch kind {
		case domain.EntityAccount:
			byAccount, calc, err := p.loadAccounts(ctx, ids, start, end, true)
			if err != nil {
				return err
			}
			for _, id := range ids {
				values[id] = calc.AccountProfit(byAccount[id])
			}
		case domain.EntityAsset:
			splits, err := p.listSplits(ctx, domain.SplitFilter{AssetIDs: ids, AssetLinkedOnly: true, Until: &end})
			if err != nil {
				return err
			}
			byAsset := groupBy(splits, func(s domain.Split) int64 { return *s.AssetID })
			calc, err := p.loadPrices(ctx, ids, start, end)
			if err != nil {
				return err
			}
			for _, id := range ids {
				values[id] = calc.AssetProfit(id, byAsset[id])
			}
		default:
			return unknownKind(kind)
		}

		*result = SeriesSet{Dates: valuation.SeriesDates(start, end), Values: values}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetCashFlowAll returns the inflow and outflow series of every requested entity
func (p *Planner) GetCashFlowAll(ctx context.Context, kind domain.EntityKind, ids []int64, start, end domain.Ordinal, integrate bool) (*CashFlowSet, error) {
	if err := valuation.CheckRange(start, end); err != nil {
		return nil, err
	}

	query := "cashflow"
	if integrate {
		query = "cashflow-integrated"
	}

	result := &CashFlowSet{}
	err := p.cached(ctx, cacheKey(query, kind, ids, start, end), result, func(ctx context.Context) error {
		ids, err := p.resolve(ctx, kind, ids)
		if err != nil {
			return err
		}

		filter, err := valuation.CashFlowFilter(kind, ids, end)
		if err != nil {
			return err
		}
		splits, err := p.listSplits(ctx, filter)
		if err != nil {
			return err
		}

		var grouped map[int64][]domain.Split
		if kind == domain.EntityAccount {
			grouped = groupBy(splits, func(s domain.Split) int64 { return s.AccountID })
		} else {
			grouped = groupBy(splits, func(s domain.Split) int64 { return *s.AssetID })
		}

		calc := valuation.NewCalculator(start, end, nil)
		*result = CashFlowSet{
			Dates:   valuation.SeriesDates(start, end),
			Inflow:  make(map[int64][]domain.Currency, len(ids)),
			Outflow: make(map[int64][]domain.Currency, len(ids)),
		}
		for _, id := range ids {
			result.Inflow[id], result.Outflow[id] = calc.CashFlow(grouped[id], integrate)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetAssetQtyAll returns the held quantity series of every requested account
func (p *Planner) GetAssetQtyAll(ctx context.Context, accountIDs []int64, start, end domain.Ordinal) (*QuantitySet, error) {
	if err := valuation.CheckRange(start, end); err != nil {
		return nil, err
	}

	result := &QuantitySet{}
	err := p.cached(ctx, cacheKey("qty", domain.EntityAccount, accountIDs, start, end), result, func(ctx context.Context) error {
		ids, err := p.resolve(ctx, domain.EntityAccount, accountIDs)
		if err != nil {
			return err
		}

		splits, err := p.listSplits(ctx, domain.SplitFilter{AccountIDs: ids, AssetLinkedOnly: true, Until: &end})
		if err != nil {
			return err
		}
		byAccount := groupBy(splits, func(s domain.Split) int64 { return s.AccountID })

		calc := valuation.NewCalculator(start, end, nil)
		quantities := make(map[int64]map[int64][]domain.Quantity, len(ids))
		for _, id := range ids {
			quantities[id] = calc.AccountQty(byAccount[id])
		}

		*result = QuantitySet{Dates: valuation.SeriesDates(start, end), Quantities: quantities}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// cached loads key into dst, or runs compute inside a store snapshot and
// stores the result. The cache generation is read before the snapshot opens,
// so a write that invalidates during compute leaves the result unreachable.
// Cache failures are logged, never returned.
func (p *Planner) cached(ctx context.Context, key string, dst any, compute func(ctx context.Context) error) error {
	useCache := p.Cache != nil
	var gen int64
	if useCache {
		var err error
		gen, err = p.Cache.Generation(ctx)
		if err != nil {
			p.log.Warn().Err(err).Str("key", key).Msg("Series cache generation failed")
			useCache = false
		}
	}

	if useCache {
		hit, err := p.Cache.Load(ctx, gen, key, dst)
		if err != nil {
			p.log.Warn().Err(err).Str("key", key).Msg("Series cache load failed")
		} else if hit {
			return nil
		}
	}

	if err := p.Transactor.WithinSnapshot(ctx, compute); err != nil {
		return err
	}

	if useCache {
		if err := p.Cache.Store(ctx, gen, key, dst); err != nil {
			p.log.Warn().Err(err).Str("key", key).Msg("Series cache store failed")
		}
	}
	return nil
}

// resolve expands a nil ids slice to every entity of the kind
func (p *Planner) resolve(ctx context.Context, kind domain.EntityKind, ids []int64) ([]int64, error) {
	if ids != nil {
		return ids, nil
	}

	var all []int64
	var err error
	switch kind {
	case domain.EntityAccount:
		all, err = p.AccountRepo.ListIDs(ctx)
	case domain.EntityAsset:
		all, err = p.AssetRepo.ListIDs(ctx)
	default:
		return nil, unknownKind(kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", strings.ToLower(string(kind)), err)
	}
	if all == nil {
		all = []int64{}
	}
	return all, nil
}

// loadAccounts reads the splits of every account in one query and the prices
// of every asset any of them touch in a second
func (p *Planner) loadAccounts(ctx context.Context, ids []int64, start, end domain.Ordinal, linkedOnly bool) (map[int64][]domain.Split, *valuation.Calculator, error) {
	splits, err := p.listSplits(ctx, domain.SplitFilter{AccountIDs: ids, AssetLinkedOnly: linkedOnly, Until: &end})
	if err != nil {
		return nil, nil, err
	}

	calc, err := p.loadPrices(ctx, valuation.LinkedAssets(splits), start, end)
	if err != nil {
		return nil, nil, err
	}

	p.log.Debug().
		Int("accounts", len(ids)).
		Int("splits", len(splits)).
		Msg("Loaded account events")
	return groupBy(splits, func(s domain.Split) int64 { return s.AccountID }), calc, nil
}

func (p *Planner) loadPrices(ctx context.Context, assetIDs []int64, start, end domain.Ordinal) (*valuation.Calculator, error) {
	if len(assetIDs) == 0 {
		return valuation.NewCalculator(start, end, nil), nil
	}
	valuations, err := p.ValuationRepo.List(ctx, assetIDs, &end)
	if err != nil {
		return nil, fmt.Errorf("failed to list valuations: %w", err)
	}
	return valuation.NewCalculator(start, end, valuations), nil
}

func (p *Planner) listSplits(ctx context.Context, filter domain.SplitFilter) ([]domain.Split, error) {
	if filter.AccountIDs != nil && len(filter.AccountIDs) == 0 {
		return nil, nil
	}
	if filter.AssetIDs != nil && len(filter.AssetIDs) == 0 {
		return nil, nil
	}
	splits, err := p.TransactionRepo.ListSplits(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list splits: %w", err)
	}
	return splits, nil
}

// groupBy partitions splits by key, keeping their relative order
func groupBy(splits []domain.Split, key func(domain.Split) int64) map[int64][]domain.Split {
	groups := make(map[int64][]domain.Split)
	for _, split := range splits {
		k := key(split)
		groups[k] = append(groups[k], split)
	}
	return groups
}

// cacheKey renders e.g. "value:ACCOUNT:1,2:738000:738030"; nil ids render as "*"
func cacheKey(query string, kind domain.EntityKind, ids []int64, start, end domain.Ordinal) string {
	idPart := "*"
	if ids != nil {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.FormatInt(id, 10)
		}
		idPart = strings.Join(parts, ",")
	}
	return fmt.Sprintf("%s:%s:%s:%d:%d", query, kind, idPart, start, end)
}

func unknownKind(kind domain.EntityKind) error {
	return fmt.Errorf("unsupported entity kind %q", kind)
}
