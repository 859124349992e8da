package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/wattsup/nummus/internal/domain"
	"github.com/wattsup/nummus/internal/usecase/adjuster"
	"github.com/wattsup/nummus/internal/usecase/batch"
	"github.com/wattsup/nummus/internal/usecase/ledger"
	"github.com/wattsup/nummus/internal/usecase/valuation"
)

// Server implements ValuationServiceServer
type Server struct {
	ValuationService *valuation.Service
	Planner          *batch.Planner
	AdjusterService  *adjuster.Service
	LedgerService    *ledger.Service

	// MaxRangeDays bounds the number of days a single query may span
	MaxRangeDays int
}

// NewServer creates a new gRPC server instance
func NewServer(
	valuationService *valuation.Service,
	planner *batch.Planner,
	adjusterService *adjuster.Service,
	ledgerService *ledger.Service,
	maxRangeDays int,
) *Server {
	return &Server{
		ValuationService: valuationService,
		Planner:          planner,
		AdjusterService:  adjusterService,
		LedgerService:    ledgerService,
		MaxRangeDays:     maxRangeDays,
	}
}

var _ ValuationServiceServer = (*Server)(nil)

// GetValue handles the GetValue RPC
func (s *Server) GetValue(ctx context.Context, req *SeriesRequest) (*valuation.Series, error) {
	entity, err := s.entity(req.Kind, req.ID, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	series, err := s.ValuationService.GetValue(ctx, entity, req.Start, req.End)
	if err != nil {
		return nil, mapError(err)
	}
	return series, nil
}

// GetValueAll handles the GetValueAll RPC
func (s *Server) GetValueAll(ctx context.Context, req *SeriesAllRequest) (*batch.SeriesSet, error) {
	kind, err := s.kind(req.Kind, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	set, err := s.Planner.GetValueAll(ctx, kind, req.IDs, req.Start, req.End)
	if err != nil {
		return nil, mapError(err)
	}
	return set, nil
}

// GetProfit handles the GetProfit RPC
func (s *Server) GetProfit(ctx context.Context, req *SeriesRequest) (*valuation.Series, error) {
	entity, err := s.entity(req.Kind, req.ID, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	series, err := s.ValuationService.GetProfit(ctx, entity, req.Start, req.End)
	if err != nil {
		return nil, mapError(err)
	}
	return series, nil
}

// GetProfitAll handles the GetProfitAll RPC
func (s *Server) GetProfitAll(ctx context.Context, req *SeriesAllRequest) (*batch.SeriesSet, error) {
	kind, err := s.kind(req.Kind, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	set, err := s.Planner.GetProfitAll(ctx, kind, req.IDs, req.Start, req.End)
	if err != nil {
		return nil, mapError(err)
	}
	return set, nil
}

// GetCashFlow handles the GetCashFlow RPC
func (s *Server) GetCashFlow(ctx context.Context, req *CashFlowRequest) (*valuation.CashFlow, error) {
	entity, err := s.entity(req.Kind, req.ID, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	flow, err := s.ValuationService.GetCashFlow(ctx, entity, req.Start, req.End, req.Integrate)
	if err != nil {
		return nil, mapError(err)
	}
	return flow, nil
}

// GetCashFlowAll handles the GetCashFlowAll RPC
func (s *Server) GetCashFlowAll(ctx context.Context, req *CashFlowAllRequest) (*batch.CashFlowSet, error) {
	kind, err := s.kind(req.Kind, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	set, err := s.Planner.GetCashFlowAll(ctx, kind, req.IDs, req.Start, req.End, req.Integrate)
	if err != nil {
		return nil, mapError(err)
	}
	return set, nil
}

// GetAssetQty handles the GetAssetQty RPC
func (s *Server) GetAssetQty(ctx context.Context, req *AssetQtyRequest) (*valuation.QuantitySeries, error) {
	if err := s.checkRange(req.Start, req.End); err != nil {
		return nil, err
	}

	qty, err := s.ValuationService.GetAssetQty(ctx, req.AccountID, req.Start, req.End)
	if err != nil {
		return nil, mapError(err)
	}
	return qty, nil
}

// GetAssetQtyAll handles the GetAssetQtyAll RPC
func (s *Server) GetAssetQtyAll(ctx context.Context, req *AssetQtyAllRequest) (*batch.QuantitySet, error) {
	if err := s.checkRange(req.Start, req.End); err != nil {
		return nil, err
	}

	set, err := s.Planner.GetAssetQtyAll(ctx, req.AccountIDs, req.Start, req.End)
	if err != nil {
		return nil, mapError(err)
	}
	return set, nil
}

// ApplyCorporateSplit handles the ApplyCorporateSplit RPC
func (s *Server) ApplyCorporateSplit(ctx context.Context, req *CorporateSplitMessage) (*CorporateSplitMessage, error) {
	multiplier, err := domain.NewMultiplier(req.Multiplier)
	if err != nil {
		return nil, mapError(err)
	}
	event := domain.CorporateSplit{AssetID: req.AssetID, Date: req.Date, Multiplier: multiplier}

	saved, err := s.AdjusterService.ApplyCorporateSplit(ctx, req.AssetID, event)
	if err != nil {
		return nil, mapError(err)
	}

	return &CorporateSplitMessage{
		ID:         saved.ID,
		AssetID:    saved.AssetID,
		Date:       saved.Date,
		Multiplier: saved.Multiplier.Decimal(),
	}, nil
}

// RecordTransaction handles the RecordTransaction RPC
func (s *Server) RecordTransaction(ctx context.Context, req *TransactionMessage) (*TransactionMessage, error) {
	input := ledger.RecordTransactionInput{
		AccountID: req.AccountID,
		Date:      req.Date,
		Amount:    req.Amount,
		Payee:     req.Payee,
		Splits:    make([]ledger.SplitInput, len(req.Splits)),
	}
	for i, split := range req.Splits {
		input.Splits[i] = ledger.SplitInput{
			Amount:   split.Amount,
			Memo:     split.Memo,
			AssetID:  split.AssetID,
			Quantity: split.Quantity,
		}
	}

	tx, err := s.LedgerService.RecordTransaction(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}
	return transactionToMessage(tx), nil
}

// DeleteTransaction handles the DeleteTransaction RPC
func (s *Server) DeleteTransaction(ctx context.Context, req *DeleteTransactionRequest) (*TransactionMessage, error) {
	tx, err := s.LedgerService.DeleteTransaction(ctx, req.ID)
	if err != nil {
		return nil, mapError(err)
	}
	return transactionToMessage(tx), nil
}

// AddValuation handles the AddValuation RPC
func (s *Server) AddValuation(ctx context.Context, req *ValuationMessage) (*ValuationMessage, error) {
	v, err := s.LedgerService.AddValuation(ctx, req.AssetID, req.Date, req.Value)
	if err != nil {
		return nil, mapError(err)
	}
	return &ValuationMessage{ID: v.ID, AssetID: v.AssetID, Date: v.Date, Value: v.Value}, nil
}

// CreateAccount handles the CreateAccount RPC
func (s *Server) CreateAccount(ctx context.Context, req *AccountMessage) (*AccountMessage, error) {
	account, err := s.LedgerService.CreateAccount(ctx, domain.Account{
		Name:        req.Name,
		Institution: req.Institution,
		Closed:      req.Closed,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &AccountMessage{ID: account.ID, Name: account.Name, Institution: account.Institution, Closed: account.Closed}, nil
}

// CreateAsset handles the CreateAsset RPC
func (s *Server) CreateAsset(ctx context.Context, req *AssetMessage) (*AssetMessage, error) {
	asset, err := s.LedgerService.CreateAsset(ctx, domain.Asset{
		Name:     req.Name,
		Ticker:   req.Ticker,
		Category: req.Category,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &AssetMessage{ID: asset.ID, Name: asset.Name, Ticker: asset.Ticker, Category: asset.Category}, nil
}

func (s *Server) entity(kind string, id int64, start, end domain.Ordinal) (domain.Entity, error) {
	k, err := s.kind(kind, start, end)
	if err != nil {
		return domain.Entity{}, err
	}
	return domain.Entity{Kind: k, ID: id}, nil
}

func (s *Server) kind(kind string, start, end domain.Ordinal) (domain.EntityKind, error) {
	k, err := domain.ParseEntityKind(kind)
	if err != nil {
		return "", status.Errorf(codes.InvalidArgument, "%s", err)
	}
	if err := s.checkRange(start, end); err != nil {
		return "", err
	}
	return k, nil
}

// checkRange rejects ranges the engine must never see
func (s *Server) checkRange(start, end domain.Ordinal) error {
	if end < start {
		return status.Errorf(codes.InvalidArgument, "end %d is before start %d", end, start)
	}
	if s.MaxRangeDays > 0 && domain.Days(start, end) > s.MaxRangeDays {
		return status.Errorf(codes.InvalidArgument, "range of %d days exceeds the limit of %d",
			domain.Days(start, end), s.MaxRangeDays)
	}
	return nil
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s", err)
	case errors.Is(err, domain.ErrDuplicateValuation):
		return status.Errorf(codes.AlreadyExists, "%s", err)
	case errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrUnbalancedTransaction),
		errors.Is(err, domain.ErrInvalidSplit),
		errors.Is(err, domain.ErrInvalidMultiplier),
		errors.Is(err, domain.ErrInvalidValuation),
		errors.Is(err, domain.ErrInvalidEntity):
		return status.Errorf(codes.InvalidArgument, "%s", err)
	case errors.Is(err, domain.ErrNonAssetTransaction):
		return status.Errorf(codes.FailedPrecondition, "%s", err)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s", err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s", err)
	}

	// Default to Internal error for unknown errors
	return status.Errorf(codes.Internal, "%s", err)
}
