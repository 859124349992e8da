package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrNonAssetTransaction is returned when a quantity adjustment is requested
	// for a split that is not linked to an asset
	ErrNonAssetTransaction = errors.New("split is not asset-linked")

	// ErrInvalidRange is returned when end < start
	ErrInvalidRange = errors.New("invalid date range: end before start")

	ErrUnbalancedTransaction = errors.New("sum of split amounts must equal transaction amount")
	ErrDuplicateValuation    = errors.New("valuation already exists for asset and date")
	ErrInvalidMultiplier     = errors.New("split multiplier must be positive")
	ErrInvalidValuation      = errors.New("valuation must be positive")
	ErrInvalidSplit          = errors.New("invalid transaction split")
	ErrInvalidEntity         = errors.New("invalid account or asset")
)
