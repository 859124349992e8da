package domain

import (
	"fmt"
)

// Account represents a financial account; it owns its transactions
type Account struct {
	ID          int64
	Name        string
	Institution string
	Closed      bool
}

// Validate ensures the account adheres to domain rules
func (a *Account) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: account name cannot be empty", ErrInvalidEntity)
	}
	return nil
}

// Asset represents a holdable asset such as a stock or fund; it owns its
// valuations and corporate splits
type Asset struct {
	ID       int64
	Name     string
	Ticker   string
	Category string
}

// Validate ensures the asset adheres to domain rules
func (a *Asset) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: asset name cannot be empty", ErrInvalidEntity)
	}
	return nil
}

// Valuation is the end-of-day unit price of an asset.
// There is at most one valuation per (asset, date).
type Valuation struct {
	ID      int64
	AssetID int64
	Date    Ordinal
	Value   Currency
}

// Validate ensures the valuation is a positive price
func (v *Valuation) Validate() error {
	if !v.Value.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidValuation, v.Value)
	}
	return nil
}

// CorporateSplit is a share split event: from the day after Date onward every
// share held before becomes Multiplier shares.
type CorporateSplit struct {
	ID         int64
	AssetID    int64
	Date       Ordinal
	Multiplier Multiplier
}

// Validate ensures the multiplier is strictly positive
func (s *CorporateSplit) Validate() error {
	if !s.Multiplier.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidMultiplier, s.Multiplier)
	}
	return nil
}

// EntityKind selects which kind of entity a series query targets
type EntityKind string

const (
	EntityAccount EntityKind = "ACCOUNT"
	EntityAsset   EntityKind = "ASSET"
)

// Entity identifies an account or an asset
type Entity struct {
	Kind EntityKind
	ID   int64
}

func AccountEntity(id int64) Entity { return Entity{Kind: EntityAccount, ID: id} }
func AssetEntity(id int64) Entity   { return Entity{Kind: EntityAsset, ID: id} }

// ParseEntityKind accepts ACCOUNT or ASSET
func ParseEntityKind(s string) (EntityKind, error) {
	switch EntityKind(s) {
	case EntityAccount, EntityAsset:
		return EntityKind(s), nil
	default:
		return "", fmt.Errorf("entity kind must be ACCOUNT or ASSET, got %q", s)
	}
}
