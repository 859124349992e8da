package domain

import (
	"fmt"
)

// Transaction represents a transaction entity in the domain layer.
// A Transaction belongs to one Account and owns its Splits.
type Transaction struct {
	ID        int64
	AccountID int64
	Date      Ordinal
	Amount    Currency // Signed total, always equal to the sum of split amounts
	Payee     string
	Splits    []Split
}

// Split is one line of a Transaction.
// AccountID and Date are copies of the parent's so series queries need no join.
type Split struct {
	ID            int64
	TransactionID int64 // Parent transaction, lookup only
	AccountID     int64
	Date          Ordinal
	Amount        Currency
	Memo          string

	// Asset linkage. Both are nil for cash-only splits.
	AssetID            *int64
	UnadjustedQuantity *Quantity // As recorded, never mutated
	AdjustedQuantity   Quantity  // Derived by the quantity adjuster
}

// IsAssetLinked reports whether the split carries an asset quantity
func (s *Split) IsAssetLinked() bool {
	return s.AssetID != nil
}

// Validate ensures the transaction adheres to domain rules
// Returns an error if validation fails
// CRITICAL: sum(split.Amount) must equal Amount exactly
func (t *Transaction) Validate() error {
	if len(t.Splits) == 0 {
		return fmt.Errorf("%w: transaction must have at least one split", ErrInvalidSplit)
	}

	total := Currency{}
	for i := range t.Splits {
		split := &t.Splits[i]
		if err := split.Validate(); err != nil {
			return err
		}
		if split.AccountID != t.AccountID {
			return fmt.Errorf("%w: split account %d does not match transaction account %d",
				ErrInvalidSplit, split.AccountID, t.AccountID)
		}
		if split.Date != t.Date {
			return fmt.Errorf("%w: split date %s does not match transaction date %s",
				ErrInvalidSplit, split.Date, t.Date)
		}
		total = total.Add(split.Amount)
	}

	if !total.Equal(t.Amount) {
		return fmt.Errorf("%w: splits sum to %s, transaction amount is %s",
			ErrUnbalancedTransaction, total, t.Amount)
	}

	return nil
}

// Validate checks that asset linkage and quantity are set together
func (s *Split) Validate() error {
	if s.AssetID != nil && s.UnadjustedQuantity == nil {
		return fmt.Errorf("%w: asset-linked split must carry a quantity", ErrInvalidSplit)
	}
	if s.AssetID == nil && s.UnadjustedQuantity != nil {
		return fmt.Errorf("%w: quantity given without an asset", ErrInvalidSplit)
	}
	return nil
}

// AttachSplits copies the parent's identity, account and date onto every split.
func (t *Transaction) AttachSplits() {
	for i := range t.Splits {
		t.Splits[i].TransactionID = t.ID
		t.Splits[i].AccountID = t.AccountID
		t.Splits[i].Date = t.Date
	}
}

// LinkedAssetIDs returns the distinct assets referenced by the splits, in split order
func (t *Transaction) LinkedAssetIDs() []int64 {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, split := range t.Splits {
		if split.AssetID == nil {
			continue
		}
		if _, ok := seen[*split.AssetID]; ok {
			continue
		}
		seen[*split.AssetID] = struct{}{}
		ids = append(ids, *split.AssetID)
	}
	return ids
}
