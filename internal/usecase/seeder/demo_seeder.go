// Package seeder fills an empty ledger with a small demo portfolio.
package seeder

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wattsup/nummus/internal/domain"
	"github.com/wattsup/nummus/internal/usecase/ledger"
)

// Ledger is the subset of ledger.Service the seeder writes through
type Ledger interface {
	CreateAccount(ctx context.Context, account domain.Account) (*domain.Account, error)
	CreateAsset(ctx context.Context, asset domain.Asset) (*domain.Asset, error)
	RecordTransaction(ctx context.Context, input ledger.RecordTransactionInput) (*domain.Transaction, error)
	AddValuation(ctx context.Context, assetID int64, date domain.Ordinal, value domain.Currency) (*domain.Valuation, error)
}

// Splitter applies corporate split events. Implemented by adjuster.Service.
type Splitter interface {
	ApplyCorporateSplit(ctx context.Context, assetID int64, event domain.CorporateSplit) (*domain.CorporateSplit, error)
}

// DemoSeeder writes the demo portfolio
type DemoSeeder struct {
	accounts domain.AccountRepository
	ledger   Ledger
	splitter Splitter
	log      zerolog.Logger
}

// NewDemoSeeder creates a new DemoSeeder instance
func NewDemoSeeder(accounts domain.AccountRepository, ledger Ledger, splitter Splitter, log zerolog.Logger) *DemoSeeder {
	return &DemoSeeder{
		accounts: accounts,
		ledger:   ledger,
		splitter: splitter,
		log:      log.With().Str("service", "seeder").Logger(),
	}
}

// Seed writes the demo portfolio dated relative to today.
// It does nothing when any account already exists.
//
// The portfolio: a checking account paid 5000, a brokerage funded with 2000
// that buys 10 BANANA at 100, a 2:1 split of BANANA, and a sale of 4 shares.
func (s *DemoSeeder) Seed(ctx context.Context, today domain.Ordinal) error {
	ids, err := s.accounts.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(ids) > 0 {
		s.log.Info().Int("accounts", len(ids)).Msg("Ledger not empty, skipping demo seed")
		return nil
	}

	checking, err := s.ledger.CreateAccount(ctx, domain.Account{Name: "Checking", Institution: "Demo Bank"})
	if err != nil {
		return err
	}
	brokerage, err := s.ledger.CreateAccount(ctx, domain.Account{Name: "Brokerage", Institution: "Demo Broker"})
	if err != nil {
		return err
	}
	banana, err := s.ledger.CreateAsset(ctx, domain.Asset{Name: "Banana Corp", Ticker: "BNN", Category: "STOCKS"})
	if err != nil {
		return err
	}

	cash := func(accountID int64, date domain.Ordinal, amount, payee string) ledger.RecordTransactionInput {
		a := domain.MustCurrency(amount)
		return ledger.RecordTransactionInput{
			AccountID: accountID, Date: date, Amount: a, Payee: payee,
			Splits: []ledger.SplitInput{{Amount: a}},
		}
	}
	trade := func(date domain.Ordinal, amount, qty string) ledger.RecordTransactionInput {
		a, q := domain.MustCurrency(amount), domain.MustQuantity(qty)
		return ledger.RecordTransactionInput{
			AccountID: brokerage.ID, Date: date, Amount: a, Payee: "Demo Broker",
			Splits: []ledger.SplitInput{{Amount: a, AssetID: &banana.ID, Quantity: &q}},
		}
	}

	for _, input := range []ledger.RecordTransactionInput{
		cash(checking.ID, today-60, "5000", "Employer"),
		cash(brokerage.ID, today-59, "2000", "Transfer"),
		trade(today-50, "-1000", "10"),
	} {
		if _, err := s.ledger.RecordTransaction(ctx, input); err != nil {
			return err
		}
	}

	for _, p := range []struct {
		date  domain.Ordinal
		value string
	}{
		{today - 50, "100"},
		{today - 30, "110"},
		{today - 19, "56"},
		{today - 5, "60"},
	} {
		if _, err := s.ledger.AddValuation(ctx, banana.ID, p.date, domain.MustCurrency(p.value)); err != nil {
			return err
		}
	}

	if _, err := s.splitter.ApplyCorporateSplit(ctx, banana.ID, domain.CorporateSplit{
		Date:       today - 20,
		Multiplier: domain.MustMultiplier("2"),
	}); err != nil {
		return err
	}

	// Recorded after the split, so already in post-split shares
	if _, err := s.ledger.RecordTransaction(ctx, trade(today-5, "240", "-4")); err != nil {
		return err
	}

	s.log.Info().
		Int64("checking_id", checking.ID).
		Int64("brokerage_id", brokerage.ID).
		Int64("asset_id", banana.ID).
		Msg("Seeded demo ledger")
	return nil
}
