package postgres

import (
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/wattsup/nummus/internal/domain"
)

// Row types mirror the tables column for column. Decimals are scanned with
// shopspring/decimal and truncated back to their domain scale on conversion.

type accountRow struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Institution string `db:"institution"`
	Closed      bool   `db:"closed"`
}

type assetRow struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	Ticker   string `db:"ticker"`
	Category string `db:"category"`
}

type transactionRow struct {
	ID        int64           `db:"id"`
	AccountID int64           `db:"account_id"`
	DateOrd   int             `db:"date_ord"`
	Amount    decimal.Decimal `db:"amount"`
	Payee     string          `db:"payee"`
}

type splitRow struct {
	ID                 int64               `db:"id"`
	TransactionID      int64               `db:"transaction_id"`
	AccountID          int64               `db:"account_id"`
	DateOrd            int                 `db:"date_ord"`
	Amount             decimal.Decimal     `db:"amount"`
	Memo               string              `db:"memo"`
	AssetID            sql.NullInt64       `db:"asset_id"`
	UnadjustedQuantity decimal.NullDecimal `db:"unadjusted_quantity"`
	AdjustedQuantity   decimal.Decimal     `db:"adjusted_quantity"`
}

type valuationRow struct {
	ID      int64           `db:"id"`
	AssetID int64           `db:"asset_id"`
	DateOrd int             `db:"date_ord"`
	Value   decimal.Decimal `db:"value"`
}

type corporateSplitRow struct {
	ID         int64           `db:"id"`
	AssetID    int64           `db:"asset_id"`
	DateOrd    int             `db:"date_ord"`
	Multiplier decimal.Decimal `db:"multiplier"`
}

func (r accountRow) toDomain() domain.Account {
	return domain.Account{ID: r.ID, Name: r.Name, Institution: r.Institution, Closed: r.Closed}
}

func (r assetRow) toDomain() domain.Asset {
	return domain.Asset{ID: r.ID, Name: r.Name, Ticker: r.Ticker, Category: r.Category}
}

func (r transactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:        r.ID,
		AccountID: r.AccountID,
		Date:      domain.Ordinal(r.DateOrd),
		Amount:    domain.NewCurrency(r.Amount),
		Payee:     r.Payee,
	}
}

func (r splitRow) toDomain() domain.Split {
	split := domain.Split{
		ID:               r.ID,
		TransactionID:    r.TransactionID,
		AccountID:        r.AccountID,
		Date:             domain.Ordinal(r.DateOrd),
		Amount:           domain.NewCurrency(r.Amount),
		Memo:             r.Memo,
		AdjustedQuantity: domain.NewQuantity(r.AdjustedQuantity),
	}
	if r.AssetID.Valid {
		id := r.AssetID.Int64
		split.AssetID = &id
	}
	if r.UnadjustedQuantity.Valid {
		q := domain.NewQuantity(r.UnadjustedQuantity.Decimal)
		split.UnadjustedQuantity = &q
	}
	return split
}

func newSplitRow(s domain.Split) splitRow {
	row := splitRow{
		ID:               s.ID,
		TransactionID:    s.TransactionID,
		AccountID:        s.AccountID,
		DateOrd:          int(s.Date),
		Amount:           s.Amount.Decimal(),
		Memo:             s.Memo,
		AdjustedQuantity: s.AdjustedQuantity.Decimal(),
	}
	if s.AssetID != nil {
		row.AssetID = sql.NullInt64{Int64: *s.AssetID, Valid: true}
	}
	if s.UnadjustedQuantity != nil {
		row.UnadjustedQuantity = decimal.NullDecimal{Decimal: s.UnadjustedQuantity.Decimal(), Valid: true}
	}
	return row
}

func (r valuationRow) toDomain() domain.Valuation {
	return domain.Valuation{
		ID:      r.ID,
		AssetID: r.AssetID,
		Date:    domain.Ordinal(r.DateOrd),
		Value:   domain.NewCurrency(r.Value),
	}
}

func (r corporateSplitRow) toDomain() (domain.CorporateSplit, error) {
	m, err := domain.NewMultiplier(r.Multiplier)
	if err != nil {
		return domain.CorporateSplit{}, err
	}
	return domain.CorporateSplit{
		ID:         r.ID,
		AssetID:    r.AssetID,
		Date:       domain.Ordinal(r.DateOrd),
		Multiplier: m,
	}, nil
}
