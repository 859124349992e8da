package grpc

import (
	"github.com/shopspring/decimal"

	"github.com/wattsup/nummus/internal/domain"
)

// Request messages. Dates are ordinals (0001-01-01 = 1).
// Response messages are the use case result types, which carry json tags.

type SeriesRequest struct {
	Kind  string         `json:"kind"`
	ID    int64          `json:"id"`
	Start domain.Ordinal `json:"start"`
	End   domain.Ordinal `json:"end"`
}

// SeriesAllRequest selects every entity of Kind when IDs is null or absent
// and none when it is an empty list
type SeriesAllRequest struct {
	Kind  string         `json:"kind"`
	IDs   []int64        `json:"ids"`
	Start domain.Ordinal `json:"start"`
	End   domain.Ordinal `json:"end"`
}

type CashFlowRequest struct {
	Kind      string         `json:"kind"`
	ID        int64          `json:"id"`
	Start     domain.Ordinal `json:"start"`
	End       domain.Ordinal `json:"end"`
	Integrate bool           `json:"integrate"`
}

type CashFlowAllRequest struct {
	Kind      string         `json:"kind"`
	IDs       []int64        `json:"ids"`
	Start     domain.Ordinal `json:"start"`
	End       domain.Ordinal `json:"end"`
	Integrate bool           `json:"integrate"`
}

type AssetQtyRequest struct {
	AccountID int64          `json:"account_id"`
	Start     domain.Ordinal `json:"start"`
	End       domain.Ordinal `json:"end"`
}

type AssetQtyAllRequest struct {
	AccountIDs []int64        `json:"account_ids"`
	Start      domain.Ordinal `json:"start"`
	End        domain.Ordinal `json:"end"`
}

// CorporateSplitMessage carries the multiplier as a plain decimal so a
// non-positive value is rejected by the handler with InvalidArgument
type CorporateSplitMessage struct {
	ID         int64           `json:"id,omitempty"`
	AssetID    int64           `json:"asset_id"`
	Date       domain.Ordinal  `json:"date"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

type SplitMessage struct {
	ID               int64            `json:"id,omitempty"`
	Amount           domain.Currency  `json:"amount"`
	Memo             string           `json:"memo,omitempty"`
	AssetID          *int64           `json:"asset_id,omitempty"`
	Quantity         *domain.Quantity `json:"quantity,omitempty"`
	AdjustedQuantity *domain.Quantity `json:"adjusted_quantity,omitempty"`
}

type TransactionMessage struct {
	ID        int64           `json:"id,omitempty"`
	AccountID int64           `json:"account_id"`
	Date      domain.Ordinal  `json:"date"`
	Amount    domain.Currency `json:"amount"`
	Payee     string          `json:"payee,omitempty"`
	Splits    []SplitMessage  `json:"splits"`
}

type DeleteTransactionRequest struct {
	ID int64 `json:"id"`
}

type ValuationMessage struct {
	ID      int64           `json:"id,omitempty"`
	AssetID int64           `json:"asset_id"`
	Date    domain.Ordinal  `json:"date"`
	Value   domain.Currency `json:"value"`
}

type AccountMessage struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Institution string `json:"institution,omitempty"`
	Closed      bool   `json:"closed,omitempty"`
}

type AssetMessage struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name"`
	Ticker   string `json:"ticker,omitempty"`
	Category string `json:"category,omitempty"`
}

func transactionToMessage(tx *domain.Transaction) *TransactionMessage {
	msg := &TransactionMessage{
		ID:        tx.ID,
		AccountID: tx.AccountID,
		Date:      tx.Date,
		Amount:    tx.Amount,
		Payee:     tx.Payee,
		Splits:    make([]SplitMessage, len(tx.Splits)),
	}
	for i, s := range tx.Splits {
		msg.Splits[i] = SplitMessage{
			ID:       s.ID,
			Amount:   s.Amount,
			Memo:     s.Memo,
			AssetID:  s.AssetID,
			Quantity: s.UnadjustedQuantity,
		}
		if s.IsAssetLinked() {
			adjusted := s.AdjustedQuantity
			msg.Splits[i].AdjustedQuantity = &adjusted
		}
	}
	return msg
}
