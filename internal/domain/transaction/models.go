package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a ledger entry. Amount follows the provider's convention:
// positive values are money leaving the account.
type Transaction struct {
	ID                     int64           `json:"id"`
	AccountID              int64           `json:"accountId"`
	PlaidTransactionID     string          `json:"plaidTransactionId"`
	Amount                 decimal.Decimal `json:"amount"`
	ISOCurrencyCode        *string         `json:"isoCurrencyCode,omitempty"`
	UnofficialCurrencyCode *string         `json:"unofficialCurrencyCode,omitempty"`
	Date                   time.Time       `json:"date"`
	AuthorizedDate         *time.Time      `json:"authorizedDate,omitempty"`
	Name                   string          `json:"name"`
	MerchantName           *string         `json:"merchantName,omitempty"`
	Category               *string         `json:"category,omitempty"`
	DetailedCategory       *string         `json:"detailedCategory,omitempty"`
	PaymentChannel         string          `json:"paymentChannel"`
	Pending                bool            `json:"pending"`
	PendingTransactionID   *string         `json:"pendingTransactionId,omitempty"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

// UpsertParams is keyed by PlaidTransactionID. The owning account is resolved
// from PlaidAccountID at write time.
type UpsertParams struct {
	PlaidTransactionID     string
	PlaidAccountID         string
	Amount                 decimal.Decimal
	ISOCurrencyCode        *string
	UnofficialCurrencyCode *string
	Date                   time.Time
	AuthorizedDate         *time.Time
	Name                   string
	MerchantName           *string
	Category               *string
	DetailedCategory       *string
	PaymentChannel         string
	Pending                bool
	PendingTransactionID   *string
}

func (p UpsertParams) Validate() error {
	if p.PlaidTransactionID == "" {
		return errors.New("plaid transaction ID is required for upsert")
	}
	if p.PlaidAccountID == "" {
		return errors.New("plaid account ID is required for upsert")
	}
	if p.Date.IsZero() {
		return errors.New("transaction date is required")
	}
	return nil
}
