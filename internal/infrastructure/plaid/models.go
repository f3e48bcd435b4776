package plaid

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// SyncRequest is the body of POST /transactions/sync.
type SyncRequest struct {
	ClientID    string      `json:"client_id"`
	Secret      string      `json:"secret"`
	AccessToken string      `json:"access_token"`
	Cursor      string      `json:"cursor,omitempty"`
	Count       int         `json:"count"`
	Options     SyncOptions `json:"options"`
}

type SyncOptions struct {
	IncludePersonalFinanceCategory bool `json:"include_personal_finance_category"`
}

// SyncResponse is one page of the transaction change stream.
type SyncResponse struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
	RequestID  string               `json:"request_id"`
}

type RemovedTransaction struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
}

type PersonalFinanceCategory struct {
	Primary  string `json:"primary"`
	Detailed string `json:"detailed"`
}

// Transaction as returned in the added and modified lists. Dates stay in the
// provider's YYYY-MM-DD form until parsed by the caller.
type Transaction struct {
	TransactionID           string                   `json:"transaction_id"`
	AccountID               string                   `json:"account_id"`
	Amount                  decimal.Decimal          `json:"amount"`
	ISOCurrencyCode         *string                  `json:"iso_currency_code"`
	UnofficialCurrencyCode  *string                  `json:"unofficial_currency_code"`
	DateString              string                   `json:"date"`
	AuthorizedDateString    *string                  `json:"authorized_date"`
	Name                    string                   `json:"name"`
	MerchantName            *string                  `json:"merchant_name"`
	PersonalFinanceCategory *PersonalFinanceCategory `json:"personal_finance_category"`
	PaymentChannel          string                   `json:"payment_channel"`
	Pending                 bool                     `json:"pending"`
	PendingTransactionID    *string                  `json:"pending_transaction_id"`
}

// GetDate parses the posted (or pending) date.
func (t *Transaction) GetDate() (time.Time, error) {
	parsed, err := time.Parse(dateLayout, t.DateString)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date '%s': %w", t.DateString, err)
	}
	return parsed, nil
}

// GetAuthorizedDate returns nil when the provider has no authorization date.
func (t *Transaction) GetAuthorizedDate() (*time.Time, error) {
	if t.AuthorizedDateString == nil || *t.AuthorizedDateString == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, *t.AuthorizedDateString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authorized_date '%s': %w", *t.AuthorizedDateString, err)
	}
	return &parsed, nil
}

// AccountsRequest is the body of POST /accounts/get.
type AccountsRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
}

// AccountsResponse is the full current account snapshot for an item.
type AccountsResponse struct {
	Accounts  []Account `json:"accounts"`
	Item      ItemInfo  `json:"item"`
	RequestID string    `json:"request_id"`
}

type ItemInfo struct {
	ItemID        string  `json:"item_id"`
	InstitutionID *string `json:"institution_id"`
}

type Account struct {
	AccountID    string   `json:"account_id"`
	Balances     Balances `json:"balances"`
	Mask         *string  `json:"mask"`
	Name         string   `json:"name"`
	OfficialName *string  `json:"official_name"`
	Type         string   `json:"type"`
	Subtype      *string  `json:"subtype"`
}

type Balances struct {
	Available              decimal.NullDecimal `json:"available"`
	Current                decimal.NullDecimal `json:"current"`
	ISOCurrencyCode        *string             `json:"iso_currency_code"`
	UnofficialCurrencyCode *string             `json:"unofficial_currency_code"`
}
