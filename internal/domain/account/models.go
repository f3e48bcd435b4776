package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	accountTypes = map[string]struct{}{
		"depository": {},
		"credit":     {},
		"loan":       {},
		"investment": {},
		"brokerage":  {},
		"other":      {},
	}
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidAccountType = errors.New("invalid account type")
)

// Account is a financial account belonging to an item. Accounts are replaced
// wholesale from the provider snapshot on every sync pass.
type Account struct {
	ID                     int64               `json:"id"`
	ItemID                 int64               `json:"itemId"`
	PlaidAccountID         string              `json:"plaidAccountId"`
	Name                   string              `json:"name"`
	OfficialName           *string             `json:"officialName,omitempty"`
	Mask                   *string             `json:"mask,omitempty"`
	CurrentBalance         decimal.NullDecimal `json:"currentBalance"`
	AvailableBalance       decimal.NullDecimal `json:"availableBalance"`
	ISOCurrencyCode        *string             `json:"isoCurrencyCode,omitempty"`
	UnofficialCurrencyCode *string             `json:"unofficialCurrencyCode,omitempty"`
	Type                   string              `json:"type"`
	Subtype                *string             `json:"subtype,omitempty"`
	Hidden                 bool                `json:"hidden"`
	CreatedAt              time.Time           `json:"createdAt"`
	UpdatedAt              time.Time           `json:"updatedAt"`
}

// UpsertParams is keyed by PlaidAccountID. Hidden is user-owned and never
// overwritten by a sync.
type UpsertParams struct {
	ItemID                 int64
	PlaidAccountID         string
	Name                   string
	OfficialName           *string
	Mask                   *string
	CurrentBalance         decimal.NullDecimal
	AvailableBalance       decimal.NullDecimal
	ISOCurrencyCode        *string
	UnofficialCurrencyCode *string
	Type                   string
	Subtype                *string
}

func (p UpsertParams) Validate() error {
	if p.ItemID <= 0 {
		return errors.New("valid item ID is required for upsert")
	}
	if p.PlaidAccountID == "" {
		return errors.New("plaid account ID is required for upsert")
	}
	if p.Name == "" {
		return errors.New("account name is required")
	}
	if !IsValidAccountType(p.Type) {
		return ErrInvalidAccountType
	}
	return nil
}

// IsValidAccountType reports whether t is one of the provider's account types.
func IsValidAccountType(t string) bool {
	_, ok := accountTypes[t]
	return ok
}
