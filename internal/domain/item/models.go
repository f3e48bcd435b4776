package item

import (
	"errors"
	"time"
)

// Status reflects whether the provider still accepts the item's credentials.
type Status string

const (
	StatusGood Status = "good"
	StatusBad  Status = "bad"
)

var (
	ErrItemNotFound = errors.New("item not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Item is one linked institution login. It owns its accounts and, through
// them, their transactions.
type Item struct {
	ID                 int64     `json:"id"`
	UserID             int64     `json:"userId"`
	PlaidItemID        string    `json:"plaidItemId"`
	AccessToken        string    `json:"-"`
	TransactionsCursor *string   `json:"-"` // nil until the first successful sync
	InstitutionID      *string   `json:"institutionId,omitempty"`
	Status             Status    `json:"status"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Cursor returns the stored cursor, or "" when the item has never synced.
func (i *Item) Cursor() string {
	if i.TransactionsCursor == nil {
		return ""
	}
	return *i.TransactionsCursor
}

type CreateParams struct {
	UserID        int64
	PlaidItemID   string
	AccessToken   string
	InstitutionID *string
}

func (p CreateParams) Validate() error {
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.PlaidItemID == "" {
		return errors.New("plaid item ID is required")
	}
	if p.AccessToken == "" {
		return errors.New("access token is required")
	}
	return nil
}
