package plaid

import (
	"errors"
	"fmt"
)

// Error codes the sync engine reacts to.
const (
	CodeMutationDuringPagination = "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION"
	CodeItemLoginRequired        = "ITEM_LOGIN_REQUIRED"
	CodeRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
)

// Error is the provider's structured error body, plus the HTTP status it
// arrived with.
type Error struct {
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	Message        string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`
	StatusCode     int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("plaid error (status %d): %s/%s - %s", e.StatusCode, e.ErrorType, e.ErrorCode, e.Message)
}

// IsErrorCode reports whether err wraps a provider error with the given code.
func IsErrorCode(err error, code string) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.ErrorCode == code
	}
	return false
}
