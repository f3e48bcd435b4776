package transaction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestUpsertParams_Validate(t *testing.T) {
	valid := UpsertParams{
		PlaidTransactionID: "tx-1",
		PlaidAccountID:     "acc-1",
		Amount:             decimal.RequireFromString("12.34"),
		Date:               time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Name:               "Coffee",
	}
	assert.NoError(t, valid.Validate())

	missingID := valid
	missingID.PlaidTransactionID = ""
	assert.Error(t, missingID.Validate())

	missingAccount := valid
	missingAccount.PlaidAccountID = ""
	assert.Error(t, missingAccount.Validate())

	missingDate := valid
	missingDate.Date = time.Time{}
	assert.Error(t, missingDate.Validate())
}
