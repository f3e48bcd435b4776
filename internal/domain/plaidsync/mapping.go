package plaidsync

import (
	"fmt"

	"spendsync/internal/domain/account"
	"spendsync/internal/domain/transaction"
	"spendsync/internal/infrastructure/plaid"
)

func toAccountParams(itemID int64, accounts []plaid.Account) []account.UpsertParams {
	params := make([]account.UpsertParams, 0, len(accounts))
	for _, a := range accounts {
		params = append(params, account.UpsertParams{
			ItemID:                 itemID,
			PlaidAccountID:         a.AccountID,
			Name:                   a.Name,
			OfficialName:           a.OfficialName,
			Mask:                   a.Mask,
			CurrentBalance:         a.Balances.Current,
			AvailableBalance:       a.Balances.Available,
			ISOCurrencyCode:        a.Balances.ISOCurrencyCode,
			UnofficialCurrencyCode: a.Balances.UnofficialCurrencyCode,
			Type:                   a.Type,
			Subtype:                a.Subtype,
		})
	}
	return params
}

func toTransactionParams(txs []plaid.Transaction) ([]transaction.UpsertParams, error) {
	params := make([]transaction.UpsertParams, 0, len(txs))
	for i := range txs {
		tx := &txs[i]

		date, err := tx.GetDate()
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.TransactionID, err)
		}
		authorized, err := tx.GetAuthorizedDate()
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.TransactionID, err)
		}

		p := transaction.UpsertParams{
			PlaidTransactionID:     tx.TransactionID,
			PlaidAccountID:         tx.AccountID,
			Amount:                 tx.Amount,
			ISOCurrencyCode:        tx.ISOCurrencyCode,
			UnofficialCurrencyCode: tx.UnofficialCurrencyCode,
			Date:                   date,
			AuthorizedDate:         authorized,
			Name:                   tx.Name,
			MerchantName:           tx.MerchantName,
			PaymentChannel:         tx.PaymentChannel,
			Pending:                tx.Pending,
			PendingTransactionID:   tx.PendingTransactionID,
		}
		if pfc := tx.PersonalFinanceCategory; pfc != nil {
			p.Category = nonEmpty(pfc.Primary)
			p.DetailedCategory = nonEmpty(pfc.Detailed)
		}
		params = append(params, p)
	}
	return params, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
