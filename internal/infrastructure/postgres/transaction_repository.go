package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"spendsync/internal/domain/transaction"
)

type TransactionRepository struct {
	db Querier
}

var _ transaction.Repository = (*TransactionRepository)(nil)

func NewTransactionRepository(db Querier) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Upsert resolves each row's account through its Plaid account ID. A row whose
// account is unknown is an error: accounts are always written first.
func (r *TransactionRepository) Upsert(ctx context.Context, params []transaction.UpsertParams) error {
	query := `
		INSERT INTO transactions (
			account_id, plaid_transaction_id, amount, iso_currency_code, unofficial_currency_code,
			date, authorized_date, name, merchant_name, category, detailed_category,
			payment_channel, pending, pending_transaction_id
		)
		SELECT a.id, $2::text, $3::numeric, $4::text, $5::text, $6::date, $7::date, $8::text,
		       $9::text, $10::text, $11::text, $12::text, $13::boolean, $14::text
		FROM accounts a
		WHERE a.plaid_account_id = $1
		ON CONFLICT (plaid_transaction_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			amount = EXCLUDED.amount,
			iso_currency_code = EXCLUDED.iso_currency_code,
			unofficial_currency_code = EXCLUDED.unofficial_currency_code,
			date = EXCLUDED.date,
			authorized_date = EXCLUDED.authorized_date,
			name = EXCLUDED.name,
			merchant_name = EXCLUDED.merchant_name,
			category = EXCLUDED.category,
			detailed_category = EXCLUDED.detailed_category,
			payment_channel = EXCLUDED.payment_channel,
			pending = EXCLUDED.pending,
			pending_transaction_id = EXCLUDED.pending_transaction_id,
			updated_at = NOW()
	`

	for _, p := range params {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid transaction %s: %w", p.PlaidTransactionID, err)
		}

		result, err := r.db.ExecContext(ctx, query,
			p.PlaidAccountID, p.PlaidTransactionID, p.Amount, p.ISOCurrencyCode, p.UnofficialCurrencyCode,
			p.Date, p.AuthorizedDate, p.Name, p.MerchantName, p.Category, p.DetailedCategory,
			p.PaymentChannel, p.Pending, p.PendingTransactionID,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert transaction %s: %w", p.PlaidTransactionID, err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("transaction %s references unknown account %s", p.PlaidTransactionID, p.PlaidAccountID)
		}
	}

	return nil
}

func (r *TransactionRepository) DeleteByPlaidIDs(ctx context.Context, plaidTransactionIDs []string) (int64, error) {
	if len(plaidTransactionIDs) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE plaid_transaction_id = ANY($1)`,
		pq.Array(plaidTransactionIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, since time.Time, limit int) ([]*transaction.Transaction, error) {
	query := `
		SELECT t.id, t.account_id, t.plaid_transaction_id, t.amount, t.iso_currency_code,
		       t.unofficial_currency_code, t.date, t.authorized_date, t.name, t.merchant_name,
		       t.category, t.detailed_category, t.payment_channel, t.pending,
		       t.pending_transaction_id, t.created_at, t.updated_at
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		JOIN items i ON i.id = a.item_id
		WHERE i.user_id = $1 AND i.is_active AND t.date >= $2
		ORDER BY t.date DESC, t.id DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*transaction.Transaction
	for rows.Next() {
		var tx transaction.Transaction
		err := rows.Scan(
			&tx.ID, &tx.AccountID, &tx.PlaidTransactionID, &tx.Amount, &tx.ISOCurrencyCode,
			&tx.UnofficialCurrencyCode, &tx.Date, &tx.AuthorizedDate, &tx.Name, &tx.MerchantName,
			&tx.Category, &tx.DetailedCategory, &tx.PaymentChannel, &tx.Pending,
			&tx.PendingTransactionID, &tx.CreatedAt, &tx.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}
