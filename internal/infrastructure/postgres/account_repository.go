package postgres

import (
	"context"
	"fmt"

	"spendsync/internal/domain/account"
)

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	db Querier
}

var _ account.Repository = (*AccountRepository)(nil)

func NewAccountRepository(db Querier) *AccountRepository {
	return &AccountRepository{db: db}
}

// Upsert writes the provider snapshot. The hidden flag belongs to the user
// and is left untouched on conflict.
func (r *AccountRepository) Upsert(ctx context.Context, params []account.UpsertParams) error {
	query := `
		INSERT INTO accounts (
			item_id, plaid_account_id, name, official_name, mask,
			current_balance, available_balance, iso_currency_code, unofficial_currency_code,
			type, subtype
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (plaid_account_id) DO UPDATE SET
			item_id = EXCLUDED.item_id,
			name = EXCLUDED.name,
			official_name = EXCLUDED.official_name,
			mask = EXCLUDED.mask,
			current_balance = EXCLUDED.current_balance,
			available_balance = EXCLUDED.available_balance,
			iso_currency_code = EXCLUDED.iso_currency_code,
			unofficial_currency_code = EXCLUDED.unofficial_currency_code,
			type = EXCLUDED.type,
			subtype = EXCLUDED.subtype,
			updated_at = NOW()
	`

	for _, p := range params {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid account %s: %w", p.PlaidAccountID, err)
		}

		_, err := r.db.ExecContext(ctx, query,
			p.ItemID, p.PlaidAccountID, p.Name, p.OfficialName, p.Mask,
			p.CurrentBalance, p.AvailableBalance, p.ISOCurrencyCode, p.UnofficialCurrencyCode,
			p.Type, p.Subtype,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert account %s: %w", p.PlaidAccountID, err)
		}
	}

	return nil
}

func (r *AccountRepository) ListByItemID(ctx context.Context, itemID int64) ([]*account.Account, error) {
	query := `
		SELECT id, item_id, plaid_account_id, name, official_name, mask,
		       current_balance, available_balance, iso_currency_code, unofficial_currency_code,
		       type, subtype, hidden, created_at, updated_at
		FROM accounts
		WHERE item_id = $1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		var acc account.Account
		err := rows.Scan(
			&acc.ID, &acc.ItemID, &acc.PlaidAccountID, &acc.Name, &acc.OfficialName, &acc.Mask,
			&acc.CurrentBalance, &acc.AvailableBalance, &acc.ISOCurrencyCode, &acc.UnofficialCurrencyCode,
			&acc.Type, &acc.Subtype, &acc.Hidden, &acc.CreatedAt, &acc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &acc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}
