package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spendsync/internal/domain/item"
)

// TokenCipher seals access tokens before they reach the items table.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type ItemRepository struct {
	db     Querier
	cipher TokenCipher
}

var _ item.Repository = (*ItemRepository)(nil)

func NewItemRepository(db Querier, cipher TokenCipher) *ItemRepository {
	return &ItemRepository{db: db, cipher: cipher}
}

const itemColumns = `id, user_id, plaid_item_id, access_token, transactions_cursor, institution_id,
		       status, is_active, created_at, updated_at`

func (r *ItemRepository) Create(ctx context.Context, params item.CreateParams) (*item.Item, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", item.ErrInvalidInput, err)
	}

	sealed, err := r.cipher.Encrypt(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	// Relinking the same provider item replaces the credential and reactivates it.
	query := `
		INSERT INTO items (user_id, plaid_item_id, access_token, institution_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (plaid_item_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			institution_id = EXCLUDED.institution_id,
			status = 'good',
			is_active = TRUE,
			updated_at = NOW()
		RETURNING ` + itemColumns

	it, err := r.scanItem(r.db.QueryRowContext(ctx, query,
		params.UserID, params.PlaidItemID, sealed, params.InstitutionID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	return it, nil
}

func (r *ItemRepository) GetByPlaidItemID(ctx context.Context, plaidItemID string) (*item.Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE plaid_item_id = $1 AND is_active
	`

	it, err := r.scanItem(r.db.QueryRowContext(ctx, query, plaidItemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return it, nil
}

func (r *ItemRepository) ListByUserID(ctx context.Context, userID int64) ([]*item.Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE user_id = $1 AND is_active
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		it, err := r.scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}

func (r *ItemRepository) UpdateStatus(ctx context.Context, id int64, status item.Status) error {
	return r.execOne(ctx, `UPDATE items SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
}

func (r *ItemRepository) UpdateTransactionsCursor(ctx context.Context, id int64, cursor string) error {
	query := `
		UPDATE items
		SET transactions_cursor = $2, status = 'good', updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, cursor)
}

func (r *ItemRepository) Deactivate(ctx context.Context, id int64) error {
	return r.execOne(ctx, `UPDATE items SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
}

func (r *ItemRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return item.ErrItemNotFound
	}
	return nil
}

func (r *ItemRepository) scanItem(row Row) (*item.Item, error) {
	var it item.Item
	var sealed string
	var cursor, institutionID sql.NullString

	err := row.Scan(
		&it.ID, &it.UserID, &it.PlaidItemID, &sealed, &cursor, &institutionID,
		&it.Status, &it.IsActive, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cursor.Valid {
		it.TransactionsCursor = &cursor.String
	}
	if institutionID.Valid {
		it.InstitutionID = &institutionID.String
	}

	it.AccessToken, err = r.cipher.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token for item %d: %w", it.ID, err)
	}

	return &it, nil
}
