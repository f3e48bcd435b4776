package postgres

import (
	"context"
	"fmt"

	"spendsync/internal/domain/refresh"
)

type UserRepository struct {
	db Querier
}

var _ refresh.UserLister = (*UserRepository)(nil)

func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

// ListUserIDs returns every user that has at least one active item.
func (r *UserRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	query := `
		SELECT DISTINCT u.id
		FROM users u
		JOIN items i ON i.user_id = u.id
		WHERE i.is_active
		ORDER BY u.id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user ids: %w", err)
	}

	return ids, nil
}

// Exists reports whether a user with the given id exists.
func (r *UserRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}
