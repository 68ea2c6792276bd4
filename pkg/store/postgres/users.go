package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ArionMiles/autoexpense/pkg/api"
)

// UpsertUser creates the user or refreshes name and picture for an existing
// email. The stored id is returned; it is never changed after creation.
func (s *Store) UpsertUser(ctx context.Context, u api.User) (*api.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	var out api.User
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name, picture)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			picture = EXCLUDED.picture,
			updated_at = NOW()
		RETURNING id, email, name, picture`,
		u.ID, u.Email, u.Name, u.Picture,
	).Scan(&out.ID, &out.Email, &out.Name, &out.Picture)
	if err != nil {
		return nil, fmt.Errorf("upserting user %s: %w", u.Email, err)
	}

	s.logger.Debug("upserted user", "user_id", out.ID)
	return &out, nil
}
