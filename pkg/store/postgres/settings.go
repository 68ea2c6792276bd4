package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ArionMiles/autoexpense/pkg/api"
)

const settingsColumns = `id, user_id, sender_email, subject_keywords, has_attachment, label, custom_query, created_at, updated_at`

func scanSettings(row pgx.Row) (*api.EmailFilterSettings, error) {
	var f api.EmailFilterSettings
	err := row.Scan(
		&f.ID, &f.UserID, &f.SenderEmail, &f.SubjectKeywords, &f.HasAttachment,
		&f.Label, &f.CustomQuery, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetEmailFilters returns the user's saved filter settings, or nil when none
// have been saved.
func (s *Store) GetEmailFilters(ctx context.Context, userID string) (*api.EmailFilterSettings, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+settingsColumns+` FROM email_filter_settings WHERE user_id = $1`,
		userID,
	)
	f, err := scanSettings(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting email filters: %w", err)
	}
	return f, nil
}

// SaveEmailFilters creates or replaces the user's single settings row.
func (s *Store) SaveEmailFilters(ctx context.Context, f *api.EmailFilterSettings) (*api.EmailFilterSettings, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO email_filter_settings (
			id, user_id, sender_email, subject_keywords, has_attachment, label, custom_query
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			sender_email = EXCLUDED.sender_email,
			subject_keywords = EXCLUDED.subject_keywords,
			has_attachment = EXCLUDED.has_attachment,
			label = EXCLUDED.label,
			custom_query = EXCLUDED.custom_query,
			updated_at = NOW()
		RETURNING `+settingsColumns,
		uuid.NewString(), f.UserID, f.SenderEmail, f.SubjectKeywords,
		f.HasAttachment, f.Label, f.CustomQuery,
	)
	saved, err := scanSettings(row)
	if err != nil {
		return nil, fmt.Errorf("saving email filters: %w", err)
	}
	return saved, nil
}
