package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetUser returns the public summary for a user id, or ErrNotFound. The
// core only reads user rows; the excluded auth subsystem owns their
// lifecycle.
func (s *Store) GetUser(ctx context.Context, id int64) (*UserSummary, error) {
	const query = `
		SELECT id, username, COALESCE(name, ''), COALESCE(profile_photo, '')
		FROM users WHERE id = $1`

	var u UserSummary
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&u.ID, &u.Username, &u.Name, &u.ProfilePhoto)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return &u, nil
}
