package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// pqUniqueViolation is the Postgres error code for a unique/primary-key
// conflict, raised when a connection row for the ordered pair already exists.
const pqUniqueViolation = "23505"

// CreateRequest inserts a pending connection row for the ordered
// (requester, addressee) pair. The pair's primary key makes duplicate
// detection atomic: a second request for the same ordered pair fails with
// ErrDuplicateRequest regardless of the first row's status, and no row is
// written. The reverse pair is a distinct row and is not deduplicated.
func (s *Store) CreateRequest(ctx context.Context, requesterID, addresseeID int64) error {
	const query = `
		INSERT INTO connections (requester_id, addressee_id, status)
		VALUES ($1, $2, 'pending')`

	_, err := s.db.ExecContext(ctx, query, requesterID, addresseeID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("store: create request: %w", err)
	}
	return nil
}

// UpdateRequestStatus moves the pending row for (requesterID, addresseeID)
// to the given terminal status. The WHERE clause restricts the update to
// pending rows, so the transition happens exactly once; a row that is
// absent or already decided yields ErrNoPendingRequest.
func (s *Store) UpdateRequestStatus(ctx context.Context, requesterID, addresseeID int64, status string) error {
	const query = `
		UPDATE connections
		SET status = $3, updated_at = now()
		WHERE requester_id = $1 AND addressee_id = $2 AND status = 'pending'`

	res, err := s.db.ExecContext(ctx, query, requesterID, addresseeID, status)
	if err != nil {
		return fmt.Errorf("store: update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update request rows: %w", err)
	}
	if n == 0 {
		return ErrNoPendingRequest
	}
	return nil
}

// GetConnection returns the row for the exact ordered pair, or ErrNotFound.
func (s *Store) GetConnection(ctx context.Context, requesterID, addresseeID int64) (*Connection, error) {
	const query = `
		SELECT requester_id, addressee_id, status, created_at, updated_at
		FROM connections
		WHERE requester_id = $1 AND addressee_id = $2`

	var c Connection
	err := s.db.QueryRowContext(ctx, query, requesterID, addresseeID).
		Scan(&c.RequesterID, &c.AddresseeID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get connection: %w", err)
	}
	return &c, nil
}

// IsAuthorized reports whether an accepted connection exists between a and b
// in either direction. This is the gate the message pipeline consults before
// persisting a private message.
func (s *Store) IsAuthorized(ctx context.Context, a, b int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM connections
			WHERE status = 'accepted'
			  AND ((requester_id = $1 AND addressee_id = $2)
			    OR (requester_id = $2 AND addressee_id = $1))
		)`

	var ok bool
	if err := s.db.QueryRowContext(ctx, query, a, b).Scan(&ok); err != nil {
		return false, fmt.Errorf("store: is authorized: %w", err)
	}
	return ok, nil
}

// ConnectedPeers returns the users userID holds an accepted connection with,
// in either direction, deduplicated, newest connection first.
func (s *Store) ConnectedPeers(ctx context.Context, userID int64) ([]ConnectedPeer, error) {
	const query = `
		SELECT DISTINCT ON (u.id)
		       u.id, u.username, COALESCE(u.name, ''), COALESCE(u.profile_photo, ''), c.created_at
		FROM connections c
		JOIN users u ON u.id = CASE WHEN c.requester_id = $1 THEN c.addressee_id ELSE c.requester_id END
		WHERE c.status = 'accepted'
		  AND (c.requester_id = $1 OR c.addressee_id = $1)
		ORDER BY u.id, c.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: connected peers: %w", err)
	}
	defer rows.Close()

	var peers []ConnectedPeer
	for rows.Next() {
		var p ConnectedPeer
		err := rows.Scan(&p.User.ID, &p.User.Username, &p.User.Name, &p.User.ProfilePhoto, &p.ConnectedAt)
		if err != nil {
			return nil, fmt.Errorf("store: connected peers scan: %w", err)
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}
