package store

import (
	"context"
	"fmt"
)

// CreateNotification persists a notification for userID originating from
// fromUserID and returns the stored row.
func (s *Store) CreateNotification(ctx context.Context, userID, fromUserID int64, kind, content string) (*Notification, error) {
	const query = `
		INSERT INTO notifications (user_id, from_user_id, type, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_read, created_at`

	n := &Notification{
		UserID:     userID,
		FromUserID: fromUserID,
		Type:       kind,
		Content:    content,
	}
	err := s.db.QueryRowContext(ctx, query, userID, fromUserID, kind, content).
		Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create notification: %w", err)
	}
	return n, nil
}

// UnreadNotificationCount counts userID's unread notifications.
func (s *Store) UnreadNotificationCount(ctx context.Context, userID int64) (int, error) {
	const query = `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND is_read = FALSE`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: unread notification count: %w", err)
	}
	return count, nil
}

// MarkRequestNotificationsRead marks the connection_request notifications
// that fromUserID sent to userID as read. Matching is by the explicit
// (user, from_user, type) key rather than by content text, so renamed users
// or edited copy can never orphan a notification. Returns rows updated.
func (s *Store) MarkRequestNotificationsRead(ctx context.Context, userID, fromUserID int64) (int64, error) {
	const query = `
		UPDATE notifications
		SET is_read = TRUE
		WHERE user_id = $1 AND from_user_id = $2
		  AND type = 'connection_request' AND is_read = FALSE`

	res, err := s.db.ExecContext(ctx, query, userID, fromUserID)
	if err != nil {
		return 0, fmt.Errorf("store: mark request notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: mark request notifications rows: %w", err)
	}
	return n, nil
}

// ListNotifications returns userID's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID int64) ([]Notification, error) {
	const query = `
		SELECT id, user_id, from_user_id, type, content, is_read, response_status, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list notifications: %w", err)
	}
	defer rows.Close()

	var notifs []Notification
	for rows.Next() {
		var n Notification
		err := rows.Scan(&n.ID, &n.UserID, &n.FromUserID, &n.Type, &n.Content,
			&n.IsRead, &n.ResponseStatus, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("store: list notifications scan: %w", err)
		}
		notifs = append(notifs, n)
	}
	return notifs, rows.Err()
}

// MarkNotificationRead flips a single notification to read, scoped to its
// owner. Returns ErrNotFound if the id does not belong to userID.
func (s *Store) MarkNotificationRead(ctx context.Context, id, userID int64) error {
	const query = `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND user_id = $2`

	res, err := s.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("store: mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: mark notification rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RespondNotification records the addressee's decision on a
// connection_request notification and marks it read in the same statement.
// Scoped to the owner; returns ErrNotFound for a foreign or missing id.
func (s *Store) RespondNotification(ctx context.Context, id, userID int64, responseStatus string) error {
	const query = `
		UPDATE notifications
		SET response_status = $3, is_read = TRUE
		WHERE id = $1 AND user_id = $2`

	res, err := s.db.ExecContext(ctx, query, id, userID, responseStatus)
	if err != nil {
		return fmt.Errorf("store: respond notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: respond notification rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
