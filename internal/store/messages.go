package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateMessage persists a new unread message and returns the stored row
// with its assigned id and creation time.
func (s *Store) CreateMessage(ctx context.Context, senderID int64, receiverID *int64, content string) (*Message, error) {
	const query = `
		INSERT INTO messages (sender_id, receiver_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	msg := &Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
	}

	var recv sql.NullInt64
	if receiverID != nil {
		recv = sql.NullInt64{Int64: *receiverID, Valid: true}
	}

	err := s.db.QueryRowContext(ctx, query, senderID, recv, content).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create message: %w", err)
	}
	return msg, nil
}

// UnreadCountFromSender counts unread messages sent by senderID to
// receiverID. This is the per-peer counter pushed alongside newMessage.
func (s *Store) UnreadCountFromSender(ctx context.Context, receiverID, senderID int64) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM messages
		WHERE receiver_id = $1 AND sender_id = $2 AND read = FALSE`

	var count int
	if err := s.db.QueryRowContext(ctx, query, receiverID, senderID).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: unread count: %w", err)
	}
	return count, nil
}

// MarkMessagesRead flips all unread messages from senderID to receiverID to
// read, stamping read_at. Returns the number of rows updated; calling it
// again with nothing unread is a no-op returning 0.
func (s *Store) MarkMessagesRead(ctx context.Context, receiverID, senderID int64) (int64, error) {
	const query = `
		UPDATE messages
		SET read = TRUE, read_at = now()
		WHERE sender_id = $1 AND receiver_id = $2 AND read = FALSE`

	res, err := s.db.ExecContext(ctx, query, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("store: mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: mark read rows: %w", err)
	}
	return n, nil
}

// UnreadSenders returns the distinct sender IDs that have unread messages
// addressed to receiverID.
func (s *Store) UnreadSenders(ctx context.Context, receiverID int64) ([]int64, error) {
	const query = `
		SELECT DISTINCT sender_id
		FROM messages
		WHERE receiver_id = $1 AND read = FALSE
		ORDER BY sender_id`

	rows, err := s.db.QueryContext(ctx, query, receiverID)
	if err != nil {
		return nil, fmt.Errorf("store: unread senders: %w", err)
	}
	defer rows.Close()

	var senders []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: unread senders scan: %w", err)
		}
		senders = append(senders, id)
	}
	return senders, rows.Err()
}

// HistoryBetween returns the full two-party conversation between a and b,
// oldest first, enriched with sender and receiver summaries.
func (s *Store) HistoryBetween(ctx context.Context, a, b int64) ([]Message, error) {
	const query = `
		SELECT m.id, m.sender_id, m.receiver_id, m.content, m.read, m.read_at, m.created_at,
		       su.id, su.username, COALESCE(su.name, ''), COALESCE(su.profile_photo, ''),
		       ru.id, ru.username, COALESCE(ru.name, ''), COALESCE(ru.profile_photo, '')
		FROM messages m
		JOIN users su ON su.id = m.sender_id
		JOIN users ru ON ru.id = m.receiver_id
		WHERE (m.sender_id = $1 AND m.receiver_id = $2)
		   OR (m.sender_id = $2 AND m.receiver_id = $1)
		ORDER BY m.created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, a, b)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m        Message
			recv     sql.NullInt64
			readAt   sql.NullTime
			sender   UserSummary
			receiver UserSummary
		)
		err := rows.Scan(&m.ID, &m.SenderID, &recv, &m.Content, &m.Read, &readAt, &m.CreatedAt,
			&sender.ID, &sender.Username, &sender.Name, &sender.ProfilePhoto,
			&receiver.ID, &receiver.Username, &receiver.Name, &receiver.ProfilePhoto)
		if err != nil {
			return nil, fmt.Errorf("store: history scan: %w", err)
		}
		if recv.Valid {
			m.ReceiverID = &recv.Int64
		}
		if readAt.Valid {
			m.ReadAt = &readAt.Time
		}
		m.Sender = &sender
		m.Receiver = &receiver
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PublicHistory returns all broadcast messages (nil receiver), oldest first,
// enriched with sender summaries.
func (s *Store) PublicHistory(ctx context.Context) ([]Message, error) {
	const query = `
		SELECT m.id, m.sender_id, m.content, m.read, m.created_at,
		       su.id, su.username, COALESCE(su.name, ''), COALESCE(su.profile_photo, '')
		FROM messages m
		JOIN users su ON su.id = m.sender_id
		WHERE m.receiver_id IS NULL
		ORDER BY m.created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: public history: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m      Message
			sender UserSummary
		)
		err := rows.Scan(&m.ID, &m.SenderID, &m.Content, &m.Read, &m.CreatedAt,
			&sender.ID, &sender.Username, &sender.Name, &sender.ProfilePhoto)
		if err != nil {
			return nil, fmt.Errorf("store: public history scan: %w", err)
		}
		m.Sender = &sender
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
