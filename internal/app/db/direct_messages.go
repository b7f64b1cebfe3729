package db

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"parley/internal/app/model"
	"parley/internal/app/store"
)

const dmColumns = `id::text, sender_id::text, recipient_id::text, content, read, created_at`

func scanDirectMessage(row rowScanner) (*model.DirectMessage, error) {
	m := &model.DirectMessage{}
	if err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.Read, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) InsertDirectMessage(ctx context.Context, m *model.DirectMessage) error {
	m.Read = false
	err := s.pool.QueryRow(ctx,
		`INSERT INTO direct_messages (sender_id, recipient_id, content)
		 VALUES ($1, $2, $3)
		 RETURNING id::text, created_at`,
		m.SenderID, m.RecipientID, m.Content,
	).Scan(&m.ID, &m.CreatedAt)
	if notFound(err) || pgCode(err) == codeForeignKeyViolation {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("dmRepo.Insert: %w", err)
	}
	return nil
}

func (s *Store) ListDirectMessages(ctx context.Context, a, b string, before time.Time, limit int) ([]*model.DirectMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+dmColumns+`
		 FROM direct_messages
		 WHERE ((sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1))
		   AND ($3::timestamptz IS NULL OR created_at < $3)
		 ORDER BY seq DESC
		 LIMIT $4`, a, b, beforeArg(before), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("dmRepo.List query: %w", err)
	}
	defer rows.Close()

	messages := make([]*model.DirectMessage, 0, limit)
	for rows.Next() {
		m, err := scanDirectMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("dmRepo.List scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dmRepo.List rows: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

// ListConversations picks the latest message per counterparty and counts the
// messages addressed to userID that are still unread.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`WITH mine AS (
		     SELECT d.*, CASE WHEN d.sender_id = $1 THEN d.recipient_id ELSE d.sender_id END AS peer
		     FROM direct_messages d
		     WHERE d.sender_id = $1 OR d.recipient_id = $1
		 ), latest AS (
		     SELECT DISTINCT ON (peer) *
		     FROM mine
		     ORDER BY peer, seq DESC
		 ), unread AS (
		     SELECT peer, count(*) FILTER (WHERE recipient_id = $1 AND NOT read) AS n
		     FROM mine
		     GROUP BY peer
		 )
		 SELECT l.peer::text, COALESCE(u.username, ''),
		        l.id::text, l.sender_id::text, l.recipient_id::text, l.content, l.read, l.created_at,
		        un.n
		 FROM latest l
		 JOIN unread un ON un.peer = l.peer
		 LEFT JOIN users u ON u.id = l.peer
		 ORDER BY l.seq DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("dmRepo.Conversations query: %w", err)
	}
	defer rows.Close()

	convs := make([]*model.Conversation, 0)
	for rows.Next() {
		c := &model.Conversation{LastMessage: &model.DirectMessage{}}
		last := c.LastMessage
		if err := rows.Scan(&c.UserID, &c.Username,
			&last.ID, &last.SenderID, &last.RecipientID, &last.Content, &last.Read, &last.CreatedAt,
			&c.UnreadCount); err != nil {
			return nil, fmt.Errorf("dmRepo.Conversations scan: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dmRepo.Conversations rows: %w", err)
	}
	return convs, nil
}

func (s *Store) GetDirectMessage(ctx context.Context, id string) (*model.DirectMessage, error) {
	m, err := scanDirectMessage(s.pool.QueryRow(ctx, `SELECT `+dmColumns+` FROM direct_messages WHERE id = $1`, id))
	if err = lookupErr(err); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("dmRepo.Get: %w", err)
	}
	return m, nil
}

func (s *Store) MarkRead(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE direct_messages SET read = TRUE WHERE id = $1`, id)
	if notFound(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("dmRepo.MarkRead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
