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

const messageColumns = `id::text, channel_id::text, content, sender_type, sender_id::text, sender_name, created_at`

func scanMessage(row rowScanner) (*model.Message, error) {
	m := &model.Message{}
	var senderType string
	var senderID *string
	var senderName string
	if err := row.Scan(&m.ID, &m.ChannelID, &m.Content, &senderType, &senderID, &senderName, &m.CreatedAt); err != nil {
		return nil, err
	}

	switch model.SenderKind(senderType) {
	case model.SenderUser:
		if senderID == nil {
			return nil, fmt.Errorf("message %s: user sender without id", m.ID)
		}
		m.Sender = model.UserSender(*senderID, senderName)
	case model.SenderGuest:
		m.Sender = model.GuestSender(senderName)
	default:
		return nil, fmt.Errorf("message %s: unknown sender type %q", m.ID, senderType)
	}
	return m, nil
}

func (s *Store) InsertMessage(ctx context.Context, m *model.Message) error {
	var senderID *string
	switch m.Sender.Kind() {
	case model.SenderUser:
		id := m.Sender.UserID()
		senderID = &id
	case model.SenderGuest:
	default:
		return fmt.Errorf("msgRepo.Insert: sender without kind")
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (channel_id, content, sender_type, sender_id, sender_name)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id::text, created_at`,
		m.ChannelID, m.Content, string(m.Sender.Kind()), senderID, m.Sender.DisplayName(),
	).Scan(&m.ID, &m.CreatedAt)
	if notFound(err) || pgCode(err) == codeForeignKeyViolation {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("msgRepo.Insert: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, channelID string, before time.Time, limit int) ([]*model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE channel_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		 ORDER BY seq DESC
		 LIMIT $3`, channelID, beforeArg(before), limit,
	)
	if notFound(err) {
		return []*model.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.List query: %w", err)
	}
	defer rows.Close()

	messages := make([]*model.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("msgRepo.List scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		if notFound(err) {
			return []*model.Message{}, nil
		}
		return nil, fmt.Errorf("msgRepo.List rows: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err = lookupErr(err); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("msgRepo.Get: %w", err)
	}
	return m, nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if notFound(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("msgRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
