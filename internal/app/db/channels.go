package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"parley/internal/app/model"
	"parley/internal/app/store"
)

const channelSelect = `SELECT c.id::text, c.name, c.description, c.is_private, c.is_restricted,
	c.created_by::text, c.created_at,
	COALESCE(array_agg(m.user_id::text ORDER BY m.joined_at) FILTER (WHERE m.user_id IS NOT NULL), '{}')
	FROM channels c
	LEFT JOIN channel_members m ON m.channel_id = c.id`

func scanChannel(row rowScanner) (*model.Channel, error) {
	c := &model.Channel{}
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.IsPrivate, &c.IsRestricted,
		&c.CreatedBy, &c.CreatedAt, &c.Members)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) CreateChannel(ctx context.Context, c *model.Channel) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("channelRepo.Create begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO channels (name, description, is_private, is_restricted, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id::text, created_at`,
		c.Name, c.Description, c.IsPrivate, c.IsRestricted, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt)
	if IsUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("channelRepo.Create: %w", err)
	}

	for _, userID := range c.Members {
		if _, err := tx.Exec(ctx,
			`INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			c.ID, userID,
		); err != nil {
			return fmt.Errorf("channelRepo.Create members: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("channelRepo.Create commit: %w", err)
	}
	return nil
}

func (s *Store) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	c, err := scanChannel(s.pool.QueryRow(ctx, channelSelect+` WHERE c.id = $1 GROUP BY c.id`, id))
	if err = lookupErr(err); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("channelRepo.Get: %w", err)
	}
	return c, nil
}

func (s *Store) ListChannels(ctx context.Context) ([]*model.Channel, error) {
	rows, err := s.pool.Query(ctx, channelSelect+` GROUP BY c.id ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("channelRepo.List query: %w", err)
	}
	defer rows.Close()

	channels := make([]*model.Channel, 0)
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("channelRepo.List scan: %w", err)
		}
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("channelRepo.List rows: %w", err)
	}
	return channels, nil
}

func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if notFound(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("channelRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AddMember relies on the (channel_id, user_id) primary key for atomicity.
func (s *Store) AddMember(ctx context.Context, channelID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		channelID, userID,
	)
	if notFound(err) || pgCode(err) == codeForeignKeyViolation {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("channelRepo.AddMember: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAlreadyMember
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, channelID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID,
	)
	if notFound(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("channelRepo.RemoveMember: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM channels WHERE id = $1)`, channelID).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("channelRepo.RemoveMember exists: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrNotMember
}
