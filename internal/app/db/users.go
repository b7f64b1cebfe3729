package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parley/internal/app/model"
	"parley/internal/app/store"
)

const userColumns = `id::text, username, email, password_hash, is_online, last_seen, status,
	theme, notifications, language, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var lastSeen *time.Time
	var status string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsOnline, &lastSeen, &status,
		&u.Preferences.Theme, &u.Preferences.Notifications, &u.Preferences.Language, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastSeen != nil {
		u.LastSeen = *lastSeen
	}
	u.Status = model.Status(status)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.Status == "" {
		u.Status = model.StatusOffline
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, status, theme, notifications, language)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id::text, created_at`,
		u.Username, u.Email, u.PasswordHash, string(u.Status),
		u.Preferences.Theme, u.Preferences.Notifications, u.Preferences.Language,
	).Scan(&u.ID, &u.CreatedAt)
	if IsUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err = lookupErr(err); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
	if err = lookupErr(err); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("userRepo.GetByUsername: %w", err)
	}
	return u, nil
}

func (s *Store) UpdatePresence(ctx context.Context, id string, status model.Status, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET status = $2, is_online = $3, last_seen = $4 WHERE id = $1`,
		id, string(status), status != model.StatusOffline, at,
	)
	if notFound(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("userRepo.UpdatePresence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
