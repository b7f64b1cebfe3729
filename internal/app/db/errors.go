package db

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"parley/internal/app/store"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation checks if the error is a PostgreSQL unique constraint violation (code 23505).
func IsUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// notFound maps "no rows" and malformed ids to store.ErrNotFound. Ids come from
// URL paths, so a non-uuid id is just an id that does not exist.
func notFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || pgCode(err) == codeInvalidText
}

// lookupErr normalizes err for single-row reads.
func lookupErr(err error) error {
	if notFound(err) {
		return store.ErrNotFound
	}
	return err
}

// beforeArg turns a zero cursor into SQL NULL.
func beforeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
