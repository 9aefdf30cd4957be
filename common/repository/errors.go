package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrNotResolvable is returned when an audit log is not in the flagged state
	ErrNotResolvable = errors.New("audit log is not flagged")
)

// notFound translates pgx.ErrNoRows into ErrNotFound
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
