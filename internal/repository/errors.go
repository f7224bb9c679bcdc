package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrVersionConflict signals that an optimistic projection write lost a race.
	ErrVersionConflict = errors.New("projection version conflict")
	// ErrUniqueViolation signals a unique or partial unique index rejected the row.
	ErrUniqueViolation = errors.New("unique constraint violation")
	// ErrGuardFailed signals that a conditional update matched no row because its guard did not hold.
	ErrGuardFailed = errors.New("conditional update guard failed")
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
