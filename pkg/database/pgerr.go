package database

import (
	"errors"

	"github.com/lib/pq"
)

// Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation. Uniqueness constraints are the concurrency guard for
// idempotent inserts (idempotency keys, one unlock per user and
// achievement), so callers treat this as a lost race, not a failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
