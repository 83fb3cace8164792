package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsLockContentionErr reports whether err came from a row lock another
// transaction already holds, as opposed to a real failure.
func IsLockContentionErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()

	// PostgreSQL (error code 55P03, NOWAIT)
	if strings.Contains(msg, "could not obtain lock on row") {
		return true
	}

	// PostgreSQL (error code 40P01)
	if strings.Contains(msg, "deadlock detected") {
		return true
	}

	// MySQL (error codes 1205, 3572)
	if strings.Contains(msg, "Lock wait timeout exceeded") {
		return true
	}
	if strings.Contains(msg, "NOWAIT is set") {
		return true
	}

	// SQLite (error codes 5, 6)
	if strings.Contains(msg, "database is locked") {
		return true
	}
	if strings.Contains(msg, "database table is locked") {
		return true
	}

	return false
}
