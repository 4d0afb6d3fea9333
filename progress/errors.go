package progress

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound means the referenced plan or progress record does not exist.
	ErrNotFound = errors.New("progress: not found")
	// ErrValidation means the input was rejected before any mutation.
	ErrValidation = errors.New("progress: validation failed")
	// ErrStorage wraps failures of the underlying store.
	ErrStorage = errors.New("progress: storage failure")
	// ErrConflict means a concurrent writer won, the record is locked, or
	// a record already exists for the (user, plan) pair.
	ErrConflict = errors.New("progress: conflict")
)

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

func storageFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func conflict(reason, id string) error {
	return fmt.Errorf("%w: %s %q", ErrConflict, reason, id)
}

// isDuplicateKey matches unique-index violations from the sqlite and mysql drivers.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry")
}
