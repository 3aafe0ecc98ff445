package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"gorm.io/gorm"
)

// TranslateError maps driver errors onto domain errors: missing rows become
// shared.ErrNotFound and unique-key violations become shared.ErrAlreadyExists.
// Other errors are returned unchanged.
func TranslateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", shared.ErrAlreadyExists, err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique-key violation on postgres or sqlite
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
