package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Repository errors
var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrDuplicate        = errors.New("duplicate record")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// translate maps driver errors onto the repository errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "22001", "22003", "22P02":
			return fmt.Errorf("invalid value: %s", pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// ErrLockHeld is returned when another holder owns a settlement lock.
var ErrLockHeld = errors.New("lock held by another request")
