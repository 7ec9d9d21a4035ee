package storage

import (
	"errors"

	"github.com/healpoint/healpoint/libs/db"
)

// ErrConflict covers unique violations and deletes blocked by references.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidReference = errors.New("referenced record does not exist")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// classify maps driver errors onto the storage sentinels.
// onDelete distinguishes a row still referenced (conflict) from a missing parent on insert.
func classify(err error, onDelete bool) error {
	switch {
	case err == nil:
		return nil
	case db.IsNoRows(err):
		return ErrNotFound
	case db.HasCode(err, db.CodeUniqueViolation, db.CodeExclusionViolation):
		return ErrConflict
	case db.HasCode(err, db.CodeForeignKeyViolation):
		if onDelete {
			return ErrConflict
		}
		return ErrInvalidReference
	default:
		return err
	}
}
