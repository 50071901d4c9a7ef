package store

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingTableName is returned at construction when no table name
	// is configured. Callers should treat it as fatal.
	ErrMissingTableName = errors.New("rolodex: table name not configured")

	// ErrStoreUnavailable is returned after a transient store error has
	// exhausted its retry budget.
	ErrStoreUnavailable = errors.New("rolodex: store unavailable")
)

// ValidationError reports an item that fails the derived attribute
// schema. It is surfaced to the caller and never retried.
type ValidationError struct {
	Entity string // entity type name
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rolodex: invalid %s: field %q %s", e.Entity, e.Field, e.Reason)
}

// PartialCascadeError reports a cascade delete that removed some but not
// all of the enumerated items. The cascade is idempotent, so callers may
// simply run it again until it reports zero additional items found.
type PartialCascadeError struct {
	PersonID string
	Found    int // items enumerated for deletion
	Deleted  int // items actually deleted
	Errs     []error
}

func (e *PartialCascadeError) Error() string {
	return fmt.Sprintf("rolodex: cascade delete of person %s incomplete: deleted %d of %d items",
		e.PersonID, e.Deleted, e.Found)
}

func (e *PartialCascadeError) Unwrap() []error { return e.Errs }
