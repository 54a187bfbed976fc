package store

import "errors"

// Sentinel error kinds returned by the Store. Callers use errors.Is to test
// for these; the HTTP layer maps them onto the boundary error taxonomy.
var (
	// ErrNotInitialized is returned when a transactional method is called
	// on a nil Store or one without an open database handle.
	ErrNotInitialized = errors.New("store: not initialized")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrForeignKey is returned when a write references a row that does
	// not exist (a node's blueprintId, a dependency id, a callback's
	// execution id, ...).
	ErrForeignKey = errors.New("store: foreign key violation")

	// ErrConflict is returned on a unique-id collision, or when a caller
	// tries to create an execution with a pre-set terminal status (see
	// Store.CreateExecution).
	ErrConflict = errors.New("store: conflict")
)
