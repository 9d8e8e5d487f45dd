package sentinel

import "errors"

// Sentinel errors for persistence facts. Stores return these (optionally
// wrapped) and services translate them into coded domain errors:
//   - ErrNotFound: entity does not exist in store
//   - ErrConflict: a uniqueness constraint rejected the write
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
