package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: entity does not exist in store
//   - ErrConflict: a lock or serialization check lost against a concurrent writer
//   - ErrUnavailable: store or dependency unreachable
//   - ErrInvalidState: persisted data breaks an invariant the store can detect
//   - ErrAlreadyUsed: unique key already taken
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidState = errors.New("invalid state")
	ErrAlreadyUsed  = errors.New("already used")
)
