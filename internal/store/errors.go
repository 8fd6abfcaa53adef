package store

import "errors"

var (
	// ErrAlreadyResolved reports a transition attempted on a change
	// request that has already reached a terminal status. Exactly one
	// caller ever observes the PENDING->terminal move; everyone else
	// gets this.
	ErrAlreadyResolved = errors.New("change request already resolved")

	// ErrInvalidStatus reports a transition to anything other than a
	// terminal status.
	ErrInvalidStatus = errors.New("invalid target status")
)
