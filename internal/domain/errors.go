package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrMissingTxContext  = errors.New("transaction context missing")
	ErrLockHeld          = errors.New("lock already held")
	ErrEmptyCluster      = errors.New("rule has no cluster addresses")
	ErrInvalidIdentifier = errors.New("invalid sql identifier")
	ErrInvalidRule       = errors.New("invalid rule detail")
)
