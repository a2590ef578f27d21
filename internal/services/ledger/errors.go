package ledger

import "errors"

var (
	// ErrUnavailable means the call did not reach the ledger or the ledger
	// could not serve it. Nothing was committed.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrRejected means the ledger refused the operation.
	ErrRejected = errors.New("ledger rejected operation")
	// ErrOutcomeUnknown means a submitted transfer may or may not have
	// committed.
	ErrOutcomeUnknown = errors.New("ledger outcome unknown")
	ErrNotFound       = errors.New("account not found")
)
