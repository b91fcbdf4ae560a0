package ledgerrun

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("ledgerrun: no store configured")
	ErrStoreClosed     = errors.New("ledgerrun: store closed")
	ErrMigrationFailed = errors.New("ledgerrun: migration failed")

	// Not found errors.
	ErrRunNotFound         = errors.New("ledgerrun: run not found")
	ErrSignalNotFound      = errors.New("ledgerrun: signal not found")
	ErrTransactionNotFound = errors.New("ledgerrun: transaction not found")
	ErrAccountNotFound     = errors.New("ledgerrun: account not found")

	// Conflict errors.
	ErrRunAlreadyExists = errors.New("ledgerrun: run already exists")

	// State errors.
	ErrNoSession         = errors.New("ledgerrun: run has no active session")
	ErrUnknownSignal     = errors.New("ledgerrun: no handler for signal")
	ErrRetriesExhausted  = errors.New("ledgerrun: max retries exceeded")
	ErrInvalidTransition = errors.New("ledgerrun: invalid run state transition")
)
