package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrTenantMissing   = errors.New("tenant is missing")
	ErrCycleInProgress = errors.New("cycle already in progress")

	// source errors
	ErrSourceNotFound     = errors.New("source store not found")
	ErrSourceUnavailable  = errors.New("source store unavailable")
	ErrSourceCorrupt      = errors.New("source store query failed")
	ErrSourceWritableMode = errors.New("source store must be opened read-only")

	// replica errors
	ErrReplicaWriteFailure = errors.New("replica write failed")
	ErrReplicaUnavailable  = errors.New("replica store unavailable")

	// classification errors
	ErrClassificationTransient = errors.New("classification failed (transient)")
	ErrClassificationPermanent = errors.New("classification failed (permanent)")
	ErrBudgetExceeded          = errors.New("classification budget exceeded")
)

// IsRecoverable reports whether the scheduler may simply retry on its next tick
func IsRecoverable(err error) bool {
	return err == nil || !errors.Is(err, ErrReplicaUnavailable)
}
