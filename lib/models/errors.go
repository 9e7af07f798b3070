package models

import "errors"

var (
	// ErrValidation covers malformed emails, empty or oversized watchlists
	// and unknown enum values. Nothing is persisted when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrQuotaExceeded is returned when a new subscription would push the
	// count of pending+active subscribers over the configured quota.
	ErrQuotaExceeded = errors.New("subscriber quota exceeded")

	// ErrLimitReached is returned when the manual trigger counter is already
	// at its daily cap.
	ErrLimitReached = errors.New("manual trigger limit reached")

	// ErrNotFound is a normal negative lookup result, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrDispatchBusy means another dispatch run holds the run lock.
	ErrDispatchBusy = errors.New("a dispatch run is already in progress")
)
