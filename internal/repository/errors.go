package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateIntegration is returned when a (user, vendor) pairing already exists
	ErrDuplicateIntegration = errors.New("vendor integration already exists")

	// ErrDuplicateCredential is returned when an integration already has a credential row
	ErrDuplicateCredential = errors.New("credential for this integration already exists")
)
