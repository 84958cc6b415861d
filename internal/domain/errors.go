package domain

import "errors"

// Error taxonomy shared by the store, app and api layers. Callers match with errors.Is;
// the api layer turns each kind into an HTTP status.
var (
	ErrInvalidSort          = errors.New("invalid sortBy")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflicts with an existing record")
	ErrOperationNotAllowed  = errors.New("operation not allowed")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrStorage              = errors.New("storage error")
	ErrStorageTimeout       = errors.New("storage timeout")
	ErrNothingToDonate      = errors.New("no pending pledges to donate")
	ErrCharityNotZakatReady = errors.New("charity is not zakat eligible")
)
