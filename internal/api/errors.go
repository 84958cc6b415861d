package api

import (
	"errors"
	"net/http"

	"github.com/sadaqah/roundup-service/internal/domain"
	"github.com/sadaqah/roundup-service/internal/store"
)

const retryAfterSeconds = "1"

// mapError turns a domain error into a status code and a message that is safe to
// show the client. Validation errors raised by the service are shown as-is; anything
// that came back from the database only ever exposes its kind.
func mapError(err error) (int, string) {
	var storeErr *store.Error
	fromStore := errors.As(err, &storeErr)

	clientMessage := func(kind error) string {
		if fromStore {
			return kind.Error()
		}
		return err.Error()
	}

	switch {
	case errors.Is(err, domain.ErrInvalidSort):
		return http.StatusBadRequest, domain.ErrInvalidSort.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrOperationNotAllowed):
		return http.StatusMethodNotAllowed, domain.ErrOperationNotAllowed.Error()
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, clientMessage(domain.ErrInvalidRequest)
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusBadRequest, clientMessage(domain.ErrInvalidTransition)
	case errors.Is(err, domain.ErrNothingToDonate):
		return http.StatusBadRequest, domain.ErrNothingToDonate.Error()
	case errors.Is(err, domain.ErrCharityNotZakatReady):
		return http.StatusBadRequest, domain.ErrCharityNotZakatReady.Error()
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, domain.ErrConflict.Error()
	case errors.Is(err, domain.ErrStorageTimeout):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}
