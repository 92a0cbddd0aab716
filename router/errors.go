package router

import (
	"errors"
	"net/http"

	"github.com/lmsilo/transcribe-backend/apierr"
)

// writeDomainError maps a domain-layer sentinel error (apierr.Err*) to an
// HTTP status code and writes it as a JSON error body. Errors that don't
// wrap a known sentinel fall back to 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apierr.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apierr.ErrResourceMissing):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apierr.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apierr.ErrPrecondition):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apierr.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apierr.ErrCancelled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apierr.ErrEngine):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
