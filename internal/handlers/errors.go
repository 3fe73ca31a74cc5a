package handlers

import (
	"errors"
	"net/http"

	"github.com/grvbrk/vidcatalog_server/internal/catalog"
)

// statusFor maps a catalog error kind to its HTTP status. A duplicate title
// is a client error like any other invalid input.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, catalog.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrConflict), errors.Is(err, catalog.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
