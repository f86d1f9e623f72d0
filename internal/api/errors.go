package api

import (
	"errors"
	"net/http"

	"github.com/bondedhq/link-server/internal/api/respond"
	"github.com/bondedhq/link-server/internal/model"
)

// writeDomainError maps sentinel errors onto HTTP status codes. Anything
// unrecognized becomes a 500 without leaking internals.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		respond.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrConflict):
		respond.WriteError(w, http.StatusConflict, err.Error())
	default:
		respond.WriteInternalError(w, "internal error")
	}
}
