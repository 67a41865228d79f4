package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Field  string `json:"field,omitempty"`
}

// writeDomainError maps the domain taxonomy to HTTP: 400 validation,
// 409 conflict, 404 not found, 503 busy with a Retry-After hint.
func writeDomainError(c echo.Context, err error) error {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: ve.Msg, Reason: ve.Reason, Field: ve.Field})
	}
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return c.JSON(http.StatusConflict, errorResponse{Error: conflict.Msg, Reason: conflict.Reason})
	}
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: nf.Error(), Reason: "not_found"})
	}
	if errors.Is(err, domain.ErrStoreBusy) {
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "store busy, retry shortly", Reason: "store_busy"})
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, "internal error")
}

func stageForError(err error) string {
	var ve *domain.ValidationError
	var conflict *domain.ConflictError
	var nf *domain.NotFoundError
	switch {
	case errors.As(err, &ve):
		return "validate"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &nf):
		return "lookup"
	case errors.Is(err, domain.ErrStoreBusy):
		return "store_busy"
	default:
		return "storage"
	}
}
