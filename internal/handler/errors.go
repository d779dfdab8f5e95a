package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/parking-space-reservation/internal/inventory"
    "github.com/iliyamo/parking-space-reservation/internal/receipt"
    "github.com/iliyamo/parking-space-reservation/internal/repository"
    "github.com/iliyamo/parking-space-reservation/internal/service"
    "github.com/iliyamo/parking-space-reservation/internal/storage"
)

// apiError is the JSON body of every failed request.
type apiError struct {
    Error              string `json:"error"`
    Code               string `json:"code"`
    Field              string `json:"field,omitempty"`
    ActiveReservations int    `json:"active_reservations,omitempty"`
}

func fail(c echo.Context, status int, code, msg string) error {
    return c.JSON(status, apiError{Error: msg, Code: code})
}

func badRequest(c echo.Context, msg string) error {
    return fail(c, http.StatusBadRequest, "validation_error", msg)
}

// writeError maps domain and persistence errors onto HTTP responses.
func writeError(c echo.Context, log *zap.Logger, err error) error {
    var (
        ve     *service.ValidationError
        active *repository.ActiveReservationsError
    )
    switch {
    case errors.As(err, &ve):
        return c.JSON(http.StatusBadRequest, apiError{Error: ve.Error(), Code: "validation_error", Field: ve.Field})
    case errors.Is(err, service.ErrUnauthenticated):
        return fail(c, http.StatusUnauthorized, "unauthenticated", "authentication required")
    case errors.Is(err, repository.ErrForbidden):
        return fail(c, http.StatusForbidden, "forbidden", "forbidden")
    case errors.Is(err, repository.ErrNotFound):
        return fail(c, http.StatusNotFound, "not_found", "not found")
    case errors.As(err, &active):
        return c.JSON(http.StatusConflict, apiError{
            Error: active.Error(), Code: "has_active_reservations", ActiveReservations: active.Count,
        })
    case errors.Is(err, repository.ErrNoCapacity):
        return fail(c, http.StatusConflict, "no_capacity", "no parking space available")
    case errors.Is(err, repository.ErrSpaceInactive):
        return fail(c, http.StatusConflict, "space_inactive", "this space is not accepting reservations")
    case errors.Is(err, repository.ErrInvalidTransition):
        return fail(c, http.StatusConflict, "invalid_transition", "reservation cannot change to the requested status")
    case errors.Is(err, repository.ErrCapacityBelowOutstanding):
        return fail(c, http.StatusConflict, "capacity_below_outstanding", err.Error())
    case errors.Is(err, repository.ErrEmailExists), errors.Is(err, repository.ErrConflict):
        return fail(c, http.StatusConflict, "conflict", "resource already exists")
    case errors.Is(err, service.ErrPaymentFailed):
        return fail(c, http.StatusPaymentRequired, "payment_failed", "payment could not be started")
    case errors.Is(err, service.ErrContactSupport):
        log.Error("partial effect reported to client", zap.String("path", c.Path()), zap.Error(err))
        return fail(c, http.StatusBadGateway, "contact_support", err.Error())
    case errors.Is(err, receipt.ErrBadPass):
        return fail(c, http.StatusBadRequest, "invalid_pass", err.Error())
    case errors.Is(err, storage.ErrUnsupportedImage):
        return fail(c, http.StatusUnsupportedMediaType, "unsupported_image", err.Error())
    case errors.Is(err, repository.ErrPersistenceTimeout):
        c.Response().Header().Set("Retry-After", "1")
        return fail(c, http.StatusGatewayTimeout, "persistence_timeout", "the database did not answer in time, please retry")
    case errors.Is(err, repository.ErrPersistenceUnavailable):
        c.Response().Header().Set("Retry-After", "2")
        return fail(c, http.StatusServiceUnavailable, "persistence_unavailable", "the database is unavailable, please retry")
    case errors.Is(err, inventory.ErrInvariantViolation):
        log.Error("inventory invariant violated", zap.String("path", c.Path()), zap.Error(err))
        return fail(c, http.StatusInternalServerError, "internal_error", "internal error")
    default:
        log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
        return fail(c, http.StatusInternalServerError, "internal_error", "internal error")
    }
}
