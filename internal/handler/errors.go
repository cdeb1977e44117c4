package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-class-booking/internal/middleware"
	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/service"
)

// errorStatus maps engine errors to a status and a stable error code.
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
	{service.ErrMembershipInactive, http.StatusForbidden, "membership_inactive"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{service.ErrClassFull, http.StatusConflict, "class_full"},
	{service.ErrCapacityExceeded, http.StatusConflict, "class_full"},
	{service.ErrDuplicateBooking, http.StatusConflict, "duplicate_booking"},
	{service.ErrDuplicateTransaction, http.StatusConflict, "duplicate_transaction"},
	{service.ErrNotCancellable, http.StatusConflict, "not_cancellable"},
	{service.ErrConflict, http.StatusConflict, "conflict"},
	{service.ErrEmailExists, http.StatusConflict, "email_exists"},
	{service.ErrInvalidCapacity, http.StatusUnprocessableEntity, "invalid_capacity"},
	{service.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
}

// writeServiceError renders err as {"error": code, "message": text}. A
// partial payment failure also returns the stored payment so the client
// can retry with its transaction id.
func writeServiceError(c echo.Context, err error) error {
	var pf *service.PartialFailureError
	if errors.As(err, &pf) {
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error":   "partial_failure",
			"message": service.ErrPartialFailure.Error(),
			"payment": pf.Payment,
		})
	}
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			return c.JSON(m.status, echo.Map{"error": m.code, "message": err.Error()})
		}
	}
	slog.ErrorContext(c.Request().Context(), "request failed",
		"method", c.Request().Method, "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_input", "message": msg})
}

// principal returns the authenticated caller or writes a 401.
func principal(c echo.Context) (model.Principal, bool) {
	p, err := middleware.Principal(c)
	if err != nil {
		_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "unauthorized"})
		return model.Principal{}, false
	}
	return p, true
}

func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// queryUint reads an optional positive integer query parameter.
func queryUint(c echo.Context, name string) (uint64, error) {
	s := c.QueryParam(name)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// queryDate reads an optional YYYY-MM-DD query parameter.
func queryDate(c echo.Context, name string) (time.Time, error) {
	s := c.QueryParam(name)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(model.DateLayout, s)
}
