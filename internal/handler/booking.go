package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/service"
)

// BookingHandler exposes the booking engine.
type BookingHandler struct {
	Engine *service.BookingEngine
}

func NewBookingHandler(e *service.BookingEngine) *BookingHandler {
	return &BookingHandler{Engine: e}
}

// Create handles POST /v1/bookings. Members book for themselves; admins
// name the member in the body.
func (h *BookingHandler) Create(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	var req service.BookingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	b, err := h.Engine.CreateBooking(c.Request().Context(), p, req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// List handles GET /v1/bookings?status=&class_id=&from=&to=.
func (h *BookingHandler) List(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	classID, err := queryUint(c, "class_id")
	if err != nil {
		return badRequest(c, "invalid class_id")
	}
	q := service.BookingQuery{
		Status:  model.BookingStatus(c.QueryParam("status")),
		ClassID: classID,
	}
	for name, dst := range map[string]*string{"from": &q.From, "to": &q.To} {
		d, err := queryDate(c, name)
		if err != nil {
			return badRequest(c, "invalid "+name+" date")
		}
		if !d.IsZero() {
			*dst = d.Format(model.DateLayout)
		}
	}
	bookings, err := h.Engine.ListBookings(c.Request().Context(), p, q)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, bookings)
}

// Upcoming handles GET /v1/bookings/upcoming.
func (h *BookingHandler) Upcoming(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	bookings, err := h.Engine.UpcomingBookings(c.Request().Context(), p)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, bookings)
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.Engine.GetBooking(c.Request().Context(), p, id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Cancel handles DELETE /v1/bookings/:id. Cancelling twice succeeds.
func (h *BookingHandler) Cancel(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.Engine.CancelBooking(c.Request().Context(), id, p)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}
