package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/service"
)

// PaymentHandler exposes the payment ledger.
type PaymentHandler struct {
	Ledger *service.PaymentLedger
}

func NewPaymentHandler(l *service.PaymentLedger) *PaymentHandler {
	return &PaymentHandler{Ledger: l}
}

// Record handles POST /v1/payments. A 502 partial_failure response still
// carries the stored payment; resend the same transaction_id to finish.
func (h *PaymentHandler) Record(c echo.Context) error {
	var in service.PaymentInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid body")
	}
	p, err := h.Ledger.RecordPayment(c.Request().Context(), in)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// List handles GET /v1/payments?status=&start_date=&end_date=. Both dates
// are inclusive calendar days.
func (h *PaymentHandler) List(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	from, err := queryDate(c, "start_date")
	if err != nil {
		return badRequest(c, "invalid start_date")
	}
	to, err := queryDate(c, "end_date")
	if err != nil {
		return badRequest(c, "invalid end_date")
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1).Add(-1)
	}
	payments, err := h.Ledger.ListPayments(c.Request().Context(), p, service.PaymentQuery{
		Status: model.PaymentStatus(c.QueryParam("status")),
		From:   from,
		To:     to,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, payments)
}

// Expiring handles GET /v1/payments/expiring?days=7.
func (h *PaymentHandler) Expiring(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	days := 0
	if s := c.QueryParam("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return badRequest(c, "invalid days")
		}
		days = n
	}
	payments, err := h.Ledger.ExpiringMemberships(c.Request().Context(), p, days)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, payments)
}

// Get handles GET /v1/payments/:id.
func (h *PaymentHandler) Get(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid payment id")
	}
	pay, err := h.Ledger.GetPayment(c.Request().Context(), p, id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, pay)
}

// ForMember handles GET /v1/payments/member/:memberId.
func (h *PaymentHandler) ForMember(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "memberId")
	if !ok {
		return badRequest(c, "invalid member id")
	}
	payments, err := h.Ledger.MemberPayments(c.Request().Context(), p, id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, payments)
}
