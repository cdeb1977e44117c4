package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/service"
)

// MemberHandler exposes the member directory and the eligibility gate.
type MemberHandler struct {
	Directory *service.MemberDirectory
	Gate      *service.EligibilityGate
}

func NewMemberHandler(d *service.MemberDirectory, g *service.EligibilityGate) *MemberHandler {
	return &MemberHandler{Directory: d, Gate: g}
}

// List handles GET /v1/members?status=&membership_type=.
func (h *MemberHandler) List(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	members, err := h.Directory.ListMembers(c.Request().Context(), p, service.MemberQuery{
		Status:         model.MemberStatus(c.QueryParam("status")),
		MembershipType: model.MembershipType(c.QueryParam("membership_type")),
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, members)
}

// Get handles GET /v1/members/:id.
func (h *MemberHandler) Get(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid member id")
	}
	m, err := h.Directory.GetMember(c.Request().Context(), p, id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Eligibility handles GET /v1/members/:id/eligibility.
func (h *MemberHandler) Eligibility(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid member id")
	}
	el, err := h.Gate.GetEligibility(c.Request().Context(), p, id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, el)
}

// Update handles PATCH /v1/members/:id.
func (h *MemberHandler) Update(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid member id")
	}
	var patch service.MemberPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, "invalid body")
	}
	m, err := h.Directory.UpdateMember(c.Request().Context(), p, id, patch)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Delete handles DELETE /v1/members/:id.
func (h *MemberHandler) Delete(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid member id")
	}
	if err := h.Directory.DeleteMember(c.Request().Context(), p, id); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
