package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/service"
)

// ClassHandler exposes the schedule catalog.
type ClassHandler struct {
	Catalog *service.ScheduleCatalog
}

func NewClassHandler(cat *service.ScheduleCatalog) *ClassHandler {
	return &ClassHandler{Catalog: cat}
}

// List handles GET /v1/classes?trainer_id=&difficulty=.
func (h *ClassHandler) List(c echo.Context) error {
	trainerID, err := queryUint(c, "trainer_id")
	if err != nil {
		return badRequest(c, "invalid trainer_id")
	}
	classes, err := h.Catalog.ListClasses(c.Request().Context(), service.ClassQuery{
		TrainerID:  trainerID,
		Difficulty: model.Difficulty(c.QueryParam("difficulty")),
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, classes)
}

// Schedule handles GET /v1/classes/schedule. With ?day= it returns that
// day only, otherwise the whole week.
func (h *ClassHandler) Schedule(c echo.Context) error {
	ctx := c.Request().Context()
	if day := c.QueryParam("day"); day != "" {
		d, err := h.Catalog.DaySchedule(ctx, model.Weekday(day))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, d)
	}
	week, err := h.Catalog.WeeklySchedule(ctx)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, week)
}

// Get handles GET /v1/classes/:id.
func (h *ClassHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid class id")
	}
	class, err := h.Catalog.GetClass(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, class)
}

// Create handles POST /v1/classes.
func (h *ClassHandler) Create(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	var in service.ClassInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid body")
	}
	class, err := h.Catalog.CreateClass(c.Request().Context(), p, in)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, class)
}

// Update handles PUT /v1/classes/:id. Omitted fields keep their value.
func (h *ClassHandler) Update(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid class id")
	}
	var in service.ClassInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid body")
	}
	class, err := h.Catalog.UpdateClass(c.Request().Context(), p, id, in)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, class)
}

// Delete handles DELETE /v1/classes/:id.
func (h *ClassHandler) Delete(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid class id")
	}
	if err := h.Catalog.DeleteClass(c.Request().Context(), p, id); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
