package scheduling

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/booking/internal/platform/apperr"
	"github.com/clinic/booking/internal/platform/auth"
	"github.com/clinic/booking/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the patient-facing routes on public and the staff
// routes on api, which must already authenticate.
func (h *Handler) RegisterRoutes(public *echo.Group, api *echo.Group) {
	public.GET("/doctors/:id/availability", h.Availability)
	public.POST("/appointments", h.Book)

	staff := auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist)
	doctorOnly := auth.RequireRole(auth.RoleDoctor)
	receptionOnly := auth.RequireRole(auth.RoleReceptionist)

	api.GET("/schedules", h.ListSchedules, staff)
	api.POST("/schedules", h.CreateSchedule, doctorOnly)
	api.PUT("/schedules/:id", h.UpdateSchedule, doctorOnly)
	api.DELETE("/schedules/:id", h.DeleteSchedule, doctorOnly)

	api.GET("/appointments", h.ListAppointments, staff)
	api.PUT("/appointments/:id/status", h.UpdateAppointmentStatus, staff)
	api.DELETE("/appointments/:id", h.CancelAppointment, receptionOnly)

	api.GET("/doctors/:id", h.GetDoctor, staff)
	api.GET("/doctors/:id/dashboard", h.Dashboard, staff)
}

func principal(c echo.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return p, apperr.Unauthorized("authentication required")
	}
	return p, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Public --

func (h *Handler) Availability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	date := c.QueryParam("date")
	if date == "" {
		return apperr.Validation("date query parameter is required")
	}
	slots, err := h.svc.Availability(c.Request().Context(), id, date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":           date,
		"doctorId":       id,
		"availableSlots": slots,
	})
}

func (h *Handler) Book(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Book(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":     "appointment booked successfully",
		"appointment": a,
	})
}

// -- Schedules --

func (h *Handler) ListSchedules(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var doctorID *uuid.UUID
	if v := c.QueryParam("doctorId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return apperr.Validation("doctorId must be a valid id")
		}
		doctorID = &id
	}
	items, err := h.svc.ListSchedules(c.Request().Context(), p, doctorID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateSchedule(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var in ScheduleInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	entry, err := h.svc.CreateSchedule(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) UpdateSchedule(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in ScheduleInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	entry, err := h.svc.UpdateSchedule(c.Request().Context(), p, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) DeleteSchedule(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSchedule(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Appointments --

// statusAliases accepts the Portuguese status names older clients send.
var statusAliases = map[string]Status{
	"AGENDADA":  StatusScheduled,
	"CANCELADA": StatusCancelled,
	"REALIZADA": StatusCompleted,
}

func parseStatus(v string) Status {
	v = strings.ToUpper(strings.TrimSpace(v))
	if s, ok := statusAliases[v]; ok {
		return s
	}
	return Status(v)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	f := AppointmentFilter{Date: c.QueryParam("date")}
	if v := c.QueryParam("status"); v != "" {
		f.Status = parseStatus(v)
	}
	if v := c.QueryParam("doctorId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return apperr.Validation("doctorId must be a valid id")
		}
		f.DoctorID = &id
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), p, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) UpdateAppointmentStatus(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.UpdateAppointmentStatus(c.Request().Context(), p, id, parseStatus(body.Status))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// -- Doctors --

func (h *Handler) GetDoctor(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	detail, err := h.svc.DoctorDetail(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) Dashboard(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Dashboard(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}
