package scheduling

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecal/carecal/internal/calendar"
	"github.com/carecal/carecal/internal/platform/auth"
	"github.com/carecal/carecal/internal/platform/ical"
	"github.com/carecal/carecal/pkg/pagination"
)

// DecisionObserver is told about every layout decision served.
type DecisionObserver interface {
	ObserveDecision(mode calendar.ViewMode, d calendar.Decision)
}

type Handler struct {
	svc      *Service
	observer DecisionObserver
}

// NewHandler builds the HTTP handler; observer may be nil.
func NewHandler(svc *Service, observer DecisionObserver) *Handler {
	return &Handler{svc: svc, observer: observer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RolePlanner, auth.RoleViewer))
	readGroup.GET("/appointments", h.ListAppointments)
	readGroup.GET("/appointments/agenda", h.GetAgenda)
	readGroup.GET("/appointments/:id", h.GetAppointment)
	readGroup.GET("/categories", h.ListCategories)
	readGroup.GET("/patients", h.ListPatients)
	readGroup.GET("/stats", h.GetStats)
	readGroup.GET("/calendar", h.GetCalendar)
	readGroup.GET("/calendar/navigate", h.NavigateCalendar)
	readGroup.GET("/calendar.ics", h.ExportCalendar)

	writeGroup := api.Group("", auth.RequireRole(auth.RolePlanner))
	writeGroup.POST("/appointments", h.CreateAppointment)
	writeGroup.PUT("/appointments/:id", h.UpdateAppointment)
	writeGroup.DELETE("/appointments/:id", h.DeleteAppointment)
	writeGroup.POST("/categories", h.CreateCategory)
	writeGroup.POST("/patients", h.CreatePatient)
}

// httpError maps service errors onto status codes. The cause stays attached
// so middleware can still recognise a request deadline.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}

// -- Appointment Handlers --

func (h *Handler) CreateAppointment(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		a.CreatedBy = &uid
	}
	a.ExternalUID = nil
	if err := h.svc.CreateAppointment(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return h.respondStored(c, http.StatusCreated, a.ID)
}

// respondStored re-reads the appointment so the body carries the stored
// timestamps and the resolved category and patient.
func (h *Handler) respondStored(c echo.Context, status int, id uuid.UUID) error {
	stored, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(status, stored)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	f, err := h.parseFilter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetAgenda(c echo.Context) error {
	f, err := h.parseFilter(c)
	if err != nil {
		return err
	}
	days, err := h.svc.Agenda(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, days)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = id
	if err := h.svc.UpdateAppointment(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return h.respondStored(c, http.StatusOK, a.ID)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Category and Patient Handlers --

func (h *Handler) CreateCategory(c echo.Context) error {
	var cat Category
	if err := c.Bind(&cat); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateCategory(c.Request().Context(), &cat); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cat)
}

func (h *Handler) ListCategories(c echo.Context) error {
	items, err := h.svc.ListCategories(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Category{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListActivePatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetStats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// -- Calendar Handlers --

func (h *Handler) GetCalendar(c echo.Context) error {
	q, err := h.parseCalendarQuery(c)
	if err != nil {
		return err
	}
	view, err := h.svc.CalendarView(c.Request().Context(), q)
	if err != nil {
		return httpError(err)
	}
	if h.observer != nil {
		h.observer.ObserveDecision(view.Window.Mode, view.Decision)
	}
	return c.JSON(http.StatusOK, view)
}

// NavigateResponse is the reference date reached by a navigation step.
type NavigateResponse struct {
	View calendar.ViewMode `json:"view"`
	Date string            `json:"date"`
}

func (h *Handler) NavigateCalendar(c echo.Context) error {
	mode, err := parseView(c.QueryParam("view"))
	if err != nil {
		return err
	}
	ref, err := h.parseReference(c.QueryParam("date"))
	if err != nil {
		return err
	}
	dir, err := calendar.ParseDirection(c.QueryParam("direction"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	next := h.svc.Navigate(mode, ref, dir)
	return c.JSON(http.StatusOK, NavigateResponse{View: mode, Date: next.Format(dateLayout)})
}

func (h *Handler) ExportCalendar(c echo.Context) error {
	q, err := h.parseCalendarQuery(c)
	if err != nil {
		return err
	}
	_, appts, err := h.svc.CalendarWindow(c.Request().Context(), q)
	if err != nil {
		return httpError(err)
	}
	var buf bytes.Buffer
	if err := ical.Encode(&buf, CalendarItems(appts), ical.EncodeOptions{Stamp: h.svc.now()}); err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="carecal.ics"`)
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

// -- Query parsing --

const dateLayout = "2006-01-02"

func parseView(raw string) (calendar.ViewMode, error) {
	if raw == "" {
		return calendar.ViewWeek, nil
	}
	mode, err := calendar.ParseViewMode(raw)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return mode, nil
}

// parseReference reads a YYYY-MM-DD (noon in the display timezone) or an
// RFC 3339 timestamp. Empty means now.
func (h *Handler) parseReference(raw string) (time.Time, error) {
	if raw == "" {
		return h.svc.now().In(h.svc.loc), nil
	}
	t, err := parseDate(raw, h.svc.loc)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid date: "+raw)
	}
	return t, nil
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	if d, err := time.ParseInLocation(dateLayout, raw, loc); err == nil {
		return d.Add(12 * time.Hour), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

func parseOptionalUUID(raw, name string) (*uuid.UUID, error) {
	if raw == "" || strings.EqualFold(raw, "all") {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

func (h *Handler) parseFilter(c echo.Context) (Filter, error) {
	var f Filter
	var err error
	if f.CategoryID, err = parseOptionalUUID(c.QueryParam("category"), "category"); err != nil {
		return f, err
	}
	if f.PatientID, err = parseOptionalUUID(c.QueryParam("patient"), "patient"); err != nil {
		return f, err
	}
	if raw := c.QueryParam("from"); raw != "" {
		t, err := parseDate(raw, h.svc.loc)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid from")
		}
		if len(raw) == len(dateLayout) {
			t = calendar.StartOfDay(t)
		}
		f.From = &t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := parseDate(raw, h.svc.loc)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid to")
		}
		f.To = &t
	}
	return f, nil
}

func (h *Handler) parseCalendarQuery(c echo.Context) (CalendarQuery, error) {
	var q CalendarQuery
	var err error
	if q.Mode, err = parseView(c.QueryParam("view")); err != nil {
		return q, err
	}
	if q.Date, err = h.parseReference(c.QueryParam("date")); err != nil {
		return q, err
	}
	switch raw := c.QueryParam("time_axis"); raw {
	case "", "auto":
	default:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return q, echo.NewHTTPError(http.StatusBadRequest, "invalid time_axis: "+raw)
		}
		q.TimeAxis = &b
	}
	if q.CategoryID, err = parseOptionalUUID(c.QueryParam("category"), "category"); err != nil {
		return q, err
	}
	if q.PatientID, err = parseOptionalUUID(c.QueryParam("patient"), "patient"); err != nil {
		return q, err
	}
	return q, nil
}
