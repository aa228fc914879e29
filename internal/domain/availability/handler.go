package availability

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebook/carebook/internal/platform/apperr"
	"github.com/carebook/carebook/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/timings/:doctorId", h.ReadAll)
	api.GET("/timings/:doctorId/:weekday", h.Read)
	api.POST("/timings", h.Publish, auth.RequireRole(auth.RoleDoctor))
	api.GET("/doctors/:id/slots", h.Slots)
}

type intervalRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type publishRequest struct {
	DoctorID  string            `json:"doctor_id"`
	Weekday   string            `json:"weekday"`
	Intervals []intervalRequest `json:"intervals"`
}

type dayResponse struct {
	DoctorID  uuid.UUID  `json:"doctor_id"`
	Weekday   Weekday    `json:"weekday"`
	Intervals []Interval `json:"intervals"`
}

func (r publishRequest) parse() (uuid.UUID, Weekday, []Interval, error) {
	if r.DoctorID == "" {
		return uuid.Nil, 0, nil, apperr.Validation("doctor_id is required")
	}
	doctorID, err := uuid.Parse(r.DoctorID)
	if err != nil {
		return uuid.Nil, 0, nil, apperr.Validation("invalid doctor_id")
	}
	if r.Weekday == "" {
		return uuid.Nil, 0, nil, apperr.Validation("weekday is required")
	}
	day, err := ParseWeekday(r.Weekday)
	if err != nil {
		return uuid.Nil, 0, nil, apperr.Validation("%s", err.Error())
	}
	intervals := make([]Interval, 0, len(r.Intervals))
	for i, in := range r.Intervals {
		start, err := ParseTimeOfDay(in.Start)
		if err != nil {
			return uuid.Nil, 0, nil, apperr.Validation("intervals[%d].start: %v", i, err)
		}
		end, err := ParseTimeOfDay(in.End)
		if err != nil {
			return uuid.Nil, 0, nil, apperr.Validation("intervals[%d].end: %v", i, err)
		}
		intervals = append(intervals, Interval{Start: start, End: end})
	}
	return doctorID, day, intervals, nil
}

func (h *Handler) Publish(c echo.Context) error {
	var req publishRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	doctorID, day, intervals, err := req.parse()
	if err != nil {
		return err
	}
	saved, err := h.svc.Publish(c.Request().Context(), doctorID, day, intervals)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dayResponse{DoctorID: doctorID, Weekday: day, Intervals: saved})
}

func doctorParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid doctor id")
	}
	return id, nil
}

func (h *Handler) ReadAll(c echo.Context) error {
	doctorID, err := doctorParam(c, "doctorId")
	if err != nil {
		return err
	}
	tt, err := h.svc.ReadAll(c.Request().Context(), doctorID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tt)
}

func (h *Handler) Read(c echo.Context) error {
	doctorID, err := doctorParam(c, "doctorId")
	if err != nil {
		return err
	}
	day, err := ParseWeekday(c.Param("weekday"))
	if err != nil {
		return apperr.Validation("%s", err.Error())
	}
	items, err := h.svc.Read(c.Request().Context(), doctorID, day)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dayResponse{DoctorID: doctorID, Weekday: day, Intervals: items})
}

type slotsResponse struct {
	DoctorID        uuid.UUID   `json:"doctor_id"`
	Date            string      `json:"date"`
	Weekday         Weekday     `json:"weekday"`
	DurationMinutes int         `json:"duration_minutes"`
	Slots           []TimeOfDay `json:"slots"`
}

// Slots serves GET /doctors/:id/slots?date=YYYY-MM-DD.
func (h *Handler) Slots(c echo.Context) error {
	doctorID, err := doctorParam(c, "id")
	if err != nil {
		return err
	}
	raw := c.QueryParam("date")
	if raw == "" {
		return apperr.Validation("date is required")
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return apperr.Validation("date must be YYYY-MM-DD")
	}
	slots, err := h.svc.Slots(c.Request().Context(), doctorID, date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slotsResponse{
		DoctorID:        doctorID,
		Date:            raw,
		Weekday:         WeekdayOf(date),
		DurationMinutes: h.svc.SlotConfig().DurationMinutes,
		Slots:           slots,
	})
}
