package identity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebook/carebook/internal/platform/apperr"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts account and profile routes on the /api/v1 group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.PUT("/doctors/me", h.SaveDoctorProfile, auth.RequireRole(auth.RoleDoctor))

	patients := api.Group("/patients", auth.RequireRole(auth.RolePatient))
	patients.GET("/me", h.GetMyPatientProfile)
	patients.PUT("/me", h.SavePatientProfile)
}

func bindError(err error) error {
	return apperr.Validation("invalid request body: %v", err)
}

// -- Accounts --

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return bindError(err)
	}
	u, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	sess, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

// -- Doctors --

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), c.QueryParam("department"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid doctor id")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) SaveDoctorProfile(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.CallerID(ctx)
	if err != nil {
		return err
	}
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return bindError(err)
	}
	saved, err := h.svc.SaveDoctorProfile(ctx, userID, &d)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

// -- Patients --

func (h *Handler) GetMyPatientProfile(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.CallerID(ctx)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatientByUser(ctx, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SavePatientProfile(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.CallerID(ctx)
	if err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return bindError(err)
	}
	saved, err := h.svc.SavePatientProfile(ctx, userID, &p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}
