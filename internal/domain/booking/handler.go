package booking

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments")
	g.POST("", h.Book)
	g.GET("", h.List, auth.RequireRole(auth.RoleAdmin))
	g.GET("/by-doctor/:id", h.ListByDoctor)
	g.GET("/by-user/:id", h.ListByUser)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.POST("/:id/accept", h.action(ActionAccept))
	g.POST("/:id/cancel", h.action(ActionCancel))
	g.POST("/:id/complete", h.action(ActionComplete))
	g.DELETE("/:id", h.Delete, auth.RequireRole(auth.RoleAdmin))
}

func idParam(c echo.Context, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s id", what)
	}
	return id, nil
}

func statusQuery(c echo.Context) (Status, error) {
	raw := c.QueryParam("status")
	if raw == "" {
		return "", nil
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return "", apperr.Validation("%s", err.Error())
	}
	return st, nil
}

func (h *Handler) Book(c echo.Context) error {
	var in BookInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	a, err := h.svc.Book(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := idParam(c, "appointment")
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

// updateRequest accepts either a target status or a named action.
type updateRequest struct {
	Status string `json:"status"`
	Action string `json:"action"`
}

func (r updateRequest) target() (Status, error) {
	switch {
	case r.Status != "" && r.Action != "":
		return "", apperr.Validation("send either status or action, not both")
	case r.Status != "":
		st, err := ParseStatus(r.Status)
		if err != nil {
			return "", apperr.Validation("%s", err.Error())
		}
		return st, nil
	case r.Action != "":
		a, err := ParseAction(r.Action)
		if err != nil {
			return "", apperr.Validation("%s", err.Error())
		}
		return a.Target(), nil
	}
	return "", apperr.Validation("status or action is required")
}

func (h *Handler) Update(c echo.Context) error {
	id, err := idParam(c, "appointment")
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	target, err := req.target()
	if err != nil {
		return err
	}
	v, err := h.svc.Transition(c.Request().Context(), id, target)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) action(a Action) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := idParam(c, "appointment")
		if err != nil {
			return err
		}
		v, err := h.svc.Apply(c.Request().Context(), id, a)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, v)
	}
}

func (h *Handler) List(c echo.Context) error {
	status, err := statusQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) ListByDoctor(c echo.Context) error {
	doctorID, err := idParam(c, "doctor")
	if err != nil {
		return err
	}
	status, err := statusQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByDoctor(c.Request().Context(), doctorID, status, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) ListByUser(c echo.Context) error {
	userID, err := idParam(c, "user")
	if err != nil {
		return err
	}
	status, err := statusQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatientUser(c.Request().Context(), userID, status, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := idParam(c, "appointment")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
