package discharge

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dischargeflow/dischargeflow/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))
	clinical.POST("/patients/:id/mark-ready", h.MarkReady)
	clinical.POST("/patients/:id/extract", h.TriggerExtraction)
	clinical.POST("/patients/:id/generate-tasks", h.GenerateTasks)
	clinical.POST("/patients/:id/complete", h.CompleteDischarge)

	staff := api.Group("", auth.RequireRole(auth.StaffRoles()...))
	staff.GET("/patients/:id/discharge-dashboard", h.GetDashboard)
	staff.GET("/patients/:id/tasks", h.ListTasks)
	staff.PATCH("/tasks/:id/status", h.UpdateTaskStatus)
}

func workflowError(err error) error {
	return echo.NewHTTPError(HTTPStatus(err), err.Error())
}

func (h *Handler) MarkReady(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.MarkReady(c.Request().Context(), id)
	if err != nil {
		return workflowError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) TriggerExtraction(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.TriggerExtraction(c.Request().Context(), id); err != nil {
		return workflowError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "extraction scheduled"})
}

func (h *Handler) GenerateTasks(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.GenerateTasks(c.Request().Context(), id); err != nil {
		return workflowError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "task generation scheduled"})
}

func (h *Handler) CompleteDischarge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	p, err := h.svc.CompleteDischarge(ctx, id, auth.NameFromContext(ctx), auth.RoleFromContext(ctx))
	if err != nil {
		return workflowError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetDashboard(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	dash, err := h.svc.GetDashboard(c.Request().Context(), id)
	if err != nil {
		return workflowError(err)
	}
	return c.JSON(http.StatusOK, dash)
}

func (h *Handler) ListTasks(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	tasks, err := h.svc.ListTasks(c.Request().Context(), id)
	if err != nil {
		return workflowError(err)
	}
	if tasks == nil {
		tasks = []*Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}

type updateTaskStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateTaskStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateTaskStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}
	t, err := h.svc.UpdateTaskStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return workflowError(err)
	}
	return c.JSON(http.StatusOK, t)
}
