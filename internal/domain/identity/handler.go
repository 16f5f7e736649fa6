package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dischargeflow/dischargeflow/internal/platform/auth"
	"github.com/dischargeflow/dischargeflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires identity endpoints. Login is public; registration and
// listing are admin only; /me requires any authenticated staff role.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/auth/login", h.Login)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/users", h.Register)
	admin.GET("/users", h.ListUsers)

	staff := api.Group("", auth.RequireRole(auth.StaffRoles()...))
	staff.GET("/me", h.Me)
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Register(c.Request().Context(), req.Email, req.Name, req.Role, req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        *User  `json:"user"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token, u, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return c.JSON(http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        u,
	})
}

func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	email := auth.EmailFromContext(ctx)
	u, err := h.svc.GetByEmail(ctx, email)
	if err != nil {
		// Dev identities have no backing row; answer from claims.
		return c.JSON(http.StatusOK, map[string]string{
			"id":    auth.UserIDFromContext(ctx),
			"email": email,
			"name":  auth.NameFromContext(ctx),
			"role":  auth.RoleFromContext(ctx),
		})
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUsers(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
