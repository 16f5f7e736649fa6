package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Hospital staff roles.
const (
	RoleAdmin        = "admin"
	RoleDoctor       = "doctor"
	RoleNurse        = "nurse"
	RoleReceptionist = "receptionist"
	RoleBilling      = "billing"
)

// ValidRole reports whether role is a known staff role.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist, RoleBilling:
		return true
	}
	return false
}

// StaffRoles returns every role that counts as authenticated hospital staff.
func StaffRoles() []string {
	return []string{RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist, RoleBilling}
}

// RequireRole returns middleware that checks the user holds one of the given
// roles. Admin always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRole := RoleFromContext(c.Request().Context())
			if userRole == RoleAdmin {
				return next(c)
			}
			for _, required := range roles {
				if userRole == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
