package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
)

// HasRole reports whether ctx carries one of roles. Admin satisfies every role.
func HasRole(ctx context.Context, roles ...string) bool {
	for _, has := range RolesFromContext(ctx) {
		if has == RoleAdmin {
			return true
		}
		for _, required := range roles {
			if has == required {
				return true
			}
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(c.Request().Context(), roles...) {
				return next(c)
			}
			return forbidden("required role: %s", strings.Join(roles, " or "))
		}
	}
}

// CanAccessSubject reports whether the caller is subjectID itself or holds one of roles.
func CanAccessSubject(ctx context.Context, subjectID string, roles ...string) bool {
	if uid := UserIDFromContext(ctx); uid != "" && uid == subjectID {
		return true
	}
	return HasRole(ctx, roles...)
}

// RequireSubjectOrRole guards routes scoped to the user named by the path
// parameter param: the caller must be that user or hold one of roles.
func RequireSubjectOrRole(param string, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if CanAccessSubject(c.Request().Context(), c.Param(param), roles...) {
				return next(c)
			}
			return forbidden("access to user %s denied", c.Param(param))
		}
	}
}
