package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/clearance-service/internal/domain"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

// RequireRoles ensures the caller holds one of the allowed roles.
func RequireRoles(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		caller, ok := CallerFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[caller.Role]; !exists {
			return apperrors.NewPermissionDenied("insufficient role")
		}
		return c.Next()
	}
}

// RequireStaff admits officers and admins.
func RequireStaff() fiber.Handler {
	return RequireRoles(domain.RoleOfficer, domain.RoleAdmin)
}
