package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/repository"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

const callerKey = "auth_caller"

// AuthMiddleware validates bearer tokens and resolves the caller's current role.
type AuthMiddleware struct {
	tokens     *TokenManager
	identities repository.IdentityRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, identities repository.IdentityRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, identities: identities}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthenticated("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthenticated("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthenticated("invalid token")
	}

	caller := domain.Caller{UID: claims.Subject, Email: claims.Email, Role: claims.Role}
	if m.identities != nil {
		identity, err := m.identities.Get(c.UserContext(), claims.Subject)
		switch {
		case err == nil:
			if identity.Role.Valid() {
				caller.Role = identity.Role
			}
			if caller.Email == "" {
				caller.Email = identity.Email
			}
		case errors.Is(err, repository.ErrNotFound):
		default:
			return apperrors.MapError(err)
		}
	}
	if !caller.Role.Valid() {
		caller.Role = domain.RoleUser
	}

	c.Locals(callerKey, caller)
	return c.Next()
}

// CallerFromContext retrieves the authenticated caller.
func CallerFromContext(c *fiber.Ctx) (domain.Caller, bool) {
	caller, ok := c.Locals(callerKey).(domain.Caller)
	return caller, ok
}

// WithCaller stores a caller on the request, for handlers mounted behind other authenticators.
func WithCaller(c *fiber.Ctx, caller domain.Caller) {
	c.Locals(callerKey, caller)
}
