package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/clearance-service/internal/auth"
	"github.com/spec-kit/clearance-service/internal/domain"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

func callerFrom(c *fiber.Ctx) (domain.Caller, error) {
	caller, ok := auth.CallerFromContext(c)
	if !ok || caller.UID == "" {
		return domain.Caller{}, apperrors.NewUnauthenticated("authentication required")
	}
	return caller, nil
}

// pageParams reads limit/offset; the services clamp the limit.
func pageParams(c *fiber.Ctx) (int, int) {
	limit := c.QueryInt("limit", 0)
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewInvalidArgument("invalid payload", nil)
	}
	return nil
}
