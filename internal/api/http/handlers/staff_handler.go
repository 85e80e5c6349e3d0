package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/clearance-service/internal/api/dto"
	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/service"
)

// StaffHandler exposes the officer and admin operations.
type StaffHandler struct {
	gateway  *service.ReviewGateway
	counters *service.CounterService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(gateway *service.ReviewGateway, counters *service.CounterService) *StaffHandler {
	return &StaffHandler{gateway: gateway, counters: counters}
}

// ReviewQueue GET /v1/review-queue.
func (h *StaffHandler) ReviewQueue(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	limit, offset := pageParams(c)
	items, err := h.gateway.ReviewQueue(c.UserContext(), caller, limit, offset)
	if err != nil {
		return err
	}
	out := make([]dto.ReviewItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, dto.ReviewItemResponse{
			ID:          item.ID,
			ProfileID:   item.ProfileID,
			Email:       item.Email,
			SubmittedAt: item.SubmittedAt,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

// Decide POST /v1/profiles/:id/decision.
func (h *StaffHandler) Decide(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.DecisionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := h.gateway.Decide(c.UserContext(), caller, service.DecideInput{
		TargetID:      c.Params("id"),
		Decision:      domain.Decision(req.Decision),
		Note:          req.Note,
		ApplicationID: req.ApplicationID,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// AssignRole PUT /v1/users/:id/role. Admin only.
func (h *StaffHandler) AssignRole(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.AssignRoleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := h.gateway.AssignRole(c.UserContext(), caller, c.Params("id"), domain.Role(req.Role))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Dashboard GET /v1/dashboard.
func (h *StaffHandler) Dashboard(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	stats, err := h.counters.DashboardStats(c.UserContext(), caller)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// Reconcile POST /v1/counters/reconcile.
func (h *StaffHandler) Reconcile(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	counters, err := h.counters.Reconcile(c.UserContext(), caller)
	if err != nil {
		return err
	}
	return c.JSON(dto.ReconcileResponse{Success: true, Counters: counters})
}
