package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/clearance-service/internal/api/dto"
	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/service"
)

// ApplicationsHandler manages arrival and departure applications.
type ApplicationsHandler struct {
	service *service.ApplicationService
}

// NewApplicationsHandler constructs handler.
func NewApplicationsHandler(applications *service.ApplicationService) *ApplicationsHandler {
	return &ApplicationsHandler{service: applications}
}

// Create POST /v1/applications.
func (h *ApplicationsHandler) Create(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.ApplicationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	app, err := h.service.Create(c.UserContext(), caller, applicationInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": applicationResponse(app)})
}

// List GET /v1/applications.
func (h *ApplicationsHandler) List(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	limit, offset := pageParams(c)
	apps, err := h.service.ListMine(c.UserContext(), caller, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.ApplicationResponse, 0, len(apps))
	for i := range apps {
		items = append(items, applicationResponse(&apps[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /v1/applications/:id.
func (h *ApplicationsHandler) Get(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	app, err := h.service.Get(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": applicationResponse(app)})
}

// Update PATCH /v1/applications/:id.
func (h *ApplicationsHandler) Update(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.ApplicationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	app, err := h.service.Update(c.UserContext(), caller, c.Params("id"), applicationInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": applicationResponse(app)})
}

// Decide POST /v1/applications/:id/decision. Staff only.
func (h *ApplicationsHandler) Decide(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.ApplicationDecisionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	app, err := h.service.Decide(c.UserContext(), caller, c.Params("id"), domain.ApplicationStatus(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": applicationResponse(app)})
}

// HistoryDocument POST /v1/applications/:id/history-document.
func (h *ApplicationsHandler) HistoryDocument(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	res, err := h.service.GenerateHistoryDocument(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func applicationInput(req dto.ApplicationRequest) service.ApplicationInput {
	return service.ApplicationInput{
		Type:        domain.ApplicationType(req.Type),
		VesselName:  req.VesselName,
		PortOfCall:  req.PortOfCall,
		ScheduledAt: req.ScheduledAt,
		Metadata:    req.Metadata,
	}
}

func applicationResponse(app *domain.Application) dto.ApplicationResponse {
	metadata := app.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return dto.ApplicationResponse{
		ID:                   app.ID,
		AgentUID:             app.AgentUID,
		Type:                 string(app.Type),
		Status:               string(app.Status),
		VesselName:           app.VesselName,
		PortOfCall:           app.PortOfCall,
		ScheduledAt:          app.ScheduledAt,
		Metadata:             metadata,
		DecidedBy:            app.DecidedBy,
		ClearanceDocumentURL: app.ClearanceDocumentURL,
		CreatedAt:            app.CreatedAt,
		UpdatedAt:            app.UpdatedAt,
	}
}
