package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/clearance-service/internal/api/dto"
	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/service"
)

// ProfileHandler serves the caller's own profile, notifications and email verification.
type ProfileHandler struct {
	profiles     *service.ProfileService
	verification *service.VerificationService
}

// NewProfileHandler constructs handler.
func NewProfileHandler(profiles *service.ProfileService, verification *service.VerificationService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, verification: verification}
}

// GetMe GET /v1/profiles/me.
func (h *ProfileHandler) GetMe(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	profile, err := h.profiles.GetMe(c.UserContext(), caller)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profileResponse(profile)})
}

// PatchMe PATCH /v1/profiles/me.
func (h *ProfileHandler) PatchMe(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.ProfilePatchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	patch := service.ProfilePatch{HasUploadedDocuments: req.HasUploadedDocuments}
	if req.Status != nil {
		status := domain.ProfileStatus(*req.Status)
		patch.Status = &status
	}
	for _, doc := range req.Documents {
		ref := domain.DocumentRef{Name: doc.DocumentName, StoragePath: doc.StoragePath}
		if doc.UploadedAt != nil {
			ref.UploadedAt = *doc.UploadedAt
		}
		patch.Documents = append(patch.Documents, ref)
	}
	profile, err := h.profiles.PatchMe(c.UserContext(), caller, patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profileResponse(profile)})
}

// Notifications GET /v1/notifications.
func (h *ProfileHandler) Notifications(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	limit, _ := pageParams(c)
	items, err := h.profiles.Notifications(c.UserContext(), caller, limit)
	if err != nil {
		return err
	}
	out := make([]dto.NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, dto.NotificationResponse{
			ID:        item.ID,
			Type:      string(item.Type),
			Message:   item.Message,
			CreatedAt: item.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

// IssueCode POST /v1/verification/issue.
func (h *ProfileHandler) IssueCode(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	res, err := h.verification.Issue(c.UserContext(), caller)
	if err != nil {
		return err
	}
	if res.RetryAfterSec > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(res.RetryAfterSec))
	}
	return c.JSON(res)
}

// ValidateCode POST /v1/verification/validate.
func (h *ProfileHandler) ValidateCode(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.ValidateCodeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := h.verification.Validate(c.UserContext(), caller, req.Code)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func profileResponse(p *domain.Profile) dto.ProfileResponse {
	docs := make([]dto.DocumentRef, 0, len(p.Documents))
	for _, doc := range p.Documents {
		uploadedAt := doc.UploadedAt
		docs = append(docs, dto.DocumentRef{DocumentName: doc.Name, StoragePath: doc.StoragePath, UploadedAt: &uploadedAt})
	}
	resp := dto.ProfileResponse{
		ID:                   p.ID,
		Email:                p.Email,
		Role:                 string(p.Role),
		Status:               string(p.Status.OrDefault()),
		IsEmailVerified:      p.IsEmailVerified,
		HasUploadedDocuments: p.HasUploadedDocuments,
		Documents:            docs,
		DecidedBy:            p.DecidedBy,
		DecidedAt:            p.DecidedAt,
		DecisionNote:         p.DecisionNote,
		LastError:            p.LastError,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	if v := p.Verification; v != nil {
		resp.Verification = &dto.VerificationSummary{IssuedAt: v.IssuedAt, ExpiresAt: v.ExpiresAt, Attempts: v.Attempts}
	}
	return resp
}
