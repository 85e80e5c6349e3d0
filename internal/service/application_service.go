package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/clearance-service/internal/blob"
	"github.com/spec-kit/clearance-service/internal/document"
	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/events"
	"github.com/spec-kit/clearance-service/internal/repository"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

// ApplicationService manages arrival and departure applications and their
// clearance documents.
type ApplicationService struct {
	store         repository.Store
	blobs         blob.Store
	renderer      document.Renderer
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	clock         Clock
	presignExpiry time.Duration
}

// ApplicationDependencies bundles collaborators for the application service.
type ApplicationDependencies struct {
	Store         repository.Store
	Blobs         blob.Store
	Renderer      document.Renderer
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	Clock         Clock
	PresignExpiry time.Duration
}

func NewApplicationService(deps ApplicationDependencies) *ApplicationService {
	return &ApplicationService{
		store:         deps.Store,
		blobs:         deps.Blobs,
		renderer:      deps.Renderer,
		dispatcher:    deps.Dispatcher,
		logger:        orNop(deps.Logger),
		clock:         deps.Clock,
		presignExpiry: deps.PresignExpiry,
	}
}

// ApplicationInput carries the editable fields of an application.
type ApplicationInput struct {
	Type        domain.ApplicationType
	VesselName  *string
	PortOfCall  *string
	ScheduledAt *time.Time
	Metadata    map[string]any
}

// Create records a new waiting application for the caller.
func (s *ApplicationService) Create(ctx context.Context, caller domain.Caller, input ApplicationInput) (*domain.Application, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !input.Type.Valid() {
		return nil, apperrors.NewInvalidArgument("type must be arrival or departure", map[string]any{"type": input.Type})
	}
	now := domain.Millis(s.clock.now())
	app := &domain.Application{
		ID:        uuid.NewString(),
		AgentUID:  caller.UID,
		Type:      input.Type,
		Status:    domain.ApplicationWaiting,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyApplicationInput(app, input)

	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetProfile(ctx, caller.UID); err != nil {
			return err
		}
		return tx.InsertApplication(ctx, app)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewFailedPrecondition("caller has no profile", nil)
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("application created",
		zap.String("application_id", app.ID),
		zap.String("profile_id", caller.UID),
		zap.String("type", string(app.Type)))
	publish(ctx, s.dispatcher, s.logger, events.New(events.EventApplicationCreated, app.ID, events.ActorFor(caller),
		events.ApplicationChangedPayload{After: app.Clone()}))
	return app, nil
}

func applyApplicationInput(app *domain.Application, input ApplicationInput) {
	if input.VesselName != nil {
		app.VesselName = strings.TrimSpace(*input.VesselName)
	}
	if input.PortOfCall != nil {
		app.PortOfCall = strings.TrimSpace(*input.PortOfCall)
	}
	if input.ScheduledAt != nil {
		at := input.ScheduledAt.UTC()
		app.ScheduledAt = &at
	}
	for k, v := range input.Metadata {
		if v == nil {
			delete(app.Metadata, k)
			continue
		}
		app.Metadata[k] = v
	}
}

// Update lets the owning agent edit a waiting application.
func (s *ApplicationService) Update(ctx context.Context, caller domain.Caller, id string, input ApplicationInput) (*domain.Application, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if input.Type != "" && !input.Type.Valid() {
		return nil, apperrors.NewInvalidArgument("type must be arrival or departure", map[string]any{"type": input.Type})
	}
	return s.mutate(ctx, caller, id, func(app *domain.Application) error {
		if app.AgentUID != caller.UID {
			return apperrors.NewPermissionDenied("only the owning agent may edit an application")
		}
		if app.Status != domain.ApplicationWaiting {
			return apperrors.NewFailedPrecondition(
				fmt.Sprintf("application status is %s, expected %s", app.Status, domain.ApplicationWaiting),
				map[string]any{"currentStatus": app.Status})
		}
		if input.Type != "" {
			app.Type = input.Type
		}
		if app.Metadata == nil {
			app.Metadata = map[string]any{}
		}
		applyApplicationInput(app, input)
		return nil
	})
}

// Decide approves or declines a waiting application. Approval generates the
// clearance document after the decision commits.
func (s *ApplicationService) Decide(ctx context.Context, caller domain.Caller, id string, status domain.ApplicationStatus) (*domain.Application, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	if status != domain.ApplicationApproved && status != domain.ApplicationDeclined {
		return nil, apperrors.NewInvalidArgument("decision must be approved or declined", map[string]any{"decision": status})
	}
	app, err := s.mutate(ctx, caller, id, func(app *domain.Application) error {
		if app.Status != domain.ApplicationWaiting {
			return apperrors.NewFailedPrecondition(
				fmt.Sprintf("application status is %s, expected %s", app.Status, domain.ApplicationWaiting),
				map[string]any{"currentStatus": app.Status})
		}
		app.Status = status
		app.DecidedBy = caller.Actor()
		return nil
	})
	if err != nil || status != domain.ApplicationApproved {
		return app, err
	}
	if _, err := s.generate(ctx, caller, app.ID); err != nil {
		s.logger.Error("clearance generation after approval failed", zap.String("application_id", app.ID), zap.Error(err))
		return nil, apperrors.NewInternalMessage("decision recorded but clearance document generation failed", err)
	}
	return s.store.Applications().Get(ctx, app.ID)
}

func (s *ApplicationService) mutate(ctx context.Context, caller domain.Caller, id string, fn func(app *domain.Application) error) (*domain.Application, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.NewInvalidArgument("application id is required", nil)
	}
	var before, after *domain.Application
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		app, err := tx.GetApplication(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("application", map[string]any{"id": id})
		}
		if err != nil {
			return err
		}
		before = app.Clone()
		if err := fn(app); err != nil {
			return err
		}
		app.UpdatedAt = nextMillis(app.UpdatedAt, s.clock.now())
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return err
		}
		after = app
		return nil
	})
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, apperrors.NewInternalError(err)
	}
	publish(ctx, s.dispatcher, s.logger, events.New(events.EventApplicationUpdated, after.ID, events.ActorFor(caller),
		events.ApplicationChangedPayload{Before: before, After: after.Clone()}))
	return after, nil
}

func nextMillis(prev, now time.Time) time.Time {
	now = domain.Millis(now)
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Millisecond)
}

// Get returns an application visible to the caller.
func (s *ApplicationService) Get(ctx context.Context, caller domain.Caller, id string) (*domain.Application, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	app, err := s.store.Applications().Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("application", map[string]any{"id": id})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if app.AgentUID != caller.UID && !caller.Role.IsStaff() {
		return nil, apperrors.NewPermissionDenied("not allowed to view this application")
	}
	return app, nil
}

// ListMine returns the caller's applications, most recently updated first.
func (s *ApplicationService) ListMine(ctx context.Context, caller domain.Caller, limit, offset int) ([]domain.Application, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	apps, err := s.store.Applications().ListByAgent(ctx, caller.UID, normalizeLimit(limit), offset)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return apps, nil
}

// DocumentResult describes a generated document.
type DocumentResult struct {
	Success     bool   `json:"success"`
	DocumentURL string `json:"documentUrl"`
	Key         string `json:"-"`
}

// GenerateHistoryDocument renders the application's document again and overwrites the
// stored locator. It is the manual retry path after a failed approval-time generation.
func (s *ApplicationService) GenerateHistoryDocument(ctx context.Context, caller domain.Caller, applicationID string) (*DocumentResult, error) {
	if strings.TrimSpace(applicationID) == "" {
		return nil, apperrors.NewInvalidArgument("applicationId is required", nil)
	}
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	app, err := s.store.Applications().Get(ctx, applicationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("application", map[string]any{"id": applicationID})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if app.AgentUID != caller.UID && !caller.Role.IsStaff() {
		return nil, apperrors.NewPermissionDenied("not allowed to generate this document")
	}
	doc, err := s.generate(ctx, caller, app.ID)
	if err != nil {
		return nil, apperrors.NewInternalMessage("document generation failed", err)
	}
	return doc, nil
}

// GenerateClearance renders the clearance document for an agent's application.
func (s *ApplicationService) GenerateClearance(ctx context.Context, agentUID, applicationID string) (*DocumentResult, error) {
	app, err := s.store.Applications().Get(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("load application %s: %w", applicationID, err)
	}
	if app.AgentUID != agentUID {
		return nil, fmt.Errorf("application %s does not belong to %s", applicationID, agentUID)
	}
	return s.generate(ctx, domain.Caller{UID: agentUID}, app.ID)
}

// generate renders, stores and links the document: record to bytes to stored URL.
func (s *ApplicationService) generate(ctx context.Context, caller domain.Caller, applicationID string) (*DocumentResult, error) {
	if s.renderer == nil || s.blobs == nil {
		return nil, errors.New("document generation not configured")
	}
	app, err := s.store.Applications().Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	agent, err := s.store.Profiles().Get(ctx, app.AgentUID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	issuedAt := s.clock.now()
	pdf, err := s.renderer.Render(app, agent, issuedAt)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("clearance/%s/%s.pdf", app.AgentUID, app.ID)
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(pdf), blob.PutOptions{
		ContentType: "application/pdf",
		Metadata:    map[string]string{"application-id": app.ID},
	}); err != nil {
		return nil, err
	}
	url, err := s.blobs.PresignURL(ctx, key, s.presignExpiry)
	if err != nil {
		return nil, err
	}

	if _, err := s.mutate(ctx, caller, app.ID, func(a *domain.Application) error {
		a.ClearanceDocumentKey = key
		a.ClearanceDocumentURL = url
		return nil
	}); err != nil {
		return nil, err
	}
	s.logger.Info("clearance document stored",
		zap.String("application_id", app.ID),
		zap.String("key", key),
		zap.Int("bytes", len(pdf)))
	return &DocumentResult{Success: true, DocumentURL: url, Key: key}, nil
}
