package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/events"
	"github.com/spec-kit/clearance-service/internal/observability"
	"github.com/spec-kit/clearance-service/internal/repository"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

// MaxDecisionNoteLength bounds the optional officer note, in characters.
const MaxDecisionNoteLength = 1000

// ClearanceGenerator produces the clearance document for an approved application.
type ClearanceGenerator interface {
	GenerateClearance(ctx context.Context, agentUID, applicationID string) (*DocumentResult, error)
}

// ReviewGateway exposes the privileged role and decision operations.
type ReviewGateway struct {
	store      repository.Store
	generator  ClearanceGenerator
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	clock      Clock
}

// ReviewGatewayDependencies bundles collaborators for the gateway.
type ReviewGatewayDependencies struct {
	Store      repository.Store
	Generator  ClearanceGenerator
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Clock      Clock
}

func NewReviewGateway(deps ReviewGatewayDependencies) *ReviewGateway {
	return &ReviewGateway{
		store:      deps.Store,
		generator:  deps.Generator,
		dispatcher: deps.Dispatcher,
		logger:     orNop(deps.Logger),
		metrics:    deps.Metrics,
		clock:      deps.Clock,
	}
}

// AssignRoleResult is returned by AssignRole.
type AssignRoleResult struct {
	OK       bool        `json:"ok"`
	TargetID string      `json:"targetId"`
	Role     domain.Role `json:"role"`
}

// AssignRole sets the target's role claim and mirrors it onto the profile. Admin only.
func (g *ReviewGateway) AssignRole(ctx context.Context, caller domain.Caller, targetID string, role domain.Role) (*AssignRoleResult, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, apperrors.NewInvalidArgument("targetId is required", nil)
	}
	if !role.Valid() {
		return nil, apperrors.NewInvalidArgument("role must be one of user, officer, admin", map[string]any{"role": role})
	}

	if err := g.store.Identities().SetRole(ctx, targetID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("principal", map[string]any{"targetId": targetID})
		}
		return nil, apperrors.NewInternalError(err)
	}

	var before, after *domain.Profile
	err := g.store.RunInTx(ctx, func(tx repository.Tx) error {
		profile, err := tx.GetProfile(ctx, targetID)
		if err != nil {
			return err
		}
		if profile.Role == role {
			return nil
		}
		before = profile.Clone()
		profile.Role = role
		profile.Touch(g.clock.now())
		if err := tx.UpdateProfile(ctx, profile); err != nil {
			return err
		}
		after = profile
		return nil
	})
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternalError(err)
	}

	g.logger.Info("role assigned",
		zap.String("profile_id", targetID),
		zap.String("role", string(role)),
		zap.String("actor", caller.Actor()))
	if after != nil {
		publish(ctx, g.dispatcher, g.logger, events.New(events.EventProfileUpdated, targetID, events.ActorFor(caller),
			events.ProfileUpdatedPayload{Before: before, After: after.Clone()}))
	}
	return &AssignRoleResult{OK: true, TargetID: targetID, Role: role}, nil
}

// DecideInput is the decision request.
type DecideInput struct {
	TargetID string
	Decision domain.Decision
	Note     string
	// ApplicationID, when set on approval, names the application whose clearance
	// document is generated after the decision commits.
	ApplicationID string
}

// DecideResult is returned by Decide.
type DecideResult struct {
	OK          bool                 `json:"ok"`
	TargetID    string               `json:"targetId"`
	Status      domain.ProfileStatus `json:"status"`
	DocumentURL string               `json:"documentUrl,omitempty"`
}

// Decide approves or rejects a profile that is exactly pending_approval.
func (g *ReviewGateway) Decide(ctx context.Context, caller domain.Caller, input DecideInput) (*DecideResult, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	input.TargetID = strings.TrimSpace(input.TargetID)
	if input.TargetID == "" {
		return nil, apperrors.NewInvalidArgument("targetId is required", nil)
	}
	next, ok := input.Decision.Status()
	if !ok {
		return nil, apperrors.NewInvalidArgument("decision must be approved or rejected", map[string]any{"decision": input.Decision})
	}
	if utf8.RuneCountInString(input.Note) > MaxDecisionNoteLength {
		return nil, apperrors.NewInvalidArgument(fmt.Sprintf("note must be at most %d characters", MaxDecisionNoteLength), nil)
	}

	var before, after *domain.Profile
	err := g.store.RunInTx(ctx, func(tx repository.Tx) error {
		profile, err := tx.GetProfile(ctx, input.TargetID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("profile", map[string]any{"targetId": input.TargetID})
		}
		if err != nil {
			return err
		}
		current := profile.Status.OrDefault()
		if current != domain.StatusPendingApproval {
			return apperrors.NewFailedPrecondition(
				fmt.Sprintf("profile status is %s, expected %s", current, domain.StatusPendingApproval),
				map[string]any{"currentStatus": current})
		}
		before = profile.Clone()
		if err := profile.Transition(next, g.clock.now()); err != nil {
			return err
		}
		decidedAt := profile.UpdatedAt
		profile.DecidedBy = caller.Actor()
		profile.DecidedAt = &decidedAt
		if note := strings.TrimSpace(input.Note); note != "" {
			profile.DecisionNote = note
		}
		if err := tx.UpdateProfile(ctx, profile); err != nil {
			return err
		}
		after = profile
		return nil
	})
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, apperrors.NewInternalError(err)
	}

	g.metrics.RecordTransition(string(before.Status), string(after.Status))
	g.logger.Info("profile decided",
		zap.String("profile_id", after.ID),
		zap.String("status_from", string(before.Status)),
		zap.String("status_to", string(after.Status)),
		zap.String("actor", caller.Actor()))
	publish(ctx, g.dispatcher, g.logger, events.New(events.EventProfileUpdated, after.ID, events.ActorFor(caller),
		events.ProfileUpdatedPayload{Before: before, After: after.Clone()}))

	result := &DecideResult{OK: true, TargetID: after.ID, Status: after.Status}
	if next != domain.StatusApproved || input.ApplicationID == "" || g.generator == nil {
		return result, nil
	}
	doc, err := g.generator.GenerateClearance(ctx, after.ID, input.ApplicationID)
	if err != nil {
		// the decision stays committed
		g.logger.Error("clearance generation after approval failed",
			zap.String("profile_id", after.ID),
			zap.String("application_id", input.ApplicationID),
			zap.Error(err))
		return nil, apperrors.NewInternalMessage("decision recorded but clearance document generation failed", err)
	}
	result.DocumentURL = doc.DocumentURL
	return result, nil
}

// ReviewQueue lists open review items for officers.
func (g *ReviewGateway) ReviewQueue(ctx context.Context, caller domain.Caller, limit, offset int) ([]domain.ReviewItem, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	items, err := g.store.ReviewQueue().List(ctx, normalizeLimit(limit), offset)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return items, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}
