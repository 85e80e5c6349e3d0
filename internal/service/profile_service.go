package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/events"
	"github.com/spec-kit/clearance-service/internal/observability"
	"github.com/spec-kit/clearance-service/internal/repository"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

// ProfileService serves owner reads and writes on the caller's own profile.
type ProfileService struct {
	store      repository.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	clock      Clock
}

// ProfileDependencies bundles collaborators for the profile service.
type ProfileDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Clock      Clock
}

func NewProfileService(deps ProfileDependencies) *ProfileService {
	return &ProfileService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     orNop(deps.Logger),
		metrics:    deps.Metrics,
		clock:      deps.Clock,
	}
}

// GetMe returns the caller's profile.
func (s *ProfileService) GetMe(ctx context.Context, caller domain.Caller) (*domain.Profile, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	profile, err := s.store.Profiles().Get(ctx, caller.UID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("profile", nil)
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return profile, nil
}

// ProfilePatch is an owner write. Every field is optional.
type ProfilePatch struct {
	HasUploadedDocuments *bool
	Status               *domain.ProfileStatus
	Documents            []domain.DocumentRef
}

// PatchMe applies an owner write. Upload flags only move to true and the only status
// an owner may request is pending_approval from pending_documents.
func (s *ProfileService) PatchMe(ctx context.Context, caller domain.Caller, patch ProfilePatch) (*domain.Profile, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if patch.HasUploadedDocuments != nil && !*patch.HasUploadedDocuments {
		return nil, apperrors.NewInvalidArgument("hasUploadedDocuments cannot be cleared", nil)
	}
	if patch.Status != nil && *patch.Status != domain.StatusPendingApproval {
		return nil, apperrors.NewInvalidArgument("status may only be set to pending_approval", map[string]any{"status": *patch.Status})
	}
	for _, doc := range patch.Documents {
		if strings.TrimSpace(doc.Name) == "" && strings.TrimSpace(doc.StoragePath) == "" {
			return nil, apperrors.NewInvalidArgument("document needs a name or storage path", nil)
		}
	}

	var before, after *domain.Profile
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		profile, err := tx.GetProfile(ctx, caller.UID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("profile", nil)
		}
		if err != nil {
			return err
		}
		now := s.clock.now()
		before = profile.Clone()
		changed := false

		for _, doc := range patch.Documents {
			if doc.UploadedAt.IsZero() {
				doc.UploadedAt = now
			}
			doc.UploadedAt = domain.Millis(doc.UploadedAt)
			if profile.AppendDocument(doc) {
				changed = true
			}
		}
		if patch.HasUploadedDocuments != nil && !profile.HasUploadedDocuments {
			profile.HasUploadedDocuments = true
			changed = true
		}
		if patch.Status != nil && profile.Status != *patch.Status {
			current := profile.Status.OrDefault()
			if current != domain.StatusPendingDocuments {
				return apperrors.NewFailedPrecondition(
					fmt.Sprintf("profile status is %s, expected %s", current, domain.StatusPendingDocuments),
					map[string]any{"currentStatus": current})
			}
			if err := profile.Transition(*patch.Status, now); err != nil {
				return err
			}
			changed = true
		}
		if !changed {
			after = profile
			return nil
		}
		if profile.Status == before.Status {
			profile.Touch(now)
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
	if after.UpdatedAt.Equal(before.UpdatedAt) {
		return after, nil
	}
	if before.Status != after.Status {
		s.metrics.RecordTransition(string(before.Status), string(after.Status))
	}
	s.logger.Info("profile updated by owner",
		zap.String("profile_id", after.ID),
		zap.String("status_from", string(before.Status)),
		zap.String("status_to", string(after.Status)))
	publish(ctx, s.dispatcher, s.logger, events.New(events.EventProfileUpdated, after.ID, events.ActorFor(caller),
		events.ProfileUpdatedPayload{Before: before, After: after.Clone()}))
	return after, nil
}

// Notifications lists the caller's notification items, newest first.
func (s *ProfileService) Notifications(ctx context.Context, caller domain.Caller, limit int) ([]domain.NotificationItem, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	items, err := s.store.Notifications().ListByProfile(ctx, caller.UID, normalizeLimit(limit))
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return items, nil
}
