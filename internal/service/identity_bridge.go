package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/events"
	"github.com/spec-kit/clearance-service/internal/observability"
	"github.com/spec-kit/clearance-service/internal/repository"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

// IdentityBridge provisions a role claim and a profile for each new principal.
type IdentityBridge struct {
	store      repository.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	clock      Clock
}

// IdentityBridgeDependencies bundles collaborators for the bridge.
type IdentityBridgeDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Clock      Clock
}

func NewIdentityBridge(deps IdentityBridgeDependencies) *IdentityBridge {
	return &IdentityBridge{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     orNop(deps.Logger),
		metrics:    deps.Metrics,
		clock:      deps.Clock,
	}
}

// RegisterHandlers subscribes to principal triggers.
func (b *IdentityBridge) RegisterHandlers(d events.Dispatcher) {
	d.Subscribe(events.EventPrincipalCreated, b.handlePrincipalCreated)
}

// RecordPrincipal mirrors a principal reported by the identity provider and emits
// the principal_created trigger.
func (b *IdentityBridge) RecordPrincipal(ctx context.Context, identity domain.Identity) error {
	identity.UID = strings.TrimSpace(identity.UID)
	if identity.UID == "" {
		return apperrors.NewInvalidArgument("uid is required", nil)
	}
	// new principals start without a claim; only AssignRole raises it
	identity.Role = ""
	if err := b.store.Identities().Upsert(ctx, &identity); err != nil {
		return apperrors.NewInternalError(err)
	}
	publish(ctx, b.dispatcher, b.logger, events.New(events.EventPrincipalCreated, identity.UID, events.SystemActor,
		events.PrincipalCreatedPayload{Identity: identity}))
	return nil
}

func (b *IdentityBridge) handlePrincipalCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PrincipalCreatedPayload)
	if !ok || payload.Identity.UID == "" {
		b.logger.Warn("ignoring principal event without identity", zap.String("event_id", event.ID))
		return nil
	}
	_, err := b.Provision(ctx, payload.Identity)
	return err
}

// ProvisionResult reports what a provisioning run did.
type ProvisionResult struct {
	Created bool
	Updated bool
	Role    Outcome
	Profile *domain.Profile
}

// Provision assigns the default role claim and upserts the profile. Re-running it on a
// fully populated profile performs no write.
func (b *IdentityBridge) Provision(ctx context.Context, identity domain.Identity) (*ProvisionResult, error) {
	log := b.logger.With(zap.String("profile_id", identity.UID))
	result := &ProvisionResult{Role: b.assignDefaultRole(ctx, identity.UID)}
	result.Role.Log(log)

	var before *domain.Profile
	err := b.store.RunInTx(ctx, func(tx repository.Tx) error {
		now := b.clock.now()
		current, err := tx.GetProfile(ctx, identity.UID)
		if errors.Is(err, repository.ErrNotFound) {
			status := domain.StatusPendingEmailVerification
			if identity.EmailVerified {
				status = domain.StatusPendingDocuments
			}
			at := domain.Millis(now)
			profile := &domain.Profile{
				ID:              identity.UID,
				Email:           identity.Email,
				Role:            domain.RoleUser,
				Status:          status,
				IsEmailVerified: identity.EmailVerified,
				Documents:       []domain.DocumentRef{},
				CreatedAt:       at,
				UpdatedAt:       at,
			}
			if err := tx.InsertProfile(ctx, profile); err != nil {
				return err
			}
			result.Created = true
			result.Profile = profile
			return nil
		}
		if err != nil {
			return err
		}

		before = current.Clone()
		if !backfillProfile(current, identity, now) {
			result.Profile = current
			return nil
		}
		current.Touch(now)
		if err := tx.UpdateProfile(ctx, current); err != nil {
			return err
		}
		result.Updated = true
		result.Profile = current
		return nil
	})
	if err != nil {
		log.Error("provision profile failed", zap.Error(err))
		return result, fmt.Errorf("provision profile %s: %w", identity.UID, err)
	}

	switch {
	case result.Created:
		log.Info("profile created", zap.String("status_to", string(result.Profile.Status)))
	case result.Updated:
		log.Info("profile backfilled",
			zap.String("status_from", string(before.Status)),
			zap.String("status_to", string(result.Profile.Status)))
		if before.Status != result.Profile.Status {
			b.metrics.RecordTransition(string(before.Status), string(result.Profile.Status))
		}
		publish(ctx, b.dispatcher, b.logger, events.New(events.EventProfileUpdated, identity.UID, events.SystemActor,
			events.ProfileUpdatedPayload{Before: before, After: result.Profile.Clone()}))
	default:
		log.Debug("profile already provisioned")
	}
	return result, nil
}

// backfillProfile fills only missing or invalid fields and mirrors the provider's
// verified flag once. It reports whether anything changed.
func backfillProfile(p *domain.Profile, identity domain.Identity, now time.Time) bool {
	changed := false
	if p.Email == "" && identity.Email != "" {
		p.Email = identity.Email
		changed = true
	}
	if !p.Role.Valid() {
		p.Role = domain.RoleUser
		changed = true
	}
	if p.Status == "" {
		p.Status = domain.StatusPendingEmailVerification
		changed = true
	} else if _, err := domain.ParseProfileStatus(string(p.Status)); err != nil {
		p.Status = domain.StatusPendingEmailVerification
		changed = true
	}
	if p.Documents == nil {
		p.Documents = []domain.DocumentRef{}
		changed = true
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = domain.Millis(now)
		changed = true
	}
	if identity.EmailVerified && !p.IsEmailVerified {
		p.IsEmailVerified = true
		if p.Status == domain.StatusPendingEmailVerification {
			p.Status = domain.StatusPendingDocuments
		}
		changed = true
	}
	return changed
}

func (b *IdentityBridge) assignDefaultRole(ctx context.Context, uid string) Outcome {
	const effect = "assign_default_role"
	identity, err := b.store.Identities().Get(ctx, uid)
	if err != nil {
		return failed(effect, err)
	}
	if identity.Role.Valid() {
		return skipped(effect, "role already set")
	}
	if err := b.store.Identities().SetRole(ctx, uid, domain.RoleUser); err != nil {
		return failed(effect, err)
	}
	return succeeded(effect, string(domain.RoleUser))
}
