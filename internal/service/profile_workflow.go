package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/events"
	"github.com/spec-kit/clearance-service/internal/observability"
	"github.com/spec-kit/clearance-service/internal/repository"
)

// ProfileWorkflow reacts to profile writes: it enforces the pending_approval move,
// enqueues review work, records decision notifications and adjusts counters.
type ProfileWorkflow struct {
	store      repository.Store
	counters   *CounterService
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	clock      Clock
}

// ProfileWorkflowDependencies bundles collaborators for the workflow.
type ProfileWorkflowDependencies struct {
	Store      repository.Store
	Counters   *CounterService
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Clock      Clock
}

func NewProfileWorkflow(deps ProfileWorkflowDependencies) *ProfileWorkflow {
	return &ProfileWorkflow{
		store:      deps.Store,
		counters:   deps.Counters,
		dispatcher: deps.Dispatcher,
		logger:     orNop(deps.Logger),
		metrics:    deps.Metrics,
		clock:      deps.Clock,
	}
}

// RegisterHandlers subscribes to profile triggers.
func (w *ProfileWorkflow) RegisterHandlers(d events.Dispatcher) {
	d.Subscribe(events.EventProfileUpdated, w.HandleProfileUpdated)
}

// profileChange is what a before/after pair says happened.
type profileChange struct {
	from, to               domain.ProfileStatus
	uploadedNow            bool
	movedToPendingApproval bool
	shouldEnforce          bool
	decision               domain.Decision
}

func diffProfile(before, after *domain.Profile) profileChange {
	c := profileChange{
		from: before.Status.OrDefault(),
		to:   after.Status.OrDefault(),
	}
	c.uploadedNow = !before.HasUploadedDocuments && after.HasUploadedDocuments
	c.movedToPendingApproval = c.from == domain.StatusPendingDocuments && c.to == domain.StatusPendingApproval
	c.shouldEnforce = c.from == domain.StatusPendingDocuments &&
		(c.uploadedNow || c.to == domain.StatusPendingApproval) &&
		c.to != domain.StatusPendingApproval
	if !c.from.IsTerminal() {
		switch c.to {
		case domain.StatusApproved:
			c.decision = domain.DecisionApproved
		case domain.StatusRejected:
			c.decision = domain.DecisionRejected
		}
	}
	return c
}

// HandleProfileUpdated runs the four reactions in order. Each one is idempotent, so a
// redelivered event converges to the same state.
func (w *ProfileWorkflow) HandleProfileUpdated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ProfileUpdatedPayload)
	if !ok || payload.After == nil {
		w.logger.Warn("ignoring profile event without snapshot", zap.String("event_id", event.ID))
		return nil
	}
	before := payload.Before
	if before == nil {
		before = &domain.Profile{ID: payload.After.ID}
	}
	after := payload.After
	change := diffProfile(before, after)
	log := w.logger.With(
		zap.String("event_id", event.ID),
		zap.String("profile_id", after.ID),
		zap.String("status_from", string(change.from)),
		zap.String("status_to", string(change.to)))

	var errs []error

	if change.shouldEnforce {
		if err := w.enforcePendingApproval(ctx, after.ID, log); err != nil {
			errs = append(errs, err)
		}
	}

	enqueue := change.uploadedNow || (change.movedToPendingApproval && event.Actor.Type != events.ActorSystem)
	if enqueue {
		if err := w.enqueueReview(ctx, event.ID, after, log); err != nil {
			errs = append(errs, err)
		}
	}

	if change.decision != "" {
		if err := w.notifyDecision(ctx, event.ID, after, change.decision, log); err != nil {
			errs = append(errs, err)
		}
	}

	if change.from != change.to && w.counters != nil {
		if err := w.counters.ApplyProfileChange(ctx, event.ID, change.from, change.to); err != nil {
			errs = append(errs, fmt.Errorf("adjust counters: %w", err))
		}
	}

	return errors.Join(errs...)
}

// enforcePendingApproval re-reads the profile under lock and moves it only if it is
// still pending_documents. A concurrent writer that already advanced it wins.
func (w *ProfileWorkflow) enforcePendingApproval(ctx context.Context, profileID string, log *zap.Logger) error {
	var before, after *domain.Profile
	err := w.store.RunInTx(ctx, func(tx repository.Tx) error {
		current, err := tx.GetProfile(ctx, profileID)
		if err != nil {
			return err
		}
		if current.Status.OrDefault() != domain.StatusPendingDocuments {
			return nil
		}
		before = current.Clone()
		if err := current.Transition(domain.StatusPendingApproval, w.clock.now()); err != nil {
			return err
		}
		if err := tx.UpdateProfile(ctx, current); err != nil {
			return err
		}
		after = current
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("profile vanished before enforcement")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enforce pending_approval: %w", err)
	}
	if after == nil {
		log.Info("enforcement skipped, status already advanced")
		return nil
	}

	w.metrics.RecordTransition(string(before.Status), string(after.Status))
	log.Info("status enforced", zap.String("status_enforced", string(after.Status)))
	publish(ctx, w.dispatcher, w.logger, events.New(events.EventProfileUpdated, after.ID, events.SystemActor,
		events.ProfileUpdatedPayload{Before: before, After: after.Clone()}))
	return nil
}

func (w *ProfileWorkflow) enqueueReview(ctx context.Context, eventID string, after *domain.Profile, log *zap.Logger) error {
	submittedAt := domain.Millis(after.UpdatedAt)
	if submittedAt.IsZero() {
		submittedAt = domain.Millis(w.clock.now())
	}
	item := domain.ReviewItem{
		ID:          domain.ReviewItemID(after.ID, dedupeSuffix(after.UpdatedAt, eventID)),
		ProfileID:   after.ID,
		Email:       after.Email,
		SubmittedAt: submittedAt,
	}
	_, err := insertOnce(ctx, w.store.ReviewQueue(), "review", item.ID, item, log.With(zap.String("review_id", item.ID)), w.metrics)
	return err
}

func (w *ProfileWorkflow) notifyDecision(ctx context.Context, eventID string, after *domain.Profile, kind domain.Decision, log *zap.Logger) error {
	createdAt := domain.Millis(after.UpdatedAt)
	if createdAt.IsZero() {
		createdAt = domain.Millis(w.clock.now())
	}
	item := domain.NotificationItem{
		ID:        domain.NotificationID(kind, dedupeSuffix(after.UpdatedAt, eventID)),
		ProfileID: after.ID,
		Type:      kind,
		Message:   domain.DecisionMessage(kind),
		CreatedAt: createdAt,
	}
	_, err := insertOnce(ctx, w.store.Notifications(), "notification", item.ID, item, log.With(zap.String("notification_id", item.ID)), w.metrics)
	return err
}
