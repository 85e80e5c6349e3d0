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

// EmailWatcher records provider delivery callbacks and reacts to failed verification
// email by flagging the profile and re-enqueueing a bounded number of resends.
type EmailWatcher struct {
	store      repository.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	clock      Clock
	maxRetries int
}

// EmailWatcherDependencies bundles collaborators for the watcher.
type EmailWatcherDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Clock      Clock
	MaxRetries int
}

func NewEmailWatcher(deps EmailWatcherDependencies) *EmailWatcher {
	maxRetries := deps.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &EmailWatcher{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     orNop(deps.Logger),
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		maxRetries: maxRetries,
	}
}

// RegisterHandlers subscribes to mail record triggers.
func (w *EmailWatcher) RegisterHandlers(d events.Dispatcher) {
	d.Subscribe(events.EventEmailRecordUpdated, w.HandleEmailRecordUpdated)
}

// DeliveryReport is a provider callback for one message.
type DeliveryReport struct {
	MailID string
	State  domain.DeliveryState
	Error  string
}

func validDeliveryState(s domain.DeliveryState) bool {
	switch s {
	case domain.DeliveryPending, domain.DeliveryProcessing, domain.DeliverySuccess,
		domain.DeliveryFailed, domain.DeliveryBounced, domain.DeliveryRejected:
		return true
	}
	return false
}

// RecordDelivery stores the reported state on the mail record and emits
// email_record_updated with before/after snapshots.
func (w *EmailWatcher) RecordDelivery(ctx context.Context, report DeliveryReport) (*domain.MailRecord, error) {
	report.MailID = strings.TrimSpace(report.MailID)
	if report.MailID == "" {
		return nil, apperrors.NewInvalidArgument("mail id is required", nil)
	}
	if !validDeliveryState(report.State) {
		return nil, apperrors.NewInvalidArgument("unknown delivery state", map[string]any{"state": report.State})
	}

	var before, after *domain.MailRecord
	err := w.store.RunInTx(ctx, func(tx repository.Tx) error {
		record, err := tx.GetMail(ctx, report.MailID)
		if err != nil {
			return err
		}
		if record.State == report.State && record.DeliveryError == report.Error {
			after = record
			return nil
		}
		before = record.Clone()
		record.State = report.State
		record.DeliveryError = report.Error
		record.UpdatedAt = domain.Millis(w.clock.now())
		if err := tx.UpdateMail(ctx, record); err != nil {
			return err
		}
		after = record
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("mail record", map[string]any{"id": report.MailID})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if before != nil {
		publish(ctx, w.dispatcher, w.logger, events.New(events.EventEmailRecordUpdated, after.ID, events.SystemActor,
			events.EmailRecordUpdatedPayload{Before: before, After: after.Clone()}))
	}
	return after, nil
}

// HandleEmailRecordUpdated reacts to a delivery-state change on a verification email.
func (w *EmailWatcher) HandleEmailRecordUpdated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.EmailRecordUpdatedPayload)
	if !ok || payload.After == nil {
		w.logger.Warn("ignoring mail event without snapshot", zap.String("event_id", event.ID))
		return nil
	}
	after := payload.After
	if after.Kind != domain.MailKindVerification {
		return nil
	}
	var beforeState domain.DeliveryState
	if payload.Before != nil {
		beforeState = payload.Before.State
	}
	if beforeState == after.State {
		return nil
	}
	log := w.logger.With(
		zap.String("event_id", event.ID),
		zap.String("mail_id", after.ID),
		zap.String("profile_id", after.ProfileID),
		zap.String("delivery_state", string(after.State)))

	if after.State == domain.DeliverySuccess {
		log.Info("verification email delivered")
		return nil
	}
	if !after.State.IsTerminalFailure() {
		return nil
	}

	var errs []error
	if err := w.flagProfile(ctx, after, log); err != nil {
		errs = append(errs, err)
	}
	if err := w.enqueueRetry(ctx, after, log); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (w *EmailWatcher) flagProfile(ctx context.Context, record *domain.MailRecord, log *zap.Logger) error {
	if record.ProfileID == "" {
		log.Warn("failed verification email has no profile")
		return nil
	}
	message := record.DeliveryError
	if message == "" {
		message = fmt.Sprintf("verification email %s", record.State)
	}

	var before, after *domain.Profile
	err := w.store.RunInTx(ctx, func(tx repository.Tx) error {
		profile, err := tx.GetProfile(ctx, record.ProfileID)
		if err != nil {
			return err
		}
		now := w.clock.now()
		transition := profile.Status.OrDefault().CanTransition(domain.StatusEmailVerificationFailed)
		if !transition && profile.LastError == message {
			return nil
		}
		before = profile.Clone()
		if transition {
			if err := profile.Transition(domain.StatusEmailVerificationFailed, now); err != nil {
				return err
			}
		} else {
			profile.Touch(now)
		}
		profile.LastError = message
		if err := tx.UpdateProfile(ctx, profile); err != nil {
			return err
		}
		after = profile
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("failed verification email for unknown profile")
		return nil
	}
	if err != nil {
		return fmt.Errorf("flag profile %s: %w", record.ProfileID, err)
	}
	if after == nil {
		return nil
	}
	if before.Status != after.Status {
		w.metrics.RecordTransition(string(before.Status), string(after.Status))
		log.Info("profile marked email_verification_failed", zap.String("status_from", string(before.Status)))
	} else {
		log.Info("delivery failure recorded without status change", zap.String("status", string(after.Status)))
	}
	publish(ctx, w.dispatcher, w.logger, events.New(events.EventProfileUpdated, after.ID, events.SystemActor,
		events.ProfileUpdatedPayload{Before: before, After: after.Clone()}))
	return nil
}

func (w *EmailWatcher) enqueueRetry(ctx context.Context, record *domain.MailRecord, log *zap.Logger) error {
	if record.RetryCount >= w.maxRetries {
		log.Warn("verification email retries exhausted",
			zap.Int("retry_count", record.RetryCount),
			zap.Int("max_retries", w.maxRetries))
		return nil
	}
	original := record.OriginalID
	if original == "" {
		original = record.ID
	}
	attempt := record.RetryCount + 1
	now := domain.Millis(w.clock.now())
	retry := record.Clone()
	retry.ID = domain.RetryMailID(original, attempt)
	retry.OriginalID = original
	retry.RetryCount = attempt
	retry.State = domain.DeliveryPending
	retry.DeliveryError = ""
	retry.CreatedAt = now
	retry.UpdatedAt = now
	_, err := insertOnce(ctx, w.store.Mail(), "mail_retry", retry.ID, *retry, log, w.metrics)
	return err
}
