package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/events"
	"github.com/spec-kit/clearance-service/internal/repository"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

// CounterService maintains the dashboard aggregate incrementally and reconciles it
// from predicate counts.
type CounterService struct {
	store    repository.Store
	counters repository.CounterStore
	logger   *zap.Logger
	clock    Clock
}

// CounterDependencies bundles collaborators for the counter maintainer.
type CounterDependencies struct {
	Store    repository.Store
	Counters repository.CounterStore
	Logger   *zap.Logger
	Clock    Clock
}

func NewCounterService(deps CounterDependencies) *CounterService {
	return &CounterService{
		store:    deps.Store,
		counters: deps.Counters,
		logger:   orNop(deps.Logger),
		clock:    deps.Clock,
	}
}

// RegisterHandlers subscribes to application triggers. Profile transitions reach the
// maintainer through the profile workflow.
func (s *CounterService) RegisterHandlers(d events.Dispatcher) {
	d.Subscribe(events.EventApplicationCreated, s.handleApplicationChanged)
	d.Subscribe(events.EventApplicationUpdated, s.handleApplicationChanged)
}

func (s *CounterService) handleApplicationChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ApplicationChangedPayload)
	if !ok || payload.After == nil {
		s.logger.Warn("ignoring application event without snapshot", zap.String("event_id", event.ID))
		return nil
	}
	return s.ApplyApplicationChange(ctx, event.ID, payload.Before, payload.After)
}

// ProfileDeltas computes the aggregate change for a profile status move.
func ProfileDeltas(from, to domain.ProfileStatus) map[string]int64 {
	deltas := map[string]int64{}
	if from == to {
		return deltas
	}
	if from == domain.StatusPendingApproval {
		deltas[domain.CounterPendingAccounts]--
	}
	if to == domain.StatusPendingApproval {
		deltas[domain.CounterPendingAccounts]++
	}
	return deltas
}

// ApplicationDeltas computes the aggregate change for an application write. before is
// nil for a newly created application.
func ApplicationDeltas(before, after *domain.Application) map[string]int64 {
	deltas := map[string]int64{}
	if after == nil {
		return deltas
	}
	if before != nil && before.Type == after.Type && before.Status == after.Status {
		return deltas
	}
	if before != nil && before.Status == domain.ApplicationWaiting {
		deltas[domain.ApplicationCounterField(before.Type)]--
	}
	if after.Status == domain.ApplicationWaiting {
		deltas[domain.ApplicationCounterField(after.Type)]++
	}
	return deltas
}

// ApplyProfileChange merges the delta for a status move. token identifies the
// triggering event so redelivery does not count twice.
func (s *CounterService) ApplyProfileChange(ctx context.Context, token string, from, to domain.ProfileStatus) error {
	return s.apply(ctx, "profile:"+token, ProfileDeltas(from, to))
}

// ApplyApplicationChange merges the delta for an application write.
func (s *CounterService) ApplyApplicationChange(ctx context.Context, token string, before, after *domain.Application) error {
	return s.apply(ctx, "application:"+token, ApplicationDeltas(before, after))
}

func (s *CounterService) apply(ctx context.Context, token string, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}
	applied, err := s.counters.Increment(ctx, token, deltas)
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Debug("counter delta already applied", zap.String("token", token))
		return nil
	}
	s.logger.Debug("counter delta applied", zap.String("token", token), zap.Any("deltas", deltas))
	return nil
}

// Recount computes every aggregate field from live predicate counts.
func (s *CounterService) Recount(ctx context.Context) (domain.DashboardCounters, error) {
	var out domain.DashboardCounters
	var err error
	if out.PendingAccounts, err = s.store.Profiles().CountByStatus(ctx, domain.StatusPendingApproval); err != nil {
		return out, err
	}
	if out.PendingArrival, err = s.store.Applications().CountByTypeStatus(ctx, domain.ApplicationArrival, domain.ApplicationWaiting); err != nil {
		return out, err
	}
	if out.PendingDeparture, err = s.store.Applications().CountByTypeStatus(ctx, domain.ApplicationDeparture, domain.ApplicationWaiting); err != nil {
		return out, err
	}
	return out, nil
}

// Reconcile recounts and overwrites the aggregate.
func (s *CounterService) Reconcile(ctx context.Context, caller domain.Caller) (domain.DashboardCounters, error) {
	if err := requireStaff(caller); err != nil {
		return domain.DashboardCounters{}, err
	}
	counters, err := s.Recount(ctx)
	if err != nil {
		return counters, apperrors.NewInternalError(err)
	}
	if err := s.counters.Overwrite(ctx, counters.Fields()); err != nil {
		return counters, apperrors.NewInternalError(err)
	}
	s.logger.Info("counters reconciled",
		zap.String("actor", caller.Actor()),
		zap.Int64("pending_accounts", counters.PendingAccounts),
		zap.Int64("pending_arrival", counters.PendingArrival),
		zap.Int64("pending_departure", counters.PendingDeparture))
	return counters, nil
}

// DashboardStats reads the aggregate, falling back to a live count for absent fields.
func (s *CounterService) DashboardStats(ctx context.Context, caller domain.Caller) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	if err := requireStaff(caller); err != nil {
		return stats, err
	}
	agg, err := s.counters.Get(ctx)
	if err != nil {
		s.logger.Warn("read counters failed, using live counts", zap.Error(err))
		agg = map[string]int64{}
	}

	field := func(name string, live func() (int64, error)) (int64, error) {
		if v, ok := agg[name]; ok {
			return v, nil
		}
		return live()
	}
	if stats.PendingAccounts, err = field(domain.CounterPendingAccounts, func() (int64, error) {
		return s.store.Profiles().CountByStatus(ctx, domain.StatusPendingApproval)
	}); err != nil {
		return stats, apperrors.NewInternalError(err)
	}
	if stats.PendingArrival, err = field(domain.CounterPendingArrival, func() (int64, error) {
		return s.store.Applications().CountByTypeStatus(ctx, domain.ApplicationArrival, domain.ApplicationWaiting)
	}); err != nil {
		return stats, apperrors.NewInternalError(err)
	}
	if stats.PendingDeparture, err = field(domain.CounterPendingDeparture, func() (int64, error) {
		return s.store.Applications().CountByTypeStatus(ctx, domain.ApplicationDeparture, domain.ApplicationWaiting)
	}); err != nil {
		return stats, apperrors.NewInternalError(err)
	}

	startOfDay := s.clock.now().Truncate(24 * time.Hour)
	if stats.ApprovedToday, err = s.store.Profiles().CountDecidedSince(ctx, domain.StatusApproved, startOfDay); err != nil {
		return stats, apperrors.NewInternalError(err)
	}
	if stats.RejectedToday, err = s.store.Profiles().CountDecidedSince(ctx, domain.StatusRejected, startOfDay); err != nil {
		return stats, apperrors.NewInternalError(err)
	}
	return stats, nil
}
