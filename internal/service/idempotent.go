package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/observability"
	"github.com/spec-kit/clearance-service/internal/repository"
)

// insertOnce creates record under its deterministic key at most once. It is the single
// path for review items, notifications and retry mail.
func insertOnce[T any](ctx context.Context, repo repository.OnceInserter[T], kind, id string, record T, logger *zap.Logger, metrics *observability.Metrics) (bool, error) {
	created, err := repo.InsertOnce(ctx, record)
	if err != nil {
		return false, fmt.Errorf("insert %s %s: %w", kind, id, err)
	}
	metrics.RecordInsert(kind, created)
	if created {
		logger.Info("record created", zap.String("kind", kind), zap.String("record_id", id))
	} else {
		logger.Debug("record already exists", zap.String("kind", kind), zap.String("record_id", id))
	}
	return created, nil
}

// dedupeSuffix is the bucket part of a deterministic key: the millisecond value of
// the entity's own timestamp, or the delivering event's id when the timestamp is unset.
func dedupeSuffix(at time.Time, eventID string) string {
	if at.IsZero() {
		return eventID
	}
	return fmt.Sprintf("%d", domain.Millis(at).UnixMilli())
}
