package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/events"
	"github.com/spec-kit/clearance-service/internal/repository"
)

// DocumentRecorder attaches finalized storage objects to their owning profile. It is a
// passive safety net: it never sets hasUploadedDocuments, never bumps updatedAt and
// never emits profile_updated.
type DocumentRecorder struct {
	store  repository.Store
	logger *zap.Logger
	clock  Clock
}

// DocumentRecorderDependencies bundles collaborators for the recorder.
type DocumentRecorderDependencies struct {
	Store  repository.Store
	Logger *zap.Logger
	Clock  Clock
}

func NewDocumentRecorder(deps DocumentRecorderDependencies) *DocumentRecorder {
	return &DocumentRecorder{store: deps.Store, logger: orNop(deps.Logger), clock: deps.Clock}
}

// RegisterHandlers subscribes to storage triggers.
func (r *DocumentRecorder) RegisterHandlers(d events.Dispatcher) {
	d.Subscribe(events.EventStorageObjectFinalized, r.handleFinalized)
}

// ProfileIDFromObjectPath recovers the owner from profiles/{id}/documents/... or
// documents/{id}/.... Other shapes return false.
func ProfileIDFromObjectPath(name string) (string, bool) {
	parts := strings.Split(strings.TrimPrefix(name, "/"), "/")
	switch {
	case len(parts) >= 4 && parts[0] == "profiles" && parts[2] == "documents":
		if parts[1] == "" || parts[len(parts)-1] == "" {
			return "", false
		}
		return parts[1], true
	case len(parts) >= 3 && parts[0] == "documents":
		if parts[1] == "" || parts[len(parts)-1] == "" {
			return "", false
		}
		return parts[1], true
	}
	return "", false
}

func (r *DocumentRecorder) handleFinalized(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.StorageObjectFinalizedPayload)
	if !ok {
		r.logger.Warn("ignoring storage event without object", zap.String("event_id", event.ID))
		return nil
	}
	_, err := r.Record(ctx, payload)
	return err
}

// Record appends the object to its profile's document set unless an entry with the
// same locator or file name exists. It reports whether an entry was added.
func (r *DocumentRecorder) Record(ctx context.Context, object events.StorageObjectFinalizedPayload) (bool, error) {
	profileID, ok := ProfileIDFromObjectPath(object.Name)
	if !ok {
		r.logger.Debug("ignoring object outside document paths", zap.String("object", object.Name))
		return false, nil
	}
	locator := object.Locator()
	fileName := path.Base(object.Name)
	log := r.logger.With(zap.String("profile_id", profileID), zap.String("storage_path", locator))

	added := false
	err := r.store.RunInTx(ctx, func(tx repository.Tx) error {
		profile, err := tx.GetProfile(ctx, profileID)
		if err != nil {
			return err
		}
		if profile.HasDocument(locator, fileName) {
			return nil
		}
		uploadedAt := r.clock.now()
		if object.TimeCreated != nil && !object.TimeCreated.IsZero() {
			uploadedAt = *object.TimeCreated
		}
		profile.AppendDocument(domain.DocumentRef{
			Name:        fileName,
			StoragePath: locator,
			UploadedAt:  domain.Millis(uploadedAt),
		})
		added = true
		return tx.UpdateProfile(ctx, profile)
	})
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("document finalized for unknown profile")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record document for %s: %w", profileID, err)
	}
	if added {
		log.Info("document recorded", zap.String("document_name", fileName))
	} else {
		log.Debug("document already recorded")
	}
	return added, nil
}
