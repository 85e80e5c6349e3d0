package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/clearance-service/internal/domain"
)

func TestInMemoryDispatcherRunsAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	calls := 0
	boom := errors.New("boom")
	d.Subscribe(EventProfileUpdated, func(context.Context, Event) error { calls++; return boom })
	d.Subscribe(EventProfileUpdated, func(context.Context, Event) error { calls++; return nil })
	d.Subscribe(EventApplicationCreated, func(context.Context, Event) error { calls += 100; return nil })

	err := d.Publish(context.Background(), New(EventProfileUpdated, "u1", SystemActor, ProfileUpdatedPayload{}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestDecodeRestoresTypedPayload(t *testing.T) {
	updated := time.Date(2024, 5, 1, 10, 0, 0, 123000000, time.UTC)
	event := New(EventProfileUpdated, "u1", Actor{Type: ActorUser, ID: "u1"}, ProfileUpdatedPayload{
		Before: &domain.Profile{ID: "u1", Status: domain.StatusPendingDocuments},
		After:  &domain.Profile{ID: "u1", Status: domain.StatusPendingApproval, HasUploadedDocuments: true, UpdatedAt: updated},
	})
	data, err := Encode(event)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	payload, ok := decoded.Payload.(ProfileUpdatedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPendingApproval, payload.After.Status)
	assert.True(t, payload.After.UpdatedAt.Equal(updated))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, ActorUser, decoded.Actor.Type)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"id":"x","type":"nope"}`))
	assert.Error(t, err)
}

func TestStorageLocator(t *testing.T) {
	p := StorageObjectFinalizedPayload{Bucket: "b", Name: "documents/u1/passport.pdf"}
	assert.Equal(t, "s3://b/documents/u1/passport.pdf", p.Locator())
	p.Scheme = "gs"
	assert.Equal(t, "gs://b/documents/u1/passport.pdf", p.Locator())
}

func newStreamDispatcher(t *testing.T) (*StreamDispatcher, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	d := NewStreamDispatcher(client, StreamOptions{
		Stream:      "triggers",
		Group:       "workers",
		Consumer:    "c1",
		Block:       10 * time.Millisecond,
		ReclaimIdle: 5 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, d.EnsureGroup(context.Background()))
	return d, client
}

func TestStreamDispatcherAcksHandledEntries(t *testing.T) {
	d, client := newStreamDispatcher(t)
	ctx := context.Background()

	var got []Event
	d.Subscribe(EventPrincipalCreated, func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, d.Publish(ctx, New(EventPrincipalCreated, "u1", SystemActor, PrincipalCreatedPayload{
		Identity: domain.Identity{UID: "u1", Email: "u1@example.com"},
	})))

	n, err := d.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, got, 1)
	assert.Equal(t, "u1@example.com", got[0].Payload.(PrincipalCreatedPayload).Identity.Email)

	pending, err := client.XPending(ctx, "triggers", "workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestStreamDispatcherRedeliversFailedEntries(t *testing.T) {
	d, client := newStreamDispatcher(t)
	ctx := context.Background()

	attempts := 0
	d.Subscribe(EventEmailRecordUpdated, func(context.Context, Event) error {
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	})
	var observed []error
	d.OnHandled(func(_ EventType, err error) { observed = append(observed, err) })

	require.NoError(t, d.Publish(ctx, New(EventEmailRecordUpdated, "m1", SystemActor, EmailRecordUpdatedPayload{})))
	_, err := d.ProcessOnce(ctx)
	require.NoError(t, err)

	pending, err := client.XPending(ctx, "triggers", "workers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)

	time.Sleep(20 * time.Millisecond)
	n, err := d.Reclaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, attempts)
	require.Len(t, observed, 2)
	assert.Error(t, observed[0])
	assert.NoError(t, observed[1])

	pending, err = client.XPending(ctx, "triggers", "workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}
