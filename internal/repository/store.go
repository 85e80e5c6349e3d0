package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/clearance-service/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the transactional boundary over workflow records. Every read-modify-write
// on a profile, application or mail record goes through RunInTx, which re-reads
// current state under a row lock before the callback branches on it.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	Profiles() ProfileReader
	Applications() ApplicationReader
	ReviewQueue() ReviewQueueRepository
	Notifications() NotificationRepository
	Mail() MailRepository
	Identities() IdentityRepository
}

// Tx exposes locked reads and writes inside one transaction.
type Tx interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	InsertProfile(ctx context.Context, profile *domain.Profile) error
	UpdateProfile(ctx context.Context, profile *domain.Profile) error

	GetApplication(ctx context.Context, id string) (*domain.Application, error)
	InsertApplication(ctx context.Context, app *domain.Application) error
	UpdateApplication(ctx context.Context, app *domain.Application) error

	GetMail(ctx context.Context, id string) (*domain.MailRecord, error)
	UpdateMail(ctx context.Context, record *domain.MailRecord) error
}

// ProfileReader serves non-transactional profile reads and predicate counts.
type ProfileReader interface {
	Get(ctx context.Context, id string) (*domain.Profile, error)
	CountByStatus(ctx context.Context, status domain.ProfileStatus) (int64, error)
	// CountDecidedSince counts profiles in status whose decision was recorded at or after since.
	CountDecidedSince(ctx context.Context, status domain.ProfileStatus, since time.Time) (int64, error)
}

// ApplicationReader serves non-transactional application reads and predicate counts.
type ApplicationReader interface {
	Get(ctx context.Context, id string) (*domain.Application, error)
	ListByAgent(ctx context.Context, agentUID string, limit, offset int) ([]domain.Application, error)
	CountByTypeStatus(ctx context.Context, appType domain.ApplicationType, status domain.ApplicationStatus) (int64, error)
}

// OnceInserter creates a record under its deterministic key at most once.
// The boolean reports whether this call created it.
type OnceInserter[T any] interface {
	InsertOnce(ctx context.Context, record T) (bool, error)
}

// ReviewQueueRepository stores officer work items.
type ReviewQueueRepository interface {
	OnceInserter[domain.ReviewItem]
	Get(ctx context.Context, id string) (*domain.ReviewItem, error)
	List(ctx context.Context, limit, offset int) ([]domain.ReviewItem, error)
}

// NotificationRepository stores per-profile notification items.
type NotificationRepository interface {
	OnceInserter[domain.NotificationItem]
	ListByProfile(ctx context.Context, profileID string, limit int) ([]domain.NotificationItem, error)
}

// MailRepository stores outbound email records.
type MailRepository interface {
	OnceInserter[domain.MailRecord]
	Get(ctx context.Context, id string) (*domain.MailRecord, error)
}

// IdentityRepository mirrors the identity provider's principal records and claims.
type IdentityRepository interface {
	Upsert(ctx context.Context, identity *domain.Identity) error
	Get(ctx context.Context, uid string) (*domain.Identity, error)
	SetRole(ctx context.Context, uid string, role domain.Role) error
	MarkEmailVerified(ctx context.Context, uid string) error
}
