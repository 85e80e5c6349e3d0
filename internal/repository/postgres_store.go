package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/clearance-service/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresStore struct {
	pool          *pgxpool.Pool
	profiles      *profileRepository
	applications  *applicationRepository
	reviewQueue   *reviewQueueRepository
	notifications *notificationRepository
	mail          *mailRepository
	identities    *identityRepository
}

// NewPostgresStore returns a Store backed by a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{
		pool:          pool,
		profiles:      &profileRepository{db: pool},
		applications:  &applicationRepository{db: pool},
		reviewQueue:   &reviewQueueRepository{db: pool},
		notifications: &notificationRepository{db: pool},
		mail:          &mailRepository{db: pool},
		identities:    &identityRepository{db: pool},
	}
}

func (s *postgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&postgresTx{
			profiles:     &profileRepository{db: tx},
			applications: &applicationRepository{db: tx},
			mail:         &mailRepository{db: tx},
		})
	})
}

func (s *postgresStore) Profiles() ProfileReader               { return s.profiles }
func (s *postgresStore) Applications() ApplicationReader       { return s.applications }
func (s *postgresStore) ReviewQueue() ReviewQueueRepository    { return s.reviewQueue }
func (s *postgresStore) Notifications() NotificationRepository { return s.notifications }
func (s *postgresStore) Mail() MailRepository                  { return s.mail }
func (s *postgresStore) Identities() IdentityRepository        { return s.identities }

type postgresTx struct {
	profiles     *profileRepository
	applications *applicationRepository
	mail         *mailRepository
}

func (t *postgresTx) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	return t.profiles.fetch(ctx, profileSelect+" WHERE id=$1 FOR UPDATE", id)
}

func (t *postgresTx) InsertProfile(ctx context.Context, profile *domain.Profile) error {
	return t.profiles.insert(ctx, profile)
}

func (t *postgresTx) UpdateProfile(ctx context.Context, profile *domain.Profile) error {
	return t.profiles.update(ctx, profile)
}

func (t *postgresTx) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	return t.applications.fetch(ctx, applicationSelect+" WHERE id=$1 FOR UPDATE", id)
}

func (t *postgresTx) InsertApplication(ctx context.Context, app *domain.Application) error {
	return t.applications.insert(ctx, app)
}

func (t *postgresTx) UpdateApplication(ctx context.Context, app *domain.Application) error {
	return t.applications.update(ctx, app)
}

func (t *postgresTx) GetMail(ctx context.Context, id string) (*domain.MailRecord, error) {
	return t.mail.fetch(ctx, mailSelect+" WHERE id=$1 FOR UPDATE", id)
}

func (t *postgresTx) UpdateMail(ctx context.Context, record *domain.MailRecord) error {
	return t.mail.update(ctx, record)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func requireRow(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
