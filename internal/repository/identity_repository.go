package repository

import (
	"context"

	"github.com/spec-kit/clearance-service/internal/domain"
)

type identityRepository struct {
	db querier
}

// Upsert records the provider's view of a principal. An existing role claim and a
// verified flag already set to true are never downgraded.
func (r *identityRepository) Upsert(ctx context.Context, identity *domain.Identity) error {
	const query = `
        INSERT INTO identities (uid, email, display_name, email_verified, role)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (uid) DO UPDATE SET
            email = EXCLUDED.email,
            display_name = EXCLUDED.display_name,
            email_verified = identities.email_verified OR EXCLUDED.email_verified,
            role = CASE WHEN identities.role = '' THEN EXCLUDED.role ELSE identities.role END,
            updated_at = NOW()
        RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		identity.UID,
		identity.Email,
		identity.DisplayName,
		identity.EmailVerified,
		identity.Role,
	).Scan(&identity.CreatedAt, &identity.UpdatedAt)
}

func (r *identityRepository) Get(ctx context.Context, uid string) (*domain.Identity, error) {
	const query = `
        SELECT uid, email, display_name, email_verified, role, created_at, updated_at
        FROM identities WHERE uid=$1`
	var identity domain.Identity
	if err := r.db.QueryRow(ctx, query, uid).Scan(
		&identity.UID,
		&identity.Email,
		&identity.DisplayName,
		&identity.EmailVerified,
		&identity.Role,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &identity, nil
}

func (r *identityRepository) SetRole(ctx context.Context, uid string, role domain.Role) error {
	tag, err := r.db.Exec(ctx, `UPDATE identities SET role=$1, updated_at=NOW() WHERE uid=$2`, role, uid)
	if err != nil {
		return err
	}
	return requireRow(tag)
}

func (r *identityRepository) MarkEmailVerified(ctx context.Context, uid string) error {
	tag, err := r.db.Exec(ctx, `UPDATE identities SET email_verified=TRUE, updated_at=NOW() WHERE uid=$1`, uid)
	if err != nil {
		return err
	}
	return requireRow(tag)
}
