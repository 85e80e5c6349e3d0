package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spec-kit/clearance-service/internal/domain"
)

const profileSelect = `
        SELECT id, email, role, status, is_email_verified, has_uploaded_documents,
               documents, verification, decided_by, decided_at, decision_note, last_error, created_at, updated_at
        FROM profiles`

type profileRepository struct {
	db querier
}

func (r *profileRepository) Get(ctx context.Context, id string) (*domain.Profile, error) {
	return r.fetch(ctx, profileSelect+" WHERE id=$1", id)
}

func (r *profileRepository) CountByStatus(ctx context.Context, status domain.ProfileStatus) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM profiles WHERE status=$1`, status).Scan(&count)
	return count, err
}

func (r *profileRepository) CountDecidedSince(ctx context.Context, status domain.ProfileStatus, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM profiles WHERE status=$1 AND decided_at >= $2`, status, since).Scan(&count)
	return count, err
}

func (r *profileRepository) fetch(ctx context.Context, query string, id string) (*domain.Profile, error) {
	var (
		profile      domain.Profile
		documents    []byte
		verification []byte
	)
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&profile.Email,
		&profile.Role,
		&profile.Status,
		&profile.IsEmailVerified,
		&profile.HasUploadedDocuments,
		&documents,
		&verification,
		&profile.DecidedBy,
		&profile.DecidedAt,
		&profile.DecisionNote,
		&profile.LastError,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	if len(documents) > 0 {
		if err := json.Unmarshal(documents, &profile.Documents); err != nil {
			return nil, fmt.Errorf("decode documents for %s: %w", id, err)
		}
	}
	if len(verification) > 0 && string(verification) != "null" {
		profile.Verification = &domain.VerificationChallenge{}
		if err := json.Unmarshal(verification, profile.Verification); err != nil {
			return nil, fmt.Errorf("decode verification for %s: %w", id, err)
		}
	}
	profile.CreatedAt = profile.CreatedAt.UTC()
	profile.UpdatedAt = profile.UpdatedAt.UTC()
	if profile.DecidedAt != nil {
		at := profile.DecidedAt.UTC()
		profile.DecidedAt = &at
	}
	return &profile, nil
}

func (r *profileRepository) insert(ctx context.Context, profile *domain.Profile) error {
	documents, verification, err := encodeProfileJSON(profile)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO profiles (id, email, role, status, is_email_verified, has_uploaded_documents,
                              documents, verification, decided_by, decided_at, decision_note, last_error,
                              created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err = r.db.Exec(ctx, query,
		profile.ID,
		profile.Email,
		profile.Role,
		profile.Status,
		profile.IsEmailVerified,
		profile.HasUploadedDocuments,
		documents,
		verification,
		profile.DecidedBy,
		profile.DecidedAt,
		profile.DecisionNote,
		profile.LastError,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	return err
}

func (r *profileRepository) update(ctx context.Context, profile *domain.Profile) error {
	documents, verification, err := encodeProfileJSON(profile)
	if err != nil {
		return err
	}
	const query = `
        UPDATE profiles SET email=$1, role=$2, status=$3, is_email_verified=$4, has_uploaded_documents=$5,
            documents=$6, verification=$7, decided_by=$8, decided_at=$9, decision_note=$10, last_error=$11,
            created_at=$12, updated_at=$13
        WHERE id=$14`
	tag, err := r.db.Exec(ctx, query,
		profile.Email,
		profile.Role,
		profile.Status,
		profile.IsEmailVerified,
		profile.HasUploadedDocuments,
		documents,
		verification,
		profile.DecidedBy,
		profile.DecidedAt,
		profile.DecisionNote,
		profile.LastError,
		profile.CreatedAt,
		profile.UpdatedAt,
		profile.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(tag)
}

func encodeProfileJSON(profile *domain.Profile) ([]byte, []byte, error) {
	docs := profile.Documents
	if docs == nil {
		docs = []domain.DocumentRef{}
	}
	documents, err := json.Marshal(docs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode documents: %w", err)
	}
	var verification []byte
	if profile.Verification != nil {
		verification, err = json.Marshal(profile.Verification)
		if err != nil {
			return nil, nil, fmt.Errorf("encode verification: %w", err)
		}
	}
	return documents, verification, nil
}
