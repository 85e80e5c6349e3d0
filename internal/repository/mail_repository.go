package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spec-kit/clearance-service/internal/domain"
)

const mailSelect = `
        SELECT id, kind, profile_id, to_address, template, template_data, delivery_state,
               delivery_error, retry_count, original_id, created_at, updated_at
        FROM mail`

type mailRepository struct {
	db querier
}

func (r *mailRepository) InsertOnce(ctx context.Context, record domain.MailRecord) (bool, error) {
	data, err := encodeMetadata(record.TemplateData)
	if err != nil {
		return false, err
	}
	const query = `
        INSERT INTO mail (id, kind, profile_id, to_address, template, template_data, delivery_state,
                          delivery_error, retry_count, original_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (id) DO NOTHING`
	tag, err := r.db.Exec(ctx, query,
		record.ID,
		record.Kind,
		record.ProfileID,
		record.To,
		record.Template,
		data,
		record.State,
		record.DeliveryError,
		record.RetryCount,
		record.OriginalID,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *mailRepository) Get(ctx context.Context, id string) (*domain.MailRecord, error) {
	return r.fetch(ctx, mailSelect+" WHERE id=$1", id)
}

func (r *mailRepository) fetch(ctx context.Context, query, id string) (*domain.MailRecord, error) {
	var (
		record domain.MailRecord
		data   []byte
	)
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&record.ID,
		&record.Kind,
		&record.ProfileID,
		&record.To,
		&record.Template,
		&data,
		&record.State,
		&record.DeliveryError,
		&record.RetryCount,
		&record.OriginalID,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &record.TemplateData); err != nil {
			return nil, fmt.Errorf("decode template data for %s: %w", id, err)
		}
	}
	return &record, nil
}

func (r *mailRepository) update(ctx context.Context, record *domain.MailRecord) error {
	const query = `
        UPDATE mail SET delivery_state=$1, delivery_error=$2, retry_count=$3, updated_at=$4
        WHERE id=$5`
	tag, err := r.db.Exec(ctx, query,
		record.State,
		record.DeliveryError,
		record.RetryCount,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(tag)
}
