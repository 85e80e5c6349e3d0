package repository

import (
	"context"

	"github.com/spec-kit/clearance-service/internal/domain"
)

type reviewQueueRepository struct {
	db querier
}

// InsertOnce relies on the primary key: a second insert under the same id is a no-op.
func (r *reviewQueueRepository) InsertOnce(ctx context.Context, item domain.ReviewItem) (bool, error) {
	const query = `
        INSERT INTO review_queue (id, profile_id, email, submitted_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (id) DO NOTHING`
	tag, err := r.db.Exec(ctx, query, item.ID, item.ProfileID, item.Email, item.SubmittedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *reviewQueueRepository) Get(ctx context.Context, id string) (*domain.ReviewItem, error) {
	var item domain.ReviewItem
	err := r.db.QueryRow(ctx,
		`SELECT id, profile_id, email, submitted_at FROM review_queue WHERE id=$1`, id).
		Scan(&item.ID, &item.ProfileID, &item.Email, &item.SubmittedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (r *reviewQueueRepository) List(ctx context.Context, limit, offset int) ([]domain.ReviewItem, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
        SELECT q.id, q.profile_id, q.email, q.submitted_at
        FROM review_queue q
        JOIN profiles p ON p.id = q.profile_id
        WHERE p.status = $1
        ORDER BY q.submitted_at ASC LIMIT $2 OFFSET $3`,
		domain.StatusPendingApproval, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ReviewItem
	for rows.Next() {
		var item domain.ReviewItem
		if err := rows.Scan(&item.ID, &item.ProfileID, &item.Email, &item.SubmittedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}
