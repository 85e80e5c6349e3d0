package repository

import (
	"context"

	"github.com/spec-kit/clearance-service/internal/domain"
)

type notificationRepository struct {
	db querier
}

func (r *notificationRepository) InsertOnce(ctx context.Context, item domain.NotificationItem) (bool, error) {
	const query = `
        INSERT INTO notification_items (profile_id, id, type, message, created_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (profile_id, id) DO NOTHING`
	tag, err := r.db.Exec(ctx, query, item.ProfileID, item.ID, item.Type, item.Message, item.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *notificationRepository) ListByProfile(ctx context.Context, profileID string, limit int) ([]domain.NotificationItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
        SELECT profile_id, id, type, message, created_at
        FROM notification_items WHERE profile_id=$1
        ORDER BY created_at DESC LIMIT $2`, profileID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.NotificationItem
	for rows.Next() {
		var item domain.NotificationItem
		if err := rows.Scan(&item.ProfileID, &item.ID, &item.Type, &item.Message, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}
