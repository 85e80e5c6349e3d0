package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/clearance-service/internal/domain"
)

const applicationSelect = `
        SELECT id, agent_uid, type, status, vessel_name, port_of_call, scheduled_at, metadata,
               decided_by, clearance_document_url, clearance_document_key, created_at, updated_at
        FROM applications`

type applicationRepository struct {
	db querier
}

func (r *applicationRepository) Get(ctx context.Context, id string) (*domain.Application, error) {
	return r.fetch(ctx, applicationSelect+" WHERE id=$1", id)
}

func (r *applicationRepository) ListByAgent(ctx context.Context, agentUID string, limit, offset int) ([]domain.Application, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx,
		applicationSelect+" WHERE agent_uid=$1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3",
		agentUID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *app)
	}
	return result, rows.Err()
}

func (r *applicationRepository) CountByTypeStatus(ctx context.Context, appType domain.ApplicationType, status domain.ApplicationStatus) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications WHERE type=$1 AND status=$2`, appType, status).Scan(&count)
	return count, err
}

func (r *applicationRepository) fetch(ctx context.Context, query, id string) (*domain.Application, error) {
	app, err := scanApplication(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return app, nil
}

func (r *applicationRepository) insert(ctx context.Context, app *domain.Application) error {
	metadata, err := encodeMetadata(app.Metadata)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO applications (id, agent_uid, type, status, vessel_name, port_of_call, scheduled_at, metadata,
                                  decided_by, clearance_document_url, clearance_document_key, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = r.db.Exec(ctx, query,
		app.ID,
		app.AgentUID,
		app.Type,
		app.Status,
		app.VesselName,
		app.PortOfCall,
		app.ScheduledAt,
		metadata,
		app.DecidedBy,
		app.ClearanceDocumentURL,
		app.ClearanceDocumentKey,
		app.CreatedAt,
		app.UpdatedAt,
	)
	return err
}

func (r *applicationRepository) update(ctx context.Context, app *domain.Application) error {
	metadata, err := encodeMetadata(app.Metadata)
	if err != nil {
		return err
	}
	const query = `
        UPDATE applications SET type=$1, status=$2, vessel_name=$3, port_of_call=$4, scheduled_at=$5,
            metadata=$6, decided_by=$7, clearance_document_url=$8, clearance_document_key=$9, updated_at=$10
        WHERE id=$11`
	tag, err := r.db.Exec(ctx, query,
		app.Type,
		app.Status,
		app.VesselName,
		app.PortOfCall,
		app.ScheduledAt,
		metadata,
		app.DecidedBy,
		app.ClearanceDocumentURL,
		app.ClearanceDocumentKey,
		app.UpdatedAt,
		app.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(tag)
}

func scanApplication(row pgx.Row) (*domain.Application, error) {
	var (
		app      domain.Application
		metadata []byte
	)
	if err := row.Scan(
		&app.ID,
		&app.AgentUID,
		&app.Type,
		&app.Status,
		&app.VesselName,
		&app.PortOfCall,
		&app.ScheduledAt,
		&metadata,
		&app.DecidedBy,
		&app.ClearanceDocumentURL,
		&app.ClearanceDocumentKey,
		&app.CreatedAt,
		&app.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &app.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", app.ID, err)
		}
	}
	return &app, nil
}

func encodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return encoded, nil
}
