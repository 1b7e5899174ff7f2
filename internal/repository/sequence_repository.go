package repository

import (
	"context"
	"strings"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/workflow"
)

type sequenceRepository struct {
	db DBTX
}

// NewSequenceRepository builds repository.
func NewSequenceRepository(db DBTX) SequenceRepository {
	return &sequenceRepository{db: db}
}

// Next increments the (location, year) counter in a single statement. The row lock
// taken by the upsert is held until the surrounding transaction ends, so concurrent
// creators for the same scope queue behind each other and a rollback returns the number.
func (r *sequenceRepository) Next(ctx context.Context, location string, year int) (int64, error) {
	const query = `
        INSERT INTO sequence_counters (location_code, year, value)
        VALUES ($1, $2, 1)
        ON CONFLICT (location_code, year) DO UPDATE SET value = sequence_counters.value + 1
        RETURNING value`
	var value int64
	if err := r.db.QueryRow(ctx, query, strings.ToUpper(location), year).Scan(&value); err != nil {
		return 0, err
	}
	if value > workflow.MaxSequence {
		return 0, ErrSequenceExhausted
	}
	return value, nil
}

type queueRepository struct {
	db DBTX
}

// NewQueueRepository builds repository.
func NewQueueRepository(db DBTX) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) List(ctx context.Context) ([]domain.Queue, error) {
	const query = `
        SELECT id, code, name, kind, stage, location_id, allowed_roles, sla_hours
        FROM queues ORDER BY location_id, code`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Queue
	for rows.Next() {
		var (
			q           domain.Queue
			kind, stage string
		)
		if err := rows.Scan(&q.ID, &q.Code, &q.Name, &kind, &stage, &q.LocationID, &q.AllowedRoles, &q.SLAHours); err != nil {
			return nil, err
		}
		q.Kind = domain.Kind(kind)
		q.Stage = domain.Stage(stage)
		result = append(result, q)
	}
	return result, rows.Err()
}

func (r *queueRepository) Upsert(ctx context.Context, q domain.Queue) error {
	const query = `
        INSERT INTO queues (id, code, name, kind, stage, location_id, allowed_roles, sla_hours)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (id) DO UPDATE SET code=EXCLUDED.code, name=EXCLUDED.name, kind=EXCLUDED.kind,
            stage=EXCLUDED.stage, location_id=EXCLUDED.location_id, allowed_roles=EXCLUDED.allowed_roles,
            sla_hours=EXCLUDED.sla_hours`
	roles := q.AllowedRoles
	if roles == nil {
		roles = []string{}
	}
	_, err := r.db.Exec(ctx, query, q.ID, q.Code, q.Name, string(q.Kind), string(q.Stage), q.LocationID, roles, q.SLAHours)
	return err
}
