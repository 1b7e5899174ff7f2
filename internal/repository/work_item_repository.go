package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/workflow-service/internal/domain"
)

const workItemColumns = `id, display_number, kind, stage, priority, title, description, queue_id, assignee_id,
               due_at, aging_tier, sla_breached, created_by, location_id, created_at, updated_at, completed_at, version`

type workItemRepository struct {
	db DBTX
}

// NewWorkItemRepository instantiates repository.
func NewWorkItemRepository(db DBTX) WorkItemRepository {
	return &workItemRepository{db: db}
}

func (r *workItemRepository) Create(ctx context.Context, item *domain.WorkItem) error {
	const query = `
        INSERT INTO work_items (id, display_number, kind, stage, priority, title, description, queue_id, assignee_id,
            due_at, aging_tier, sla_breached, created_by, location_id, created_at, updated_at, completed_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,1)
        RETURNING version`
	return r.db.QueryRow(ctx, query,
		item.ID,
		item.DisplayNumber,
		string(item.Kind),
		string(item.Stage),
		string(item.Priority),
		item.Title,
		item.Description,
		item.QueueID,
		item.AssigneeID,
		item.DueAt,
		string(item.AgingTier),
		item.SLABreached,
		item.CreatedBy,
		item.LocationID,
		item.CreatedAt,
		item.UpdatedAt,
		item.CompletedAt,
	).Scan(&item.Version)
}

func (r *workItemRepository) Update(ctx context.Context, item *domain.WorkItem) error {
	const query = `
        UPDATE work_items SET stage=$1, priority=$2, title=$3, description=$4, queue_id=$5, assignee_id=$6,
            due_at=$7, aging_tier=$8, sla_breached=$9, updated_at=$10, completed_at=$11, version=$12
        WHERE id=$13`
	cmd, err := r.db.Exec(ctx, query,
		string(item.Stage),
		string(item.Priority),
		item.Title,
		item.Description,
		item.QueueID,
		item.AssigneeID,
		item.DueAt,
		string(item.AgingTier),
		item.SLABreached,
		item.UpdatedAt,
		item.CompletedAt,
		item.Version,
		item.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *workItemRepository) GetByID(ctx context.Context, id string) (*domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE id=$1`
	return scanWorkItem(r.db.QueryRow(ctx, query, id))
}

func (r *workItemRepository) GetForUpdate(ctx context.Context, id string) (*domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE id=$1 FOR UPDATE`
	return scanWorkItem(r.db.QueryRow(ctx, query, id))
}

func (r *workItemRepository) List(ctx context.Context, filter WorkItemFilter) ([]domain.WorkItem, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.OpenOnly {
		clauses = append(clauses, "completed_at IS NULL")
	}
	if filter.Kind != nil {
		args = append(args, string(*filter.Kind))
		clauses = append(clauses, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.LocationID != nil {
		args = append(args, *filter.LocationID)
		clauses = append(clauses, fmt.Sprintf("location_id=$%d", len(args)))
	}
	if filter.QueueID != nil {
		args = append(args, *filter.QueueID)
		clauses = append(clauses, fmt.Sprintf("queue_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.Stages) > 0 {
		args = append(args, toStrings(filter.Stages))
		clauses = append(clauses, fmt.Sprintf("stage = ANY($%d)", len(args)))
	}
	if len(filter.Priorities) > 0 {
		args = append(args, toStrings(filter.Priorities))
		clauses = append(clauses, fmt.Sprintf("priority = ANY($%d)", len(args)))
	}
	if len(filter.AgingTiers) > 0 {
		args = append(args, toStrings(filter.AgingTiers))
		clauses = append(clauses, fmt.Sprintf("aging_tier = ANY($%d)", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s OR LOWER(display_number) LIKE %s)",
			placeholder, placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	order := "updated_at DESC, id ASC"
	if filter.Order == OrderDueAsc {
		order = "due_at ASC NULLS LAST, created_at ASC, id ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM work_items WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		workItemColumns, strings.Join(clauses, " AND "), order, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkItems(rows)
}

func (r *workItemRepository) ListOpen(ctx context.Context, afterID string, limit int) ([]domain.WorkItem, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + workItemColumns + `
        FROM work_items WHERE completed_at IS NULL AND id > $1 ORDER BY id ASC LIMIT $2`
	rows, err := r.db.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkItems(rows)
}

func (r *workItemRepository) UpdateAging(ctx context.Context, id string, version int64, tier domain.AgingTier) (bool, error) {
	const query = `
        UPDATE work_items SET aging_tier=$1, sla_breached=$2, version=version+1
        WHERE id=$3 AND version=$4 AND completed_at IS NULL`
	cmd, err := r.db.Exec(ctx, query, string(tier), tier == domain.AgingBreached, id, version)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *workItemRepository) SummarizeAging(ctx context.Context, location *string, now time.Time, atRiskWindow time.Duration) (domain.AgingSummary, error) {
	query := `
        SELECT
            COUNT(*) FILTER (WHERE due_at IS NOT NULL AND due_at < $1),
            COUNT(*) FILTER (WHERE due_at IS NOT NULL AND due_at >= $1 AND due_at < $2),
            COUNT(*) FILTER (WHERE due_at IS NULL OR due_at >= $2)
        FROM work_items WHERE completed_at IS NULL`
	args := []any{now, now.Add(atRiskWindow)}
	if location != nil {
		args = append(args, *location)
		query += fmt.Sprintf(" AND location_id=$%d", len(args))
	}
	var summary domain.AgingSummary
	err := r.db.QueryRow(ctx, query, args...).Scan(&summary.Breached, &summary.AtRisk, &summary.OnTime)
	return summary, err
}

func scanWorkItem(row pgx.Row) (*domain.WorkItem, error) {
	var (
		item                             domain.WorkItem
		kind, stage, priority, agingTier string
	)
	if err := row.Scan(
		&item.ID,
		&item.DisplayNumber,
		&kind,
		&stage,
		&priority,
		&item.Title,
		&item.Description,
		&item.QueueID,
		&item.AssigneeID,
		&item.DueAt,
		&agingTier,
		&item.SLABreached,
		&item.CreatedBy,
		&item.LocationID,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.CompletedAt,
		&item.Version,
	); err != nil {
		return nil, err
	}
	item.Kind = domain.Kind(kind)
	item.Stage = domain.Stage(stage)
	item.Priority = domain.Priority(priority)
	item.AgingTier = domain.AgingTier(agingTier)
	return &item, nil
}

func scanWorkItems(rows pgx.Rows) ([]domain.WorkItem, error) {
	result := []domain.WorkItem{}
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	return result, rows.Err()
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
