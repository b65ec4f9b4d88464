package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dunning_backend/platform/apperr"
)

// Repository persists scheduled tasks in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new task repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskColumns = `id, organization_id, task_type, campaign_id, invoice_id, customer_id, scheduled_for, task_data, status, retryable, attempts, last_error, result, created_at, updated_at`

// Enqueue inserts a pending task scheduled for the given time and returns it.
func (r *Repository) Enqueue(ctx context.Context, organizationID uuid.UUID, taskType Type, scheduledFor time.Time, p Payload) (*Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal task data: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO scheduled_tasks (organization_id, task_type, campaign_id, invoice_id, customer_id, scheduled_for, task_data, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		 RETURNING `+taskColumns,
		organizationID, string(taskType), p.CampaignID, p.InvoiceID, p.CustomerID,
		scheduledFor.UTC(), data,
	)
	return scanTask(row)
}

// ClaimDue atomically moves up to limit due pending tasks to executing and
// returns them. SKIP LOCKED keeps concurrent claimers from blocking on or
// double-claiming the same rows.
func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Task, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `WITH due AS (
		SELECT id
		FROM scheduled_tasks
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE scheduled_tasks t
	SET status = 'executing', attempts = t.attempts + 1, updated_at = now()
	FROM due
	WHERE t.id = due.id
	RETURNING t.id, t.organization_id, t.task_type, t.campaign_id, t.invoice_id, t.customer_id, t.scheduled_for, t.task_data, t.status, t.retryable, t.attempts, t.last_error, t.result, t.created_at, t.updated_at`,
		now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}
	defer rows.Close()

	var results []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, task)
	}
	return results, rows.Err()
}

// ListDue returns up to limit due pending tasks ordered by scheduled time
// without claiming them. The dispatcher uses this to hand tasks to the job
// queue; the worker claims each one individually before executing.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]*Task, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE status = 'pending' AND scheduled_for <= $1
		 ORDER BY scheduled_for ASC
		 LIMIT $2`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	defer rows.Close()

	var results []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, task)
	}
	return results, rows.Err()
}

// ClaimByID claims a single task if it is still pending. Returns NotFound
// when the task does not exist or was already claimed, cancelled, or
// finished; callers treat that as "someone else got there first".
func (r *Repository) ClaimByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE scheduled_tasks
		 SET status = 'executing', attempts = attempts + 1, updated_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+taskColumns,
		id,
	)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("task not claimable")
		}
		return nil, err
	}
	return task, nil
}

// Complete marks an executing task completed, storing the execution result.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal task result: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE scheduled_tasks
		 SET status = 'completed', result = $2, last_error = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'executing'`,
		id, payload,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("task not executing")
	}
	return nil
}

// Fail marks an executing task failed with the error message. Retryable
// records whether a retry could succeed; the queue itself never retries, a
// later campaign cycle re-evaluates the invoice instead.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID, execErr error, retryable bool) error {
	msg := "unknown error"
	if execErr != nil {
		msg = execErr.Error()
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE scheduled_tasks
		 SET status = 'failed', last_error = $2, retryable = $3, updated_at = now()
		 WHERE id = $1 AND status = 'executing'`,
		id, msg, retryable,
	)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("task not executing")
	}
	return nil
}

// CancelByCampaign cancels all pending tasks for a campaign. Executing and
// terminal tasks are untouched. Returns the number of tasks cancelled.
func (r *Repository) CancelByCampaign(ctx context.Context, campaignID uuid.UUID) (int, error) {
	return r.cancelWhere(ctx, `campaign_id = $1`, campaignID)
}

// CancelByInvoice cancels all pending tasks referencing an invoice.
func (r *Repository) CancelByInvoice(ctx context.Context, invoiceID uuid.UUID) (int, error) {
	return r.cancelWhere(ctx, `invoice_id = $1`, invoiceID)
}

// CancelByCustomer cancels all pending tasks referencing a customer.
func (r *Repository) CancelByCustomer(ctx context.Context, customerID uuid.UUID) (int, error) {
	return r.cancelWhere(ctx, `customer_id = $1`, customerID)
}

func (r *Repository) cancelWhere(ctx context.Context, cond string, arg any) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE scheduled_tasks
		 SET status = 'cancelled', updated_at = now()
		 WHERE status = 'pending' AND `+cond,
		arg,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetByID fetches a single task.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("task not found")
		}
		return nil, err
	}
	return task, nil
}

// ListByCampaign returns all tasks referencing a campaign, newest first.
func (r *Repository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE campaign_id = $1
		 ORDER BY created_at DESC`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var results []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, task)
	}
	return results, rows.Err()
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var taskType, status string
	if err := row.Scan(
		&t.ID, &t.OrganizationID, &taskType, &t.CampaignID, &t.InvoiceID, &t.CustomerID,
		&t.ScheduledFor, &t.Data, &status, &t.Retryable, &t.Attempts, &t.LastError,
		&t.Result, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Type = Type(taskType)
	t.Status = Status(status)
	return &t, nil
}
