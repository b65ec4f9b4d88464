// Package repository implements campaign persistence.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dunning_backend/internal/decision"
	"dunning_backend/platform/apperr"
)

// Campaign lifecycle states. Completed is terminal and only reached when
// every target invoice is paid.
const (
	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// Stage is one rung of the outreach ladder.
type Stage struct {
	Name        string        `json:"name" yaml:"name"`
	DaysTrigger int           `json:"daysTrigger" yaml:"daysTrigger"`
	Tone        decision.Tone `json:"tone" yaml:"tone"`
}

// Stats are running campaign counters. They only move backwards on explicit
// correction, never during normal operation.
type Stats struct {
	EmailsSent           int
	RepliesReceived      int
	InvoicesPaid         int
	AmountCollectedCents int64
}

// Campaign is a configured outreach run over a set of invoices.
type Campaign struct {
	ID                uuid.UUID
	OrganizationID    uuid.UUID
	Name              string
	Status            string
	MaxAttempts       int
	DaysBetweenEmails int
	EscalateTone      bool
	Stages            []Stage
	TargetInvoiceIDs  []uuid.UUID
	Stats             Stats
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const campaignNotFoundMessage = "campaign not found"

// Repo implements campaign persistence with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new campaigns repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const campaignColumns = `id, organization_id, name, status, max_attempts, days_between_emails, escalate_tone, stages, target_invoice_ids, emails_sent, replies_received, invoices_paid, amount_collected_cents, created_at, updated_at`

// Create inserts a campaign and returns the stored row.
func (r *Repo) Create(ctx context.Context, c Campaign) (Campaign, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO campaigns (organization_id, name, status, max_attempts, days_between_emails, escalate_tone, stages, target_invoice_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+campaignColumns,
		c.OrganizationID, c.Name, c.Status, c.MaxAttempts, c.DaysBetweenEmails,
		c.EscalateTone, c.Stages, c.TargetInvoiceIDs,
	)
	return scanCampaign(row)
}

// GetByID retrieves a campaign scoped to an organization.
func (r *Repo) GetByID(ctx context.Context, organizationID, id uuid.UUID) (Campaign, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE organization_id = $1 AND id = $2`,
		organizationID, id,
	)
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, apperr.NotFound(campaignNotFoundMessage)
		}
		return Campaign{}, err
	}
	return c, nil
}

// Get retrieves a campaign without organization scoping, for internal
// executors that only hold the campaign id.
func (r *Repo) Get(ctx context.Context, id uuid.UUID) (Campaign, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, apperr.NotFound(campaignNotFoundMessage)
		}
		return Campaign{}, err
	}
	return c, nil
}

// ListByOrg returns all campaigns of an organization, newest first.
func (r *Repo) ListByOrg(ctx context.Context, organizationID uuid.UUID) ([]Campaign, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE organization_id = $1 ORDER BY created_at DESC`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return collectCampaigns(rows)
}

// ListActive returns every active campaign across organizations, for the
// scheduler's campaign cycle.
func (r *Repo) ListActive(ctx context.Context) ([]Campaign, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE status = 'active' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	return collectCampaigns(rows)
}

// ListActiveByCustomer returns active campaigns targeting any invoice owned
// by the customer. Used when a customer opts out or replies.
func (r *Repo) ListActiveByCustomer(ctx context.Context, customerID uuid.UUID) ([]Campaign, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns c
		 WHERE c.status = 'active'
		   AND EXISTS (
			SELECT 1 FROM invoices i
			WHERE i.customer_id = $1 AND i.id = ANY (c.target_invoice_ids)
		 )`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list campaigns by customer: %w", err)
	}
	return collectCampaigns(rows)
}

// UpdateStatus transitions a campaign between lifecycle states. Completed is
// terminal; the guard rejects any write that would resurrect one.
func (r *Repo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET status = $2, updated_at = now()
		 WHERE id = $1 AND status != 'completed'`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("campaign missing or already completed")
	}
	return nil
}

// UpdateStages replaces the stage ladder.
func (r *Repo) UpdateStages(ctx context.Context, id uuid.UUID, stages []Stage) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET stages = $2, updated_at = now() WHERE id = $1`,
		id, stages,
	)
	if err != nil {
		return fmt.Errorf("update campaign stages: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(campaignNotFoundMessage)
	}
	return nil
}

// SetTargets replaces the target invoice set.
func (r *Repo) SetTargets(ctx context.Context, id uuid.UUID, invoiceIDs []uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET target_invoice_ids = $2, updated_at = now() WHERE id = $1`,
		id, invoiceIDs,
	)
	if err != nil {
		return fmt.Errorf("set campaign targets: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(campaignNotFoundMessage)
	}
	return nil
}

// IncrementStats adds the deltas to the campaign's running counters.
func (r *Repo) IncrementStats(ctx context.Context, id uuid.UUID, emailsSent, repliesReceived, invoicesPaid int, amountCollectedCents int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET
			emails_sent = emails_sent + $2,
			replies_received = replies_received + $3,
			invoices_paid = invoices_paid + $4,
			amount_collected_cents = amount_collected_cents + $5,
			updated_at = now()
		 WHERE id = $1`,
		id, emailsSent, repliesReceived, invoicesPaid, amountCollectedCents,
	)
	if err != nil {
		return fmt.Errorf("increment campaign stats: %w", err)
	}
	return nil
}

func collectCampaigns(rows pgx.Rows) ([]Campaign, error) {
	defer rows.Close()
	var results []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func scanCampaign(row pgx.Row) (Campaign, error) {
	var c Campaign
	if err := row.Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.Status, &c.MaxAttempts,
		&c.DaysBetweenEmails, &c.EscalateTone, &c.Stages, &c.TargetInvoiceIDs,
		&c.Stats.EmailsSent, &c.Stats.RepliesReceived, &c.Stats.InvoicesPaid,
		&c.Stats.AmountCollectedCents, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, err
		}
		return Campaign{}, fmt.Errorf("scan campaign: %w", err)
	}
	return c, nil
}
