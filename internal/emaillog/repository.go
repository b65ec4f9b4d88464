// Package emaillog persists the append-only log of outreach communication.
// Rows are never updated except for delivery-state transitions and never
// deleted; attempt counting and timing decisions read from this log.
package emaillog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status of a logged email. An attempt only counts once the message actually
// went out: sent, delivered, opened, and clicked all count; pending, bounced,
// and failed do not.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusOpened    Status = "opened"
	StatusClicked   Status = "clicked"
	StatusBounced   Status = "bounced"
	StatusFailed    Status = "failed"
)

// Direction of a logged message.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Record is one attempted, sent, or received communication.
type Record struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	CampaignID     *uuid.UUID
	InvoiceID      uuid.UUID
	CustomerID     uuid.UUID
	Direction      string
	Status         Status
	Tone           *string
	Stage          *string
	Subject        *string
	Body           *string
	MessageID      *string
	Error          *string
	OpenedAt       *time.Time
	ClickedAt      *time.Time
	CreatedAt      time.Time
}

// Interaction summarizes the most recent outbound email for an invoice, as
// consumed by the timing engine.
type Interaction struct {
	WasOpened          bool
	WasClicked         bool
	DaysSinceLastEmail int
}

// Repository implements email log persistence with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new email log repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends a record and returns its id.
func (r *Repository) Insert(ctx context.Context, rec Record) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO email_logs (organization_id, campaign_id, invoice_id, customer_id, direction, status, tone, stage, subject, body, message_id, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		rec.OrganizationID, rec.CampaignID, rec.InvoiceID, rec.CustomerID,
		rec.Direction, string(rec.Status), rec.Tone, rec.Stage, rec.Subject,
		rec.Body, rec.MessageID, rec.Error,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert email log: %w", err)
	}
	return id, nil
}

// CountAttempts returns the number of outbound emails that actually reached
// the customer's mailbox for this invoice.
func (r *Repository) CountAttempts(ctx context.Context, invoiceID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM email_logs
		 WHERE invoice_id = $1
		   AND direction = 'outbound'
		   AND status IN ('sent', 'delivered', 'opened', 'clicked')`,
		invoiceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

// LastInteraction returns engagement data for the most recent counted
// outbound email, or nil when none exists.
func (r *Repository) LastInteraction(ctx context.Context, invoiceID uuid.UUID, now time.Time) (*Interaction, error) {
	var status string
	var createdAt time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT status, created_at FROM email_logs
		 WHERE invoice_id = $1
		   AND direction = 'outbound'
		   AND status IN ('sent', 'delivered', 'opened', 'clicked')
		 ORDER BY created_at DESC
		 LIMIT 1`,
		invoiceID,
	).Scan(&status, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last interaction: %w", err)
	}

	return &Interaction{
		WasOpened:          status == string(StatusOpened) || status == string(StatusClicked),
		WasClicked:         status == string(StatusClicked),
		DaysSinceLastEmail: int(now.Sub(createdAt).Hours() / 24),
	}, nil
}

// ListByInvoice returns the full communication history for an invoice,
// newest first.
func (r *Repository) ListByInvoice(ctx context.Context, organizationID, invoiceID uuid.UUID) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, organization_id, campaign_id, invoice_id, customer_id, direction, status, tone, stage, subject, body, message_id, error, opened_at, clicked_at, created_at
		 FROM email_logs
		 WHERE organization_id = $1 AND invoice_id = $2
		 ORDER BY created_at DESC`,
		organizationID, invoiceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(
			&rec.ID, &rec.OrganizationID, &rec.CampaignID, &rec.InvoiceID, &rec.CustomerID,
			&rec.Direction, &status, &rec.Tone, &rec.Stage, &rec.Subject, &rec.Body,
			&rec.MessageID, &rec.Error, &rec.OpenedAt, &rec.ClickedAt, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		rec.Status = Status(status)
		results = append(results, rec)
	}
	return results, rows.Err()
}

// FindByMessageID resolves the outbound email a reply refers to, keyed by
// the provider message id from the In-Reply-To header. Returns nil when the
// message id is unknown.
func (r *Repository) FindByMessageID(ctx context.Context, messageID string) (*Record, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, campaign_id, invoice_id, customer_id, direction, status, tone, stage, subject, body, message_id, error, opened_at, clicked_at, created_at
		 FROM email_logs
		 WHERE message_id = $1 AND direction = 'outbound'`,
		messageID,
	)

	var rec Record
	var status string
	if err := row.Scan(
		&rec.ID, &rec.OrganizationID, &rec.CampaignID, &rec.InvoiceID, &rec.CustomerID,
		&rec.Direction, &status, &rec.Tone, &rec.Stage, &rec.Subject, &rec.Body,
		&rec.MessageID, &rec.Error, &rec.OpenedAt, &rec.ClickedAt, &rec.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find by message id: %w", err)
	}
	rec.Status = Status(status)
	return &rec, nil
}

// MarkDeliveryState advances delivery tracking for a sent message, keyed by
// the provider message id. Opened and clicked stamp their timestamps once.
func (r *Repository) MarkDeliveryState(ctx context.Context, messageID string, status Status) error {
	var extra string
	switch status {
	case StatusOpened:
		extra = ", opened_at = COALESCE(opened_at, now())"
	case StatusClicked:
		extra = ", clicked_at = COALESCE(clicked_at, now()), opened_at = COALESCE(opened_at, now())"
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE email_logs SET status = $2`+extra+` WHERE message_id = $1`,
		messageID, string(status),
	)
	if err != nil {
		return fmt.Errorf("mark delivery state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark delivery state: unknown message id %s", messageID)
	}
	return nil
}
