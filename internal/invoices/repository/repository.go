// Package repository provides PostgreSQL persistence for invoices.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dunning_backend/internal/risk"
	"dunning_backend/platform/apperr"
)

const invoiceNotFoundMessage = "invoice not found"

// Invoice statuses. Only paid, cancelled, and void end outreach for an
// invoice; everything else keeps it collectible.
const (
	StatusDraft     = "draft"
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusOverdue   = "overdue"
	StatusCancelled = "cancelled"
	StatusVoid      = "void"
)

// Invoice is an amount owed by a customer. This system never mutates an
// invoice except for its derived risk level; payment status comes from the
// external accounting sync.
type Invoice struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	CustomerID     uuid.UUID
	InvoiceNumber  string
	DueDate        time.Time
	AmountDueCents int64
	Status         string
	RiskLevel      risk.Level
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DaysOverdue returns whole days past the due date at the given instant.
// Negative values mean the invoice is not yet due.
func (i Invoice) DaysOverdue(now time.Time) int {
	return int(now.Sub(i.DueDate).Hours() / 24)
}

// Collectible reports whether the invoice can still be pursued.
func (i Invoice) Collectible() bool {
	switch i.Status {
	case StatusPaid, StatusCancelled, StatusVoid:
		return false
	default:
		return true
	}
}

// Repo implements invoice persistence with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new invoices repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const invoiceColumns = `id, organization_id, customer_id, invoice_number, due_date, amount_due_cents, status, risk_level, created_at, updated_at`

// GetByID retrieves an invoice scoped to an organization.
func (r *Repo) GetByID(ctx context.Context, organizationID, id uuid.UUID) (Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE id = $1 AND organization_id = $2`

	row := r.pool.QueryRow(ctx, query, id, organizationID)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, apperr.NotFound(invoiceNotFoundMessage)
		}
		return Invoice{}, fmt.Errorf("get invoice by id: %w", err)
	}
	return inv, nil
}

// ListByIDs retrieves the given invoices in scheduled order (oldest due date
// first). Missing ids are silently absent from the result.
func (r *Repo) ListByIDs(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]Invoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE organization_id = $1 AND id = ANY($2)
		ORDER BY due_date ASC`

	rows, err := r.pool.Query(ctx, query, organizationID, ids)
	if err != nil {
		return nil, fmt.Errorf("list invoices by ids: %w", err)
	}
	defer rows.Close()

	return collectInvoices(rows)
}

// ListByOrg retrieves all invoices for an organization, newest first.
func (r *Repo) ListByOrg(ctx context.Context, organizationID uuid.UUID) ([]Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE organization_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	return collectInvoices(rows)
}

// ListOverdueWithoutActiveCampaign finds collectible invoices past their due
// date that are not targeted by any draft, active, or paused campaign. These
// are the candidates for auto-created campaigns.
func (r *Repo) ListOverdueWithoutActiveCampaign(ctx context.Context, organizationID uuid.UUID) ([]Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices i
		WHERE i.organization_id = $1
		  AND i.status NOT IN ('paid', 'cancelled', 'void', 'draft')
		  AND i.due_date < now()
		  AND NOT EXISTS (
			SELECT 1 FROM campaigns c
			WHERE c.organization_id = i.organization_id
			  AND c.status IN ('draft', 'active', 'paused')
			  AND i.id = ANY(c.target_invoice_ids)
		  )
		ORDER BY i.due_date ASC`

	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list overdue invoices without campaign: %w", err)
	}
	defer rows.Close()

	return collectInvoices(rows)
}

// ListOrgsWithOverdue returns the distinct organizations holding at least
// one collectible overdue invoice. The auto-create sweep iterates these.
func (r *Repo) ListOrgsWithOverdue(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT organization_id
		FROM invoices
		WHERE status NOT IN ('paid', 'cancelled', 'void', 'draft')
		  AND due_date < now()`)
	if err != nil {
		return nil, fmt.Errorf("list orgs with overdue invoices: %w", err)
	}
	defer rows.Close()

	var orgs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan organization id: %w", err)
		}
		orgs = append(orgs, id)
	}
	return orgs, rows.Err()
}

// UpdateStatus transitions an invoice's payment status.
func (r *Repo) UpdateStatus(ctx context.Context, organizationID, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE invoices SET status = $3, updated_at = now()
		 WHERE id = $1 AND organization_id = $2`,
		id, organizationID, status,
	)
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(invoiceNotFoundMessage)
	}
	return nil
}

// UpdateRiskLevel stores the derived risk classification.
func (r *Repo) UpdateRiskLevel(ctx context.Context, organizationID, id uuid.UUID, level risk.Level) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE invoices SET risk_level = $3, updated_at = now()
		 WHERE id = $1 AND organization_id = $2`,
		id, organizationID, string(level),
	)
	if err != nil {
		return fmt.Errorf("update invoice risk level: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(invoiceNotFoundMessage)
	}
	return nil
}

// Upsert inserts or refreshes an invoice from the accounting sync, keyed by
// the organization-unique invoice number. The customer reference never moves
// to a different customer on conflict.
func (r *Repo) Upsert(ctx context.Context, inv Invoice) (Invoice, error) {
	query := `
		INSERT INTO invoices (organization_id, customer_id, invoice_number, due_date, amount_due_cents, status, risk_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id, invoice_number) DO UPDATE SET
			due_date = EXCLUDED.due_date,
			amount_due_cents = EXCLUDED.amount_due_cents,
			status = EXCLUDED.status,
			risk_level = EXCLUDED.risk_level,
			updated_at = now()
		RETURNING ` + invoiceColumns

	row := r.pool.QueryRow(ctx, query,
		inv.OrganizationID, inv.CustomerID, inv.InvoiceNumber, inv.DueDate,
		inv.AmountDueCents, inv.Status, string(inv.RiskLevel))
	upserted, err := scanInvoice(row)
	if err != nil {
		return Invoice{}, fmt.Errorf("upsert invoice: %w", err)
	}
	return upserted, nil
}

// Create inserts an invoice, used by the ingestion webhook and tests.
func (r *Repo) Create(ctx context.Context, inv Invoice) (Invoice, error) {
	query := `
		INSERT INTO invoices (organization_id, customer_id, invoice_number, due_date, amount_due_cents, status, risk_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + invoiceColumns

	row := r.pool.QueryRow(ctx, query,
		inv.OrganizationID, inv.CustomerID, inv.InvoiceNumber, inv.DueDate,
		inv.AmountDueCents, inv.Status, string(inv.RiskLevel))
	created, err := scanInvoice(row)
	if err != nil {
		return Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	return created, nil
}

func collectInvoices(rows pgx.Rows) ([]Invoice, error) {
	var results []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		results = append(results, inv)
	}
	return results, rows.Err()
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var level string
	err := row.Scan(
		&inv.ID, &inv.OrganizationID, &inv.CustomerID, &inv.InvoiceNumber, &inv.DueDate,
		&inv.AmountDueCents, &inv.Status, &level, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return Invoice{}, err
	}
	inv.RiskLevel = risk.Level(level)
	return inv, nil
}
