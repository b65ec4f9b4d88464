// Package repository provides PostgreSQL persistence for customers.
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

const customerNotFoundMessage = "customer not found"

// Customer is a billable contact. StopContact is sticky: once a customer has
// opted out, nothing in this system clears the flag.
type Customer struct {
	ID              uuid.UUID
	OrganizationID  uuid.UUID
	Name            string
	Email           string
	Phone           *string
	Timezone        string
	PaymentBehavior risk.PaymentBehavior
	AvgDaysToPay    int
	StopContact     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UpsertParams carries the writable customer fields.
type UpsertParams struct {
	ID              uuid.UUID // zero value inserts a new row
	OrganizationID  uuid.UUID
	Name            string
	Email           string
	Phone           *string
	Timezone        string
	PaymentBehavior risk.PaymentBehavior
	AvgDaysToPay    int
}

// Repo implements customer persistence with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new customers repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const customerColumns = `id, organization_id, name, email, phone, timezone, payment_behavior, avg_days_to_pay, stop_contact, created_at, updated_at`

// GetByID retrieves a customer scoped to an organization.
func (r *Repo) GetByID(ctx context.Context, organizationID, id uuid.UUID) (Customer, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM customers
		WHERE id = $1 AND organization_id = $2`

	row := r.pool.QueryRow(ctx, query, id, organizationID)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, apperr.NotFound(customerNotFoundMessage)
		}
		return Customer{}, fmt.Errorf("get customer by id: %w", err)
	}
	return c, nil
}

// GetByEmail retrieves a customer by email address, scoped to an
// organization. Email comparison is case-insensitive.
func (r *Repo) GetByEmail(ctx context.Context, organizationID uuid.UUID, email string) (Customer, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM customers
		WHERE organization_id = $1 AND lower(email) = lower($2)`

	row := r.pool.QueryRow(ctx, query, organizationID, email)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, apperr.NotFound(customerNotFoundMessage)
		}
		return Customer{}, fmt.Errorf("get customer by email: %w", err)
	}
	return c, nil
}

// List retrieves all customers for an organization ordered by name.
func (r *Repo) List(ctx context.Context, organizationID uuid.UUID) ([]Customer, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM customers
		WHERE organization_id = $1
		ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var results []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// Upsert inserts or updates a customer. The stop_contact flag is deliberately
// not writable here; use SetStopContact.
func (r *Repo) Upsert(ctx context.Context, p UpsertParams) (Customer, error) {
	if p.ID == uuid.Nil {
		query := `
			INSERT INTO customers (organization_id, name, email, phone, timezone, payment_behavior, avg_days_to_pay)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING ` + customerColumns

		row := r.pool.QueryRow(ctx, query,
			p.OrganizationID, p.Name, p.Email, p.Phone, p.Timezone, string(p.PaymentBehavior), p.AvgDaysToPay)
		c, err := scanCustomer(row)
		if err != nil {
			return Customer{}, fmt.Errorf("insert customer: %w", err)
		}
		return c, nil
	}

	query := `
		UPDATE customers
		SET name = $3, email = $4, phone = $5, timezone = $6, payment_behavior = $7, avg_days_to_pay = $8, updated_at = now()
		WHERE id = $1 AND organization_id = $2
		RETURNING ` + customerColumns

	row := r.pool.QueryRow(ctx, query,
		p.ID, p.OrganizationID, p.Name, p.Email, p.Phone, p.Timezone, string(p.PaymentBehavior), p.AvgDaysToPay)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, apperr.NotFound(customerNotFoundMessage)
		}
		return Customer{}, fmt.Errorf("update customer: %w", err)
	}
	return c, nil
}

// SetStopContact marks a customer as permanently opted out. There is no
// corresponding clear operation.
func (r *Repo) SetStopContact(ctx context.Context, organizationID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE customers SET stop_contact = TRUE, updated_at = now()
		 WHERE id = $1 AND organization_id = $2`,
		id, organizationID,
	)
	if err != nil {
		return fmt.Errorf("set stop contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(customerNotFoundMessage)
	}
	return nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	var behavior string
	err := row.Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.Email, &c.Phone, &c.Timezone,
		&behavior, &c.AvgDaysToPay, &c.StopContact, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Customer{}, err
	}
	c.PaymentBehavior = risk.PaymentBehavior(behavior)
	return c, nil
}
