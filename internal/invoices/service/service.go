// Package service implements invoice business logic, chiefly the accounting
// sync that keeps the local invoice mirror and its risk classification fresh.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	custrepo "dunning_backend/internal/customers/repository"
	custservice "dunning_backend/internal/customers/service"
	"dunning_backend/internal/invoices/repository"
	"dunning_backend/internal/risk"
	"dunning_backend/platform/apperr"
	"dunning_backend/platform/logger"
)

// InvoiceStore is the invoice persistence surface the service needs.
type InvoiceStore interface {
	Upsert(ctx context.Context, inv repository.Invoice) (repository.Invoice, error)
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (repository.Invoice, error)
	ListByOrg(ctx context.Context, organizationID uuid.UUID) ([]repository.Invoice, error)
	UpdateRiskLevel(ctx context.Context, organizationID, id uuid.UUID, level risk.Level) error
}

// CustomerStore resolves and refreshes customers during sync.
type CustomerStore interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (custrepo.Customer, error)
	GetByEmail(ctx context.Context, orgID uuid.UUID, email string) (custrepo.Customer, error)
	Upsert(ctx context.Context, orgID uuid.UUID, in custservice.UpsertInput) (custrepo.Customer, error)
}

// Service provides invoice business logic.
type Service struct {
	invoices  InvoiceStore
	customers CustomerStore
	log       *logger.Logger

	now func() time.Time
}

// New creates a new invoices service.
func New(invoices InvoiceStore, customers CustomerStore, log *logger.Logger) *Service {
	return &Service{invoices: invoices, customers: customers, now: time.Now, log: log}
}

// SyncItem is one invoice as reported by the external accounting system,
// together with the customer it belongs to.
type SyncItem struct {
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Timezone        string
	PaymentBehavior string
	AvgDaysToPay    int

	InvoiceNumber  string
	DueDate        time.Time
	AmountDueCents int64
	Status         string
}

// SyncResult summarizes one accounting sync run.
type SyncResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Sync mirrors a batch of accounting invoices. Each item upserts its
// customer, derives the invoice status and risk level, and upserts the
// invoice. Item failures are isolated; the batch always runs to the end.
func (s *Service) Sync(ctx context.Context, orgID uuid.UUID, items []SyncItem) (*SyncResult, error) {
	result := &SyncResult{}
	for _, item := range items {
		if err := s.syncOne(ctx, orgID, item); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, item.InvoiceNumber+": "+err.Error())
			s.log.Error("invoice sync", "invoice_number", item.InvoiceNumber, "error", err)
			continue
		}
		result.Processed++
	}
	s.log.Info("accounting sync finished", "org", orgID, "processed", result.Processed, "failed", result.Failed)
	return result, nil
}

func (s *Service) syncOne(ctx context.Context, orgID uuid.UUID, item SyncItem) error {
	if item.InvoiceNumber == "" || item.CustomerEmail == "" {
		return apperr.Validation("sync item needs an invoice number and a customer email")
	}

	cust, err := s.resolveCustomer(ctx, orgID, item)
	if err != nil {
		return err
	}

	now := s.now()
	status := deriveStatus(item.Status, item.DueDate, now)

	// Negative days count as due-in-the-future; the classifier scores the
	// due-within-a-week band itself, so the raw value goes through.
	daysOverdue := int(now.Sub(item.DueDate).Hours() / 24)
	assessment := risk.Classify(risk.Input{
		DaysOverdue:    daysOverdue,
		AmountDueCents: item.AmountDueCents,
		Behavior:       cust.PaymentBehavior,
		AvgDaysToPay:   cust.AvgDaysToPay,
	})

	_, err = s.invoices.Upsert(ctx, repository.Invoice{
		OrganizationID: orgID,
		CustomerID:     cust.ID,
		InvoiceNumber:  item.InvoiceNumber,
		DueDate:        item.DueDate,
		AmountDueCents: item.AmountDueCents,
		Status:         status,
		RiskLevel:      assessment.Level,
	})
	return err
}

// resolveCustomer finds the customer by email or creates one. An existing
// customer is refreshed with the sync's behavior data so risk classification
// tracks the accounting system.
func (s *Service) resolveCustomer(ctx context.Context, orgID uuid.UUID, item SyncItem) (custrepo.Customer, error) {
	in := custservice.UpsertInput{
		Name:            item.CustomerName,
		Email:           item.CustomerEmail,
		Phone:           item.CustomerPhone,
		Timezone:        item.Timezone,
		PaymentBehavior: item.PaymentBehavior,
		AvgDaysToPay:    item.AvgDaysToPay,
	}

	existing, err := s.customers.GetByEmail(ctx, orgID, item.CustomerEmail)
	switch {
	case err == nil:
		in.ID = existing.ID
		if in.Name == "" {
			in.Name = existing.Name
		}
	case apperr.GetKind(err) == apperr.KindNotFound:
	default:
		return custrepo.Customer{}, err
	}
	return s.customers.Upsert(ctx, orgID, in)
}

// deriveStatus maps the accounting status onto the local state machine. A
// pending invoice past its due date becomes overdue.
func deriveStatus(status string, dueDate, now time.Time) string {
	switch status {
	case repository.StatusPaid, repository.StatusCancelled, repository.StatusVoid, repository.StatusDraft:
		return status
	}
	if now.After(dueDate) {
		return repository.StatusOverdue
	}
	return repository.StatusPending
}

// GetByID retrieves an invoice.
func (s *Service) GetByID(ctx context.Context, orgID, id uuid.UUID) (repository.Invoice, error) {
	return s.invoices.GetByID(ctx, orgID, id)
}

// List returns all invoices of an organization.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]repository.Invoice, error) {
	return s.invoices.ListByOrg(ctx, orgID)
}

// ReclassifyRisk recomputes the risk level of every collectible invoice of
// the organization against the current date.
func (s *Service) ReclassifyRisk(ctx context.Context, orgID uuid.UUID) (int, error) {
	invoices, err := s.invoices.ListByOrg(ctx, orgID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	updated := 0
	for _, inv := range invoices {
		if !inv.Collectible() {
			continue
		}
		in := risk.Input{DaysOverdue: inv.DaysOverdue(now), AmountDueCents: inv.AmountDueCents}
		if cust, err := s.customers.GetByID(ctx, orgID, inv.CustomerID); err == nil {
			in.Behavior = cust.PaymentBehavior
			in.AvgDaysToPay = cust.AvgDaysToPay
		}
		assessment := risk.Classify(in)
		if assessment.Level == inv.RiskLevel {
			continue
		}
		if err := s.invoices.UpdateRiskLevel(ctx, orgID, inv.ID, assessment.Level); err != nil {
			s.log.Error("update risk level", "invoice", inv.ID, "error", err)
			continue
		}
		updated++
	}
	return updated, nil
}
