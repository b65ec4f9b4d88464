// Package service provides business logic for customer management.
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"dunning_backend/internal/customers/repository"
	domainevents "dunning_backend/internal/events"
	"dunning_backend/internal/risk"
	"dunning_backend/platform/apperr"
	"dunning_backend/platform/events"
	"dunning_backend/platform/logger"
)

// Service provides business logic for customers.
type Service struct {
	repo      *repository.Repo
	defaultTZ string
	bus       events.Bus
	log       *logger.Logger
}

// New creates a new customers service.
func New(repo *repository.Repo, defaultTimezone string, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, defaultTZ: defaultTimezone, bus: bus, log: log}
}

// UpsertInput carries writable customer fields from the transport layer.
type UpsertInput struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Phone           string
	Country         string
	Timezone        string
	PaymentBehavior string
	AvgDaysToPay    int
}

// GetByID retrieves a customer.
func (s *Service) GetByID(ctx context.Context, orgID, id uuid.UUID) (repository.Customer, error) {
	return s.repo.GetByID(ctx, orgID, id)
}

// GetByEmail retrieves a customer by email address.
func (s *Service) GetByEmail(ctx context.Context, orgID uuid.UUID, email string) (repository.Customer, error) {
	return s.repo.GetByEmail(ctx, orgID, email)
}

// List retrieves all customers for an organization.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]repository.Customer, error) {
	return s.repo.List(ctx, orgID)
}

// Upsert creates or updates a customer. Phone numbers are normalized to E.164
// so the escalation engine's alternative-channel suggestion has a dialable
// number to hand to an operator.
func (s *Service) Upsert(ctx context.Context, orgID uuid.UUID, in UpsertInput) (repository.Customer, error) {
	behavior := risk.PaymentBehavior(in.PaymentBehavior)
	switch behavior {
	case "", risk.BehaviorExcellent, risk.BehaviorGood, risk.BehaviorAverage, risk.BehaviorSlow, risk.BehaviorProblematic:
	default:
		return repository.Customer{}, apperr.Validation("unknown payment behavior")
	}
	if behavior == "" {
		behavior = risk.BehaviorAverage
	}

	tz := in.Timezone
	if tz == "" {
		tz = s.defaultTZ
	}

	var phone *string
	if trimmed := strings.TrimSpace(in.Phone); trimmed != "" {
		normalized, err := normalizePhone(trimmed, in.Country)
		if err != nil {
			return repository.Customer{}, apperr.Validation("invalid phone number")
		}
		phone = &normalized
	}

	c, err := s.repo.Upsert(ctx, repository.UpsertParams{
		ID:              in.ID,
		OrganizationID:  orgID,
		Name:            in.Name,
		Email:           in.Email,
		Phone:           phone,
		Timezone:        tz,
		PaymentBehavior: behavior,
		AvgDaysToPay:    in.AvgDaysToPay,
	})
	if err != nil {
		return repository.Customer{}, err
	}

	s.log.Info("customer upserted", "id", c.ID, "org", orgID)
	return c, nil
}

// OptOut permanently marks a customer as not to be contacted. Subscribers
// to the opt-out event stop any outreach still in flight.
func (s *Service) OptOut(ctx context.Context, orgID, id uuid.UUID) error {
	if err := s.repo.SetStopContact(ctx, orgID, id); err != nil {
		return err
	}
	s.bus.Publish(ctx, domainevents.CustomerOptedOut{
		BaseEvent:      events.NewBaseEvent(),
		OrganizationID: orgID,
		CustomerID:     id,
		Source:         "api",
	})
	s.log.Info("customer opted out", "id", id, "org", orgID)
	return nil
}

func normalizePhone(raw, country string) (string, error) {
	if country == "" {
		country = "US"
	}
	parsed, err := phonenumbers.Parse(raw, country)
	if err != nil {
		return "", err
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
