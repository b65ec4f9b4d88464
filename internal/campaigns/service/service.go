// Package service implements campaign orchestration: lifecycle management,
// the periodic execution cycles, and the deferred task executors.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"dunning_backend/internal/campaigns/repository"
	custrepo "dunning_backend/internal/customers/repository"
	"dunning_backend/internal/email"
	"dunning_backend/internal/emaillog"
	invrepo "dunning_backend/internal/invoices/repository"
	"dunning_backend/internal/tasks"
	"dunning_backend/platform/apperr"
	"dunning_backend/platform/events"
	"dunning_backend/platform/logger"
)

// CampaignStore is the campaign persistence surface the service needs.
type CampaignStore interface {
	Create(ctx context.Context, c repository.Campaign) (repository.Campaign, error)
	Get(ctx context.Context, id uuid.UUID) (repository.Campaign, error)
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (repository.Campaign, error)
	ListByOrg(ctx context.Context, organizationID uuid.UUID) ([]repository.Campaign, error)
	ListActive(ctx context.Context) ([]repository.Campaign, error)
	ListActiveByCustomer(ctx context.Context, customerID uuid.UUID) ([]repository.Campaign, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateStages(ctx context.Context, id uuid.UUID, stages []repository.Stage) error
	SetTargets(ctx context.Context, id uuid.UUID, invoiceIDs []uuid.UUID) error
	IncrementStats(ctx context.Context, id uuid.UUID, emailsSent, repliesReceived, invoicesPaid int, amountCollectedCents int64) error
}

// InvoiceStore reads invoices for cycle execution.
type InvoiceStore interface {
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (invrepo.Invoice, error)
	ListByIDs(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]invrepo.Invoice, error)
	ListOverdueWithoutActiveCampaign(ctx context.Context, organizationID uuid.UUID) ([]invrepo.Invoice, error)
}

// CustomerStore reads customers for cycle execution.
type CustomerStore interface {
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (custrepo.Customer, error)
}

// EmailLogStore records sends and answers attempt/interaction queries.
type EmailLogStore interface {
	Insert(ctx context.Context, rec emaillog.Record) (uuid.UUID, error)
	CountAttempts(ctx context.Context, invoiceID uuid.UUID) (int, error)
	LastInteraction(ctx context.Context, invoiceID uuid.UUID, now time.Time) (*emaillog.Interaction, error)
}

// TaskQueue schedules and withdraws deferred work.
type TaskQueue interface {
	Enqueue(ctx context.Context, organizationID uuid.UUID, taskType tasks.Type, scheduledFor time.Time, p tasks.Payload) (*tasks.Task, error)
	CancelForCampaign(ctx context.Context, campaignID uuid.UUID) (int, error)
	CancelForInvoice(ctx context.Context, invoiceID uuid.UUID) (int, error)
}

// Service orchestrates campaigns.
type Service struct {
	campaigns CampaignStore
	invoices  InvoiceStore
	customers CustomerStore
	emails    EmailLogStore
	queue     TaskQueue
	sender    email.Sender
	generator email.Generator
	bus       events.Bus
	limiter   *rate.Limiter
	log       *logger.Logger

	fromName string
	replyTo  string

	// now is swappable so cycle tests can pin time.
	now func() time.Time
}

// Config collects the service's collaborators.
type Config struct {
	Campaigns CampaignStore
	Invoices  InvoiceStore
	Customers CustomerStore
	Emails    EmailLogStore
	Queue     TaskQueue
	Sender    email.Sender
	Generator email.Generator
	Bus       events.Bus
	Log       *logger.Logger

	FromName          string
	ReplyTo           string
	SendRatePerMinute int
}

// New creates the campaign service.
func New(cfg Config) *Service {
	perMinute := cfg.SendRatePerMinute
	if perMinute < 1 {
		perMinute = 60
	}
	return &Service{
		campaigns: cfg.Campaigns,
		invoices:  cfg.Invoices,
		customers: cfg.Customers,
		emails:    cfg.Emails,
		queue:     cfg.Queue,
		sender:    cfg.Sender,
		generator: cfg.Generator,
		bus:       cfg.Bus,
		limiter:   rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute),
		log:       cfg.Log,
		fromName:  cfg.FromName,
		replyTo:   cfg.ReplyTo,
		now:       time.Now,
	}
}

// CreateInput carries the fields for a new campaign. Either Preset or an
// explicit configuration must be set.
type CreateInput struct {
	Name             string
	Preset           string
	MaxAttempts      int
	DaysBetween      int
	EscalateTone     bool
	Stages           []repository.Stage
	TargetInvoiceIDs []uuid.UUID
	Activate         bool
}

// Create builds a campaign from a preset or an explicit stage ladder and
// verifies every target invoice belongs to the organization.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in CreateInput) (repository.Campaign, error) {
	c := repository.Campaign{
		OrganizationID:    orgID,
		Name:              in.Name,
		Status:            repository.StatusDraft,
		MaxAttempts:       in.MaxAttempts,
		DaysBetweenEmails: in.DaysBetween,
		EscalateTone:      in.EscalateTone,
		Stages:            in.Stages,
		TargetInvoiceIDs:  in.TargetInvoiceIDs,
	}
	if in.Preset != "" {
		preset, err := PresetByName(in.Preset)
		if err != nil {
			return repository.Campaign{}, err
		}
		c.MaxAttempts = preset.MaxAttempts
		c.DaysBetweenEmails = preset.DaysBetweenEmails
		c.EscalateTone = preset.EscalateTone
		c.Stages = preset.Stages
	}
	if len(c.Stages) == 0 {
		return repository.Campaign{}, apperr.Validation("campaign needs a stage ladder or a preset")
	}
	if c.MaxAttempts < 1 || c.DaysBetweenEmails < 1 {
		return repository.Campaign{}, apperr.Validation("maxAttempts and daysBetweenEmails must be positive")
	}
	if err := s.validateStages(c.Stages); err != nil {
		return repository.Campaign{}, err
	}

	if len(c.TargetInvoiceIDs) > 0 {
		found, err := s.invoices.ListByIDs(ctx, orgID, c.TargetInvoiceIDs)
		if err != nil {
			return repository.Campaign{}, err
		}
		if len(found) != len(c.TargetInvoiceIDs) {
			return repository.Campaign{}, apperr.Validation("one or more target invoices not found")
		}
	}

	if in.Activate {
		c.Status = repository.StatusActive
	}

	created, err := s.campaigns.Create(ctx, c)
	if err != nil {
		return repository.Campaign{}, err
	}
	s.log.Info("campaign created", "id", created.ID, "org", orgID, "targets", len(created.TargetInvoiceIDs))
	return created, nil
}

func (s *Service) validateStages(stages []repository.Stage) error {
	for _, st := range stages {
		if st.Name == "" {
			return apperr.Validation("stage name must not be empty")
		}
		if st.DaysTrigger < 0 {
			return apperr.Validation("stage daysTrigger must not be negative")
		}
		if st.Tone.Rank() == 0 {
			return apperr.Validation(fmt.Sprintf("unknown stage tone %q", st.Tone))
		}
	}
	return nil
}

// GetByID retrieves a campaign scoped to an organization.
func (s *Service) GetByID(ctx context.Context, orgID, id uuid.UUID) (repository.Campaign, error) {
	return s.campaigns.GetByID(ctx, orgID, id)
}

// List returns all campaigns of an organization.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]repository.Campaign, error) {
	return s.campaigns.ListByOrg(ctx, orgID)
}

// Activate moves a draft or paused campaign to active.
func (s *Service) Activate(ctx context.Context, orgID, id uuid.UUID) error {
	c, err := s.campaigns.GetByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if c.Status == repository.StatusActive {
		return nil
	}
	return s.campaigns.UpdateStatus(ctx, id, repository.StatusActive)
}

// Pause stops an active campaign and withdraws its pending tasks so no
// stale send fires while paused.
func (s *Service) Pause(ctx context.Context, orgID, id uuid.UUID) error {
	c, err := s.campaigns.GetByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if c.Status != repository.StatusActive {
		return apperr.Conflict("only active campaigns can be paused")
	}
	if err := s.campaigns.UpdateStatus(ctx, id, repository.StatusPaused); err != nil {
		return err
	}
	cancelled, err := s.queue.CancelForCampaign(ctx, id)
	if err != nil {
		return err
	}
	s.log.Info("campaign paused", "id", id, "cancelled_tasks", cancelled)
	return nil
}

// Resume reactivates a paused campaign. The next campaign cycle picks it up
// and re-evaluates every invoice from fresh state.
func (s *Service) Resume(ctx context.Context, orgID, id uuid.UUID) error {
	c, err := s.campaigns.GetByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if c.Status != repository.StatusPaused {
		return apperr.Conflict("only paused campaigns can be resumed")
	}
	return s.campaigns.UpdateStatus(ctx, id, repository.StatusActive)
}

// PauseAllForCustomer pauses every active campaign targeting any invoice of
// the customer. Part of the opt-out path.
func (s *Service) PauseAllForCustomer(ctx context.Context, customerID uuid.UUID) (int, error) {
	active, err := s.campaigns.ListActiveByCustomer(ctx, customerID)
	if err != nil {
		return 0, err
	}
	paused := 0
	for _, c := range active {
		if err := s.campaigns.UpdateStatus(ctx, c.ID, repository.StatusPaused); err != nil {
			s.log.Error("pause campaign for customer", "campaign", c.ID, "error", err)
			continue
		}
		if _, err := s.queue.CancelForCampaign(ctx, c.ID); err != nil {
			s.log.Error("cancel tasks for paused campaign", "campaign", c.ID, "error", err)
		}
		paused++
	}
	return paused, nil
}
