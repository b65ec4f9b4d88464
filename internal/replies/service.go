// Package replies processes inbound email replies: opt-out enforcement,
// intent classification, and the follow-up actions an intent triggers.
package replies

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"dunning_backend/internal/ai"
	custrepo "dunning_backend/internal/customers/repository"
	"dunning_backend/internal/emaillog"
	domainevents "dunning_backend/internal/events"
	"dunning_backend/internal/tasks"
	"dunning_backend/platform/apperr"
	"dunning_backend/platform/events"
	"dunning_backend/platform/logger"
)

// How long a payment promise is given before the next payment check.
const willPayGraceDays = 7

// stopPhrases trigger the opt-out override. Matching is case-insensitive;
// single words match whole words only so "stopped by the office" does not
// opt anyone out.
var stopPhrases = []string{"do not contact", "opt out", "unsubscribe"}
var stopWords = []string{"stop", "cease"}

// CustomerStore is the customer persistence surface reply handling needs.
type CustomerStore interface {
	GetByEmail(ctx context.Context, organizationID uuid.UUID, email string) (custrepo.Customer, error)
	SetStopContact(ctx context.Context, organizationID, id uuid.UUID) error
}

// CampaignControl pauses outreach in response to replies.
type CampaignControl interface {
	Pause(ctx context.Context, orgID, id uuid.UUID) error
	PauseAllForCustomer(ctx context.Context, customerID uuid.UUID) (int, error)
}

// CampaignStats updates campaign counters.
type CampaignStats interface {
	IncrementStats(ctx context.Context, id uuid.UUID, emailsSent, repliesReceived, invoicesPaid int, amountCollectedCents int64) error
}

// TaskQueue schedules reply-triggered work and withdraws stale sends.
type TaskQueue interface {
	Enqueue(ctx context.Context, organizationID uuid.UUID, taskType tasks.Type, scheduledFor time.Time, p tasks.Payload) (*tasks.Task, error)
	CancelForCustomer(ctx context.Context, customerID uuid.UUID) (int, error)
}

// EmailLogStore records inbound replies and resolves reply threading.
type EmailLogStore interface {
	Insert(ctx context.Context, rec emaillog.Record) (uuid.UUID, error)
	FindByMessageID(ctx context.Context, messageID string) (*emaillog.Record, error)
}

// Service handles inbound replies.
type Service struct {
	customers  CustomerStore
	campaigns  CampaignControl
	stats      CampaignStats
	queue      TaskQueue
	emails     EmailLogStore
	classifier ai.Classifier
	bus        events.Bus
	log        *logger.Logger

	now func() time.Time
}

// Config collects the reply service's collaborators.
type Config struct {
	Customers  CustomerStore
	Campaigns  CampaignControl
	Stats      CampaignStats
	Queue      TaskQueue
	Emails     EmailLogStore
	Classifier ai.Classifier
	Bus        events.Bus
	Log        *logger.Logger
}

// New creates the reply service.
func New(cfg Config) *Service {
	return &Service{
		customers:  cfg.Customers,
		campaigns:  cfg.Campaigns,
		stats:      cfg.Stats,
		queue:      cfg.Queue,
		emails:     cfg.Emails,
		classifier: cfg.Classifier,
		bus:        cfg.Bus,
		log:        cfg.Log,
		now:        time.Now,
	}
}

// Inbound is one reply as delivered by the mail provider webhook.
type Inbound struct {
	OrganizationID uuid.UUID
	FromEmail      string
	Subject        string
	Body           string
	// InReplyTo is the provider message id of the outbound email this
	// reply answers, when the provider passes the header through.
	InReplyTo string
}

// Result summarizes how a reply was handled.
type Result struct {
	CustomerID       uuid.UUID  `json:"customerId"`
	CampaignID       *uuid.UUID `json:"campaignId,omitempty"`
	Intent           string     `json:"intent"`
	OptedOut         bool       `json:"optedOut"`
	NeedsHumanReview bool       `json:"needsHumanReview"`
	Actions          []string   `json:"actions,omitempty"`
}

// Process handles one inbound reply. The opt-out keyword check runs before
// classification and never depends on it: a stop request takes effect even
// when the classifier is down or disagrees.
func (s *Service) Process(ctx context.Context, in Inbound) (*Result, error) {
	orgID, customerID, campaignID, invoiceID, err := s.resolve(ctx, in)
	if err != nil {
		return nil, err
	}

	rec := emaillog.Record{
		OrganizationID: orgID,
		CampaignID:     campaignID,
		CustomerID:     customerID,
		Direction:      emaillog.DirectionInbound,
		Status:         emaillog.StatusDelivered,
		Subject:        &in.Subject,
		Body:           &in.Body,
	}
	if invoiceID != nil {
		rec.InvoiceID = *invoiceID
	}
	if _, err := s.emails.Insert(ctx, rec); err != nil {
		s.log.DatabaseError("emaillog.insert", err)
	}

	result := &Result{CustomerID: customerID, CampaignID: campaignID}

	if containsStopRequest(in.Subject + " " + in.Body) {
		return s.optOut(ctx, orgID, customerID, result)
	}

	classification, err := s.classifier.Classify(ctx, in.Body)
	if err != nil {
		s.log.Warn("reply classification failed", "customer", customerID, "error", err)
		classification = ai.FailSafe()
	}
	result.Intent = classification.Intent
	result.NeedsHumanReview = classification.NeedsHumanReview

	if campaignID != nil {
		if err := s.stats.IncrementStats(ctx, *campaignID, 0, 1, 0, 0); err != nil {
			s.log.DatabaseError("campaigns.increment_stats", err)
		}
	}

	switch classification.Intent {
	case ai.IntentPaid:
		s.pauseCampaign(ctx, orgID, campaignID, result)
		s.scheduleCheck(ctx, orgID, campaignID, invoiceID, s.now(), result)
	case ai.IntentWillPay:
		s.pauseCampaign(ctx, orgID, campaignID, result)
		s.scheduleCheck(ctx, orgID, campaignID, invoiceID, s.now().AddDate(0, 0, willPayGraceDays), result)
	case ai.IntentDispute:
		s.pauseCampaign(ctx, orgID, campaignID, result)
		result.NeedsHumanReview = true
	}
	if classification.SuggestedAction == ai.ActionEscalate && classification.Intent != ai.IntentDispute {
		s.pauseCampaign(ctx, orgID, campaignID, result)
	}

	s.bus.Publish(ctx, domainevents.ReplyReceived{
		BaseEvent:        events.NewBaseEvent(),
		OrganizationID:   orgID,
		CustomerID:       customerID,
		Intent:           result.Intent,
		NeedsHumanReview: result.NeedsHumanReview,
	})
	s.log.Info("reply processed", "customer", customerID, "intent", result.Intent, "human_review", result.NeedsHumanReview)
	return result, nil
}

// resolve maps a reply to the customer it came from, preferring the email
// thread over the sender address.
func (s *Service) resolve(ctx context.Context, in Inbound) (orgID, customerID uuid.UUID, campaignID, invoiceID *uuid.UUID, err error) {
	if in.InReplyTo != "" {
		rec, ferr := s.emails.FindByMessageID(ctx, in.InReplyTo)
		if ferr != nil {
			return uuid.Nil, uuid.Nil, nil, nil, ferr
		}
		if rec != nil {
			return rec.OrganizationID, rec.CustomerID, rec.CampaignID, &rec.InvoiceID, nil
		}
	}

	if in.OrganizationID == uuid.Nil {
		return uuid.Nil, uuid.Nil, nil, nil, apperr.Validation("reply cannot be attributed: no thread match and no organization")
	}
	cust, cerr := s.customers.GetByEmail(ctx, in.OrganizationID, in.FromEmail)
	if cerr != nil {
		return uuid.Nil, uuid.Nil, nil, nil, cerr
	}
	return in.OrganizationID, cust.ID, nil, nil, nil
}

func (s *Service) optOut(ctx context.Context, orgID, customerID uuid.UUID, result *Result) (*Result, error) {
	if err := s.customers.SetStopContact(ctx, orgID, customerID); err != nil {
		return nil, err
	}
	paused, err := s.campaigns.PauseAllForCustomer(ctx, customerID)
	if err != nil {
		s.log.Error("pause campaigns after opt-out", "customer", customerID, "error", err)
	}
	cancelled, err := s.queue.CancelForCustomer(ctx, customerID)
	if err != nil {
		s.log.Error("cancel tasks after opt-out", "customer", customerID, "error", err)
	}

	result.Intent = "opt_out"
	result.OptedOut = true
	result.Actions = append(result.Actions, "stop_contact_set")

	s.bus.Publish(ctx, domainevents.CustomerOptedOut{
		BaseEvent:      events.NewBaseEvent(),
		OrganizationID: orgID,
		CustomerID:     customerID,
		Source:         "email_reply",
	})
	s.log.Info("customer opted out", "customer", customerID, "campaigns_paused", paused, "tasks_cancelled", cancelled)
	return result, nil
}

func (s *Service) pauseCampaign(ctx context.Context, orgID uuid.UUID, campaignID *uuid.UUID, result *Result) {
	if campaignID == nil {
		return
	}
	for _, a := range result.Actions {
		if a == "campaign_paused" {
			return
		}
	}
	if err := s.campaigns.Pause(ctx, orgID, *campaignID); err != nil {
		s.log.Error("pause campaign after reply", "campaign", *campaignID, "error", err)
		return
	}
	result.Actions = append(result.Actions, "campaign_paused")
}

func (s *Service) scheduleCheck(ctx context.Context, orgID uuid.UUID, campaignID, invoiceID *uuid.UUID, at time.Time, result *Result) {
	if campaignID == nil || invoiceID == nil {
		return
	}
	p := tasks.Payload{CampaignID: campaignID, InvoiceID: invoiceID, Reason: "reply"}
	if _, err := s.queue.Enqueue(ctx, orgID, tasks.TypeCheckPayment, at, p); err != nil {
		s.log.Error("enqueue payment check", "invoice", *invoiceID, "error", err)
		return
	}
	result.Actions = append(result.Actions, "payment_check_scheduled")
}

func containsStopRequest(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range stopPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	for _, word := range strings.FieldsFunc(lowered, func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		for _, stop := range stopWords {
			if word == stop {
				return true
			}
		}
	}
	return false
}
