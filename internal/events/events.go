// Package events defines the domain events the outreach system publishes.
package events

import (
	"github.com/google/uuid"

	"dunning_backend/platform/events"
)

// Event names.
const (
	EmailSentName         = "outreach.email_sent"
	CustomerOptedOutName  = "outreach.customer_opted_out"
	CampaignCompletedName = "outreach.campaign_completed"
	ReplyReceivedName     = "outreach.reply_received"
	InvoicePaidName       = "outreach.invoice_paid"
)

// EmailSent fires after an outreach email was handed to the mail server.
type EmailSent struct {
	events.BaseEvent
	OrganizationID uuid.UUID `json:"organizationId"`
	CampaignID     uuid.UUID `json:"campaignId"`
	InvoiceID      uuid.UUID `json:"invoiceId"`
	CustomerID     uuid.UUID `json:"customerId"`
	Tone           string    `json:"tone"`
	Stage          string    `json:"stage"`
}

func (EmailSent) EventName() string { return EmailSentName }

// CustomerOptedOut fires when a stop request sets stopContact. Contact with
// this customer is permanently over.
type CustomerOptedOut struct {
	events.BaseEvent
	OrganizationID uuid.UUID `json:"organizationId"`
	CustomerID     uuid.UUID `json:"customerId"`
	Source         string    `json:"source"`
}

func (CustomerOptedOut) EventName() string { return CustomerOptedOutName }

// CampaignCompleted fires when every target invoice of a campaign is paid.
type CampaignCompleted struct {
	events.BaseEvent
	OrganizationID uuid.UUID `json:"organizationId"`
	CampaignID     uuid.UUID `json:"campaignId"`
}

func (CampaignCompleted) EventName() string { return CampaignCompletedName }

// ReplyReceived fires for every inbound reply, after classification.
type ReplyReceived struct {
	events.BaseEvent
	OrganizationID   uuid.UUID `json:"organizationId"`
	CustomerID       uuid.UUID `json:"customerId"`
	Intent           string    `json:"intent"`
	NeedsHumanReview bool      `json:"needsHumanReview"`
}

func (ReplyReceived) EventName() string { return ReplyReceivedName }

// InvoicePaid fires when the payment check observes an invoice settling.
type InvoicePaid struct {
	events.BaseEvent
	OrganizationID uuid.UUID `json:"organizationId"`
	CampaignID     uuid.UUID `json:"campaignId"`
	InvoiceID      uuid.UUID `json:"invoiceId"`
	AmountCents    int64     `json:"amountCents"`
}

func (InvoicePaid) EventName() string { return InvoicePaidName }
