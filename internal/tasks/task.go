// Package tasks implements the durable task queue backing deferred outreach
// work. Tasks live in PostgreSQL as the source of truth; execution is
// at-most-once per task via an atomic pending -> executing claim.
package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies what a task does when executed.
type Type string

const (
	TypeSendEmail      Type = "send_email"
	TypeCheckPayment   Type = "check_payment"
	TypeFollowUp       Type = "follow_up"
	TypeEscalate       Type = "escalate"
	TypePauseCampaign  Type = "pause_campaign"
	TypeResumeCampaign Type = "resume_campaign"
)

// Status is the lifecycle state of a task. Pending tasks may be claimed or
// cancelled; executing tasks finish as completed or failed; the terminal
// states never transition.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Task is one unit of scheduled work. The campaign, invoice, and customer
// references are first-class columns so cancellation filters stay indexed;
// Data carries any type-specific extras.
type Task struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Type           Type
	CampaignID     *uuid.UUID
	InvoiceID      *uuid.UUID
	CustomerID     *uuid.UUID
	ScheduledFor   time.Time
	Data           json.RawMessage
	Status         Status
	Retryable      bool
	Attempts       int
	LastError      *string
	Result         json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Payload is what callers enqueue: the entity references plus free-form
// extras. The references are promoted to columns on insert.
type Payload struct {
	CampaignID *uuid.UUID `json:"campaignId,omitempty"`
	InvoiceID  *uuid.UUID `json:"invoiceId,omitempty"`
	CustomerID *uuid.UUID `json:"customerId,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Tone       string     `json:"tone,omitempty"`
	Stage      string     `json:"stage,omitempty"`
}

// DecodePayload unmarshals the task's extras and fills in the reference
// fields from the dedicated columns.
func (t *Task) DecodePayload() (Payload, error) {
	var p Payload
	if len(t.Data) > 0 {
		if err := json.Unmarshal(t.Data, &p); err != nil {
			return p, err
		}
	}
	p.CampaignID = t.CampaignID
	p.InvoiceID = t.InvoiceID
	p.CustomerID = t.CustomerID
	return p, nil
}
