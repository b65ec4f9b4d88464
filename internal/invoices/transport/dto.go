package transport

import (
	"time"

	"github.com/google/uuid"
)

type SyncItemRequest struct {
	CustomerName    string `json:"customerName" validate:"required,min=1,max=200"`
	CustomerEmail   string `json:"customerEmail" validate:"required,email"`
	CustomerPhone   string `json:"customerPhone,omitempty" validate:"omitempty,max=32"`
	Timezone        string `json:"timezone,omitempty" validate:"omitempty,max=64"`
	PaymentBehavior string `json:"paymentBehavior,omitempty" validate:"omitempty,oneof=excellent good average slow problematic"`
	AvgDaysToPay    int    `json:"avgDaysToPay,omitempty" validate:"omitempty,min=0,max=365"`

	InvoiceNumber  string    `json:"invoiceNumber" validate:"required,min=1,max=100"`
	DueDate        time.Time `json:"dueDate" validate:"required"`
	AmountDueCents int64     `json:"amountDueCents" validate:"min=0"`
	Status         string    `json:"status,omitempty" validate:"omitempty,max=32"`
}

type SyncRequest struct {
	Items []SyncItemRequest `json:"items" validate:"required,min=1,max=1000,dive"`
}

type InvoiceResponse struct {
	ID             uuid.UUID `json:"id"`
	CustomerID     uuid.UUID `json:"customerId"`
	InvoiceNumber  string    `json:"invoiceNumber"`
	DueDate        time.Time `json:"dueDate"`
	AmountDueCents int64     `json:"amountDueCents"`
	Status         string    `json:"status"`
	RiskLevel      string    `json:"riskLevel"`
	DaysOverdue    int       `json:"daysOverdue"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type InvoiceListResponse struct {
	Items []InvoiceResponse `json:"items"`
	Total int               `json:"total"`
}

type EmailLogResponse struct {
	ID         uuid.UUID  `json:"id"`
	CampaignID *uuid.UUID `json:"campaignId,omitempty"`
	Direction  string     `json:"direction"`
	Status     string     `json:"status"`
	Tone       *string    `json:"tone,omitempty"`
	Stage      *string    `json:"stage,omitempty"`
	Subject    *string    `json:"subject,omitempty"`
	MessageID  *string    `json:"messageId,omitempty"`
	Error      *string    `json:"error,omitempty"`
	OpenedAt   *time.Time `json:"openedAt,omitempty"`
	ClickedAt  *time.Time `json:"clickedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type EmailLogListResponse struct {
	Items []EmailLogResponse `json:"items"`
	Total int                `json:"total"`
}
