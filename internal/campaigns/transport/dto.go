package transport

import (
	"time"

	"github.com/google/uuid"
)

type StageInput struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	DaysTrigger int    `json:"daysTrigger" validate:"min=0,max=365"`
	Tone        string `json:"tone" validate:"required,oneof=friendly professional firm urgent"`
}

type CreateCampaignRequest struct {
	Name             string       `json:"name" validate:"required,min=1,max=200"`
	Preset           string       `json:"preset,omitempty" validate:"omitempty,oneof=standard gentle aggressive"`
	MaxAttempts      int          `json:"maxAttempts,omitempty" validate:"omitempty,min=1,max=20"`
	DaysBetween      int          `json:"daysBetweenEmails,omitempty" validate:"omitempty,min=1,max=90"`
	EscalateTone     bool         `json:"escalateTone,omitempty"`
	Stages           []StageInput `json:"stages,omitempty" validate:"omitempty,min=1,max=10,dive"`
	TargetInvoiceIDs []uuid.UUID  `json:"targetInvoiceIds,omitempty" validate:"omitempty,max=500"`
	Activate         bool         `json:"activate,omitempty"`
}

type RunTaskCycleRequest struct {
	MaxBatch int `json:"maxBatch,omitempty" validate:"omitempty,min=1,max=500"`
}

type StageResponse struct {
	Name        string `json:"name"`
	DaysTrigger int    `json:"daysTrigger"`
	Tone        string `json:"tone"`
}

type CampaignStatsResponse struct {
	EmailsSent           int   `json:"emailsSent"`
	RepliesReceived      int   `json:"repliesReceived"`
	InvoicesPaid         int   `json:"invoicesPaid"`
	AmountCollectedCents int64 `json:"amountCollectedCents"`
}

type CampaignResponse struct {
	ID                uuid.UUID             `json:"id"`
	Name              string                `json:"name"`
	Status            string                `json:"status"`
	MaxAttempts       int                   `json:"maxAttempts"`
	DaysBetweenEmails int                   `json:"daysBetweenEmails"`
	EscalateTone      bool                  `json:"escalateTone"`
	Stages            []StageResponse       `json:"stages"`
	TargetInvoiceIDs  []uuid.UUID           `json:"targetInvoiceIds"`
	Stats             CampaignStatsResponse `json:"stats"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

type CampaignListResponse struct {
	Items []CampaignResponse `json:"items"`
	Total int                `json:"total"`
}

type PresetResponse struct {
	Name              string          `json:"name"`
	MaxAttempts       int             `json:"maxAttempts"`
	DaysBetweenEmails int             `json:"daysBetweenEmails"`
	EscalateTone      bool            `json:"escalateTone"`
	Stages            []StageResponse `json:"stages"`
}

type TaskResponse struct {
	ID           uuid.UUID  `json:"id"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	ScheduledFor time.Time  `json:"scheduledFor"`
	InvoiceID    *uuid.UUID `json:"invoiceId,omitempty"`
	CustomerID   *uuid.UUID `json:"customerId,omitempty"`
	Attempts     int        `json:"attempts"`
	LastError    *string    `json:"lastError,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type TaskListResponse struct {
	Items []TaskResponse `json:"items"`
	Total int            `json:"total"`
}
