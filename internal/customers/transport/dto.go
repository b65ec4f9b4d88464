package transport

import (
	"time"

	"github.com/google/uuid"
)

type UpsertCustomerRequest struct {
	ID              string `json:"id,omitempty" validate:"omitempty,uuid"`
	Name            string `json:"name" validate:"required,min=1,max=200"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Country         string `json:"country,omitempty" validate:"omitempty,len=2"`
	Timezone        string `json:"timezone,omitempty" validate:"omitempty,max=64"`
	PaymentBehavior string `json:"paymentBehavior,omitempty" validate:"omitempty,oneof=excellent good average slow problematic"`
	AvgDaysToPay    int    `json:"avgDaysToPay,omitempty" validate:"omitempty,min=0,max=365"`
}

type CustomerResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           *string   `json:"phone,omitempty"`
	Timezone        string    `json:"timezone"`
	PaymentBehavior string    `json:"paymentBehavior"`
	AvgDaysToPay    int       `json:"avgDaysToPay"`
	StopContact     bool      `json:"stopContact"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type CustomerListResponse struct {
	Items []CustomerResponse `json:"items"`
	Total int                `json:"total"`
}
