package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dunning_backend/internal/customers/repository"
	"dunning_backend/internal/customers/service"
	"dunning_backend/internal/customers/transport"
	"dunning_backend/platform/httpkit"
	"dunning_backend/platform/validator"
)

// Handler handles HTTP requests for customers.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid customer id"
)

// New creates a new customer handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the customer routes on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	customers := rg.Group("/customers")
	customers.GET("", h.List)
	customers.GET("/:id", h.GetByID)
	customers.PUT("", h.Upsert)
	customers.POST("/:id/opt-out", h.OptOut)
}

// List returns the organization's customers.
// GET /api/v1/customers
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	orgID, ok := httpkit.MustGetOrgID(c, identity)
	if !ok {
		return
	}

	customers, err := h.svc.List(c.Request.Context(), orgID)
	if httpkit.HandleError(c, err) {
		return
	}
	items := make([]transport.CustomerResponse, len(customers))
	for i, cust := range customers {
		items[i] = toCustomerResponse(cust)
	}
	httpkit.OK(c, transport.CustomerListResponse{Items: items, Total: len(items)})
}

// GetByID retrieves a customer.
// GET /api/v1/customers/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	orgID, ok := httpkit.MustGetOrgID(c, identity)
	if !ok {
		return
	}

	cust, err := h.svc.GetByID(c.Request.Context(), orgID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toCustomerResponse(cust))
}

// Upsert creates or updates a customer.
// PUT /api/v1/customers
func (h *Handler) Upsert(c *gin.Context) {
	var req transport.UpsertCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	orgID, ok := httpkit.MustGetOrgID(c, identity)
	if !ok {
		return
	}

	var id uuid.UUID
	if req.ID != "" {
		parsed, err := uuid.Parse(req.ID)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
			return
		}
		id = parsed
	}

	cust, err := h.svc.Upsert(c.Request.Context(), orgID, service.UpsertInput{
		ID:              id,
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Country:         req.Country,
		Timezone:        req.Timezone,
		PaymentBehavior: req.PaymentBehavior,
		AvgDaysToPay:    req.AvgDaysToPay,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toCustomerResponse(cust))
}

// OptOut permanently marks a customer as not to be contacted.
// POST /api/v1/customers/:id/opt-out
func (h *Handler) OptOut(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	orgID, ok := httpkit.MustGetOrgID(c, identity)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.OptOut(c.Request.Context(), orgID, id)) {
		return
	}
	httpkit.OK(c, gin.H{"status": "ok"})
}

func toCustomerResponse(cust repository.Customer) transport.CustomerResponse {
	return transport.CustomerResponse{
		ID:              cust.ID,
		Name:            cust.Name,
		Email:           cust.Email,
		Phone:           cust.Phone,
		Timezone:        cust.Timezone,
		PaymentBehavior: string(cust.PaymentBehavior),
		AvgDaysToPay:    cust.AvgDaysToPay,
		StopContact:     cust.StopContact,
		CreatedAt:       cust.CreatedAt,
		UpdatedAt:       cust.UpdatedAt,
	}
}
