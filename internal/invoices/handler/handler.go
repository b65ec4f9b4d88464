package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dunning_backend/internal/emaillog"
	"dunning_backend/internal/invoices/repository"
	"dunning_backend/internal/invoices/service"
	"dunning_backend/internal/invoices/transport"
	"dunning_backend/platform/httpkit"
	"dunning_backend/platform/validator"
)

// EmailLogLister reads an invoice's communication history.
type EmailLogLister interface {
	ListByInvoice(ctx context.Context, organizationID, invoiceID uuid.UUID) ([]emaillog.Record, error)
}

// Handler handles HTTP requests for invoices.
type Handler struct {
	svc    *service.Service
	emails EmailLogLister
	val    *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid invoice id"
)

// New creates a new invoice handler.
func New(svc *service.Service, emails EmailLogLister, val *validator.Validator) *Handler {
	return &Handler{svc: svc, emails: emails, val: val}
}

// RegisterRoutes mounts the invoice routes on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	invoices.GET("", h.List)
	invoices.GET("/:id", h.GetByID)
	invoices.GET("/:id/emails", h.ListEmails)
	invoices.POST("/sync", h.Sync)
	invoices.POST("/reclassify", h.Reclassify)
}

// Sync mirrors a batch of invoices from the accounting system.
// POST /api/v1/invoices/sync
func (h *Handler) Sync(c *gin.Context) {
	var req transport.SyncRequest
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

	items := make([]service.SyncItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.SyncItem{
			CustomerName:    it.CustomerName,
			CustomerEmail:   it.CustomerEmail,
			CustomerPhone:   it.CustomerPhone,
			Timezone:        it.Timezone,
			PaymentBehavior: it.PaymentBehavior,
			AvgDaysToPay:    it.AvgDaysToPay,
			InvoiceNumber:   it.InvoiceNumber,
			DueDate:         it.DueDate,
			AmountDueCents:  it.AmountDueCents,
			Status:          it.Status,
		}
	}

	result, err := h.svc.Sync(c.Request.Context(), orgID, items)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// List returns the organization's invoices.
// GET /api/v1/invoices
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	orgID, ok := httpkit.MustGetOrgID(c, identity)
	if !ok {
		return
	}

	invoices, err := h.svc.List(c.Request.Context(), orgID)
	if httpkit.HandleError(c, err) {
		return
	}
	now := time.Now()
	items := make([]transport.InvoiceResponse, len(invoices))
	for i, inv := range invoices {
		items[i] = toInvoiceResponse(inv, now)
	}
	httpkit.OK(c, transport.InvoiceListResponse{Items: items, Total: len(items)})
}

// GetByID retrieves an invoice.
// GET /api/v1/invoices/:id
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

	inv, err := h.svc.GetByID(c.Request.Context(), orgID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toInvoiceResponse(inv, time.Now()))
}

// ListEmails returns the communication history of an invoice, newest first.
// GET /api/v1/invoices/:id/emails
func (h *Handler) ListEmails(c *gin.Context) {
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

	records, err := h.emails.ListByInvoice(c.Request.Context(), orgID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	items := make([]transport.EmailLogResponse, len(records))
	for i, rec := range records {
		items[i] = transport.EmailLogResponse{
			ID:         rec.ID,
			CampaignID: rec.CampaignID,
			Direction:  rec.Direction,
			Status:     string(rec.Status),
			Tone:       rec.Tone,
			Stage:      rec.Stage,
			Subject:    rec.Subject,
			MessageID:  rec.MessageID,
			Error:      rec.Error,
			OpenedAt:   rec.OpenedAt,
			ClickedAt:  rec.ClickedAt,
			CreatedAt:  rec.CreatedAt,
		}
	}
	httpkit.OK(c, transport.EmailLogListResponse{Items: items, Total: len(items)})
}

// Reclassify recomputes risk levels for the organization's invoices.
// POST /api/v1/invoices/reclassify
func (h *Handler) Reclassify(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	orgID, ok := httpkit.MustGetOrgID(c, identity)
	if !ok {
		return
	}

	updated, err := h.svc.ReclassifyRisk(c.Request.Context(), orgID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"updated": updated})
}

func toInvoiceResponse(inv repository.Invoice, now time.Time) transport.InvoiceResponse {
	days := inv.DaysOverdue(now)
	if days < 0 {
		days = 0
	}
	return transport.InvoiceResponse{
		ID:             inv.ID,
		CustomerID:     inv.CustomerID,
		InvoiceNumber:  inv.InvoiceNumber,
		DueDate:        inv.DueDate,
		AmountDueCents: inv.AmountDueCents,
		Status:         inv.Status,
		RiskLevel:      string(inv.RiskLevel),
		DaysOverdue:    days,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}
