package replies

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dunning_backend/internal/emaillog"
	"dunning_backend/platform/httpkit"
	"dunning_backend/platform/validator"
)

// DeliveryTracker advances delivery state for sent messages.
type DeliveryTracker interface {
	MarkDeliveryState(ctx context.Context, messageID string, status emaillog.Status) error
}

// Handler receives mail provider webhooks. Routes mounted here must sit
// behind WebhookAuth, not the user JWT middleware.
type Handler struct {
	svc     *Service
	tracker DeliveryTracker
	val     *validator.Validator
}

// NewHandler creates the webhook handler.
func NewHandler(svc *Service, tracker DeliveryTracker, val *validator.Validator) *Handler {
	return &Handler{svc: svc, tracker: tracker, val: val}
}

// RegisterRoutes mounts the webhook routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/email/inbound", h.Inbound)
	rg.POST("/email/events", h.DeliveryEvent)
}

type inboundRequest struct {
	OrganizationID string `json:"organizationId" validate:"omitempty,uuid"`
	FromEmail      string `json:"fromEmail" validate:"required,email"`
	Subject        string `json:"subject" validate:"max=500"`
	Body           string `json:"body" validate:"required,max=50000"`
	InReplyTo      string `json:"inReplyTo" validate:"omitempty,max=255"`
}

type deliveryEventRequest struct {
	MessageID string `json:"messageId" validate:"required,max=255"`
	Event     string `json:"event" validate:"required,oneof=delivered opened clicked bounced"`
}

// Inbound processes a reply to an outreach email.
// POST /api/v1/webhooks/email/inbound
func (h *Handler) Inbound(c *gin.Context) {
	var req inboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	var orgID uuid.UUID
	if req.OrganizationID != "" {
		parsed, err := uuid.Parse(req.OrganizationID)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid organization id", nil)
			return
		}
		orgID = parsed
	}

	result, err := h.svc.Process(c.Request.Context(), Inbound{
		OrganizationID: orgID,
		FromEmail:      req.FromEmail,
		Subject:        req.Subject,
		Body:           req.Body,
		InReplyTo:      req.InReplyTo,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DeliveryEvent records a delivery state transition for a sent message.
// POST /api/v1/webhooks/email/events
func (h *Handler) DeliveryEvent(c *gin.Context) {
	var req deliveryEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	err := h.tracker.MarkDeliveryState(c.Request.Context(), req.MessageID, emaillog.Status(req.Event))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "ok"})
}
