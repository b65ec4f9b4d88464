package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dunning_backend/internal/campaigns/repository"
	"dunning_backend/internal/campaigns/service"
	"dunning_backend/internal/campaigns/transport"
	"dunning_backend/internal/decision"
	"dunning_backend/internal/tasks"
	"dunning_backend/platform/httpkit"
	"dunning_backend/platform/validator"
)

// Handler handles HTTP requests for campaigns.
type Handler struct {
	svc   *service.Service
	queue *tasks.Service
	val   *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid campaign id"
)

// New creates a new campaign handler.
func New(svc *service.Service, queue *tasks.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, queue: queue, val: val}
}

// RegisterRoutes mounts the campaign routes on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	campaigns := rg.Group("/campaigns")
	campaigns.POST("", h.Create)
	campaigns.GET("", h.List)
	campaigns.GET("/presets", h.ListPresets)
	campaigns.GET("/:id", h.GetByID)
	campaigns.GET("/:id/tasks", h.ListTasks)
	campaigns.POST("/:id/tasks/cancel", h.CancelTasks)
	campaigns.POST("/:id/activate", h.Activate)
	campaigns.POST("/:id/pause", h.Pause)
	campaigns.POST("/:id/resume", h.Resume)
	campaigns.POST("/:id/run", h.RunCycle)

	// Cycle triggers act across the whole organization, so they are
	// restricted to admin tokens.
	cycles := rg.Group("/cycles")
	cycles.Use(httpkit.RequireRole("admin"))
	cycles.POST("/campaigns", h.RunAllCycles)
	cycles.POST("/tasks", h.RunTaskCycle)
	cycles.POST("/payments", h.RunPaymentCheck)
	cycles.POST("/auto-create", h.RunAutoCreate)
}

// Create creates a new campaign.
// POST /api/v1/campaigns
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateCampaignRequest
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

	created, err := h.svc.Create(c.Request.Context(), orgID, service.CreateInput{
		Name:             req.Name,
		Preset:           req.Preset,
		MaxAttempts:      req.MaxAttempts,
		DaysBetween:      req.DaysBetween,
		EscalateTone:     req.EscalateTone,
		Stages:           stagesFromInput(req.Stages),
		TargetInvoiceIDs: req.TargetInvoiceIDs,
		Activate:         req.Activate,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, toCampaignResponse(created))
}

// List returns the organization's campaigns.
// GET /api/v1/campaigns
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	orgID, ok := httpkit.MustGetOrgID(c, identity)
	if !ok {
		return
	}

	campaigns, err := h.svc.List(c.Request.Context(), orgID)
	if httpkit.HandleError(c, err) {
		return
	}
	items := make([]transport.CampaignResponse, len(campaigns))
	for i, camp := range campaigns {
		items[i] = toCampaignResponse(camp)
	}
	httpkit.OK(c, transport.CampaignListResponse{Items: items, Total: len(items)})
}

// ListPresets returns the built-in stage ladder presets.
// GET /api/v1/campaigns/presets
func (h *Handler) ListPresets(c *gin.Context) {
	names := service.PresetNames()
	out := make([]transport.PresetResponse, 0, len(names))
	for _, name := range names {
		preset, err := service.PresetByName(name)
		if err != nil {
			continue
		}
		out = append(out, transport.PresetResponse{
			Name:              name,
			MaxAttempts:       preset.MaxAttempts,
			DaysBetweenEmails: preset.DaysBetweenEmails,
			EscalateTone:      preset.EscalateTone,
			Stages:            toStageResponses(preset.Stages),
		})
	}
	httpkit.OK(c, out)
}

// GetByID retrieves a campaign.
// GET /api/v1/campaigns/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, orgID, ok := h.campaignScope(c)
	if !ok {
		return
	}
	camp, err := h.svc.GetByID(c.Request.Context(), orgID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toCampaignResponse(camp))
}

// ListTasks returns the scheduled tasks of a campaign.
// GET /api/v1/campaigns/:id/tasks
func (h *Handler) ListTasks(c *gin.Context) {
	id, orgID, ok := h.campaignScope(c)
	if !ok {
		return
	}
	// Ownership check before the unscoped task query.
	if _, err := h.svc.GetByID(c.Request.Context(), orgID, id); httpkit.HandleError(c, err) {
		return
	}
	list, err := h.queue.ListByCampaign(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	items := make([]transport.TaskResponse, len(list))
	for i, t := range list {
		items[i] = transport.TaskResponse{
			ID:           t.ID,
			Type:         string(t.Type),
			Status:       string(t.Status),
			ScheduledFor: t.ScheduledFor,
			InvoiceID:    t.InvoiceID,
			CustomerID:   t.CustomerID,
			Attempts:     t.Attempts,
			LastError:    t.LastError,
			CreatedAt:    t.CreatedAt,
		}
	}
	httpkit.OK(c, transport.TaskListResponse{Items: items, Total: len(items)})
}

// CancelTasks withdraws every pending task of a campaign.
// POST /api/v1/campaigns/:id/tasks/cancel
func (h *Handler) CancelTasks(c *gin.Context) {
	id, orgID, ok := h.campaignScope(c)
	if !ok {
		return
	}
	// Ownership check before the unscoped cancel.
	if _, err := h.svc.GetByID(c.Request.Context(), orgID, id); httpkit.HandleError(c, err) {
		return
	}
	cancelled, err := h.queue.CancelForCampaign(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"cancelled": cancelled})
}

// Activate moves a campaign to active.
// POST /api/v1/campaigns/:id/activate
func (h *Handler) Activate(c *gin.Context) {
	h.transition(c, h.svc.Activate)
}

// Pause stops an active campaign.
// POST /api/v1/campaigns/:id/pause
func (h *Handler) Pause(c *gin.Context) {
	h.transition(c, h.svc.Pause)
}

// Resume reactivates a paused campaign.
// POST /api/v1/campaigns/:id/resume
func (h *Handler) Resume(c *gin.Context) {
	h.transition(c, h.svc.Resume)
}

// RunCycle triggers one execution cycle for a campaign.
// POST /api/v1/campaigns/:id/run
func (h *Handler) RunCycle(c *gin.Context) {
	id, orgID, ok := h.campaignScope(c)
	if !ok {
		return
	}
	// Ownership check; cycle execution itself is org-agnostic.
	if _, err := h.svc.GetByID(c.Request.Context(), orgID, id); httpkit.HandleError(c, err) {
		return
	}
	result, err := h.svc.RunCampaignCycle(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RunAllCycles triggers a cycle for every active campaign.
// POST /api/v1/cycles/campaigns
func (h *Handler) RunAllCycles(c *gin.Context) {
	if httpkit.MustGetIdentity(c) == nil {
		return
	}
	results, err := h.svc.RunAllCampaignCycles(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, results)
}

// RunTaskCycle claims and executes due scheduled tasks. The body is
// optional; maxBatch caps how many tasks the cycle claims.
// POST /api/v1/cycles/tasks
func (h *Handler) RunTaskCycle(c *gin.Context) {
	if httpkit.MustGetIdentity(c) == nil {
		return
	}
	var req transport.RunTaskCycleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
	}
	result, err := h.queue.RunTaskCycle(c.Request.Context(), time.Now(), req.MaxBatch)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RunPaymentCheck triggers one payment reconciliation cycle.
// POST /api/v1/cycles/payments
func (h *Handler) RunPaymentCheck(c *gin.Context) {
	if httpkit.MustGetIdentity(c) == nil {
		return
	}
	result, err := h.svc.RunPaymentCheckCycle(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RunAutoCreate creates a campaign for uncovered overdue invoices.
// POST /api/v1/cycles/auto-create
func (h *Handler) RunAutoCreate(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	orgID, ok := httpkit.MustGetOrgID(c, identity)
	if !ok {
		return
	}
	result, err := h.svc.RunAutoCreateCycle(c.Request.Context(), orgID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, orgID, id uuid.UUID) error) {
	id, orgID, ok := h.campaignScope(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, fn(c.Request.Context(), orgID, id)) {
		return
	}
	httpkit.OK(c, gin.H{"status": "ok"})
}

func (h *Handler) campaignScope(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.Nil, uuid.Nil, false
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return uuid.Nil, uuid.Nil, false
	}
	orgID, ok := httpkit.MustGetOrgID(c, identity)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return id, orgID, true
}

func stagesFromInput(in []transport.StageInput) []repository.Stage {
	if len(in) == 0 {
		return nil
	}
	out := make([]repository.Stage, len(in))
	for i, st := range in {
		out[i] = repository.Stage{Name: st.Name, DaysTrigger: st.DaysTrigger, Tone: decision.Tone(st.Tone)}
	}
	return out
}

func toStageResponses(stages []repository.Stage) []transport.StageResponse {
	out := make([]transport.StageResponse, len(stages))
	for i, st := range stages {
		out[i] = transport.StageResponse{Name: st.Name, DaysTrigger: st.DaysTrigger, Tone: string(st.Tone)}
	}
	return out
}

func toCampaignResponse(c repository.Campaign) transport.CampaignResponse {
	return transport.CampaignResponse{
		ID:                c.ID,
		Name:              c.Name,
		Status:            c.Status,
		MaxAttempts:       c.MaxAttempts,
		DaysBetweenEmails: c.DaysBetweenEmails,
		EscalateTone:      c.EscalateTone,
		Stages:            toStageResponses(c.Stages),
		TargetInvoiceIDs:  c.TargetInvoiceIDs,
		Stats: transport.CampaignStatsResponse{
			EmailsSent:           c.Stats.EmailsSent,
			RepliesReceived:      c.Stats.RepliesReceived,
			InvoicesPaid:         c.Stats.InvoicesPaid,
			AmountCollectedCents: c.Stats.AmountCollectedCents,
		},
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
