package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dunning_backend/internal/campaigns/repository"
	"dunning_backend/internal/decision"
	"dunning_backend/internal/email"
	"dunning_backend/internal/emaillog"
	domainevents "dunning_backend/internal/events"
	invrepo "dunning_backend/internal/invoices/repository"
	"dunning_backend/internal/risk"
	"dunning_backend/internal/tasks"
	"dunning_backend/platform/apperr"
	"dunning_backend/platform/events"
)

// Per-invoice cycle outcomes.
const (
	OutcomeSent      = "sent"
	OutcomeScheduled = "scheduled"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// InvoiceOutcome is the per-invoice line item of a campaign cycle.
type InvoiceOutcome struct {
	InvoiceID uuid.UUID `json:"invoiceId"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
}

// CycleResult aggregates one campaign cycle.
type CycleResult struct {
	CampaignID uuid.UUID        `json:"campaignId"`
	Processed  int              `json:"processed"`
	Sent       int              `json:"sent"`
	Scheduled  int              `json:"scheduled"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Completed  bool             `json:"completed"`
	Details    []InvoiceOutcome `json:"details,omitempty"`
}

func (r *CycleResult) record(o InvoiceOutcome) {
	r.Processed++
	switch o.Outcome {
	case OutcomeSent:
		r.Sent++
	case OutcomeScheduled:
		r.Scheduled++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
	r.Details = append(r.Details, o)
}

// RunCampaignCycle evaluates every target invoice of one active campaign,
// sending or scheduling outreach as the decision engine dictates. Invoice
// failures are isolated: one bad invoice never aborts the rest.
func (s *Service) RunCampaignCycle(ctx context.Context, campaignID uuid.UUID) (*CycleResult, error) {
	camp, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if camp.Status != repository.StatusActive {
		return nil, apperr.Conflict("campaign is not active")
	}

	result := &CycleResult{CampaignID: camp.ID}
	invoices, err := s.invoices.ListByIDs(ctx, camp.OrganizationID, camp.TargetInvoiceIDs)
	if err != nil {
		return nil, err
	}

	if allPaid(invoices) {
		if err := s.completeCampaign(ctx, camp); err != nil {
			return nil, err
		}
		result.Completed = true
		return result, nil
	}

	now := s.now()
	for _, inv := range invoices {
		if inv.Status == invrepo.StatusPaid {
			result.record(InvoiceOutcome{InvoiceID: inv.ID, Outcome: OutcomeSkipped, Reason: "invoice already paid"})
			continue
		}
		result.record(s.processInvoice(ctx, camp, inv, now))
	}

	s.log.CycleSummary("campaign", result.Processed, result.Sent+result.Scheduled+result.Skipped, result.Failed)
	return result, nil
}

// processInvoice runs the full decision pipeline for one invoice. All
// attempt and interaction data is loaded fresh here, never carried over
// from a previous invoice or cycle, so a send that just happened is always
// visible to the next decision.
func (s *Service) processInvoice(ctx context.Context, camp repository.Campaign, inv invrepo.Invoice, now time.Time) InvoiceOutcome {
	fail := func(err error) InvoiceOutcome {
		return InvoiceOutcome{InvoiceID: inv.ID, Outcome: OutcomeFailed, Reason: err.Error()}
	}
	skip := func(reason string) InvoiceOutcome {
		return InvoiceOutcome{InvoiceID: inv.ID, Outcome: OutcomeSkipped, Reason: reason}
	}

	cust, err := s.customers.GetByID(ctx, camp.OrganizationID, inv.CustomerID)
	if err != nil {
		return fail(err)
	}
	// Opt-out wins over everything, including an active campaign status.
	if cust.StopContact {
		return skip("customer opted out")
	}
	if !inv.Collectible() {
		return skip("invoice not collectible")
	}

	attemptCount, err := s.emails.CountAttempts(ctx, inv.ID)
	if err != nil {
		return fail(err)
	}
	if attemptCount >= camp.MaxAttempts {
		return skip("max attempts reached")
	}

	daysOverdue := inv.DaysOverdue(now)
	stage, ok := ResolveStage(camp.Stages, attemptCount, daysOverdue)
	if !ok {
		return skip("no stage configured")
	}

	interaction, err := s.emails.LastInteraction(ctx, inv.ID, now)
	if err != nil {
		return fail(err)
	}

	custCtx, invCtx, campCtx := buildContexts(cust.PaymentBehavior, cust.AvgDaysToPay, cust.Timezone, inv, daysOverdue, attemptCount, interaction, camp, stage)

	timing, err := decision.OptimalTiming(now, custCtx, invCtx, campCtx)
	if err != nil {
		return fail(err)
	}

	if !timing.ShouldSendNow {
		payload := tasks.Payload{
			CampaignID: &camp.ID,
			InvoiceID:  &inv.ID,
			CustomerID: &cust.ID,
			Reason:     timing.Reason,
		}
		if _, err := s.queue.Enqueue(ctx, camp.OrganizationID, tasks.TypeSendEmail, timing.ScheduleFor, payload); err != nil {
			return fail(err)
		}
		return InvoiceOutcome{InvoiceID: inv.ID, Outcome: OutcomeScheduled, Reason: timing.Reason}
	}

	if err := s.sendOutreach(ctx, camp, inv, cust.Name, cust.Email, cust.ID, stage, custCtx, invCtx, campCtx, attemptCount, now); err != nil {
		return fail(err)
	}
	return InvoiceOutcome{InvoiceID: inv.ID, Outcome: OutcomeSent}
}

func buildContexts(
	behavior risk.PaymentBehavior, avgDaysToPay int, timezone string,
	inv invrepo.Invoice, daysOverdue, attemptCount int,
	interaction *emaillog.Interaction,
	camp repository.Campaign, stage repository.Stage,
) (decision.CustomerContext, decision.InvoiceContext, decision.CampaignContext) {
	custCtx := decision.CustomerContext{
		Behavior:     behavior,
		AvgDaysToPay: avgDaysToPay,
		Timezone:     timezone,
	}
	invCtx := decision.InvoiceContext{
		DaysOverdue:      daysOverdue,
		PreviousAttempts: attemptCount,
		RiskLevel:        inv.RiskLevel,
	}
	if interaction != nil {
		invCtx.LastInteraction = &decision.LastInteraction{
			WasOpened:          interaction.WasOpened,
			WasClicked:         interaction.WasClicked,
			DaysSinceLastEmail: interaction.DaysSinceLastEmail,
		}
	}
	campCtx := decision.CampaignContext{
		Stage:             stage.Name,
		AttemptNumber:     attemptCount + 1,
		MaxAttempts:       camp.MaxAttempts,
		DaysBetweenEmails: camp.DaysBetweenEmails,
		EscalateTone:      camp.EscalateTone,
	}
	return custCtx, invCtx, campCtx
}

// sendOutreach generates content, delivers it, logs the attempt, and lines
// up the next follow-up. A send failure is logged as a failed email row and
// surfaced to the caller; there is no in-cycle retry.
func (s *Service) sendOutreach(
	ctx context.Context,
	camp repository.Campaign, inv invrepo.Invoice,
	customerName, customerEmail string, customerID uuid.UUID,
	stage repository.Stage,
	custCtx decision.CustomerContext, invCtx decision.InvoiceContext, campCtx decision.CampaignContext,
	attemptCount int, now time.Time,
) error {
	computed := decision.ComputeTone(custCtx, invCtx, campCtx)
	esc := decision.RecommendEscalation(invCtx, campCtx)
	tone := decision.FinalTone(campCtx, esc, stage.Tone, computed)

	content, err := s.generator.Generate(ctx, email.GenerateInput{
		CustomerName:   customerName,
		CompanyName:    s.fromName,
		InvoiceNumber:  inv.InvoiceNumber,
		AmountDueCents: inv.AmountDueCents,
		DaysOverdue:    invCtx.DaysOverdue,
		Tone:           tone,
		Stage:          stage.Name,
		AttemptNumber:  attemptCount + 1,
	})
	if err != nil {
		return fmt.Errorf("generate content: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	toneStr := string(tone)
	rec := emaillog.Record{
		OrganizationID: camp.OrganizationID,
		CampaignID:     &camp.ID,
		InvoiceID:      inv.ID,
		CustomerID:     customerID,
		Direction:      emaillog.DirectionOutbound,
		Tone:           &toneStr,
		Stage:          &stage.Name,
		Subject:        &content.Subject,
		Body:           &content.Body,
	}

	messageID, sendErr := s.sender.Send(ctx, email.Message{
		To:       customerEmail,
		Subject:  content.Subject,
		Body:     content.Body,
		FromName: s.fromName,
		ReplyTo:  s.replyTo,
	})
	if sendErr != nil {
		errMsg := sendErr.Error()
		rec.Status = emaillog.StatusFailed
		rec.Error = &errMsg
		if _, logErr := s.emails.Insert(ctx, rec); logErr != nil {
			s.log.DatabaseError("emaillog.insert", logErr)
		}
		s.log.EmailDispatch(camp.ID.String(), inv.ID.String(), toneStr, stage.Name, false, errMsg)
		return fmt.Errorf("send email: %w", sendErr)
	}

	rec.Status = emaillog.StatusSent
	rec.MessageID = &messageID
	if _, err := s.emails.Insert(ctx, rec); err != nil {
		s.log.DatabaseError("emaillog.insert", err)
	}
	if err := s.campaigns.IncrementStats(ctx, camp.ID, 1, 0, 0, 0); err != nil {
		s.log.DatabaseError("campaigns.increment_stats", err)
	}
	s.log.EmailDispatch(camp.ID.String(), inv.ID.String(), toneStr, stage.Name, true, "")

	s.bus.Publish(ctx, domainevents.EmailSent{
		BaseEvent:      events.NewBaseEvent(),
		OrganizationID: camp.OrganizationID,
		CampaignID:     camp.ID,
		InvoiceID:      inv.ID,
		CustomerID:     customerID,
		Tone:           toneStr,
		Stage:          stage.Name,
	})

	// Line up the next contact while attempts remain. The follow-up task
	// re-evaluates everything at execution time, so a payment or opt-out
	// in the meantime withdraws the send.
	if attemptCount+1 < camp.MaxAttempts {
		payload := tasks.Payload{CampaignID: &camp.ID, InvoiceID: &inv.ID, CustomerID: &customerID}
		next := now.AddDate(0, 0, camp.DaysBetweenEmails)
		if _, err := s.queue.Enqueue(ctx, camp.OrganizationID, tasks.TypeFollowUp, next, payload); err != nil {
			s.log.Error("enqueue follow-up", "campaign", camp.ID, "invoice", inv.ID, "error", err)
		}
	}
	return nil
}

func allPaid(invoices []invrepo.Invoice) bool {
	if len(invoices) == 0 {
		return false
	}
	for _, inv := range invoices {
		if inv.Status != invrepo.StatusPaid {
			return false
		}
	}
	return true
}

func (s *Service) completeCampaign(ctx context.Context, camp repository.Campaign) error {
	if err := s.campaigns.UpdateStatus(ctx, camp.ID, repository.StatusCompleted); err != nil {
		return err
	}
	if _, err := s.queue.CancelForCampaign(ctx, camp.ID); err != nil {
		s.log.Error("cancel tasks for completed campaign", "campaign", camp.ID, "error", err)
	}
	s.bus.Publish(ctx, domainevents.CampaignCompleted{
		BaseEvent:      events.NewBaseEvent(),
		OrganizationID: camp.OrganizationID,
		CampaignID:     camp.ID,
	})
	s.log.Info("campaign completed", "id", camp.ID)
	return nil
}

// RunAllCampaignCycles executes a cycle for every active campaign with
// bounded concurrency. A campaign whose cycle errors is reported and the
// siblings proceed.
func (s *Service) RunAllCampaignCycles(ctx context.Context) ([]*CycleResult, error) {
	active, err := s.campaigns.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*CycleResult, len(active))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, camp := range active {
		g.Go(func() error {
			res, err := s.RunCampaignCycle(gctx, camp.ID)
			if err != nil {
				s.log.Error("campaign cycle", "campaign", camp.ID, "error", err)
				results[i] = &CycleResult{CampaignID: camp.ID, Failed: 1, Details: []InvoiceOutcome{{Outcome: OutcomeFailed, Reason: err.Error()}}}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// PaymentCheckResult summarizes one payment polling cycle.
type PaymentCheckResult struct {
	CampaignsChecked   int `json:"campaignsChecked"`
	NewlyPaid          int `json:"newlyPaid"`
	CampaignsCompleted int `json:"campaignsCompleted"`
}

// RunPaymentCheckCycle reconciles campaign stats with invoice payment
// status, withdraws pending sends for paid invoices, and completes
// campaigns whose targets are all settled. Counter reconciliation is
// against observed state, so re-running the cycle is idempotent.
func (s *Service) RunPaymentCheckCycle(ctx context.Context) (*PaymentCheckResult, error) {
	active, err := s.campaigns.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	result := &PaymentCheckResult{}
	for _, camp := range active {
		result.CampaignsChecked++
		invoices, err := s.invoices.ListByIDs(ctx, camp.OrganizationID, camp.TargetInvoiceIDs)
		if err != nil {
			s.log.Error("payment check", "campaign", camp.ID, "error", err)
			continue
		}

		paidCount := 0
		var paidAmount int64
		for _, inv := range invoices {
			if inv.Status != invrepo.StatusPaid {
				continue
			}
			paidCount++
			paidAmount += inv.AmountDueCents

			cancelled, err := s.queue.CancelForInvoice(ctx, inv.ID)
			if err != nil {
				s.log.Error("cancel tasks for paid invoice", "invoice", inv.ID, "error", err)
				continue
			}
			// Pending tasks existing for a paid invoice means the payment
			// arrived since the last cycle.
			if cancelled > 0 {
				result.NewlyPaid++
				s.bus.Publish(ctx, domainevents.InvoicePaid{
					BaseEvent:      events.NewBaseEvent(),
					OrganizationID: camp.OrganizationID,
					CampaignID:     camp.ID,
					InvoiceID:      inv.ID,
					AmountCents:    inv.AmountDueCents,
				})
			}
		}

		if d, a := paidCount-camp.Stats.InvoicesPaid, paidAmount-camp.Stats.AmountCollectedCents; d > 0 || a > 0 {
			if err := s.campaigns.IncrementStats(ctx, camp.ID, 0, 0, max(d, 0), max(a, 0)); err != nil {
				s.log.DatabaseError("campaigns.increment_stats", err)
			}
		}

		if allPaid(invoices) {
			if err := s.completeCampaign(ctx, camp); err != nil {
				s.log.Error("complete campaign", "campaign", camp.ID, "error", err)
				continue
			}
			result.CampaignsCompleted++
		}
	}
	return result, nil
}

// AutoCreateResult summarizes one auto-creation cycle.
type AutoCreateResult struct {
	InvoicesFound  int        `json:"invoicesFound"`
	CampaignID     *uuid.UUID `json:"campaignId,omitempty"`
	AlreadyCovered bool       `json:"alreadyCovered"`
}

// RunAutoCreateCycle creates an active campaign from the standard preset
// for every overdue invoice of the organization not yet covered by one.
func (s *Service) RunAutoCreateCycle(ctx context.Context, orgID uuid.UUID) (*AutoCreateResult, error) {
	uncovered, err := s.invoices.ListOverdueWithoutActiveCampaign(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if len(uncovered) == 0 {
		return &AutoCreateResult{AlreadyCovered: true}, nil
	}

	ids := make([]uuid.UUID, len(uncovered))
	for i, inv := range uncovered {
		ids[i] = inv.ID
	}

	created, err := s.Create(ctx, orgID, CreateInput{
		Name:             fmt.Sprintf("Auto outreach %s", s.now().Format("2006-01-02")),
		Preset:           DefaultPreset,
		TargetInvoiceIDs: ids,
		Activate:         true,
	})
	if err != nil {
		return nil, err
	}
	return &AutoCreateResult{InvoicesFound: len(uncovered), CampaignID: &created.ID}, nil
}
