package service

import (
	"context"
	"fmt"

	"dunning_backend/internal/campaigns/repository"
	"dunning_backend/internal/decision"
	domainevents "dunning_backend/internal/events"
	invrepo "dunning_backend/internal/invoices/repository"
	"dunning_backend/internal/tasks"
	"dunning_backend/platform/apperr"
	"dunning_backend/platform/events"
)

// RegisterExecutors wires the campaign-side task executors into the queue.
// Called once during scheduler wiring, after both services exist.
func (s *Service) RegisterExecutors(queue *tasks.Service) {
	queue.Register(tasks.TypeSendEmail, s.executeSend)
	queue.Register(tasks.TypeFollowUp, s.executeSend)
	queue.Register(tasks.TypeCheckPayment, s.executeCheckPayment)
	queue.Register(tasks.TypeEscalate, s.executeEscalate)
	queue.Register(tasks.TypePauseCampaign, s.executePause)
	queue.Register(tasks.TypeResumeCampaign, s.executeResume)
}

// executeSend handles both scheduled sends and follow-ups. Everything is
// re-evaluated from fresh state at execution time: a payment, opt-out, or
// pause since scheduling turns the task into a recorded skip, and a timing
// decision that now says defer re-enqueues instead of sending out of window.
func (s *Service) executeSend(ctx context.Context, task *tasks.Task) (any, bool, error) {
	p, err := task.DecodePayload()
	if err != nil {
		return nil, false, fmt.Errorf("decode payload: %w", err)
	}
	if p.CampaignID == nil || p.InvoiceID == nil {
		return nil, false, fmt.Errorf("send task missing campaign or invoice reference")
	}

	camp, err := s.campaigns.Get(ctx, *p.CampaignID)
	if err != nil {
		if apperr.GetKind(err) == apperr.KindNotFound {
			return nil, false, err
		}
		return nil, true, err
	}
	if camp.Status != repository.StatusActive {
		return InvoiceOutcome{InvoiceID: *p.InvoiceID, Outcome: OutcomeSkipped, Reason: "campaign not active"}, false, nil
	}

	inv, err := s.invoices.GetByID(ctx, camp.OrganizationID, *p.InvoiceID)
	if err != nil {
		return nil, apperr.GetKind(err) != apperr.KindNotFound, err
	}

	outcome := s.processInvoice(ctx, camp, inv, s.now())
	if outcome.Outcome == OutcomeFailed {
		return nil, true, fmt.Errorf("%s", outcome.Reason)
	}
	return outcome, false, nil
}

// executeCheckPayment looks at one invoice and, when it has settled, stops
// outstanding outreach and updates the campaign's collection counters.
func (s *Service) executeCheckPayment(ctx context.Context, task *tasks.Task) (any, bool, error) {
	p, err := task.DecodePayload()
	if err != nil {
		return nil, false, fmt.Errorf("decode payload: %w", err)
	}
	if p.CampaignID == nil || p.InvoiceID == nil {
		return nil, false, fmt.Errorf("check_payment task missing campaign or invoice reference")
	}

	camp, err := s.campaigns.Get(ctx, *p.CampaignID)
	if err != nil {
		return nil, apperr.GetKind(err) != apperr.KindNotFound, err
	}
	inv, err := s.invoices.GetByID(ctx, camp.OrganizationID, *p.InvoiceID)
	if err != nil {
		return nil, apperr.GetKind(err) != apperr.KindNotFound, err
	}

	if inv.Status != invrepo.StatusPaid {
		return map[string]any{"paid": false}, false, nil
	}

	if _, err := s.queue.CancelForInvoice(ctx, inv.ID); err != nil {
		return nil, true, err
	}
	if err := s.campaigns.IncrementStats(ctx, camp.ID, 0, 0, 1, inv.AmountDueCents); err != nil {
		return nil, true, err
	}
	s.bus.Publish(ctx, domainevents.InvoicePaid{
		BaseEvent:      events.NewBaseEvent(),
		OrganizationID: camp.OrganizationID,
		CampaignID:     camp.ID,
		InvoiceID:      inv.ID,
		AmountCents:    inv.AmountDueCents,
	})
	return map[string]any{"paid": true}, false, nil
}

// executeEscalate raises the tone of every stage in the campaign's ladder
// by one rank. Note this touches all stages, including rungs the campaign
// has already passed, so historical stage definitions harden too.
func (s *Service) executeEscalate(ctx context.Context, task *tasks.Task) (any, bool, error) {
	p, err := task.DecodePayload()
	if err != nil {
		return nil, false, fmt.Errorf("decode payload: %w", err)
	}
	if p.CampaignID == nil {
		return nil, false, fmt.Errorf("escalate task missing campaign reference")
	}

	camp, err := s.campaigns.Get(ctx, *p.CampaignID)
	if err != nil {
		return nil, apperr.GetKind(err) != apperr.KindNotFound, err
	}

	escalated := make([]repository.Stage, len(camp.Stages))
	for i, stage := range camp.Stages {
		stage.Tone = raiseTone(stage.Tone)
		escalated[i] = stage
	}
	if err := s.campaigns.UpdateStages(ctx, camp.ID, escalated); err != nil {
		return nil, true, err
	}
	s.log.Info("campaign escalated", "id", camp.ID, "reason", p.Reason)
	return map[string]any{"stages": len(escalated)}, false, nil
}

func (s *Service) executePause(ctx context.Context, task *tasks.Task) (any, bool, error) {
	p, err := task.DecodePayload()
	if err != nil {
		return nil, false, fmt.Errorf("decode payload: %w", err)
	}
	if p.CampaignID == nil {
		return nil, false, fmt.Errorf("pause task missing campaign reference")
	}
	camp, err := s.campaigns.Get(ctx, *p.CampaignID)
	if err != nil {
		return nil, apperr.GetKind(err) != apperr.KindNotFound, err
	}
	if camp.Status != repository.StatusActive {
		return map[string]any{"paused": false}, false, nil
	}
	if err := s.campaigns.UpdateStatus(ctx, camp.ID, repository.StatusPaused); err != nil {
		return nil, true, err
	}
	if _, err := s.queue.CancelForCampaign(ctx, camp.ID); err != nil {
		return nil, true, err
	}
	return map[string]any{"paused": true}, false, nil
}

func (s *Service) executeResume(ctx context.Context, task *tasks.Task) (any, bool, error) {
	p, err := task.DecodePayload()
	if err != nil {
		return nil, false, fmt.Errorf("decode payload: %w", err)
	}
	if p.CampaignID == nil {
		return nil, false, fmt.Errorf("resume task missing campaign reference")
	}
	camp, err := s.campaigns.Get(ctx, *p.CampaignID)
	if err != nil {
		return nil, apperr.GetKind(err) != apperr.KindNotFound, err
	}
	if camp.Status != repository.StatusPaused {
		return map[string]any{"resumed": false}, false, nil
	}
	if err := s.campaigns.UpdateStatus(ctx, camp.ID, repository.StatusActive); err != nil {
		return nil, true, err
	}
	return map[string]any{"resumed": true}, false, nil
}

func raiseTone(t decision.Tone) decision.Tone {
	switch t {
	case decision.ToneFriendly:
		return decision.ToneProfessional
	case decision.ToneProfessional:
		return decision.ToneFirm
	case decision.ToneFirm, decision.ToneUrgent:
		return decision.ToneUrgent
	default:
		return t
	}
}
