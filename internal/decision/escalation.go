package decision

// Recommended follow-up actions attached to an escalation recommendation.
const (
	ActionPauseCampaign       = "pause_campaign"
	ActionFlagForReview       = "flag_for_review"
	ActionAlternativeChannel  = "suggest_alternative_channel"
	ActionTryAlternateSubject = "try_alternate_subject"
)

// Escalation is the outcome of RecommendEscalation. When Escalate is false,
// Tone is empty and Actions may still carry operator guidance.
type Escalation struct {
	Escalate bool
	Tone     Tone
	Reason   string
	Actions  []string
}

// RecommendEscalation decides whether the next attempt should escalate in
// urgency. Rules are priority ordered; the first match wins. Reaching the
// attempt ceiling never escalates: it hands the invoice to an operator.
func RecommendEscalation(inv InvoiceContext, camp CampaignContext) Escalation {
	lastOpened := inv.LastInteraction != nil && inv.LastInteraction.WasOpened

	switch {
	case camp.AttemptNumber >= camp.MaxAttempts:
		return Escalation{
			Reason:  "max attempts reached",
			Actions: []string{ActionPauseCampaign, ActionFlagForReview, ActionAlternativeChannel},
		}
	case inv.DaysOverdue >= 30 && camp.AttemptNumber >= 3:
		return Escalation{
			Escalate: true,
			Tone:     ToneUrgent,
			Reason:   "severely overdue after repeated attempts",
		}
	case inv.DaysOverdue >= 14 && camp.AttemptNumber >= 2:
		return Escalation{
			Escalate: true,
			Tone:     ToneFirm,
			Reason:   "overdue past two weeks",
		}
	case !lastOpened && inv.PreviousAttempts >= 2:
		return Escalation{
			Escalate: true,
			Tone:     ToneFirm,
			Reason:   "previous emails unopened",
			Actions:  []string{ActionTryAlternateSubject, ActionAlternativeChannel},
		}
	default:
		return Escalation{}
	}
}
