// Package decision contains the pure decision engines behind outreach: which
// tone to use, whether to escalate, and whether to send now or defer. Nothing
// in this package touches the store or the clock beyond the instants passed in.
package decision

import "dunning_backend/internal/risk"

// Tone is the communication register of an outreach email, strictly ordered
// by escalation: friendly < professional < firm < urgent.
type Tone string

const (
	ToneFriendly     Tone = "friendly"
	ToneProfessional Tone = "professional"
	ToneFirm         Tone = "firm"
	ToneUrgent       Tone = "urgent"
)

// Rank returns the tone's position in the escalation order. Unknown tones
// rank below friendly so they never win an escalation comparison.
func (t Tone) Rank() int {
	switch t {
	case ToneFriendly:
		return 1
	case ToneProfessional:
		return 2
	case ToneFirm:
		return 3
	case ToneUrgent:
		return 4
	default:
		return 0
	}
}

// CustomerContext is the slice of customer state the engines look at.
type CustomerContext struct {
	Behavior     risk.PaymentBehavior
	AvgDaysToPay int
	Timezone     string
}

// LastInteraction describes the most recent email sent for an invoice.
type LastInteraction struct {
	WasOpened          bool
	WasClicked         bool
	DaysSinceLastEmail int
}

// InvoiceContext is the slice of invoice state the engines look at.
// LastInteraction is nil when no email has gone out yet.
type InvoiceContext struct {
	DaysOverdue      int
	PreviousAttempts int
	LastInteraction  *LastInteraction
	RiskLevel        risk.Level
}

// CampaignContext is the slice of campaign config the engines look at.
// AttemptNumber is the attempt being considered (previous attempts + 1).
type CampaignContext struct {
	Stage             string
	AttemptNumber     int
	MaxAttempts       int
	DaysBetweenEmails int
	EscalateTone      bool
}

// ComputeTone picks the tone for the next email. Rules are priority ordered;
// the first match wins.
func ComputeTone(cust CustomerContext, inv InvoiceContext, camp CampaignContext) Tone {
	switch {
	case inv.DaysOverdue >= 30 || camp.AttemptNumber >= 4:
		return ToneUrgent
	case inv.DaysOverdue >= 14 || camp.AttemptNumber >= 3:
		return ToneFirm
	case (cust.Behavior == risk.BehaviorExcellent || cust.Behavior == risk.BehaviorGood) &&
		camp.AttemptNumber <= 2 && inv.DaysOverdue < 14:
		return ToneFriendly
	case cust.Behavior == risk.BehaviorProblematic &&
		(camp.AttemptNumber >= 2 || inv.DaysOverdue >= 7):
		return ToneFirm
	default:
		return ToneProfessional
	}
}

// FinalTone resolves the tone actually used for a send. Escalation wins over
// an explicit override, which wins over the computed rule-table tone. A
// campaign configured not to escalate tone keeps the override or computed
// tone even when escalation is recommended.
func FinalTone(camp CampaignContext, esc Escalation, override Tone, computed Tone) Tone {
	if camp.EscalateTone && esc.Escalate && esc.Tone != "" {
		return esc.Tone
	}
	if override != "" {
		return override
	}
	return computed
}
