package decision

import (
	"time"

	"dunning_backend/internal/compliance"
)

// Deferred sends land at 10:00 local, mid-window so a retry still has room
// before the window closes.
const deferHour = 10

// Timing is a send-now-or-defer decision. ScheduleFor is set only when
// ShouldSendNow is false.
type Timing struct {
	ShouldSendNow bool
	ScheduleFor   time.Time
	Reason        string
}

// OptimalTiming combines cadence, engagement, urgency, and the compliance
// window into a single decision. Rules are priority ordered. Every send-now
// branch is itself gated on the window: a send that would land outside it is
// converted to a deferral. Callers must still re-validate compliance at the
// moment of actual dispatch; execution can be delayed across the window
// boundary.
func OptimalTiming(now time.Time, cust CustomerContext, inv InvoiceContext, camp CampaignContext) (Timing, error) {
	tz := cust.Timezone

	// No email yet means cadence is trivially satisfied.
	daysSince := camp.DaysBetweenEmails
	if inv.LastInteraction != nil {
		daysSince = inv.LastInteraction.DaysSinceLastEmail
	}

	if inv.LastInteraction != nil && daysSince < camp.DaysBetweenEmails {
		gap := camp.DaysBetweenEmails - daysSince
		at, err := compliance.LocalAtHour(now, tz, gap, deferHour)
		if err != nil {
			return Timing{}, err
		}
		return Timing{ScheduleFor: at, Reason: "too early"}, nil
	}

	if inv.LastInteraction != nil && inv.LastInteraction.WasClicked {
		at, err := compliance.LocalAtHour(now, tz, 2, deferHour)
		if err != nil {
			return Timing{}, err
		}
		return Timing{ScheduleFor: at, Reason: "await payment processing after click"}, nil
	}

	if inv.DaysOverdue >= 30 {
		return sendNowOrNextWindow(now, tz, "high urgency")
	}

	if daysSince >= camp.DaysBetweenEmails {
		return sendNowOrNextWindow(now, tz, "cadence satisfied")
	}

	// Remaining cadence gap pushes the deferral past the next window opening.
	at, err := compliance.NextCompliantTime(now, tz)
	if err != nil {
		return Timing{}, err
	}
	if gap := camp.DaysBetweenEmails - daysSince; gap > 0 {
		at = at.AddDate(0, 0, gap)
	}
	return Timing{ScheduleFor: at, Reason: "awaiting cadence"}, nil
}

func sendNowOrNextWindow(now time.Time, tz, reason string) (Timing, error) {
	ok, err := compliance.IsCompliantTime(now, tz)
	if err != nil {
		return Timing{}, err
	}
	if ok {
		return Timing{ShouldSendNow: true, Reason: reason}, nil
	}

	at, err := compliance.NextCompliantTime(now, tz)
	if err != nil {
		return Timing{}, err
	}
	return Timing{ScheduleFor: at, Reason: "outside compliance window"}, nil
}
