package service

import (
	"dunning_backend/internal/campaigns/repository"
)

// ResolveStage picks the ladder stage for the next email. The ladder is
// scanned in order and the first match wins: the opening stage matches a
// fresh invoice (no attempts yet, zero-day trigger), and every other stage
// matches when its days threshold is met and the attempt count equals the
// stage's position in the ladder. With no match the last stage applies, so
// late attempts keep using the harshest configured stage. An empty ladder
// resolves to nothing and the invoice is skipped this cycle.
//
// Because the attempt index is gated by the days threshold, a cycle that
// runs after several thresholds have passed jumps straight to the matching
// rung and skips the intermediate ones. That is intentional behavior, not a
// scan bug.
func ResolveStage(stages []repository.Stage, attemptCount, daysOverdue int) (repository.Stage, bool) {
	if len(stages) == 0 {
		return repository.Stage{}, false
	}
	for i, stage := range stages {
		if attemptCount == 0 && stage.DaysTrigger == 0 {
			return stage, true
		}
		if daysOverdue >= stage.DaysTrigger && attemptCount == i {
			return stage, true
		}
	}
	return stages[len(stages)-1], true
}
