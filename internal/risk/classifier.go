// Package risk scores the collection risk of an invoice from its age, amount,
// and the customer's historical payment behavior.
package risk

// Level classifies an invoice's collection risk.
type Level string

const (
	LevelLow      Level = "low"
	LevelAtRisk   Level = "at_risk"
	LevelOverdue  Level = "overdue"
	LevelCritical Level = "critical"
)

// PaymentBehavior is the customer's historical payment pattern.
type PaymentBehavior string

const (
	BehaviorExcellent   PaymentBehavior = "excellent"
	BehaviorGood        PaymentBehavior = "good"
	BehaviorAverage     PaymentBehavior = "average"
	BehaviorSlow        PaymentBehavior = "slow"
	BehaviorProblematic PaymentBehavior = "problematic"
)

// Input carries everything the classifier looks at. Behavior and AvgDaysToPay
// are optional; a zero Behavior means the customer's history is unknown.
type Input struct {
	DaysOverdue    int
	AmountDueCents int64
	Behavior       PaymentBehavior
	AvgDaysToPay   int
}

// Assessment is the classifier output. Factors lists every rule that
// contributed to the score, for audit trails and tests.
type Assessment struct {
	Level   Level
	Score   int
	Factors []string
}

// Classify is a pure, deterministic function of its input: the same Input
// always produces the same Assessment.
func Classify(in Input) Assessment {
	score := 0
	var factors []string

	add := func(points int, factor string) {
		score += points
		factors = append(factors, factor)
	}

	switch {
	case in.DaysOverdue > 60:
		add(50, "more than 60 days overdue")
	case in.DaysOverdue > 30:
		add(40, "more than 30 days overdue")
	case in.DaysOverdue > 14:
		add(30, "more than 14 days overdue")
	case in.DaysOverdue > 7:
		add(20, "more than 7 days overdue")
	case in.DaysOverdue > 0:
		add(10, "past due")
	case in.DaysOverdue > -7:
		add(5, "due within a week")
	}

	switch in.Behavior {
	case BehaviorProblematic:
		add(25, "problematic payment history")
	case BehaviorSlow:
		add(15, "slow payment history")
	case BehaviorAverage:
		add(5, "average payment history")
	case BehaviorGood:
		add(-5, "good payment history")
	case BehaviorExcellent:
		add(-10, "excellent payment history")
	}

	switch {
	case in.AvgDaysToPay > 45:
		add(10, "pays after 45+ days on average")
	case in.AvgDaysToPay > 30:
		add(5, "pays after 30+ days on average")
	}

	switch {
	case in.AmountDueCents > 10_000_00:
		add(5, "large outstanding amount")
	case in.AmountDueCents > 5_000_00:
		add(3, "sizable outstanding amount")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Assessment{
		Level:   levelFor(in, score),
		Score:   score,
		Factors: factors,
	}
}

// levelFor applies the level rules in priority order. Days overdue dominates
// the score: an invoice past 30 days is critical no matter how well the
// customer usually pays.
func levelFor(in Input, score int) Level {
	switch {
	case in.DaysOverdue > 30:
		return LevelCritical
	case in.DaysOverdue > 0:
		return LevelOverdue
	case score >= 30:
		return LevelAtRisk
	case in.DaysOverdue > -7 && in.DaysOverdue <= 0 && in.Behavior == BehaviorProblematic:
		return LevelAtRisk
	default:
		return LevelLow
	}
}
