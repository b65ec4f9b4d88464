package risk

import "testing"

func TestClassifyIsDeterministic(t *testing.T) {
	in := Input{
		DaysOverdue:    20,
		AmountDueCents: 5_000_00,
		Behavior:       BehaviorAverage,
		AvgDaysToPay:   35,
	}

	first := Classify(in)
	for i := 0; i < 5; i++ {
		again := Classify(in)
		if again.Level != first.Level || again.Score != first.Score {
			t.Fatalf("classification changed between calls: %+v vs %+v", first, again)
		}
		if len(again.Factors) != len(first.Factors) {
			t.Fatalf("factor count changed: %d vs %d", len(first.Factors), len(again.Factors))
		}
	}
}

func TestClassifyScoreBuildUp(t *testing.T) {
	cases := []struct {
		name      string
		in        Input
		wantScore int
		wantLevel Level
	}{
		{
			name:      "61 days overdue problematic payer",
			in:        Input{DaysOverdue: 61, Behavior: BehaviorProblematic, AvgDaysToPay: 50, AmountDueCents: 12_000_00},
			wantScore: 90, // 50 + 25 + 10 + 5
			wantLevel: LevelCritical,
		},
		{
			name:      "20 days overdue average payer",
			in:        Input{DaysOverdue: 20, Behavior: BehaviorAverage, AmountDueCents: 5_000_00},
			wantScore: 35, // 30 + 5
			wantLevel: LevelOverdue,
		},
		{
			name:      "8 days overdue slow payer",
			in:        Input{DaysOverdue: 8, Behavior: BehaviorSlow, AvgDaysToPay: 40, AmountDueCents: 6_000_00},
			wantScore: 43, // 20 + 15 + 5 + 3
			wantLevel: LevelOverdue,
		},
		{
			name:      "due in 3 days excellent payer",
			in:        Input{DaysOverdue: -3, Behavior: BehaviorExcellent},
			wantScore: 0, // 5 - 10, clamped
			wantLevel: LevelLow,
		},
		{
			name:      "due soon problematic payer",
			in:        Input{DaysOverdue: -3, Behavior: BehaviorProblematic},
			wantScore: 30, // 5 + 25
			wantLevel: LevelAtRisk,
		},
		{
			name:      "not yet near due date",
			in:        Input{DaysOverdue: -30, Behavior: BehaviorGood},
			wantScore: 0,
			wantLevel: LevelLow,
		},
	}

	for _, tc := range cases {
		got := Classify(tc.in)
		if got.Score != tc.wantScore {
			t.Errorf("%s: score = %d, want %d", tc.name, got.Score, tc.wantScore)
		}
		if got.Level != tc.wantLevel {
			t.Errorf("%s: level = %s, want %s", tc.name, got.Level, tc.wantLevel)
		}
	}
}

func TestClassifyDueTodayIsNeverOverdue(t *testing.T) {
	behaviors := []PaymentBehavior{"", BehaviorExcellent, BehaviorGood, BehaviorAverage, BehaviorSlow, BehaviorProblematic}
	for _, b := range behaviors {
		got := Classify(Input{DaysOverdue: 0, Behavior: b, AmountDueCents: 50_000_00, AvgDaysToPay: 90})
		if got.Level == LevelOverdue || got.Level == LevelCritical {
			t.Errorf("behavior %q: invoice due today classified %s", b, got.Level)
		}
	}
}

func TestClassifyScoreClamped(t *testing.T) {
	got := Classify(Input{DaysOverdue: 90, Behavior: BehaviorProblematic, AvgDaysToPay: 60, AmountDueCents: 20_000_00})
	if got.Score > 100 {
		t.Fatalf("score %d exceeds 100", got.Score)
	}
	if got.Score != 90 {
		t.Fatalf("score = %d, want 90", got.Score)
	}
}
