package service

import (
	"testing"

	"dunning_backend/internal/campaigns/repository"
	"dunning_backend/internal/decision"
)

func standardLadder() []repository.Stage {
	return []repository.Stage{
		{Name: "reminder", DaysTrigger: 0, Tone: decision.ToneFriendly},
		{Name: "follow_up", DaysTrigger: 7, Tone: decision.ToneProfessional},
		{Name: "escalation", DaysTrigger: 14, Tone: decision.ToneFirm},
		{Name: "final_notice", DaysTrigger: 30, Tone: decision.ToneUrgent},
	}
}

func TestResolveStage(t *testing.T) {
	ladder := standardLadder()

	tests := []struct {
		name         string
		attemptCount int
		daysOverdue  int
		wantStage    string
	}{
		{"first contact matches opening stage", 0, 1, "reminder"},
		{"first contact even when heavily overdue", 0, 25, "reminder"},
		{"second attempt past first threshold", 1, 8, "follow_up"},
		{"third attempt past second threshold", 2, 15, "escalation"},
		{"fourth attempt past final threshold", 3, 31, "final_notice"},
		{"attempt index met but days not reached falls back to last", 1, 3, "final_notice"},
		{"attempts beyond ladder fall back to last", 5, 40, "final_notice"},
		{"attempt index wins even past later thresholds", 1, 20, "follow_up"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, ok := ResolveStage(ladder, tt.attemptCount, tt.daysOverdue)
			if !ok {
				t.Fatalf("expected a stage, got none")
			}
			if stage.Name != tt.wantStage {
				t.Fatalf("ResolveStage(%d, %d) = %q, want %q", tt.attemptCount, tt.daysOverdue, stage.Name, tt.wantStage)
			}
		})
	}
}

func TestResolveStageEmptyLadder(t *testing.T) {
	if _, ok := ResolveStage(nil, 0, 10); ok {
		t.Fatal("empty ladder must resolve to no stage")
	}
}

func TestPresetsLoad(t *testing.T) {
	p, err := PresetByName(DefaultPreset)
	if err != nil {
		t.Fatalf("standard preset: %v", err)
	}
	if len(p.Stages) != 4 {
		t.Fatalf("standard preset has %d stages, want 4", len(p.Stages))
	}
	if p.Stages[0].DaysTrigger != 0 || p.Stages[0].Tone != decision.ToneFriendly {
		t.Fatalf("unexpected opening stage: %+v", p.Stages[0])
	}
	if p.MaxAttempts != 4 || p.DaysBetweenEmails != 5 {
		t.Fatalf("unexpected preset config: %+v", p)
	}

	if _, err := PresetByName("nonexistent"); err == nil {
		t.Fatal("expected error for unknown preset")
	}

	names := PresetNames()
	if len(names) != 3 {
		t.Fatalf("got %d presets, want 3", len(names))
	}
}

func TestRaiseTone(t *testing.T) {
	pairs := map[decision.Tone]decision.Tone{
		decision.ToneFriendly:     decision.ToneProfessional,
		decision.ToneProfessional: decision.ToneFirm,
		decision.ToneFirm:         decision.ToneUrgent,
		decision.ToneUrgent:       decision.ToneUrgent,
	}
	for in, want := range pairs {
		if got := raiseTone(in); got != want {
			t.Fatalf("raiseTone(%s) = %s, want %s", in, got, want)
		}
	}
}
