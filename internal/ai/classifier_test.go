package ai

import (
	"context"
	"testing"
)

func TestKeywordClassifierIntents(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantIntent string
		wantReview bool
	}{
		{"payment promise", "I will pay this on Friday.", IntentWillPay, false},
		{"payment plan", "Could we set up a payment plan?", IntentWillPay, false},
		{"already settled", "This was already paid two weeks ago.", IntentPaid, false},
		{"dispute", "I dispute this charge, the amount is wrong.", IntentDispute, true},
		{"dispute beats paid wording", "I already paid and I dispute the rest.", IntentDispute, true},
		{"question", "How do I access the customer portal?", IntentQuestion, true},
		{"unrecognised", "Thanks for reaching out.", IntentOther, true},
	}

	c := NewKeywordClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got.Intent != tt.wantIntent {
				t.Fatalf("intent = %q, want %q", got.Intent, tt.wantIntent)
			}
			if got.NeedsHumanReview != tt.wantReview {
				t.Fatalf("needsHumanReview = %v, want %v", got.NeedsHumanReview, tt.wantReview)
			}
		})
	}
}

func TestFailSafeRoutesToHuman(t *testing.T) {
	c := FailSafe()
	if !c.NeedsHumanReview {
		t.Fatal("fail-safe classification must need human review")
	}
	if c.SuggestedAction != ActionEscalate {
		t.Fatalf("suggestedAction = %q, want %q", c.SuggestedAction, ActionEscalate)
	}
}

func TestStripFences(t *testing.T) {
	in := "```json\n{\"intent\":\"paid\"}\n```"
	want := `{"intent":"paid"}`
	if got := stripFences(in); got != want {
		t.Fatalf("stripFences = %q, want %q", got, want)
	}
}
