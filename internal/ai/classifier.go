package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Reply intents the classifier distinguishes.
const (
	IntentWillPay  = "will_pay"
	IntentPaid     = "paid"
	IntentDispute  = "dispute"
	IntentQuestion = "question"
	IntentOther    = "other"
)

// Suggested follow-up actions.
const (
	ActionNone     = "none"
	ActionEscalate = "escalate"
	ActionRespond  = "respond"
)

// Classification is the structured interpretation of an inbound reply.
type Classification struct {
	Intent           string `json:"intent"`
	Urgency          string `json:"urgency"`
	NeedsHumanReview bool   `json:"needsHumanReview"`
	SuggestedAction  string `json:"suggestedAction"`
}

// FailSafe is the classification used whenever classification itself fails.
// A reply we could not understand always goes to a human.
func FailSafe() Classification {
	return Classification{
		Intent:           IntentOther,
		NeedsHumanReview: true,
		SuggestedAction:  ActionEscalate,
	}
}

// Classifier interprets inbound reply text.
type Classifier interface {
	Classify(ctx context.Context, replyText string) (Classification, error)
}

// GeminiClassifier classifies replies with the Gemini API.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewClassifier creates a Gemini-backed classifier.
func NewClassifier(client *genai.Client, model string) *GeminiClassifier {
	return &GeminiClassifier{client: client, model: model}
}

const classifyPrompt = `You analyse replies to debt collection emails.
Classify the reply below and answer with JSON only, using this schema:
{"intent": "will_pay|paid|dispute|question|other", "urgency": "low|medium|high", "needsHumanReview": bool, "suggestedAction": "none|escalate|respond"}

Guidance:
- "will_pay": the customer commits to paying or asks for a payment plan.
- "paid": the customer claims the invoice is already settled.
- "dispute": the customer contests the invoice; always needs human review.
- "question": the customer asks something answerable; suggest "respond".

Reply text:
%s`

func (c *GeminiClassifier) Classify(ctx context.Context, replyText string) (Classification, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(fmt.Sprintf(classifyPrompt, replyText)),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return Classification{}, fmt.Errorf("classify reply: %w", err)
	}

	var result Classification
	if err := json.Unmarshal([]byte(stripFences(resp.Text())), &result); err != nil {
		return Classification{}, fmt.Errorf("parse classification: %w", err)
	}

	switch result.Intent {
	case IntentWillPay, IntentPaid, IntentDispute, IntentQuestion, IntentOther:
	default:
		return Classification{}, fmt.Errorf("classify reply: unknown intent %q", result.Intent)
	}
	return result, nil
}

// stripFences removes markdown code fences some models wrap JSON output in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// KeywordClassifier is the classifier used when no LLM is configured. It
// matches common payment phrases and routes anything ambiguous to a human.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the keyword fallback classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var keywordIntents = []struct {
	intent  string
	phrases []string
}{
	{IntentDispute, []string{"dispute", "incorrect", "not my invoice", "never received", "wrong amount", "do not owe", "don't owe"}},
	{IntentPaid, []string{"already paid", "payment was made", "paid this invoice", "paid last", "settled"}},
	{IntentWillPay, []string{"will pay", "i'll pay", "payment plan", "pay next", "pay by", "installment", "instalment"}},
	{IntentQuestion, []string{"?", "how do i", "where can", "which account"}},
}

func (*KeywordClassifier) Classify(_ context.Context, replyText string) (Classification, error) {
	text := strings.ToLower(replyText)

	for _, candidate := range keywordIntents {
		for _, phrase := range candidate.phrases {
			if !strings.Contains(text, phrase) {
				continue
			}
			c := Classification{Intent: candidate.intent, Urgency: "medium", SuggestedAction: ActionNone}
			switch candidate.intent {
			case IntentDispute:
				c.Urgency = "high"
				c.NeedsHumanReview = true
				c.SuggestedAction = ActionEscalate
			case IntentQuestion:
				c.NeedsHumanReview = true
				c.SuggestedAction = ActionRespond
			}
			return c, nil
		}
	}

	return Classification{
		Intent:           IntentOther,
		Urgency:          "low",
		NeedsHumanReview: true,
		SuggestedAction:  ActionRespond,
	}, nil
}
