package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"dunning_backend/internal/email"
)

// GeminiGenerator writes outreach emails with the Gemini API, matching the
// requested tone. It implements email.Generator.
type GeminiGenerator struct {
	client   *genai.Client
	model    string
	fallback *email.TemplateGenerator
}

// NewGenerator creates a Gemini-backed content generator. Generation errors
// fall back to the static templates so a model outage never blocks a send.
func NewGenerator(client *genai.Client, model string) *GeminiGenerator {
	return &GeminiGenerator{
		client:   client,
		model:    model,
		fallback: email.NewTemplateGenerator(),
	}
}

const generatePrompt = `Write a debt collection email in HTML.

Context:
- Customer name: %s
- Company collecting: %s
- Invoice number: %s
- Amount due: $%.2f
- Days overdue: %d
- Attempt number: %d
- Required tone: %s

Tone meanings: friendly = gentle nudge assuming good faith; professional =
neutral business reminder; firm = direct, consequences mentioned; urgent =
final notice, 48 hour deadline.

Answer with JSON only: {"subject": "...", "body": "<html body fragment>"}.
Keep the body under 200 words. Do not invent payment details.`

func (g *GeminiGenerator) Generate(ctx context.Context, in email.GenerateInput) (email.Content, error) {
	prompt := fmt.Sprintf(generatePrompt,
		in.CustomerName, in.CompanyName, in.InvoiceNumber,
		float64(in.AmountDueCents)/100, in.DaysOverdue, in.AttemptNumber, in.Tone,
	)

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return g.fallback.Generate(ctx, in)
	}

	var out struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal([]byte(stripFences(resp.Text())), &out); err != nil || out.Subject == "" || out.Body == "" {
		return g.fallback.Generate(ctx, in)
	}
	return email.Content{Subject: out.Subject, Body: out.Body}, nil
}
