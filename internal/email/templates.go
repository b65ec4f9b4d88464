package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"dunning_backend/internal/decision"
)

//go:embed templates/*.html
var templateFS embed.FS

// Content is a rendered subject and HTML body.
type Content struct {
	Subject string
	Body    string
}

// GenerateInput carries everything content generation needs about the
// invoice being chased.
type GenerateInput struct {
	CustomerName   string
	CompanyName    string
	InvoiceNumber  string
	AmountDueCents int64
	DaysOverdue    int
	Tone           decision.Tone
	Stage          string
	AttemptNumber  int
}

// Generator produces outreach content for an invoice.
type Generator interface {
	Generate(ctx context.Context, in GenerateInput) (Content, error)
}

type toneEmailData struct {
	CustomerName    string
	CompanyName     string
	InvoiceNumber   string
	AmountFormatted string
	DaysOverdue     int
	AttemptNumber   int
}

func renderToneTemplate(tone decision.Tone, data toneEmailData) (string, error) {
	name := string(tone) + ".html"
	tmpl, err := template.New("base.html").ParseFS(templateFS, "templates/base.html", "templates/"+name)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func formatCurrencyUSD(cents int64) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}
