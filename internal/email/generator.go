package email

import (
	"context"
	"fmt"

	"dunning_backend/internal/decision"
)

// TemplateGenerator renders static per-tone templates. It is the fallback
// when AI content generation is disabled and the reference for what each
// tone should sound like.
type TemplateGenerator struct{}

// NewTemplateGenerator creates the template-backed content generator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

func (g *TemplateGenerator) Generate(_ context.Context, in GenerateInput) (Content, error) {
	body, err := renderToneTemplate(in.Tone, toneEmailData{
		CustomerName:    in.CustomerName,
		CompanyName:     in.CompanyName,
		InvoiceNumber:   in.InvoiceNumber,
		AmountFormatted: formatCurrencyUSD(in.AmountDueCents),
		DaysOverdue:     in.DaysOverdue,
		AttemptNumber:   in.AttemptNumber,
	})
	if err != nil {
		return Content{}, err
	}
	return Content{Subject: subjectFor(in), Body: body}, nil
}

func subjectFor(in GenerateInput) string {
	switch in.Tone {
	case decision.ToneFriendly:
		return fmt.Sprintf("A quick reminder about invoice %s", in.InvoiceNumber)
	case decision.ToneProfessional:
		return fmt.Sprintf("Payment reminder: invoice %s", in.InvoiceNumber)
	case decision.ToneFirm:
		return fmt.Sprintf("Overdue notice: invoice %s requires your attention", in.InvoiceNumber)
	case decision.ToneUrgent:
		return fmt.Sprintf("URGENT: invoice %s is %d days overdue", in.InvoiceNumber, in.DaysOverdue)
	default:
		return fmt.Sprintf("Regarding invoice %s", in.InvoiceNumber)
	}
}
