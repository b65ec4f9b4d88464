package replies

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"dunning_backend/internal/ai"
	custrepo "dunning_backend/internal/customers/repository"
	"dunning_backend/internal/emaillog"
	"dunning_backend/internal/tasks"
	"dunning_backend/platform/apperr"
	"dunning_backend/platform/events"
	"dunning_backend/platform/logger"
)

type fakeCustomers struct {
	byEmail     map[string]custrepo.Customer
	stopContact map[uuid.UUID]bool
}

func (f *fakeCustomers) GetByEmail(_ context.Context, _ uuid.UUID, email string) (custrepo.Customer, error) {
	c, ok := f.byEmail[email]
	if !ok {
		return custrepo.Customer{}, apperr.NotFound("customer not found")
	}
	return c, nil
}

func (f *fakeCustomers) SetStopContact(_ context.Context, _, id uuid.UUID) error {
	f.stopContact[id] = true
	return nil
}

type fakeCampaigns struct {
	paused            []uuid.UUID
	pausedForCustomer []uuid.UUID
	replyIncrements   map[uuid.UUID]int
}

func (f *fakeCampaigns) Pause(_ context.Context, _, id uuid.UUID) error {
	f.paused = append(f.paused, id)
	return nil
}

func (f *fakeCampaigns) PauseAllForCustomer(_ context.Context, customerID uuid.UUID) (int, error) {
	f.pausedForCustomer = append(f.pausedForCustomer, customerID)
	return 1, nil
}

func (f *fakeCampaigns) IncrementStats(_ context.Context, id uuid.UUID, _, replies, _ int, _ int64) error {
	f.replyIncrements[id] += replies
	return nil
}

type fakeQueue struct {
	enqueued  []*tasks.Task
	cancelled []uuid.UUID
}

func (f *fakeQueue) Enqueue(_ context.Context, orgID uuid.UUID, taskType tasks.Type, scheduledFor time.Time, p tasks.Payload) (*tasks.Task, error) {
	t := &tasks.Task{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Type:           taskType,
		CampaignID:     p.CampaignID,
		InvoiceID:      p.InvoiceID,
		ScheduledFor:   scheduledFor,
		Status:         tasks.StatusPending,
	}
	f.enqueued = append(f.enqueued, t)
	return t, nil
}

func (f *fakeQueue) CancelForCustomer(_ context.Context, customerID uuid.UUID) (int, error) {
	f.cancelled = append(f.cancelled, customerID)
	return 2, nil
}

type fakeEmailLog struct {
	records []emaillog.Record
	byMsgID map[string]*emaillog.Record
}

func (f *fakeEmailLog) Insert(_ context.Context, rec emaillog.Record) (uuid.UUID, error) {
	rec.ID = uuid.New()
	f.records = append(f.records, rec)
	return rec.ID, nil
}

func (f *fakeEmailLog) FindByMessageID(_ context.Context, messageID string) (*emaillog.Record, error) {
	return f.byMsgID[messageID], nil
}

type fakeClassifier struct {
	result ai.Classification
	err    error
	called bool
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) (ai.Classification, error) {
	f.called = true
	return f.result, f.err
}

type fixture struct {
	svc        *Service
	customers  *fakeCustomers
	campaigns  *fakeCampaigns
	queue      *fakeQueue
	emails     *fakeEmailLog
	classifier *fakeClassifier

	orgID      uuid.UUID
	customerID uuid.UUID
	campaignID uuid.UUID
	invoiceID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		customers: &fakeCustomers{
			byEmail:     make(map[string]custrepo.Customer),
			stopContact: make(map[uuid.UUID]bool),
		},
		campaigns:  &fakeCampaigns{replyIncrements: make(map[uuid.UUID]int)},
		queue:      &fakeQueue{},
		emails:     &fakeEmailLog{byMsgID: make(map[string]*emaillog.Record)},
		classifier: &fakeClassifier{},
		orgID:      uuid.New(),
		customerID: uuid.New(),
		campaignID: uuid.New(),
		invoiceID:  uuid.New(),
	}
	f.customers.byEmail["dana@example.test"] = custrepo.Customer{
		ID:             f.customerID,
		OrganizationID: f.orgID,
		Email:          "dana@example.test",
	}
	f.emails.byMsgID["msg-1"] = &emaillog.Record{
		OrganizationID: f.orgID,
		CampaignID:     &f.campaignID,
		InvoiceID:      f.invoiceID,
		CustomerID:     f.customerID,
		Direction:      emaillog.DirectionOutbound,
		Status:         emaillog.StatusSent,
	}

	log := logger.New("development")
	f.svc = New(Config{
		Customers:  f.customers,
		Campaigns:  f.campaigns,
		Stats:      f.campaigns,
		Queue:      f.queue,
		Emails:     f.emails,
		Classifier: f.classifier,
		Bus:        events.NewInMemoryBus(log),
		Log:        log,
	})
	f.svc.now = func() time.Time {
		return time.Date(2026, time.June, 16, 14, 0, 0, 0, time.UTC)
	}
	return f
}

func (f *fixture) inbound(body string) Inbound {
	return Inbound{
		OrganizationID: f.orgID,
		FromEmail:      "dana@example.test",
		Subject:        "Re: Payment reminder",
		Body:           body,
		InReplyTo:      "msg-1",
	}
}

func TestStopRequestOptsOutBeforeClassification(t *testing.T) {
	f := newFixture(t)
	// Classifier would say the customer will pay; the stop request must win
	// and the classifier must not even run.
	f.classifier.result = ai.Classification{Intent: ai.IntentWillPay}

	result, err := f.svc.Process(context.Background(), f.inbound("Please stop emailing me about this."))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.OptedOut || result.Intent != "opt_out" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if f.classifier.called {
		t.Fatal("classifier ran despite a stop request")
	}
	if !f.customers.stopContact[f.customerID] {
		t.Fatal("stop_contact flag not set")
	}
	if len(f.campaigns.pausedForCustomer) != 1 || f.campaigns.pausedForCustomer[0] != f.customerID {
		t.Fatal("customer's campaigns not paused")
	}
	if len(f.queue.cancelled) != 1 {
		t.Fatal("customer's pending tasks not cancelled")
	}
}

func TestStopWordMatchesWholeWordsOnly(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"please STOP", true},
		{"cease and desist", true},
		{"do not contact me again", true},
		{"I want to opt out of these emails", true},
		{"unsubscribe", true},
		{"the project was stopped last week", false},
		{"I will pay on friday", false},
		{"we processed the invoice", false},
	}
	for _, tc := range cases {
		if got := containsStopRequest(tc.text); got != tc.want {
			t.Errorf("containsStopRequest(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestPaidReplyPausesAndSchedulesImmediateCheck(t *testing.T) {
	f := newFixture(t)
	f.classifier.result = ai.Classification{Intent: ai.IntentPaid}

	result, err := f.svc.Process(context.Background(), f.inbound("We paid this invoice yesterday."))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Intent != ai.IntentPaid {
		t.Fatalf("intent = %q", result.Intent)
	}
	if len(f.campaigns.paused) != 1 || f.campaigns.paused[0] != f.campaignID {
		t.Fatal("originating campaign not paused")
	}
	if len(f.queue.enqueued) != 1 {
		t.Fatalf("enqueued %d tasks, want 1", len(f.queue.enqueued))
	}
	task := f.queue.enqueued[0]
	if task.Type != tasks.TypeCheckPayment {
		t.Fatalf("task type = %s", task.Type)
	}
	if !task.ScheduledFor.Equal(f.svc.now()) {
		t.Fatalf("check scheduled at %v, want now", task.ScheduledFor)
	}
	if f.campaigns.replyIncrements[f.campaignID] != 1 {
		t.Fatal("reply counter not incremented")
	}
}

func TestWillPayReplyPausesAndDefersCheck(t *testing.T) {
	f := newFixture(t)
	f.classifier.result = ai.Classification{Intent: ai.IntentWillPay}

	result, err := f.svc.Process(context.Background(), f.inbound("I will transfer the money next week."))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Intent != ai.IntentWillPay {
		t.Fatalf("intent = %q", result.Intent)
	}
	if len(f.campaigns.paused) != 1 || f.campaigns.paused[0] != f.campaignID {
		t.Fatal("originating campaign not paused")
	}
	if len(f.queue.enqueued) != 1 {
		t.Fatalf("enqueued %d tasks, want 1", len(f.queue.enqueued))
	}
	want := f.svc.now().AddDate(0, 0, willPayGraceDays)
	if !f.queue.enqueued[0].ScheduledFor.Equal(want) {
		t.Fatalf("check scheduled at %v, want %v", f.queue.enqueued[0].ScheduledFor, want)
	}
}

func TestDisputeFlagsHumanReview(t *testing.T) {
	f := newFixture(t)
	f.classifier.result = ai.Classification{Intent: ai.IntentDispute}

	result, err := f.svc.Process(context.Background(), f.inbound("This invoice is wrong, we never ordered this."))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.NeedsHumanReview {
		t.Fatal("dispute must need human review")
	}
	if len(f.campaigns.paused) != 1 {
		t.Fatal("originating campaign not paused")
	}
}

func TestClassifierFailureFallsBackToFailSafe(t *testing.T) {
	f := newFixture(t)
	f.classifier.err = errors.New("model unavailable")

	result, err := f.svc.Process(context.Background(), f.inbound("Какой счет?"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Intent != ai.IntentOther || !result.NeedsHumanReview {
		t.Fatalf("unexpected fail-safe result: %+v", result)
	}
	// FailSafe suggests escalation, which pauses the campaign.
	if len(f.campaigns.paused) != 1 {
		t.Fatal("fail-safe escalation did not pause the campaign")
	}
}

func TestReplyWithoutThreadResolvesBySenderAddress(t *testing.T) {
	f := newFixture(t)
	f.classifier.result = ai.Classification{Intent: ai.IntentQuestion, SuggestedAction: ai.ActionRespond}

	result, err := f.svc.Process(context.Background(), Inbound{
		OrganizationID: f.orgID,
		FromEmail:      "dana@example.test",
		Subject:        "A question",
		Body:           "Can you resend the invoice PDF?",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.CustomerID != f.customerID {
		t.Fatalf("customer = %s, want %s", result.CustomerID, f.customerID)
	}
	// No thread, no campaign: nothing is paused or scheduled.
	if result.CampaignID != nil || len(f.campaigns.paused) != 0 || len(f.queue.enqueued) != 0 {
		t.Fatalf("unexpected side effects: %+v", result)
	}
}

func TestUnresolvableReplyIsRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Process(context.Background(), Inbound{
		FromEmail: "stranger@example.test",
		Body:      "hello",
	})
	if err == nil {
		t.Fatal("expected an error for an unattributable reply")
	}
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("kind = %v, want validation", apperr.GetKind(err))
	}
	if len(f.emails.records) != 0 {
		t.Fatal("unattributable reply must not be logged")
	}
}

func TestInboundReplyIsLogged(t *testing.T) {
	f := newFixture(t)
	f.classifier.result = ai.Classification{Intent: ai.IntentQuestion}

	if _, err := f.svc.Process(context.Background(), f.inbound("What is the payment reference?")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(f.emails.records) != 1 {
		t.Fatalf("logged %d records, want 1", len(f.emails.records))
	}
	rec := f.emails.records[0]
	if rec.Direction != emaillog.DirectionInbound {
		t.Fatalf("direction = %s", rec.Direction)
	}
	if rec.InvoiceID != f.invoiceID {
		t.Fatalf("invoice = %s, want %s", rec.InvoiceID, f.invoiceID)
	}
}
