package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"dunning_backend/internal/campaigns/repository"
	custrepo "dunning_backend/internal/customers/repository"
	"dunning_backend/internal/email"
	"dunning_backend/internal/emaillog"
	invrepo "dunning_backend/internal/invoices/repository"
	"dunning_backend/internal/risk"
	"dunning_backend/internal/tasks"
	"dunning_backend/platform/apperr"
	"dunning_backend/platform/events"
	"dunning_backend/platform/logger"
)

// --- fakes ---

type fakeCampaigns struct {
	mu        sync.Mutex
	campaigns map[uuid.UUID]*repository.Campaign
}

func newFakeCampaigns() *fakeCampaigns {
	return &fakeCampaigns{campaigns: make(map[uuid.UUID]*repository.Campaign)}
}

func (f *fakeCampaigns) add(c repository.Campaign) repository.Campaign {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := c
	f.campaigns[c.ID] = &cp
	return c
}

func (f *fakeCampaigns) Create(_ context.Context, c repository.Campaign) (repository.Campaign, error) {
	return f.add(c), nil
}

func (f *fakeCampaigns) Get(_ context.Context, id uuid.UUID) (repository.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return repository.Campaign{}, apperr.NotFound("campaign not found")
	}
	return *c, nil
}

func (f *fakeCampaigns) GetByID(ctx context.Context, _ uuid.UUID, id uuid.UUID) (repository.Campaign, error) {
	return f.Get(ctx, id)
}

func (f *fakeCampaigns) ListByOrg(_ context.Context, orgID uuid.UUID) ([]repository.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Campaign
	for _, c := range f.campaigns {
		if c.OrganizationID == orgID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCampaigns) ListActive(_ context.Context) ([]repository.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Campaign
	for _, c := range f.campaigns {
		if c.Status == repository.StatusActive {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCampaigns) ListActiveByCustomer(_ context.Context, _ uuid.UUID) ([]repository.Campaign, error) {
	return nil, nil
}

func (f *fakeCampaigns) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.Status == repository.StatusCompleted {
		return apperr.Conflict("campaign missing or already completed")
	}
	c.Status = status
	return nil
}

func (f *fakeCampaigns) UpdateStages(_ context.Context, id uuid.UUID, stages []repository.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return apperr.NotFound("campaign not found")
	}
	c.Stages = stages
	return nil
}

func (f *fakeCampaigns) SetTargets(_ context.Context, id uuid.UUID, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return apperr.NotFound("campaign not found")
	}
	c.TargetInvoiceIDs = ids
	return nil
}

func (f *fakeCampaigns) IncrementStats(_ context.Context, id uuid.UUID, sent, replies, paid int, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return apperr.NotFound("campaign not found")
	}
	c.Stats.EmailsSent += sent
	c.Stats.RepliesReceived += replies
	c.Stats.InvoicesPaid += paid
	c.Stats.AmountCollectedCents += amount
	return nil
}

type fakeInvoices struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*invrepo.Invoice
}

func newFakeInvoices() *fakeInvoices {
	return &fakeInvoices{invoices: make(map[uuid.UUID]*invrepo.Invoice)}
}

func (f *fakeInvoices) add(inv invrepo.Invoice) invrepo.Invoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	cp := inv
	f.invoices[inv.ID] = &cp
	return inv
}

func (f *fakeInvoices) markPaid(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices[id].Status = invrepo.StatusPaid
}

func (f *fakeInvoices) GetByID(_ context.Context, _ uuid.UUID, id uuid.UUID) (invrepo.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return invrepo.Invoice{}, apperr.NotFound("invoice not found")
	}
	return *inv, nil
}

func (f *fakeInvoices) ListByIDs(_ context.Context, _ uuid.UUID, ids []uuid.UUID) ([]invrepo.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []invrepo.Invoice
	for _, id := range ids {
		if inv, ok := f.invoices[id]; ok {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeInvoices) ListOverdueWithoutActiveCampaign(_ context.Context, orgID uuid.UUID) ([]invrepo.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []invrepo.Invoice
	for _, inv := range f.invoices {
		if inv.OrganizationID == orgID && inv.Status == invrepo.StatusOverdue {
			out = append(out, *inv)
		}
	}
	return out, nil
}

type fakeCustomers struct {
	mu        sync.Mutex
	customers map[uuid.UUID]*custrepo.Customer
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{customers: make(map[uuid.UUID]*custrepo.Customer)}
}

func (f *fakeCustomers) add(c custrepo.Customer) custrepo.Customer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := c
	f.customers[c.ID] = &cp
	return c
}

func (f *fakeCustomers) GetByID(_ context.Context, _ uuid.UUID, id uuid.UUID) (custrepo.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return custrepo.Customer{}, apperr.NotFound("customer not found")
	}
	return *c, nil
}

type fakeEmailLog struct {
	mu      sync.Mutex
	records []emaillog.Record
	// interactions and attempts pre-seed the query answers per invoice.
	interactions map[uuid.UUID]*emaillog.Interaction
	attempts     map[uuid.UUID]int
}

func newFakeEmailLog() *fakeEmailLog {
	return &fakeEmailLog{
		interactions: make(map[uuid.UUID]*emaillog.Interaction),
		attempts:     make(map[uuid.UUID]int),
	}
}

func (f *fakeEmailLog) Insert(_ context.Context, rec emaillog.Record) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = uuid.New()
	f.records = append(f.records, rec)
	if rec.Direction == emaillog.DirectionOutbound && rec.Status == emaillog.StatusSent {
		f.attempts[rec.InvoiceID]++
	}
	return rec.ID, nil
}

func (f *fakeEmailLog) CountAttempts(_ context.Context, invoiceID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[invoiceID], nil
}

func (f *fakeEmailLog) LastInteraction(_ context.Context, invoiceID uuid.UUID, _ time.Time) (*emaillog.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interactions[invoiceID], nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []*tasks.Task
}

func (f *fakeQueue) Enqueue(_ context.Context, orgID uuid.UUID, taskType tasks.Type, scheduledFor time.Time, p tasks.Payload) (*tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &tasks.Task{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Type:           taskType,
		CampaignID:     p.CampaignID,
		InvoiceID:      p.InvoiceID,
		CustomerID:     p.CustomerID,
		ScheduledFor:   scheduledFor,
		Status:         tasks.StatusPending,
	}
	f.enqueued = append(f.enqueued, t)
	return t, nil
}

func (f *fakeQueue) CancelForCampaign(_ context.Context, campaignID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.enqueued {
		if t.Status == tasks.StatusPending && t.CampaignID != nil && *t.CampaignID == campaignID {
			t.Status = tasks.StatusCancelled
			n++
		}
	}
	return n, nil
}

func (f *fakeQueue) CancelForInvoice(_ context.Context, invoiceID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.enqueued {
		if t.Status == tasks.StatusPending && t.InvoiceID != nil && *t.InvoiceID == invoiceID {
			t.Status = tasks.StatusCancelled
			n++
		}
	}
	return n, nil
}

func (f *fakeQueue) pending(taskType tasks.Type) []*tasks.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*tasks.Task
	for _, t := range f.enqueued {
		if t.Status == tasks.StatusPending && t.Type == taskType {
			out = append(out, t)
		}
	}
	return out
}

type fakeSender struct {
	mu   sync.Mutex
	sent []email.Message
	fail bool
}

func (f *fakeSender) Send(_ context.Context, m email.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errSMTPDown
	}
	f.sent = append(f.sent, m)
	return uuid.NewString(), nil
}

var errSMTPDown = &smtpDownError{}

type smtpDownError struct{}

func (*smtpDownError) Error() string { return "smtp connection refused" }

// --- fixture ---

type fixture struct {
	svc       *Service
	campaigns *fakeCampaigns
	invoices  *fakeInvoices
	customers *fakeCustomers
	emails    *fakeEmailLog
	queue     *fakeQueue
	sender    *fakeSender
}

// newFixture pins the clock to a Tuesday at 14:00 UTC, well inside the
// contact window for UTC-based customers.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		campaigns: newFakeCampaigns(),
		invoices:  newFakeInvoices(),
		customers: newFakeCustomers(),
		emails:    newFakeEmailLog(),
		queue:     &fakeQueue{},
		sender:    &fakeSender{},
	}
	log := logger.New("development")
	f.svc = New(Config{
		Campaigns:         f.campaigns,
		Invoices:          f.invoices,
		Customers:         f.customers,
		Emails:            f.emails,
		Queue:             f.queue,
		Sender:            f.sender,
		Generator:         email.NewTemplateGenerator(),
		Bus:               events.NewInMemoryBus(log),
		Log:               log,
		FromName:          "Acme Billing",
		ReplyTo:           "billing@acme.test",
		SendRatePerMinute: 600,
	})
	f.svc.now = func() time.Time {
		return time.Date(2026, time.June, 16, 14, 0, 0, 0, time.UTC)
	}
	return f
}

func (f *fixture) seedCampaign(t *testing.T, daysOverdue int, behavior risk.PaymentBehavior) (repository.Campaign, invrepo.Invoice, custrepo.Customer) {
	t.Helper()
	orgID := uuid.New()
	now := f.svc.now()

	cust := f.customers.add(custrepo.Customer{
		OrganizationID:  orgID,
		Name:            "Dana Smit",
		Email:           "dana@example.test",
		Timezone:        "UTC",
		PaymentBehavior: behavior,
	})
	inv := f.invoices.add(invrepo.Invoice{
		OrganizationID: orgID,
		CustomerID:     cust.ID,
		InvoiceNumber:  "INV-1001",
		DueDate:        now.AddDate(0, 0, -daysOverdue),
		AmountDueCents: 5000_00,
		Status:         invrepo.StatusOverdue,
		RiskLevel:      risk.LevelOverdue,
	})
	camp := f.campaigns.add(repository.Campaign{
		OrganizationID:    orgID,
		Name:              "Q2 collections",
		Status:            repository.StatusActive,
		MaxAttempts:       4,
		DaysBetweenEmails: 5,
		EscalateTone:      true,
		Stages:            standardLadder(),
		TargetInvoiceIDs:  []uuid.UUID{inv.ID},
	})
	return camp, inv, cust
}

// --- tests ---

// Full cycle walk-through: 20 days overdue, average payer, one prior attempt
// sent 6 days ago with cadence 5. The cycle must send immediately at the
// follow_up stage with a firm tone, and line up attempt number 3's check.
func TestCampaignCycleEndToEnd(t *testing.T) {
	f := newFixture(t)
	camp, inv, _ := f.seedCampaign(t, 20, risk.BehaviorAverage)

	f.emails.attempts[inv.ID] = 1
	f.emails.interactions[inv.ID] = &emaillog.Interaction{DaysSinceLastEmail: 6}

	res, err := f.svc.RunCampaignCycle(context.Background(), camp.ID)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Sent != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	if len(f.sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(f.sender.sent))
	}
	if !strings.Contains(f.sender.sent[0].Subject, "attention") {
		t.Fatalf("expected a firm-tone subject, got %q", f.sender.sent[0].Subject)
	}

	if len(f.emails.records) != 1 {
		t.Fatalf("logged %d emails, want 1", len(f.emails.records))
	}
	rec := f.emails.records[0]
	if rec.Stage == nil || *rec.Stage != "follow_up" {
		t.Fatalf("stage = %v, want follow_up", rec.Stage)
	}
	if rec.Tone == nil || *rec.Tone != "firm" {
		t.Fatalf("tone = %v, want firm", rec.Tone)
	}

	// Next follow-up scheduled at now + daysBetweenEmails.
	followUps := f.queue.pending(tasks.TypeFollowUp)
	if len(followUps) != 1 {
		t.Fatalf("pending follow-ups = %d, want 1", len(followUps))
	}
	wantNext := f.svc.now().AddDate(0, 0, 5)
	if !followUps[0].ScheduledFor.Equal(wantNext) {
		t.Fatalf("follow-up at %v, want %v", followUps[0].ScheduledFor, wantNext)
	}

	got, _ := f.campaigns.Get(context.Background(), camp.ID)
	if got.Stats.EmailsSent != 1 {
		t.Fatalf("emailsSent = %d, want 1", got.Stats.EmailsSent)
	}
}

func TestCampaignCycleDefersWhenCadenceNotMet(t *testing.T) {
	f := newFixture(t)
	camp, inv, _ := f.seedCampaign(t, 10, risk.BehaviorAverage)

	f.emails.attempts[inv.ID] = 1
	f.emails.interactions[inv.ID] = &emaillog.Interaction{DaysSinceLastEmail: 2}

	res, err := f.svc.RunCampaignCycle(context.Background(), camp.ID)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Scheduled != 1 || res.Sent != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	scheduled := f.queue.pending(tasks.TypeSendEmail)
	if len(scheduled) != 1 {
		t.Fatalf("pending sends = %d, want 1", len(scheduled))
	}
	// Gap of 3 days remaining, delivered at 10:00 local.
	want := time.Date(2026, time.June, 19, 10, 0, 0, 0, time.UTC)
	if !scheduled[0].ScheduledFor.Equal(want) {
		t.Fatalf("scheduled for %v, want %v", scheduled[0].ScheduledFor, want)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("nothing should have been sent")
	}
}

func TestCampaignCycleSkipsOptedOutCustomer(t *testing.T) {
	f := newFixture(t)
	camp, _, cust := f.seedCampaign(t, 20, risk.BehaviorAverage)
	f.customers.customers[cust.ID].StopContact = true

	res, err := f.svc.RunCampaignCycle(context.Background(), camp.ID)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Skipped != 1 || res.Sent != 0 || res.Scheduled != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Details[0].Reason != "customer opted out" {
		t.Fatalf("reason = %q", res.Details[0].Reason)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("opted-out customer must never be emailed")
	}
}

func TestCampaignCycleSkipsAtMaxAttempts(t *testing.T) {
	f := newFixture(t)
	camp, inv, _ := f.seedCampaign(t, 20, risk.BehaviorAverage)
	f.emails.attempts[inv.ID] = 4

	res, err := f.svc.RunCampaignCycle(context.Background(), camp.ID)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Details[0].Reason != "max attempts reached" {
		t.Fatalf("reason = %q", res.Details[0].Reason)
	}

	got, _ := f.campaigns.Get(context.Background(), camp.ID)
	if got.Status != repository.StatusActive {
		t.Fatalf("campaign status = %s, campaign must stay active for other invoices", got.Status)
	}
}

func TestCampaignCompletesOnlyWhenAllPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	camp, inv, cust := f.seedCampaign(t, 20, risk.BehaviorAverage)

	// Add a second unpaid invoice to the same campaign.
	inv2 := f.invoices.add(invrepo.Invoice{
		OrganizationID: camp.OrganizationID,
		CustomerID:     cust.ID,
		InvoiceNumber:  "INV-1002",
		DueDate:        f.svc.now().AddDate(0, 0, -20),
		AmountDueCents: 100_00,
		Status:         invrepo.StatusOverdue,
		RiskLevel:      risk.LevelOverdue,
	})
	f.campaigns.campaigns[camp.ID].TargetInvoiceIDs = []uuid.UUID{inv.ID, inv2.ID}

	f.invoices.markPaid(inv.ID)
	res, err := f.svc.RunCampaignCycle(ctx, camp.ID)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Completed {
		t.Fatal("campaign completed with an unpaid invoice remaining")
	}
	got, _ := f.campaigns.Get(ctx, camp.ID)
	if got.Status != repository.StatusActive {
		t.Fatalf("status = %s, want active", got.Status)
	}

	f.invoices.markPaid(inv2.ID)
	res, err = f.svc.RunCampaignCycle(ctx, camp.ID)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if !res.Completed {
		t.Fatal("campaign must complete once every invoice is paid")
	}
	got, _ = f.campaigns.Get(ctx, camp.ID)
	if got.Status != repository.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
}

func TestCampaignCycleIsolatesSendFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	camp, inv, _ := f.seedCampaign(t, 20, risk.BehaviorAverage)

	// Second invoice for another customer; the first send fails at SMTP.
	cust2 := f.customers.add(custrepo.Customer{
		OrganizationID:  camp.OrganizationID,
		Name:            "Eli Berg",
		Email:           "eli@example.test",
		Timezone:        "UTC",
		PaymentBehavior: risk.BehaviorAverage,
	})
	inv2 := f.invoices.add(invrepo.Invoice{
		OrganizationID: camp.OrganizationID,
		CustomerID:     cust2.ID,
		InvoiceNumber:  "INV-1003",
		DueDate:        f.svc.now().AddDate(0, 0, -20),
		AmountDueCents: 250_00,
		Status:         invrepo.StatusOverdue,
		RiskLevel:      risk.LevelOverdue,
	})
	f.campaigns.campaigns[camp.ID].TargetInvoiceIDs = []uuid.UUID{inv.ID, inv2.ID}

	f.sender.fail = true
	res, err := f.svc.RunCampaignCycle(ctx, camp.ID)
	if err != nil {
		t.Fatalf("cycle must not abort on per-invoice failure: %v", err)
	}
	if res.Failed != 2 || res.Processed != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	// Failed sends are logged as failed email rows.
	failedLogs := 0
	for _, rec := range f.emails.records {
		if rec.Status == emaillog.StatusFailed {
			failedLogs++
		}
	}
	if failedLogs != 2 {
		t.Fatalf("failed email logs = %d, want 2", failedLogs)
	}
}

func TestPauseCancelsPendingTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	camp, inv, _ := f.seedCampaign(t, 10, risk.BehaviorAverage)

	f.emails.attempts[inv.ID] = 1
	f.emails.interactions[inv.ID] = &emaillog.Interaction{DaysSinceLastEmail: 2}

	if _, err := f.svc.RunCampaignCycle(ctx, camp.ID); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(f.queue.pending(tasks.TypeSendEmail)) != 1 {
		t.Fatal("expected a scheduled send before pausing")
	}

	if err := f.svc.Pause(ctx, camp.OrganizationID, camp.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if len(f.queue.pending(tasks.TypeSendEmail)) != 0 {
		t.Fatal("pause must withdraw pending sends")
	}

	got, _ := f.campaigns.Get(ctx, camp.ID)
	if got.Status != repository.StatusPaused {
		t.Fatalf("status = %s, want paused", got.Status)
	}
}

func TestExecuteSendSkipsWhenCampaignPaused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	camp, inv, cust := f.seedCampaign(t, 20, risk.BehaviorAverage)
	f.campaigns.campaigns[camp.ID].Status = repository.StatusPaused

	task := &tasks.Task{
		ID:           uuid.New(),
		Type:         tasks.TypeSendEmail,
		CampaignID:   &camp.ID,
		InvoiceID:    &inv.ID,
		CustomerID:   &cust.ID,
		ScheduledFor: f.svc.now(),
	}
	result, retryable, err := f.svc.executeSend(ctx, task)
	if err != nil {
		t.Fatalf("executeSend: %v", err)
	}
	if retryable {
		t.Fatal("skip must not be retryable")
	}
	outcome, ok := result.(InvoiceOutcome)
	if !ok || outcome.Outcome != OutcomeSkipped {
		t.Fatalf("unexpected result: %#v", result)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("paused campaign must not send")
	}
}

func TestEscalateRaisesEveryStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	camp, _, _ := f.seedCampaign(t, 20, risk.BehaviorAverage)

	task := &tasks.Task{ID: uuid.New(), Type: tasks.TypeEscalate, CampaignID: &camp.ID}
	if _, _, err := f.svc.executeEscalate(ctx, task); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	got, _ := f.campaigns.Get(ctx, camp.ID)
	wantTones := []string{"professional", "firm", "urgent", "urgent"}
	for i, stage := range got.Stages {
		if string(stage.Tone) != wantTones[i] {
			t.Fatalf("stage %d tone = %s, want %s", i, stage.Tone, wantTones[i])
		}
	}
}

func TestPaymentCheckCompletesCampaign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	camp, inv, _ := f.seedCampaign(t, 20, risk.BehaviorAverage)

	// A pending follow-up exists, then the invoice gets paid.
	f.queue.Enqueue(ctx, camp.OrganizationID, tasks.TypeFollowUp, f.svc.now().AddDate(0, 0, 3),
		tasks.Payload{CampaignID: &camp.ID, InvoiceID: &inv.ID})
	f.invoices.markPaid(inv.ID)

	res, err := f.svc.RunPaymentCheckCycle(ctx)
	if err != nil {
		t.Fatalf("payment check: %v", err)
	}
	if res.NewlyPaid != 1 || res.CampaignsCompleted != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	got, _ := f.campaigns.Get(ctx, camp.ID)
	if got.Status != repository.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Stats.InvoicesPaid != 1 || got.Stats.AmountCollectedCents != 5000_00 {
		t.Fatalf("stats = %+v", got.Stats)
	}
	if len(f.queue.pending(tasks.TypeFollowUp)) != 0 {
		t.Fatal("paid invoice must have its pending tasks withdrawn")
	}
}

func TestAutoCreateCyclePicksUpUncoveredInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := uuid.New()

	cust := f.customers.add(custrepo.Customer{
		OrganizationID:  orgID,
		Name:            "Kim Vos",
		Email:           "kim@example.test",
		Timezone:        "UTC",
		PaymentBehavior: risk.BehaviorSlow,
	})
	f.invoices.add(invrepo.Invoice{
		OrganizationID: orgID,
		CustomerID:     cust.ID,
		InvoiceNumber:  "INV-2001",
		DueDate:        f.svc.now().AddDate(0, 0, -12),
		AmountDueCents: 800_00,
		Status:         invrepo.StatusOverdue,
		RiskLevel:      risk.LevelOverdue,
	})

	res, err := f.svc.RunAutoCreateCycle(ctx, orgID)
	if err != nil {
		t.Fatalf("auto create: %v", err)
	}
	if res.InvoicesFound != 1 || res.CampaignID == nil {
		t.Fatalf("unexpected result: %+v", res)
	}

	created, _ := f.campaigns.Get(ctx, *res.CampaignID)
	if created.Status != repository.StatusActive {
		t.Fatalf("auto-created campaign status = %s, want active", created.Status)
	}
	if len(created.Stages) != 4 || created.MaxAttempts != 4 {
		t.Fatalf("auto-created campaign not from standard preset: %+v", created)
	}
}
