package scheduler

import (
	"context"
	"fmt"
	"time"

	campsvc "dunning_backend/internal/campaigns/service"
	invrepo "dunning_backend/internal/invoices/repository"
	"dunning_backend/internal/tasks"
	"dunning_backend/platform/config"
	"dunning_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Dispatcher drives the periodic outreach loops. It sweeps due scheduled
// tasks onto the job queue and runs the campaign, payment-check, and
// auto-create cycles on their configured intervals.
type Dispatcher struct {
	client    *asynq.Client
	queue     string
	tasks     *tasks.Repository
	invoices  *invrepo.Repo
	campaigns *campsvc.Service
	log       *logger.Logger

	batchSize     int
	sweepEvery    time.Duration
	cyclesEvery   time.Duration
	paymentsEvery time.Duration
	createEvery   time.Duration
}

func NewDispatcher(
	cfg config.SchedulerConfig,
	outreach config.OutreachConfig,
	pool *pgxpool.Pool,
	campaigns *campsvc.Service,
	log *logger.Logger,
) (*Dispatcher, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	d := &Dispatcher{
		client:        asynq.NewClient(opt),
		queue:         queue,
		tasks:         tasks.NewRepository(pool),
		invoices:      invrepo.New(pool),
		campaigns:     campaigns,
		log:           log,
		batchSize:     outreach.GetTaskBatchSize(),
		sweepEvery:    outreach.GetTaskSweepInterval(),
		cyclesEvery:   outreach.GetCampaignCycleInterval(),
		paymentsEvery: outreach.GetPaymentCheckInterval(),
		createEvery:   outreach.GetAutoCreateInterval(),
	}

	if d.batchSize < 1 {
		d.batchSize = 50
	}
	if d.sweepEvery <= 0 {
		d.sweepEvery = 30 * time.Second
	}
	if d.cyclesEvery <= 0 {
		d.cyclesEvery = 15 * time.Minute
	}
	if d.paymentsEvery <= 0 {
		d.paymentsEvery = time.Hour
	}
	if d.createEvery <= 0 {
		d.createEvery = 6 * time.Hour
	}

	return d, nil
}

func (d *Dispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil {
		return
	}

	sweep := time.NewTicker(d.sweepEvery)
	defer sweep.Stop()
	cycles := time.NewTicker(d.cyclesEvery)
	defer cycles.Stop()
	payments := time.NewTicker(d.paymentsEvery)
	defer payments.Stop()
	create := time.NewTicker(d.createEvery)
	defer create.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			d.sweepDueTasks(ctx)
		case <-cycles.C:
			d.runCampaignCycles(ctx)
		case <-payments.C:
			d.runPaymentCheck(ctx)
		case <-create.C:
			d.runAutoCreate(ctx)
		}
	}
}

// sweepDueTasks hands due pending tasks to the job queue. The worker claims
// each task before executing, so a task re-listed on the next sweep is safe
// to enqueue again.
func (d *Dispatcher) sweepDueTasks(ctx context.Context) {
	due, err := d.tasks.ListDue(ctx, time.Now(), d.batchSize)
	if err != nil {
		d.log.Warn("due task sweep failed", "error", err)
		return
	}

	for _, t := range due {
		task, err := NewOutreachTaskDueTask(OutreachTaskDuePayload{
			TaskID:         t.ID.String(),
			OrganizationID: t.OrganizationID.String(),
		})
		if err != nil {
			d.log.Warn("due task encode failed", "taskId", t.ID, "error", err)
			continue
		}

		_, err = d.client.EnqueueContext(ctx, task, asynq.ProcessAt(t.ScheduledFor), asynq.Queue(d.queue))
		if err != nil {
			d.log.Warn("due task enqueue failed", "taskId", t.ID, "error", err)
		}
	}
}

func (d *Dispatcher) runCampaignCycles(ctx context.Context) {
	if _, err := d.campaigns.RunAllCampaignCycles(ctx); err != nil {
		d.log.Error("campaign cycle run failed", "error", err)
	}
}

func (d *Dispatcher) runPaymentCheck(ctx context.Context) {
	if _, err := d.campaigns.RunPaymentCheckCycle(ctx); err != nil {
		d.log.Error("payment check cycle failed", "error", err)
	}
}

func (d *Dispatcher) runAutoCreate(ctx context.Context) {
	orgs, err := d.invoices.ListOrgsWithOverdue(ctx)
	if err != nil {
		d.log.Error("auto-create org listing failed", "error", err)
		return
	}

	for _, orgID := range orgs {
		if _, err := d.campaigns.RunAutoCreateCycle(ctx, orgID); err != nil {
			d.log.Error("auto-create cycle failed", "organizationId", orgID, "error", err)
		}
	}
}
