package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dunning_backend/platform/apperr"
	"dunning_backend/platform/logger"
)

// ExecutorFunc runs one claimed task and returns a result payload to store on
// the task row. A returned error fails the task; retryable signals whether a
// retry could have a different outcome.
type ExecutorFunc func(ctx context.Context, task *Task) (result any, retryable bool, err error)

// Store is the persistence surface the service needs. *Repository satisfies
// it; tests use an in-memory implementation.
type Store interface {
	Enqueue(ctx context.Context, organizationID uuid.UUID, taskType Type, scheduledFor time.Time, p Payload) (*Task, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Task, error)
	ClaimByID(ctx context.Context, id uuid.UUID) (*Task, error)
	Complete(ctx context.Context, id uuid.UUID, result any) error
	Fail(ctx context.Context, id uuid.UUID, execErr error, retryable bool) error
	CancelByCampaign(ctx context.Context, campaignID uuid.UUID) (int, error)
	CancelByInvoice(ctx context.Context, invoiceID uuid.UUID) (int, error)
	CancelByCustomer(ctx context.Context, customerID uuid.UUID) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*Task, error)
}

// CycleResult summarizes one sweep of the due-task queue.
type CycleResult struct {
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Details   []TaskOutcome `json:"details,omitempty"`
}

// TaskOutcome is the per-task line item inside a cycle result.
type TaskOutcome struct {
	TaskID uuid.UUID `json:"taskId"`
	Type   Type      `json:"type"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
}

// Service claims due tasks and dispatches them to registered executors.
type Service struct {
	store     Store
	log       *logger.Logger
	batchSize int

	mu        sync.RWMutex
	executors map[Type]ExecutorFunc
}

// NewService creates the task service. Executors are registered afterwards,
// during wiring, to keep campaign logic out of this package.
func NewService(store Store, log *logger.Logger, batchSize int) *Service {
	return &Service{
		store:     store,
		log:       log,
		batchSize: batchSize,
		executors: make(map[Type]ExecutorFunc),
	}
}

// Register binds an executor to a task type. Later registrations for the
// same type replace earlier ones.
func (s *Service) Register(taskType Type, fn ExecutorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executors[taskType] = fn
}

// Enqueue schedules a task for later execution. The type check is against
// the known task types, not registered executors: the API process enqueues
// tasks it never executes itself.
func (s *Service) Enqueue(ctx context.Context, organizationID uuid.UUID, taskType Type, scheduledFor time.Time, p Payload) (*Task, error) {
	switch taskType {
	case TypeSendEmail, TypeCheckPayment, TypeFollowUp, TypeEscalate, TypePauseCampaign, TypeResumeCampaign:
	default:
		return nil, apperr.Validation(fmt.Sprintf("unknown task type %q", taskType))
	}
	return s.store.Enqueue(ctx, organizationID, taskType, scheduledFor, p)
}

// RunTaskCycle claims one batch of due tasks and executes them sequentially.
// maxBatch caps the claim; zero or negative falls back to the configured
// batch size. A failing task is recorded and the cycle moves on; one bad
// task never stalls the rest of the queue.
func (s *Service) RunTaskCycle(ctx context.Context, now time.Time, maxBatch int) (*CycleResult, error) {
	limit := s.batchSize
	if maxBatch > 0 {
		limit = maxBatch
	}
	claimed, err := s.store.ClaimDue(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("run task cycle: %w", err)
	}
	s.log.WithContext(ctx).TaskClaim(len(claimed), limit)

	result := &CycleResult{}
	for _, task := range claimed {
		outcome := s.execute(ctx, task)
		result.Processed++
		if outcome.OK {
			result.Succeeded++
		} else {
			result.Failed++
		}
		result.Details = append(result.Details, outcome)
	}

	s.log.WithContext(ctx).CycleSummary("tasks", result.Processed, result.Succeeded, result.Failed)
	return result, nil
}

// ExecuteByID claims and executes a single task, used by the queue worker
// when a due-task wake-up arrives. A task that was already claimed by a
// concurrent sweep is not an error.
func (s *Service) ExecuteByID(ctx context.Context, id uuid.UUID) error {
	task, err := s.store.ClaimByID(ctx, id)
	if err != nil {
		if apperr.GetKind(err) == apperr.KindNotFound {
			return nil
		}
		return err
	}

	outcome := s.execute(ctx, task)
	if !outcome.OK {
		return fmt.Errorf("task %s failed: %s", id, outcome.Error)
	}
	return nil
}

// CancelForCampaign cancels every pending task belonging to a campaign.
func (s *Service) CancelForCampaign(ctx context.Context, campaignID uuid.UUID) (int, error) {
	return s.store.CancelByCampaign(ctx, campaignID)
}

// CancelForInvoice cancels every pending task referencing an invoice.
func (s *Service) CancelForInvoice(ctx context.Context, invoiceID uuid.UUID) (int, error) {
	return s.store.CancelByInvoice(ctx, invoiceID)
}

// CancelForCustomer cancels every pending task referencing a customer.
func (s *Service) CancelForCustomer(ctx context.Context, customerID uuid.UUID) (int, error) {
	return s.store.CancelByCustomer(ctx, customerID)
}

// ListByCampaign exposes a campaign's task history.
func (s *Service) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*Task, error) {
	return s.store.ListByCampaign(ctx, campaignID)
}

// execute runs one already-claimed task and records its terminal state. The
// claim guarantees we are the only executor for this task.
func (s *Service) execute(ctx context.Context, task *Task) TaskOutcome {
	outcome := TaskOutcome{TaskID: task.ID, Type: task.Type}

	s.mu.RLock()
	fn, ok := s.executors[task.Type]
	s.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("no executor registered for task type %q", task.Type)
		if ferr := s.store.Fail(ctx, task.ID, err, false); ferr != nil {
			s.log.WithContext(ctx).DatabaseError("tasks.fail", ferr)
		}
		outcome.Error = err.Error()
		return outcome
	}

	result, retryable, err := fn(ctx, task)
	if err != nil {
		if ferr := s.store.Fail(ctx, task.ID, err, retryable); ferr != nil {
			s.log.WithContext(ctx).DatabaseError("tasks.fail", ferr)
		}
		outcome.Error = err.Error()
		return outcome
	}

	if err := s.store.Complete(ctx, task.ID, result); err != nil {
		s.log.WithContext(ctx).DatabaseError("tasks.complete", err)
		outcome.Error = err.Error()
		return outcome
	}
	outcome.OK = true
	return outcome
}
