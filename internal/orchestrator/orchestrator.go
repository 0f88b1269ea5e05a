package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"arbiscout/internal"
	"arbiscout/internal/config"
	"arbiscout/internal/currency"
	"arbiscout/internal/pipeline"
	"arbiscout/internal/platform"
)

// Store is the key-addressed persistence the orchestrator writes through at
// every state transition.
type Store interface {
	SaveTask(ctx context.Context, task internal.Task) error
	LoadTask(ctx context.Context, id string) (internal.Task, error)
	AppendHistory(ctx context.Context, taskID string, state internal.TaskState, at time.Time) error
	ListUnfinished(ctx context.Context) ([]internal.Task, error)
}

// Notifier receives at most one terminal notification per task.
type Notifier interface {
	OnCompleted(taskID string, report internal.Report)
	OnFailed(taskID string, summary string)
}

type activeRun struct {
	requesterID string
	reference   string
	cancel      context.CancelCauseFunc
}

// Orchestrator owns the task lifecycle: it sequences the pipeline stages,
// persists progress, bounds concurrency across tasks and guarantees
// at-most-once execution per submission.
type Orchestrator struct {
	cfg       config.Config
	store     Store
	extractor *pipeline.Extractor
	finder    *pipeline.Finder
	matcher   *pipeline.Matcher
	engine    *pipeline.Engine
	notifier  Notifier
	log       *slog.Logger

	sem        *semaphore.Weighted
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	active map[string]*activeRun // keyed by task id
	byRef  map[string]string     // reference -> active task id
}

func New(cfg config.Config, store Store, fetcher platform.Fetcher, searcher platform.Searcher, rates currency.Provider, notifier Notifier, log *slog.Logger) *Orchestrator {
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		extractor:  pipeline.NewExtractor(fetcher, cfg),
		finder:     pipeline.NewFinder(searcher, cfg),
		matcher:    pipeline.NewMatcher(cfg, rates),
		engine:     pipeline.NewEngine(cfg, rates),
		notifier:   notifier,
		log:        log,
		sem:        semaphore.NewWeighted(int64(poolSize)),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		active:     map[string]*activeRun{},
		byRef:      map[string]string{},
	}
}

// Submit creates a task for the reference and starts its pipeline in the
// background. A second submission for the same reference while the first is
// non-terminal is rejected. The reference is reserved before the task record
// is persisted: concurrent duplicates must never leave a second created
// record behind for the worker to pick up.
func (o *Orchestrator) Submit(ctx context.Context, reference, requesterID string) (string, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return "", fmt.Errorf("%w: empty reference", internal.ErrExtraction)
	}

	now := time.Now().UTC()
	task := internal.Task{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		Reference:   reference,
		State:       internal.StateCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	runCtx, cancel, err := o.reserve(task)
	if err != nil {
		return "", err
	}
	rollback := func() {
		o.release(task.ID, reference)
		cancel(nil)
	}

	// Stored non-terminal tasks survive a restart, so the in-memory
	// reservation alone is not enough.
	unfinished, err := o.store.ListUnfinished(ctx)
	if err != nil {
		rollback()
		return "", err
	}
	for _, existing := range unfinished {
		if existing.Reference == reference {
			rollback()
			return "", fmt.Errorf("%w: task %s", internal.ErrTaskAlreadyRunning, existing.ID)
		}
	}

	if err := o.store.SaveTask(ctx, task); err != nil {
		rollback()
		return "", err
	}
	if err := o.store.AppendHistory(ctx, task.ID, task.State, now); err != nil {
		rollback()
		return "", err
	}

	o.wg.Add(1)
	go o.execute(runCtx, task)
	return task.ID, nil
}

// StartStored begins executing an already-persisted task in the created
// state. Used by the worker loop to pick up submissions from storage.
func (o *Orchestrator) StartStored(task internal.Task) error {
	if task.State != internal.StateCreated {
		return fmt.Errorf("task %s is %s, not startable", task.ID, task.State)
	}
	runCtx, _, err := o.reserve(task)
	if err != nil {
		return err
	}
	o.wg.Add(1)
	go o.execute(runCtx, task)
	return nil
}

// reserve claims the task id and reference in the in-memory maps while
// holding the lock, so duplicate submissions collide before anything is
// persisted or spawned.
func (o *Orchestrator) reserve(task internal.Task) (context.Context, context.CancelCauseFunc, error) {
	runCtx, cancel := context.WithCancelCause(o.baseCtx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[task.ID]; ok {
		cancel(nil)
		return nil, nil, fmt.Errorf("%w: task %s", internal.ErrTaskAlreadyRunning, task.ID)
	}
	if runningID, ok := o.byRef[task.Reference]; ok {
		cancel(nil)
		return nil, nil, fmt.Errorf("%w: task %s", internal.ErrTaskAlreadyRunning, runningID)
	}
	o.active[task.ID] = &activeRun{requesterID: task.RequesterID, reference: task.Reference, cancel: cancel}
	o.byRef[task.Reference] = task.ID
	return runCtx, cancel, nil
}

func (o *Orchestrator) execute(runCtx context.Context, task internal.Task) {
	defer o.wg.Done()
	defer o.release(task.ID, task.Reference)

	if err := o.sem.Acquire(runCtx, 1); err != nil {
		o.finish(runCtx, &task, "queue", err)
		return
	}
	defer o.sem.Release(1)

	timeout := time.Duration(o.cfg.TaskTimeoutSec) * time.Second
	ctx, cancelTimeout := context.WithTimeout(runCtx, timeout)
	defer cancelTimeout()

	o.run(ctx, &task)
}

// run drives one task through the stage sequence. Stage order is fixed;
// cancellation is honored only at stage boundaries so an in-flight fetch
// never leaves a half-built descriptor behind.
func (o *Orchestrator) run(ctx context.Context, task *internal.Task) {
	if !o.advance(ctx, task, internal.StateExtracting) {
		return
	}
	var desc internal.ProductDescriptor
	err := o.withRetry(ctx, task.ID, "extract", func(stageCtx context.Context) error {
		d, err := o.extractor.Extract(stageCtx, task.Reference)
		if err == nil {
			desc = d
		}
		return err
	})
	if err != nil {
		o.finish(ctx, task, "extract", err)
		return
	}
	task.Descriptor = &desc

	if !o.advance(ctx, task, internal.StateSearching) {
		return
	}
	var candidates []internal.Candidate
	err = o.withRetry(ctx, task.ID, "search", func(stageCtx context.Context) error {
		found, err := o.finder.Find(stageCtx, desc)
		if err == nil {
			candidates = found
		}
		return err
	})
	if err != nil {
		o.finish(ctx, task, "search", err)
		return
	}

	if !o.advance(ctx, task, internal.StateMatching) {
		return
	}
	task.Entries = o.matcher.Rank(desc, candidates)

	if !o.advance(ctx, task, internal.StateCosting) {
		return
	}
	for i := range task.Entries {
		cost, err := o.engine.Compute(desc, task.Entries[i].Candidate)
		if err != nil {
			o.finish(ctx, task, "cost", err)
			return
		}
		task.Entries[i].Cost = &cost
	}

	if !o.advance(ctx, task, internal.StateFinalizing) {
		return
	}
	report := pipeline.Assemble(*task)

	if err := o.transition(task, internal.StateCompleted); err != nil {
		o.log.Error("failed to persist completion", "task_id", task.ID, "error", err)
		return
	}
	o.log.Info("task completed", "task_id", task.ID, "entries", len(task.Entries), "no_viable", report.NoViable)
	o.notifier.OnCompleted(task.ID, report)
}

// advance checks the boundary for cancellation or expiry, then moves the task
// into the next stage and persists the transition.
func (o *Orchestrator) advance(ctx context.Context, task *internal.Task, next internal.TaskState) bool {
	if ctx.Err() != nil {
		o.finish(ctx, task, "deadline", context.Cause(ctx))
		return false
	}
	// A cancel can land in storage from another process. Honor it here so the
	// boundary check works regardless of which process received the request.
	loadCtx, loadCancel := context.WithTimeout(ctx, 5*time.Second)
	stored, err := o.store.LoadTask(loadCtx, task.ID)
	loadCancel()
	if err == nil && stored.State == internal.StateCancelled {
		task.State = internal.StateCancelled
		o.log.Info("task cancelled externally", "task_id", task.ID)
		return false
	}
	if err := o.transition(task, next); err != nil {
		o.log.Error("failed to persist transition", "task_id", task.ID, "state", next, "error", err)
		return false
	}
	return true
}

// withRetry runs a network-bound stage with its own per-attempt timeout and
// bounded exponential backoff. Matching and costing never go through here:
// they are deterministic, so retrying cannot change the outcome.
func (o *Orchestrator) withRetry(ctx context.Context, taskID, stage string, fn func(context.Context) error) error {
	attempts := o.cfg.RetryCount
	if attempts < 1 {
		attempts = 1
	}
	stageTimeout := time.Duration(o.cfg.StageTimeoutSec) * time.Second

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		stageCtx, cancel := context.WithTimeout(ctx, stageTimeout)
		err := fn(stageCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		o.log.Warn("stage attempt failed", "task_id", taskID, "stage", stage, "attempt", attempt, "error", err)
		if attempt < attempts {
			delay := 500 * time.Millisecond << (attempt - 1)
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(delay):
			}
		}
	}
	return lastErr
}

// finish records a failed terminal state and emits the single failure
// notification with a user-safe summary. Raw diagnostics stay on the record.
// A requester cancel (ErrCancelled cause) ends in the cancelled terminal; a
// process shutdown leaves the task at its last persisted stage so a later
// worker start can surface it.
func (o *Orchestrator) finish(ctx context.Context, task *internal.Task, stage string, err error) {
	cause := context.Cause(ctx)
	if errors.Is(cause, internal.ErrCancelled) || errors.Is(err, internal.ErrCancelled) {
		o.cancelTask(task)
		return
	}
	if errors.Is(cause, context.Canceled) {
		o.log.Warn("shutdown interrupted task", "task_id", task.ID, "state", string(task.State), "stage", stage)
		return
	}
	kind := internal.KindOf(err)
	task.ErrKind = kind
	task.ErrDetail = fmt.Sprintf("stage=%s: %v", stage, err)
	if persistErr := o.transition(task, internal.StateFailed); persistErr != nil {
		o.log.Error("failed to persist failure", "task_id", task.ID, "error", persistErr)
	}
	o.log.Warn("task failed", "task_id", task.ID, "stage", stage, "kind", string(kind), "error", err)
	o.notifier.OnFailed(task.ID, internal.UserSummary(kind))
}

func (o *Orchestrator) cancelTask(task *internal.Task) {
	task.ErrKind = internal.KindCancelled
	task.ErrDetail = internal.ErrCancelled.Error()
	if err := o.transition(task, internal.StateCancelled); err != nil {
		o.log.Error("failed to persist cancellation", "task_id", task.ID, "error", err)
	}
	o.log.Info("task cancelled", "task_id", task.ID)
}

// transition applies a monotonic state change and writes it through. Uses a
// detached context so terminal states persist even after the run context is
// gone.
func (o *Orchestrator) transition(task *internal.Task, next internal.TaskState) error {
	if !task.State.CanAdvanceTo(next) {
		return fmt.Errorf("illegal transition %s -> %s for task %s", task.State, next, task.ID)
	}
	task.State = next
	task.UpdatedAt = time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.SaveTask(ctx, *task); err != nil {
		return err
	}
	return o.store.AppendHistory(ctx, task.ID, next, task.UpdatedAt)
}

// Cancel requests a cooperative abort. The task stops at the next stage
// boundary; an in-flight fetch is allowed to complete first.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) error {
	o.mu.Lock()
	run, ok := o.active[taskID]
	o.mu.Unlock()
	if ok {
		run.cancel(internal.ErrCancelled)
		return nil
	}

	task, err := o.store.LoadTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.State.Terminal() {
		return fmt.Errorf("task %s already %s", taskID, task.State)
	}
	// Stalled but not running here: mark it cancelled directly.
	o.cancelTask(&task)
	return nil
}

// Recost recomputes the landed costs of a completed task with the currently
// configured fee schedule and persists the refreshed entries. Matching is not
// redone: the accepted candidate set is part of the finished result.
func (o *Orchestrator) Recost(ctx context.Context, taskID string) (internal.Report, error) {
	task, err := o.store.LoadTask(ctx, taskID)
	if err != nil {
		return internal.Report{}, err
	}
	if task.State != internal.StateCompleted {
		return internal.Report{}, fmt.Errorf("task %s is %s, only completed tasks can be recosted", taskID, task.State)
	}
	if task.Descriptor == nil {
		return internal.Report{}, fmt.Errorf("task %s has no product descriptor", taskID)
	}

	for i := range task.Entries {
		cost, err := o.engine.Compute(*task.Descriptor, task.Entries[i].Candidate)
		if err != nil {
			return internal.Report{}, err
		}
		task.Entries[i].Cost = &cost
	}
	task.UpdatedAt = time.Now().UTC()
	if err := o.store.SaveTask(ctx, task); err != nil {
		return internal.Report{}, err
	}
	return pipeline.Assemble(task), nil
}

// Status returns a snapshot of the persisted task record.
func (o *Orchestrator) Status(ctx context.Context, taskID string) (internal.Task, error) {
	return o.store.LoadTask(ctx, taskID)
}

// ListActive returns the ids of this requester's currently running tasks.
func (o *Orchestrator) ListActive(requesterID string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.active))
	for id, run := range o.active {
		if run.requesterID == requesterID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (o *Orchestrator) release(taskID, reference string) {
	o.mu.Lock()
	delete(o.active, taskID)
	if o.byRef[reference] == taskID {
		delete(o.byRef, reference)
	}
	o.mu.Unlock()
}

// Close stops accepting work, cancels running tasks and waits for them to
// persist their terminal states.
func (o *Orchestrator) Close() {
	o.baseCancel()
	o.wg.Wait()
}
