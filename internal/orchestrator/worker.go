package orchestrator

import (
	"context"
	"errors"
	"time"

	"arbiscout/internal"
)

// WorkerStore extends Store with the pickup query the polling loop needs.
type WorkerStore interface {
	Store
	ListByState(ctx context.Context, state internal.TaskState, limit int) ([]internal.Task, error)
}

// RunWorker polls storage for freshly created tasks and hands them to the
// orchestrator. It blocks until ctx is done.
//
// On startup it surfaces tasks stranded mid-pipeline by an earlier process.
// Those are logged for the operator rather than silently re-run: a stage may
// already have produced side effects we cannot see.
func (o *Orchestrator) RunWorker(ctx context.Context, store WorkerStore) error {
	if err := o.surfaceStalled(ctx, store); err != nil {
		return err
	}

	poll := time.Duration(o.cfg.WorkerPollSec) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if err := o.pickup(ctx, store); err != nil {
			o.log.Error("worker poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) pickup(ctx context.Context, store WorkerStore) error {
	tasks, err := store.ListByState(ctx, internal.StateCreated, 50)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		err := o.StartStored(task)
		if errors.Is(err, internal.ErrTaskAlreadyRunning) {
			continue
		}
		if err != nil {
			o.log.Warn("could not start stored task", "task_id", task.ID, "error", err)
			continue
		}
		o.log.Info("picked up task", "task_id", task.ID, "reference", task.Reference)
	}
	return nil
}

func (o *Orchestrator) surfaceStalled(ctx context.Context, store WorkerStore) error {
	tasks, err := store.ListUnfinished(ctx)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if task.State == internal.StateCreated {
			continue
		}
		o.log.Warn("stalled task needs attention",
			"task_id", task.ID,
			"state", string(task.State),
			"updated_at", task.UpdatedAt,
		)
	}
	return nil
}
