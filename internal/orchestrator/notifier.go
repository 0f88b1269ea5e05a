package orchestrator

import (
	"log/slog"

	"arbiscout/internal"
)

// LogNotifier writes terminal notifications to the structured log. It is the
// delivery channel for headless runs; interactive frontends plug in their own
// Notifier.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) OnCompleted(taskID string, report internal.Report) {
	n.Log.Info("report ready",
		"task_id", taskID,
		"entries", len(report.Entries),
		"no_viable", report.NoViable,
	)
}

func (n LogNotifier) OnFailed(taskID string, summary string) {
	n.Log.Warn("task did not finish", "task_id", taskID, "summary", summary)
}
