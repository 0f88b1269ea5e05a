package pipeline

import (
	"sort"
	"time"

	"arbiscout/internal"
)

// Assemble merges a task's accumulated triples into the report-ready result,
// ordered by margin percentage descending. An empty triple list produces an
// explicit "no viable analogs" report, never an error.
func Assemble(task internal.Task) internal.Report {
	entries := make([]internal.ResultEntry, len(task.Entries))
	copy(entries, task.Entries)

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Cost, entries[j].Cost
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.MarginPct.GreaterThan(b.MarginPct)
	})

	report := internal.Report{
		TaskID:      task.ID,
		RequesterID: task.RequesterID,
		Reference:   task.Reference,
		Entries:     entries,
		NoViable:    len(entries) == 0,
		GeneratedAt: time.Now().UTC(),
	}
	if task.Descriptor != nil {
		report.Descriptor = *task.Descriptor
	}
	return report
}
