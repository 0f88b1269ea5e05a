package pipeline

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"arbiscout/internal"
)

func entryWithMarginPct(id string, pct int64) internal.ResultEntry {
	return internal.ResultEntry{
		Candidate: internal.Candidate{ListingID: id},
		Cost:      &internal.CostBreakdown{MarginPct: decimal.NewFromInt(pct)},
	}
}

func TestAssembleOrdersByMarginPct(t *testing.T) {
	desc := descriptorFixture(1000)
	task := internal.Task{
		ID:         "t1",
		Reference:  desc.SourceURL,
		Descriptor: &desc,
		Entries: []internal.ResultEntry{
			entryWithMarginPct("low", 12),
			entryWithMarginPct("high", 61),
			entryWithMarginPct("mid", 40),
		},
	}

	report := Assemble(task)
	require.False(t, report.NoViable)
	require.Equal(t, "t1", report.TaskID)
	require.Equal(t, desc, report.Descriptor)

	ids := []string{}
	for _, entry := range report.Entries {
		ids = append(ids, entry.Candidate.ListingID)
	}
	require.Equal(t, []string{"high", "mid", "low"}, ids)

	// The task's own entry order is untouched.
	require.Equal(t, "low", task.Entries[0].Candidate.ListingID)
}

func TestAssembleEmptyIsExplicit(t *testing.T) {
	report := Assemble(internal.Task{ID: "t2"})
	require.True(t, report.NoViable)
	require.Empty(t, report.Entries)
	require.False(t, report.GeneratedAt.IsZero())
}
