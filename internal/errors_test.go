package internal

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "extraction", err: fmt.Errorf("%w: bad page", ErrExtraction), want: KindExtraction},
		{name: "search", err: fmt.Errorf("%w: reset", ErrSearch), want: KindSearch},
		{name: "cost config", err: ErrCostConfig, want: KindCostConfig},
		{name: "already running", err: ErrTaskAlreadyRunning, want: KindAlreadyRunning},
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "cancel cause", err: ErrCancelled, want: KindCancelled},
		{name: "plain context cancel", err: context.Canceled, want: KindCancelled},
		{name: "unknown", err: errors.New("boom"), want: KindInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

// A stage error can wrap both its stage sentinel and a context error. The
// context classification wins: the requester cares that it timed out, not
// which stage hosted the timeout.
func TestKindOfTimeoutInsideStageError(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrExtraction, context.DeadlineExceeded)
	if got := KindOf(err); got != KindTimeout {
		t.Fatalf("got %s want %s", got, KindTimeout)
	}
}

func TestUserSummaryNeverEmpty(t *testing.T) {
	kinds := []ErrorKind{
		KindExtraction, KindSearch, KindCostConfig, KindAlreadyRunning,
		KindTimeout, KindCancelled, KindInternal, ErrorKind("future"),
	}
	for _, kind := range kinds {
		if UserSummary(kind) == "" {
			t.Fatalf("empty summary for %s", kind)
		}
	}
}

func TestStateTransitions(t *testing.T) {
	if !StateCreated.CanAdvanceTo(StateExtracting) {
		t.Fatal("created must advance to extracting")
	}
	if !StateExtracting.CanAdvanceTo(StateFailed) {
		t.Fatal("failure must be reachable mid-pipeline")
	}
	if !StateCosting.CanAdvanceTo(StateCancelled) {
		t.Fatal("cancellation must be reachable mid-pipeline")
	}
	if StateExtracting.CanAdvanceTo(StateCreated) {
		t.Fatal("state progression must be monotonic")
	}
	if StateCompleted.CanAdvanceTo(StateFailed) {
		t.Fatal("terminal states accept no transitions")
	}
	if StateCancelled.CanAdvanceTo(StateCompleted) {
		t.Fatal("terminal states accept no transitions")
	}
}
