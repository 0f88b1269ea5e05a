package internal

import (
	"context"
	"errors"
)

// ErrorKind is the failure taxonomy persisted on failed tasks.
type ErrorKind string

const (
	KindExtraction     ErrorKind = "extraction"
	KindSearch         ErrorKind = "search"
	KindCostConfig     ErrorKind = "cost_config"
	KindAlreadyRunning ErrorKind = "already_running"
	KindTimeout        ErrorKind = "timeout"
	KindCancelled      ErrorKind = "cancelled"
	KindInternal       ErrorKind = "internal"
)

var (
	// ErrExtraction is returned when the source reference is unrecognized or
	// required product fields cannot be parsed.
	ErrExtraction = errors.New("source extraction failed")

	// ErrSearch is returned on trading-platform transport failure. Zero
	// search results is not an error.
	ErrSearch = errors.New("candidate search failed")

	// ErrCostConfig is returned when required cost rates are missing or
	// non-positive.
	ErrCostConfig = errors.New("invalid cost configuration")

	// ErrTaskAlreadyRunning is returned on a duplicate submission while the
	// first task is still non-terminal.
	ErrTaskAlreadyRunning = errors.New("task already running for this reference")

	// ErrTaskNotFound is returned when no task exists for the given id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrCancelled is the cause recorded when a task is cancelled on request.
	ErrCancelled = errors.New("task cancelled")
)

// KindOf classifies an error into the persisted taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrExtraction):
		return KindExtraction
	case errors.Is(err, ErrSearch):
		return KindSearch
	case errors.Is(err, ErrCostConfig):
		return KindCostConfig
	case errors.Is(err, ErrTaskAlreadyRunning):
		return KindAlreadyRunning
	default:
		return KindInternal
	}
}

// UserSummary maps an error kind to the short, non-technical text shown to
// the requester. Raw diagnostics stay in the persisted task record.
func UserSummary(kind ErrorKind) string {
	switch kind {
	case KindExtraction:
		return "could not read that product link"
	case KindSearch:
		return "the wholesale platform did not respond"
	case KindCostConfig:
		return "no cost data available"
	case KindAlreadyRunning:
		return "already processing this request"
	case KindTimeout:
		return "the request took too long and was stopped"
	case KindCancelled:
		return "processing was cancelled"
	default:
		return "something went wrong while processing the request"
	}
}
