package routing

import (
	"context"
	"fmt"

	"roundtrip-router/internal/models"
)

// RoundTripOptimizer proposes a closed-loop route of a requested duration
type RoundTripOptimizer interface {
	Optimize(ctx context.Context, start models.Location, requestedMinutes float64, opts *Options) (*models.OptimizedRoute, error)
	OptimizeWithReport(ctx context.Context, start models.Location, requestedMinutes float64, opts *Options) (*models.OptimizedRoute, *SearchReport, error)
}

// SearchState names the phases of one optimization call
type SearchState string

const (
	StateInit       SearchState = "init"
	StateGenerating SearchState = "generating"
	StateEvaluating SearchState = "evaluating"
	StateRanking    SearchState = "ranking"
	StateDone       SearchState = "done"
	StateFailed     SearchState = "failed"
)

// Outcome records what happened to one evaluated stub
type Outcome string

const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeTooShort    Outcome = "too_short"
	OutcomeTooLong     Outcome = "too_long"
	OutcomeOracleError Outcome = "oracle_error"
	OutcomeCancelled   Outcome = "cancelled"
)

// ErrInvalidInput is returned before any search when the request cannot be served
type ErrInvalidInput struct {
	Field  string
	Reason string
}

func (e *ErrInvalidInput) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// ErrLegUnresolvable is returned by the evaluator when a candidate's only
// required leg cannot be resolved. The driver skips the candidate.
type ErrLegUnresolvable struct {
	Index  int
	Reason string
	Err    error
}

func (e *ErrLegUnresolvable) Error() string {
	return fmt.Sprintf("leg unresolvable for candidate %d: %s", e.Index, e.Reason)
}

func (e *ErrLegUnresolvable) Unwrap() error {
	return e.Err
}

// Diagnostics summarizes why a search ended the way it did
type Diagnostics struct {
	Attempts     int    `json:"attempts"`
	Accepted     int    `json:"accepted"`
	TooShort     int    `json:"too_short"`
	TooLong      int    `json:"too_long"`
	OracleErrors int    `json:"oracle_errors"`
	FallbackLegs int    `json:"fallback_legs"`
	// DetourRatio is routed distance ÷ planned straight-line distance as
	// last observed; 0 when nothing resolved
	DetourRatio    float64 `json:"detour_ratio,omitempty"`
	Recalibrations int     `json:"recalibrations"`
	Reason         string  `json:"reason,omitempty"`
	Suggestion     string  `json:"suggestion,omitempty"`
}

// ErrNoRouteFound is returned when the sweep ends without an accepted candidate
type ErrNoRouteFound struct {
	Diagnostics Diagnostics
}

func (e *ErrNoRouteFound) Error() string {
	return fmt.Sprintf("no route found: %s", e.Diagnostics.Reason)
}

// ErrCancelled is returned when the caller's context ends before a winner is selected
type ErrCancelled struct {
	Err error
}

func (e *ErrCancelled) Error() string {
	return fmt.Sprintf("optimization cancelled: %v", e.Err)
}

func (e *ErrCancelled) Unwrap() error {
	return e.Err
}
