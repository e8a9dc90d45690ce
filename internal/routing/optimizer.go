package routing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sort"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"roundtrip-router/internal/models"
	"roundtrip-router/internal/oracle"
)

// SearchReport describes a finished search. Accepted is ranked best first.
type SearchReport struct {
	Constraints models.SearchConstraints `json:"constraints"`
	Diagnostics Diagnostics              `json:"diagnostics"`
	Accepted    []*models.Candidate      `json:"accepted"`
	Warnings    []string                 `json:"warnings"`
	Elapsed     time.Duration            `json:"elapsed"`
}

type evaluation struct {
	stub      Stub
	candidate *models.Candidate
	outcome   Outcome
	err       error
}

type optimizer struct {
	evaluator *Evaluator
}

// NewOptimizer creates the round-trip search driver
func NewOptimizer(o oracle.Oracle) RoundTripOptimizer {
	return &optimizer{evaluator: NewEvaluator(o)}
}

func (o *optimizer) Optimize(ctx context.Context, start models.Location, requestedMinutes float64, opts *Options) (*models.OptimizedRoute, error) {
	route, _, err := o.OptimizeWithReport(ctx, start, requestedMinutes, opts)
	return route, err
}

func (o *optimizer) OptimizeWithReport(ctx context.Context, start models.Location, requestedMinutes float64, opts *Options) (*models.OptimizedRoute, *SearchReport, error) {
	totalStart := time.Now()
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}

	log.Printf("[OPTIMIZER] state=%s start=(%.6f,%.6f) minutes=%.1f pace=%.2f tolerance=%.1f",
		StateInit, start.Lat, start.Lng, requestedMinutes, opts.PaceMinutesPerKm, opts.ToleranceMinutes)
	if err := validateRequest(start, requestedMinutes, *opts); err != nil {
		log.Printf("[OPTIMIZER] state=%s err=%v", StateFailed, err)
		return nil, nil, err
	}

	constraints := models.NewSearchConstraints(start, requestedMinutes, opts.ToleranceMinutes, opts.PaceMinutesPerKm)
	log.Printf("[OPTIMIZER] state=%s stubs=%d window=[%.2f, %.2f] target_km=%.3f",
		StateGenerating, opts.Sweep.Size(), constraints.LowerBoundMinutes, constraints.UpperBoundMinutes, constraints.TargetDistanceKm())

	evalStart := time.Now()
	log.Printf("[OPTIMIZER] state=%s fan_out=%d accept_cap=%d", StateEvaluating, opts.FanOut, opts.AcceptCap)
	run, err := o.sweep(ctx, constraints, *opts)
	if err != nil {
		log.Printf("[OPTIMIZER] state=%s err=%v", StateFailed, err)
		return nil, nil, err
	}
	evals := run.evals
	log.Printf("[TIMING] Evaluation: %v (attempts=%d recalibrations=%d)", time.Since(evalStart), len(evals), run.recalibrations)

	report := &SearchReport{
		Constraints: constraints,
		Diagnostics: summarize(evals),
		Accepted:    []*models.Candidate{},
		Warnings:    []string{},
	}
	report.Diagnostics.DetourRatio = run.detourRatio
	report.Diagnostics.Recalibrations = run.recalibrations

	accepted := lo.FilterMap(evals, func(e *evaluation, _ int) (*models.Candidate, bool) {
		return e.candidate, e.outcome == OutcomeAccepted
	})
	if len(accepted) == 0 {
		report.Elapsed = time.Since(totalStart)
		log.Printf("[OPTIMIZER] state=%s reason=%q attempts=%d too_short=%d too_long=%d oracle_errors=%d",
			StateFailed, report.Diagnostics.Reason, report.Diagnostics.Attempts,
			report.Diagnostics.TooShort, report.Diagnostics.TooLong, report.Diagnostics.OracleErrors)
		return nil, report, &ErrNoRouteFound{Diagnostics: report.Diagnostics}
	}

	log.Printf("[OPTIMIZER] state=%s accepted=%d", StateRanking, len(accepted))
	for _, c := range accepted {
		c.Score = Score(c, constraints, opts.Weights)
	}
	// Stable sort keeps sweep order between equal scores
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Score < accepted[j].Score
	})
	report.Accepted = accepted

	for _, c := range accepted {
		route := toRoute(constraints.StartLocation, c)
		result := Validate(route, constraints)
		if !result.IsValid {
			log.Printf("[OPTIMIZER] Candidate %d rejected by validator: %v", c.Index, result.Errors)
			continue
		}
		report.Warnings = result.Warnings
		report.Elapsed = time.Since(totalStart)
		log.Printf("[OPTIMIZER] state=%s winner=%d shape=%s bearing=%.0f scale=%.2f distance=%.3fkm duration=%.2fmin score=%.3f fallback=%v",
			StateDone, c.Index, c.Shape, c.Bearing, c.Scale, c.TotalDistanceKm, c.EstimatedDurationMinutes, c.Score, c.FallbackUsed)
		log.Printf("[TIMING] TOTAL: %v", report.Elapsed)
		return route, report, nil
	}

	report.Diagnostics.Reason = "no accepted candidate passed validation"
	report.Diagnostics.Suggestion = "retry with a wider tolerance"
	report.Elapsed = time.Since(totalStart)
	log.Printf("[OPTIMIZER] state=%s reason=%q", StateFailed, report.Diagnostics.Reason)
	return nil, report, &ErrNoRouteFound{Diagnostics: report.Diagnostics}
}

type sweepRun struct {
	evals          []*evaluation
	detourRatio    float64
	recalibrations int
}

// sweep walks the grid one ring of bearings at a time. Every ring is placed
// with the detour ratio observed so far. A ring with no acceptance whose
// results moved the ratio by more than half the window is placed again and
// rerun once. Rings run to completion before the next is placed, so the
// outcome stays independent of FanOut.
func (o *optimizer) sweep(ctx context.Context, c models.SearchConstraints, opts Options) (*sweepRun, error) {
	grid := opts.Sweep.grid()
	ring := len(opts.Sweep.Bearings)
	halfWindow := halfWindowFraction(c)
	cal := NewCalibration(c.StartLocation)

	run := &sweepRun{}
	accepted := 0
	budgetLeft := func() bool {
		return opts.Sweep.MaxAttempts == 0 || len(run.evals) < opts.Sweep.MaxAttempts
	}

	for next := 0; next < len(grid) && budgetLeft(); next += ring {
		slots := grid[next:min(next+ring, len(grid))]
		shape := slots[0].Shape

		for rerun := false; ; rerun = true {
			ratio := cal.Ratio(shape)
			stubs := make([]Stub, 0, len(slots))
			for _, slot := range slots {
				if opts.Sweep.MaxAttempts > 0 && len(run.evals)+len(stubs) >= opts.Sweep.MaxAttempts {
					break
				}
				slot.Index = len(run.evals) + len(stubs)
				stubs = append(stubs, Place(c, slot, ratio))
			}
			if len(stubs) == 0 {
				break
			}

			results, err := o.search(ctx, c, stubs, opts.AcceptCap-accepted, opts.FanOut)
			if err != nil {
				return nil, err
			}
			run.evals = append(run.evals, results...)

			ringAccepted := 0
			for _, e := range results {
				if e.outcome == OutcomeAccepted {
					ringAccepted++
				}
				cal.Observe(e.candidate)
			}
			accepted += ringAccepted
			if cal.Samples() > 0 {
				run.detourRatio = cal.Ratio(shape)
			}
			if accepted >= opts.AcceptCap {
				log.Printf("[OPTIMIZER] Accept cap %d reached after %d attempts", opts.AcceptCap, len(run.evals))
				return run, nil
			}

			if rerun || ringAccepted > 0 || !drifted(ratio, cal.Ratio(shape), halfWindow) {
				break
			}
			run.recalibrations++
			log.Printf("[OPTIMIZER] Recalibrating %s ring scale=%.2f: detour %.3f -> %.3f (samples=%d)",
				shape, slots[0].Scale, ratio, run.detourRatio, cal.Samples())
		}
	}
	return run, nil
}

// search evaluates stubs with bounded concurrency and returns the results of
// the longest completed prefix. Once that prefix holds acceptCap accepted
// candidates the remaining work is cancelled, so the outcome does not depend
// on completion order.
func (o *optimizer) search(ctx context.Context, c models.SearchConstraints, stubs []Stub, acceptCap, fanOut int) ([]*evaluation, error) {
	searchCtx, stop := context.WithCancel(ctx)
	defer stop()

	results := make([]*evaluation, len(stubs))
	done := make(chan int, len(stubs))

	g, gctx := errgroup.WithContext(searchCtx)
	g.SetLimit(fanOut)
	go func() {
		for i := range stubs {
			if gctx.Err() != nil {
				break
			}
			i := i
			g.Go(func() error {
				results[i] = o.evaluate(gctx, c, stubs[i])
				done <- i
				return nil
			})
		}
		g.Wait()
		close(done)
	}()

	completed := make([]bool, len(stubs))
	prefix, accepted := 0, 0
	capReached := false
	for i := range done {
		completed[i] = true
		for !capReached && prefix < len(stubs) && completed[prefix] {
			if results[prefix].outcome == OutcomeAccepted {
				accepted++
			}
			prefix++
			if accepted >= acceptCap {
				capReached = true
				stop()
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, &ErrCancelled{Err: err}
	}
	return results[:prefix], nil
}

func (o *optimizer) evaluate(ctx context.Context, c models.SearchConstraints, stub Stub) *evaluation {
	cand, err := o.evaluator.Evaluate(ctx, c, stub)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return &evaluation{stub: stub, outcome: OutcomeCancelled, err: err}
		}
		log.Printf("[OPTIMIZER] Candidate %d (%s bearing=%.0f scale=%.2f) skipped: %v", stub.Index, stub.Shape, stub.Bearing, stub.Scale, err)
		return &evaluation{stub: stub, outcome: OutcomeOracleError, err: err}
	}

	outcome := OutcomeAccepted
	switch {
	case cand.EstimatedDurationMinutes < c.LowerBoundMinutes:
		outcome = OutcomeTooShort
	case cand.EstimatedDurationMinutes > c.UpperBoundMinutes:
		outcome = OutcomeTooLong
	}
	log.Printf("[OPTIMIZER] Candidate %d shape=%s bearing=%.0f scale=%.2f duration=%.2fmin fallback=%v outcome=%s",
		stub.Index, stub.Shape, stub.Bearing, stub.Scale, cand.EstimatedDurationMinutes, cand.FallbackUsed, outcome)
	return &evaluation{stub: stub, candidate: cand, outcome: outcome}
}

func summarize(evals []*evaluation) Diagnostics {
	d := Diagnostics{Attempts: len(evals)}
	for _, e := range evals {
		switch e.outcome {
		case OutcomeAccepted:
			d.Accepted++
		case OutcomeTooShort:
			d.TooShort++
		case OutcomeTooLong:
			d.TooLong++
		case OutcomeOracleError:
			d.OracleErrors++
		}
		if e.candidate != nil {
			d.FallbackLegs += lo.CountBy(e.candidate.Segments, func(s models.Segment) bool { return s.FallbackUsed })
		}
	}

	switch {
	case d.Accepted > 0:
	case d.Attempts == 0:
		d.Reason = "sweep produced no candidates"
		d.Suggestion = "widen the sweep policy"
	case d.TooLong == d.Attempts:
		d.Reason = "all attempts exceeded requested time"
		d.Suggestion = "try a longer duration"
	case d.TooShort == d.Attempts:
		d.Reason = "all attempts fell short of requested time"
		d.Suggestion = "try a shorter duration"
	case d.OracleErrors == d.Attempts:
		d.Reason = "all attempts failed at the routing service"
		d.Suggestion = "retry later or enable the straight-line fallback"
	default:
		d.Reason = fmt.Sprintf("no attempt landed in the window (%d too short, %d too long, %d routing errors)",
			d.TooShort, d.TooLong, d.OracleErrors)
		d.Suggestion = "try a wider tolerance"
	}
	return d
}

func toRoute(start models.Location, c *models.Candidate) *models.OptimizedRoute {
	return &models.OptimizedRoute{
		StartLocation:            start,
		Waypoints:                slices.Clone(c.Waypoints),
		Path:                     slices.Clone(c.Path),
		TotalDistanceKm:          c.TotalDistanceKm,
		EstimatedDurationMinutes: c.EstimatedDurationMinutes,
		Shape:                    c.Shape,
		FallbackUsed:             c.FallbackUsed,
		Score:                    c.Score,
	}
}
