package build

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/paths"
	"github.com/conneroisu/assetforge/internal/tasks"
)

// Report summarizes one build or run.
type Report struct {
	ID       string
	Results  map[paths.Category]tasks.Result
	Duration time.Duration
}

// Written returns the number of files written across all tasks.
func (r Report) Written() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Written)
	}
	return n
}

// Orchestrator runs task runners as one build.
type Orchestrator struct {
	paths   paths.PathConfig
	runners map[paths.Category]*tasks.Runner
	order   []paths.Category
	logger  logging.Logger
}

// NewOrchestrator creates an orchestrator over runners. Runners are keyed
// by category; the reporting order is the fixed category order.
func NewOrchestrator(pc paths.PathConfig, runners []*tasks.Runner, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Discard()
	}
	byCategory := make(map[paths.Category]*tasks.Runner, len(runners))
	for _, r := range runners {
		byCategory[r.Category()] = r
	}

	var order []paths.Category
	for _, c := range paths.All() {
		if _, ok := byCategory[c]; ok {
			order = append(order, c)
		}
	}

	return &Orchestrator{
		paths:   pc,
		runners: byCategory,
		order:   order,
		logger:  logger.WithComponent("build"),
	}
}

// Paths returns the layout the orchestrator builds.
func (o *Orchestrator) Paths() paths.PathConfig { return o.paths }

// Categories returns the categories with a runner, in reporting order.
func (o *Orchestrator) Categories() []paths.Category {
	return append([]paths.Category(nil), o.order...)
}

// Runner returns the runner of a category.
func (o *Orchestrator) Runner(c paths.Category) (*tasks.Runner, bool) {
	r, ok := o.runners[c]
	return r, ok
}

// Build cleans the build root, then runs every task concurrently. It
// returns a *errors.BuildFailure naming the failed categories when any task
// fails; a failed task never stops its siblings.
func (o *Orchestrator) Build(ctx context.Context) (Report, error) {
	if err := Clean(o.paths.BuildRoot); err != nil {
		return Report{}, err
	}
	return o.run(ctx, "build", o.order)
}

// Run runs the named tasks without cleaning. No categories means all.
func (o *Orchestrator) Run(ctx context.Context, categories ...paths.Category) (Report, error) {
	if len(categories) == 0 {
		return o.run(ctx, "run", o.order)
	}

	want := make(map[paths.Category]bool, len(categories))
	for _, c := range categories {
		if _, ok := o.runners[c]; !ok {
			return Report{}, ferrors.NewConfigError(ferrors.ErrCodeConfigInvalid,
				fmt.Sprintf("no task for category %q", c))
		}
		want[c] = true
	}

	var selected []paths.Category
	for _, c := range o.order {
		if want[c] {
			selected = append(selected, c)
		}
	}
	return o.run(ctx, "run", selected)
}

func (o *Orchestrator) run(ctx context.Context, op string, categories []paths.Category) (Report, error) {
	report := Report{ID: uuid.NewString(), Results: make(map[paths.Category]tasks.Result, len(categories))}
	perf := logging.StartOperation(o.logger.With("build_id", report.ID), op)
	perf.Info(ctx, "Starting tasks", "tasks", strings.Join(paths.Names(categories), ","))

	results := make([]tasks.Result, len(categories))
	collector := ferrors.NewCollector()

	var g errgroup.Group
	for i, c := range categories {
		i, c := i, c
		runner := o.runners[c]
		g.Go(func() error {
			res, err := runner.Run(ctx)
			results[i] = res
			collector.Add(string(c), err)
			return nil
		})
	}
	_ = g.Wait()

	for i, c := range categories {
		report.Results[c] = results[i]
	}
	report.Duration = perf.Elapsed()

	if err := collector.Failure(paths.Names(o.order)); err != nil {
		perf.EndWithError(ctx, err, "written", report.Written())
		return report, err
	}
	perf.End(ctx, "written", report.Written())
	return report, nil
}
