// Package tasks holds one build task per asset category and the Runner that
// drives a task's lifecycle.
package tasks

import (
	"context"
	"errors"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/paths"
	"github.com/conneroisu/assetforge/internal/pipeline"
)

// Result lists the outputs of one run, relative to the build root.
type Result struct {
	Written []string
	// Changed is the subset of Written whose contents differ from what was
	// on disk before the run.
	Changed []string
}

// Task builds every source of one category.
type Task interface {
	Category() paths.Category
	Run(ctx context.Context) (Result, error)
}

// base carries what every task needs.
type base struct {
	category paths.Category
	paths    paths.PathConfig
	logger   logging.Logger
}

func newBase(c paths.Category, pc paths.PathConfig, logger logging.Logger) base {
	if logger == nil {
		logger = logging.Discard()
	}
	return base{
		category: c,
		paths:    pc,
		logger:   logger.WithComponent("task").With("category", string(c)),
	}
}

// Category implements Task.
func (b base) Category() paths.Category { return b.category }

func (b base) writer() *pipeline.Writer {
	return pipeline.NewWriter(b.paths.BuildRoot, b.paths.OutputDir(b.category))
}

func (b base) read(file string) (pipeline.Asset, error) {
	return pipeline.Read(file, b.paths.Base(b.category, file))
}

// each runs fn for every source file and joins the failures, so one broken
// file does not keep the others from being written.
func (b base) each(ctx context.Context, fn func(file string) error) error {
	files, err := b.paths.Collect(b.category)
	if err != nil {
		return err
	}

	var errs []error
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(file); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func resultOf(w *pipeline.Writer) Result {
	return Result{Written: w.Written(), Changed: w.Changed()}
}

// contentStep lifts a contents transform into a chain step. Plain errors
// become transform errors.
func contentStep(what string, fn func([]byte) ([]byte, error)) pipeline.StepFunc {
	return func(_ context.Context, a pipeline.Asset) (pipeline.Asset, error) {
		out, err := fn(a.Contents)
		if err != nil {
			var fe *ferrors.ForgeError
			if !errors.As(err, &fe) {
				err = ferrors.NewTransformError(ferrors.ErrCodeCompileFailed, what, err).WithFile(a.Source)
			}
			return a, err
		}
		a.Contents = out
		return a, nil
	}
}

// variant is one output flavour of a compiled source.
type variant struct {
	suffix string
	minify bool
}

var variants = []variant{{suffix: ""}, {suffix: ".min", minify: true}}
