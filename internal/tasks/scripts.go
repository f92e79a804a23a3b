package tasks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/paths"
	"github.com/conneroisu/assetforge/internal/pipeline"
	"github.com/conneroisu/assetforge/internal/plugins/js"
)

// ScriptsOptions configures the scripts task. A nil Linter disables
// linting.
type ScriptsOptions struct {
	Linter    js.Linter
	LintFatal bool
}

// Scripts lints each script, then writes name.js and name.min.js with
// source maps. TypeScript sources produce .js outputs.
type Scripts struct {
	base
	linter     js.Linter
	fatal      bool
	transpiler *js.Transpiler
}

// NewScripts creates the scripts task.
func NewScripts(pc paths.PathConfig, transpiler *js.Transpiler, opts ScriptsOptions, logger logging.Logger) *Scripts {
	return &Scripts{
		base:       newBase(paths.Scripts, pc, logger),
		linter:     opts.Linter,
		fatal:      opts.LintFatal,
		transpiler: transpiler,
	}
}

func (t *Scripts) lint(ctx context.Context, a pipeline.Asset) (pipeline.Asset, error) {
	if t.linter == nil {
		return a, nil
	}
	diags, err := t.linter.Lint(ctx, a.Source, a.Contents)
	if err != nil {
		return a, err
	}
	if len(diags) == 0 {
		return a, nil
	}

	lines := make([]string, len(diags))
	for i, d := range diags {
		lines[i] = d.String()
		t.logger.Warn(ctx, nil, "Lint finding", "file", a.Source, "line", d.Line, "column", d.Column, "message", d.Text)
	}
	if t.fatal {
		first := diags[0]
		return a, ferrors.NewTransformError(ferrors.ErrCodeLintFailed,
			fmt.Sprintf("%d lint finding(s): %s", len(diags), strings.Join(lines, "; ")), nil).
			WithLocation(a.Source, first.Line, first.Column)
	}
	return a, nil
}

func (t *Scripts) transpile(v variant) pipeline.StepFunc {
	return func(_ context.Context, a pipeline.Asset) (pipeline.Asset, error) {
		out, err := t.transpiler.Transpile(a.Contents, filepath.Base(a.Source), v.minify)
		if err != nil {
			return a, err
		}
		a.Contents, a.Map = out.Code, out.Map
		return a.WithExt(".js").WithSuffix(v.suffix), nil
	}
}

// Run implements Task.
func (t *Scripts) Run(ctx context.Context) (Result, error) {
	w := t.writer()
	linter := pipeline.Chain{}.Then("lint", t.lint)

	chains := make([]pipeline.Chain, len(variants))
	for i, v := range variants {
		chains[i] = pipeline.Chain{}.
			Then("transpile", t.transpile(v)).
			Then("sourcemap", func(_ context.Context, a pipeline.Asset) (pipeline.Asset, error) {
				return pipeline.LinkSourceMap(a), nil
			})
	}

	err := t.each(ctx, func(file string) error {
		a, err := t.read(file)
		if err != nil {
			return err
		}
		if a, err = linter.Run(ctx, a); err != nil {
			return err
		}
		for _, chain := range chains {
			out, err := chain.Run(ctx, a)
			if err != nil {
				return err
			}
			if err := w.Write(out); err != nil {
				return err
			}
		}
		return nil
	})
	return resultOf(w), err
}
