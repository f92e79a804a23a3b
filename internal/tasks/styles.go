package tasks

import (
	"context"
	"path"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/paths"
	"github.com/conneroisu/assetforge/internal/pipeline"
	"github.com/conneroisu/assetforge/internal/plugins/css"
)

// Compiler turns a stylesheet source into CSS.
type Compiler interface {
	Compile(ctx context.Context, source string, contents []byte) ([]byte, error)
}

// StylesOptions configures the styles task.
type StylesOptions struct {
	Targets    []api.Engine
	GroupMedia bool
	// WebPCSS adds .webp and .no-webp variants of background image rules.
	WebPCSS bool
}

// Styles compiles each entry stylesheet into name.css and name.min.css,
// each with a source map. A map embedded in the compiler output is carried
// through every step, so the written maps point at the stylesheet sources.
type Styles struct {
	base
	compile  pipeline.Chain
	prefixer *css.Prefixer
}

// NewStyles creates the styles task.
func NewStyles(pc paths.PathConfig, compiler Compiler, opts StylesOptions, logger logging.Logger) *Styles {
	b := newBase(paths.Styles, pc, logger)
	chain := pipeline.Chain{}.Then("compile", func(ctx context.Context, a pipeline.Asset) (pipeline.Asset, error) {
		out, err := compiler.Compile(ctx, a.Source, a.Contents)
		if err != nil {
			return a, err
		}
		a = a.WithExt(".css")
		a.Contents, a.Map = pipeline.ExtractInlineMap(out)
		if a.Map != nil {
			dir := filepath.Join(b.paths.OutputDir(b.category), filepath.FromSlash(path.Dir(a.Path)))
			if a.Map, err = pipeline.RelativizeSources(a.Map, dir); err != nil {
				return a, err
			}
		}
		return a, nil
	})
	if opts.GroupMedia {
		chain = chain.Then("group-media", groupMedia)
	}
	if opts.WebPCSS {
		chain = chain.Then("webp-css", contentStep("failed to add webp rules", css.WebPCSS))
	}

	return &Styles{
		base:     b,
		compile:  chain,
		prefixer: css.NewPrefixer(opts.Targets),
	}
}

// groupMedia merges media queries and moves the source map along with the
// rules it covers.
func groupMedia(_ context.Context, a pipeline.Asset) (pipeline.Asset, error) {
	out, anchors, err := css.GroupMediaQueriesMapped(a.Contents)
	if err != nil {
		return a, err
	}
	if a.Map != nil {
		if a.Map, err = pipeline.RemapSourceMap(a.Map, a.Contents, out, anchors); err != nil {
			return a, err
		}
	}
	a.Contents = out
	return a, nil
}

func (t *Styles) finish(v variant) pipeline.Chain {
	return pipeline.Chain{}.
		Then("prefix", func(_ context.Context, a pipeline.Asset) (pipeline.Asset, error) {
			out, err := t.prefixer.Process(a.Contents, a.Map, filepath.Base(a.Source), v.minify)
			if err != nil {
				return a, err
			}
			a.Contents, a.Map = out.Code, out.Map
			return a.WithSuffix(v.suffix), nil
		}).
		Then("sourcemap", func(_ context.Context, a pipeline.Asset) (pipeline.Asset, error) {
			return pipeline.LinkSourceMap(a), nil
		})
}

// Run implements Task.
func (t *Styles) Run(ctx context.Context) (Result, error) {
	w := t.writer()
	finishers := make([]pipeline.Chain, len(variants))
	for i, v := range variants {
		finishers[i] = t.finish(v)
	}

	err := t.each(ctx, func(file string) error {
		a, err := t.read(file)
		if err != nil {
			return err
		}
		compiled, err := t.compile.Run(ctx, a)
		if err != nil {
			return err
		}
		for _, finish := range finishers {
			out, err := finish.Run(ctx, compiled)
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
