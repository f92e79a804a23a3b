package tasks

import (
	"context"

	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/paths"
	"github.com/conneroisu/assetforge/internal/pipeline"
	"github.com/conneroisu/assetforge/internal/plugins/html"
)

// TemplatesOptions configures the templates task.
type TemplatesOptions struct {
	Prefix   string
	WebPHTML bool
	Minify   bool
}

// Templates expands includes in every page. Fragments under html/common are
// excluded by the source globs and only reach the output through includes.
type Templates struct {
	base
	chain pipeline.Chain
}

// NewTemplates creates the templates task.
func NewTemplates(pc paths.PathConfig, opts TemplatesOptions, logger logging.Logger) *Templates {
	includer := html.NewIncluder(opts.Prefix, pc.CommonRoot())

	chain := pipeline.Chain{}.Then("include", func(_ context.Context, a pipeline.Asset) (pipeline.Asset, error) {
		out, err := includer.Expand(a.Source, a.Contents)
		if err != nil {
			return a, err
		}
		a.Contents = out
		return a, nil
	})

	if opts.WebPHTML {
		chain = chain.Then("webp-html", contentStep("failed to rewrite images", html.WrapWebP))
	}

	if opts.Minify {
		chain = chain.Then("minify", contentStep("failed to minify html", html.NewMinifier().Minify))
	}

	return &Templates{base: newBase(paths.Templates, pc, logger), chain: chain}
}

// Run implements Task.
func (t *Templates) Run(ctx context.Context) (Result, error) {
	w := t.writer()
	err := t.each(ctx, func(file string) error {
		a, err := t.read(file)
		if err != nil {
			return err
		}
		out, err := t.chain.Run(ctx, a)
		if err != nil {
			return err
		}
		return w.Write(out)
	})
	return resultOf(w), err
}
