package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/paths"
	"github.com/conneroisu/assetforge/internal/pipeline"
	"github.com/conneroisu/assetforge/internal/plugins/image"
)

// Encoder produces the WebP copy of an image.
type Encoder interface {
	Encode(ctx context.Context, name string, data []byte) ([]byte, error)
}

// ImagesOptions configures the images task.
type ImagesOptions struct {
	Workers int
}

// Images writes an optimized copy of every image and, for raster and vector
// sources, a name.webp copy next to it. A name.webp source takes precedence
// over a generated copy. Files are processed concurrently. A nil encoder
// skips the WebP copies.
type Images struct {
	base
	optimizer *image.Optimizer
	encoder   Encoder
	workers   int
}

// NewImages creates the images task.
func NewImages(pc paths.PathConfig, optimizer *image.Optimizer, encoder Encoder, opts ImagesOptions, logger logging.Logger) *Images {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Images{
		base:      newBase(paths.Images, pc, logger),
		optimizer: optimizer,
		encoder:   encoder,
		workers:   workers,
	}
}

// webpTargets decides which sources get a generated WebP copy and where it
// goes. A .webp source owns its output path. Sources whose copies would share
// a path get none and are reported together.
func (t *Images) webpTargets(ctx context.Context, files []string) (map[string]string, error) {
	targets := make(map[string]string)
	if t.encoder == nil {
		return targets, nil
	}

	owned := make(map[string]string)
	claims := make(map[string][]string)
	for _, file := range files {
		rel := t.paths.Base(t.category, file)
		if image.Ext(rel) == ".webp" {
			owned[rel] = file
			continue
		}
		if image.NeedsWebP(rel) {
			target := pipeline.Asset{Path: rel}.WithExt(".webp").Path
			claims[target] = append(claims[target], file)
		}
	}

	names := make([]string, 0, len(claims))
	for target := range claims {
		names = append(names, target)
	}
	sort.Strings(names)

	var errs []error
	for _, target := range names {
		sources := claims[target]
		switch {
		case owned[target] != "":
			t.logger.Debug(ctx, "Keeping source webp", "path", target, "skipped", strings.Join(sources, ", "))
		case len(sources) > 1:
			errs = append(errs, ferrors.NewTransformError(ferrors.ErrCodeImageFailed,
				fmt.Sprintf("%s would be generated from each of %s", target, strings.Join(sources, ", ")), nil).
				WithFile(sources[0]).
				WithContext("sources", sources))
		default:
			targets[sources[0]] = target
		}
	}
	return targets, errors.Join(errs...)
}

func (t *Images) process(ctx context.Context, w *pipeline.Writer, file, webpTarget string) error {
	a, err := t.read(file)
	if err != nil {
		return err
	}

	if webpTarget != "" {
		webp, err := t.encoder.Encode(ctx, a.Source, a.Contents)
		if err != nil {
			return err
		}
		if err := w.WriteFile(webpTarget, webp); err != nil {
			return err
		}
	}

	optimized, err := t.optimizer.Optimize(a.Source, a.Contents)
	if err != nil {
		return err
	}
	a.Contents = optimized
	return w.Write(a)
}

// Run implements Task.
func (t *Images) Run(ctx context.Context) (Result, error) {
	w := t.writer()
	files, err := t.paths.Collect(t.category)
	if err != nil {
		return Result{}, err
	}
	targets, planErr := t.webpTargets(ctx, files)

	var (
		mu   sync.Mutex
		errs = []error{planErr}
	)
	var g errgroup.Group
	g.SetLimit(t.workers)
	for _, file := range files {
		file := file
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := t.process(ctx, w, file, targets[file]); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resultOf(w), err
	}
	return resultOf(w), errors.Join(errs...)
}
