package tasks

import (
	"context"
	"path"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/paths"
	"github.com/conneroisu/assetforge/internal/pipeline"
	"github.com/conneroisu/assetforge/internal/plugins/sprite"
)

// SpritesOptions configures the sprites task.
type SpritesOptions struct {
	Name    string
	Example bool
}

// Sprites stacks every icon into stack/<name> and optionally renders the
// stack/sprite.stack.html usage page.
type Sprites struct {
	base
	name    string
	example bool
}

// NewSprites creates the sprites task.
func NewSprites(pc paths.PathConfig, opts SpritesOptions, logger logging.Logger) *Sprites {
	name := opts.Name
	if name == "" {
		name = "icons.svg"
	}
	return &Sprites{base: newBase(paths.Sprites, pc, logger), name: name, example: opts.Example}
}

// Run implements Task. Without icons nothing is written.
func (t *Sprites) Run(ctx context.Context) (Result, error) {
	w := t.writer()

	var icons []sprite.Icon
	err := t.each(ctx, func(file string) error {
		a, err := t.read(file)
		if err != nil {
			return err
		}
		icon, err := sprite.ParseIcon(a.Source, a.Contents)
		if err != nil {
			return err
		}
		icons = append(icons, icon)
		return nil
	})
	if err != nil {
		return resultOf(w), err
	}
	if len(icons) == 0 {
		t.logger.Debug(ctx, "No icons to stack")
		return resultOf(w), nil
	}

	doc, err := sprite.Stack(icons)
	if err != nil {
		return resultOf(w), err
	}
	if err := w.WriteFile(path.Join(sprite.StackDir, t.name), doc); err != nil {
		return resultOf(w), err
	}

	if t.example {
		page, err := sprite.RenderExample(ctx, t.name, icons)
		if err != nil {
			return resultOf(w), ferrors.NewTransformError(ferrors.ErrCodeSpriteFailed, "failed to render sprite example", err)
		}
		if err := w.Write(pipeline.Asset{Path: path.Join(sprite.StackDir, sprite.ExampleName), Contents: page}); err != nil {
			return resultOf(w), err
		}
	}
	return resultOf(w), nil
}
