package tasks

import (
	"context"

	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/paths"
)

// Copy writes every source of its category unchanged.
type Copy struct {
	base
}

// NewFonts creates the fonts task.
func NewFonts(pc paths.PathConfig, logger logging.Logger) *Copy {
	return &Copy{base: newBase(paths.Fonts, pc, logger)}
}

// Run implements Task.
func (t *Copy) Run(ctx context.Context) (Result, error) {
	w := t.writer()
	err := t.each(ctx, func(file string) error {
		a, err := t.read(file)
		if err != nil {
			return err
		}
		return w.Write(a)
	})
	return resultOf(w), err
}
