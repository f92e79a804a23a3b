package tasks

import (
	"context"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/assetforge/internal/config"
	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/paths"
	"github.com/conneroisu/assetforge/internal/plugins"
	"github.com/conneroisu/assetforge/internal/plugins/css"
	"github.com/conneroisu/assetforge/internal/plugins/image"
	"github.com/conneroisu/assetforge/internal/plugins/js"
)

// FromConfig builds one task per category of pc, wiring the collaborators
// named in cfg. The result is in reporting order.
func FromConfig(cfg *config.Config, pc paths.PathConfig, logger logging.Logger) ([]Task, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	engines, err := css.ParseTargets(cfg.Styles.Targets)
	if err != nil {
		return nil, keyed(err, "styles.targets")
	}
	target, err := js.ParseTarget(cfg.Scripts.Target)
	if err != nil {
		return nil, keyed(err, "scripts.target")
	}

	sass, err := plugins.ParseCommand(cfg.Styles.Compiler)
	if err != nil {
		return nil, keyed(err, "styles.compiler")
	}
	cwebp, err := plugins.ParseCommand(cfg.Images.WebPEncoder)
	if err != nil {
		return nil, keyed(err, "images.webp_encoder")
	}
	for _, cmd := range []*plugins.Command{sass, cwebp} {
		if !cmd.Available() {
			logger.Warn(context.Background(), nil, "Collaborator not found in PATH", "command", cmd.Name)
		}
	}

	linter, err := newLinter(cfg.Scripts, target)
	if err != nil {
		return nil, err
	}

	var out []Task
	for _, c := range pc.Categories() {
		switch c {
		case paths.Templates:
			out = append(out, NewTemplates(pc, TemplatesOptions{
				Prefix:   cfg.Templates.Prefix,
				WebPHTML: cfg.Templates.WebPHTML,
				Minify:   cfg.Templates.Minify,
			}, logger))
		case paths.Styles:
			out = append(out, NewStyles(pc, css.NewSassCompiler(sass), StylesOptions{
				Targets:    engines,
				GroupMedia: cfg.Styles.GroupMedia,
				WebPCSS:    cfg.Styles.WebPCSS,
			}, logger))
		case paths.Scripts:
			out = append(out, NewScripts(pc, js.NewTranspiler(target), ScriptsOptions{
				Linter:    linter,
				LintFatal: cfg.Scripts.LintFatal,
			}, logger))
		case paths.Images:
			out = append(out, NewImages(pc,
				image.NewOptimizer(cfg.Images.Quality),
				image.NewWebPEncoder(cwebp, cfg.Images.WebPQuality),
				ImagesOptions{Workers: cfg.Images.Workers}, logger))
		case paths.Sprites:
			out = append(out, NewSprites(pc, SpritesOptions{
				Name:    cfg.Sprites.Name,
				Example: cfg.Sprites.Example,
			}, logger))
		case paths.Fonts:
			out = append(out, NewFonts(pc, logger))
		default:
			return nil, ferrors.NewConfigError(ferrors.ErrCodeConfigInvalid,
				fmt.Sprintf("no task for category %q", c))
		}
	}
	return out, nil
}

func newLinter(cfg config.ScriptsConfig, target api.Target) (js.Linter, error) {
	if !cfg.Lint {
		return nil, nil
	}
	if cfg.Linter == "" {
		return js.NewEsbuildLinter(target), nil
	}
	cmd, err := plugins.ParseCommand(cfg.Linter)
	if err != nil {
		return nil, keyed(err, "scripts.linter")
	}
	return js.NewCommandLinter(cmd), nil
}

func keyed(err error, key string) error {
	if fe, ok := err.(*ferrors.ForgeError); ok {
		return fe.WithContext("key", key)
	}
	return err
}
