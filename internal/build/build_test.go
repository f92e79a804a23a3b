package build

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/events"
	"github.com/conneroisu/assetforge/internal/paths"
	"github.com/conneroisu/assetforge/internal/plugins/image"
	"github.com/conneroisu/assetforge/internal/plugins/js"
	"github.com/conneroisu/assetforge/internal/tasks"
)

func writeFile(t *testing.T, root, rel, contents string) {
	t.Helper()
	target := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte(contents), 0o644))
}

// tree maps every file below root to the hash of its contents.
func tree(t *testing.T, root string) map[string]uint64 {
	t.Helper()
	out := make(map[string]uint64)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out[filepath.ToSlash(rel)] = xxhash.Sum64(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

type passCompiler struct{}

func (passCompiler) Compile(_ context.Context, _ string, contents []byte) ([]byte, error) {
	return contents, nil
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(_ context.Context, name string, _ []byte) ([]byte, error) {
	return []byte("webp:" + filepath.Base(name)), nil
}

type stubTask struct {
	category paths.Category
	err      error
	runs     atomic.Int32
}

func (s *stubTask) Category() paths.Category { return s.category }

func (s *stubTask) Run(context.Context) (tasks.Result, error) {
	s.runs.Add(1)
	return tasks.Result{}, s.err
}

func project(t *testing.T) (paths.PathConfig, string, string) {
	t.Helper()
	dir := t.TempDir()
	src, dist := filepath.Join(dir, "src"), filepath.Join(dir, "dist")

	writeFile(t, src, "html/index.html", "<html><body>@@header.html<img src=\"assets/images/hero.png\"></body></html>")
	writeFile(t, src, "html/common/header.html", "<header>@@include('nav.html', {\"active\": \"home\"})</header>")
	writeFile(t, src, "html/common/nav.html", "<nav class=\"@@active\"></nav>")
	writeFile(t, src, "assets/styles/scss/styles.scss", "a { user-select: none }\n@media print { a { color: red } }\n")
	writeFile(t, src, "assets/styles/fonts/Inter.woff2", "font")
	writeFile(t, src, "assets/js/app.js", "console.log(1 ?? 2);\n")
	writeFile(t, src, "assets/images/hero.svg", `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 2 2"><rect width="2" height="2"/></svg>`)
	writeFile(t, src, "assets/images/icons/sprites/cart.svg", `<svg viewBox="0 0 16 16"><path d="M0 0"/></svg>`)

	return paths.Resolve(src, dist), src, dist
}

func realTasks(pc paths.PathConfig) []tasks.Task {
	targets := []api.Engine{{Name: api.EngineChrome, Version: "58"}}
	return []tasks.Task{
		tasks.NewTemplates(pc, tasks.TemplatesOptions{Prefix: "@@", WebPHTML: true}, nil),
		tasks.NewStyles(pc, passCompiler{}, tasks.StylesOptions{Targets: targets, GroupMedia: true}, nil),
		tasks.NewScripts(pc, js.NewTranspiler(api.ES2015), tasks.ScriptsOptions{Linter: js.NewEsbuildLinter(api.ES2015)}, nil),
		tasks.NewImages(pc, image.NewOptimizer(70), fakeEncoder{}, tasks.ImagesOptions{Workers: 2}, nil),
		tasks.NewSprites(pc, tasks.SpritesOptions{Name: "icons.svg", Example: true}, nil),
		tasks.NewFonts(pc, nil),
	}
}

func runners(list []tasks.Task, broker *events.Broker) []*tasks.Runner {
	out := make([]*tasks.Runner, len(list))
	for i, task := range list {
		out[i] = tasks.NewRunner(task, nil, broker, nil)
	}
	return out
}

func TestCleanMissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "dist")
	assert.NoError(t, Clean(missing))
	assert.NoDirExists(t, missing)
}

func TestCleanRemovesTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "dist")
	writeFile(t, root, "a/b/c.txt", "x")
	require.NoError(t, Clean(root))
	assert.NoDirExists(t, root)
}

func TestCleanRefusesSystemPaths(t *testing.T) {
	for _, p := range []string{"", "/", ".", "/usr/share"} {
		err := Clean(p)
		require.Error(t, err, p)
		assert.True(t, ferrors.IsConfigError(err), p)
	}
}

func TestBuildProducesTree(t *testing.T) {
	pc, _, dist := project(t)
	orch := NewOrchestrator(pc, runners(realTasks(pc), nil), nil)

	report, err := orch.Build(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, report.ID)
	assert.Len(t, report.Results, 6)

	files := tree(t, dist)
	for _, want := range []string{
		"index.html",
		"assets/styles/css/styles.css", "assets/styles/css/styles.css.map",
		"assets/styles/css/styles.min.css", "assets/styles/css/styles.min.css.map",
		"assets/js/app.js", "assets/js/app.js.map", "assets/js/app.min.js", "assets/js/app.min.js.map",
		"assets/images/hero.svg", "assets/images/hero.webp",
		"assets/images/icons/sprites/stack/icons.svg",
		"assets/images/icons/sprites/stack/sprite.stack.html",
		"assets/styles/fonts/Inter.woff2",
	} {
		assert.Contains(t, files, want)
	}
	assert.NotContains(t, files, "header.html")
	assert.NotContains(t, files, "common/header.html")

	index, err := os.ReadFile(filepath.Join(dist, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), `<header><nav class="home"></nav></header>`)
	assert.Contains(t, string(index), `srcset="assets/images/hero.webp"`)
}

func TestBuildTasksWriteDistinctFiles(t *testing.T) {
	pc, _, _ := project(t)
	report, err := NewOrchestrator(pc, runners(realTasks(pc), nil), nil).Build(context.Background())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(pc.OutputDir(paths.Sprites), pc.OutputDir(paths.Images)+string(filepath.Separator)),
		"sprites output is nested in the images output")

	owner := make(map[string]paths.Category)
	for c, res := range report.Results {
		for _, file := range res.Written {
			prev, dup := owner[file]
			assert.False(t, dup, "%s written by %s and %s", file, prev, c)
			owner[file] = c
		}
	}
	assert.Equal(t, paths.Images, owner["assets/images/icons/sprites/cart.svg"])
	assert.Equal(t, paths.Sprites, owner["assets/images/icons/sprites/stack/icons.svg"])
}

func TestBuildIsIdempotent(t *testing.T) {
	pc, _, dist := project(t)
	orch := NewOrchestrator(pc, runners(realTasks(pc), nil), nil)

	_, err := orch.Build(context.Background())
	require.NoError(t, err)
	first := tree(t, dist)

	_, err = orch.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, tree(t, dist))

	_, err = orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, tree(t, dist), "run without clean changes nothing")
}

func TestBuildAggregatesFailures(t *testing.T) {
	pc, _, dist := project(t)
	list := []tasks.Task{
		&stubTask{category: paths.Images, err: errors.New("cwebp missing")},
		tasks.NewFonts(pc, nil),
		&stubTask{category: paths.Styles, err: errors.New("sass failed")},
		tasks.NewTemplates(pc, tasks.TemplatesOptions{Prefix: "@@"}, nil),
	}
	orch := NewOrchestrator(pc, runners(list, nil), nil)

	_, err := orch.Build(context.Background())
	require.Error(t, err)

	var failure *ferrors.BuildFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, []string{"styles", "images"}, failure.Failed)
	assert.EqualError(t, failure.Causes["styles"], "sass failed")

	assert.FileExists(t, filepath.Join(dist, "index.html"), "siblings still write their outputs")
	assert.FileExists(t, filepath.Join(dist, "assets/styles/fonts/Inter.woff2"))
}

func TestRunSelectedCategories(t *testing.T) {
	pc, _, _ := project(t)
	styles := &stubTask{category: paths.Styles}
	scripts := &stubTask{category: paths.Scripts}
	orch := NewOrchestrator(pc, runners([]tasks.Task{styles, scripts}, nil), nil)

	report, err := orch.Run(context.Background(), paths.Scripts)
	require.NoError(t, err)
	assert.Len(t, report.Results, 1)
	assert.Equal(t, int32(0), styles.runs.Load())
	assert.Equal(t, int32(1), scripts.runs.Load())

	_, err = orch.Run(context.Background(), paths.Fonts)
	assert.True(t, ferrors.IsConfigError(err))
}

func TestWatchRunsOnlyAffectedTask(t *testing.T) {
	pc, src, _ := project(t)

	stubs := map[paths.Category]*stubTask{}
	var list []tasks.Task
	for _, c := range paths.All() {
		s := &stubTask{category: c}
		stubs[c] = s
		list = append(list, s)
	}

	broker := events.NewBroker()
	sub, cancel := broker.Subscribe(16)
	defer cancel()

	orch := NewOrchestrator(pc, runners(list, broker), nil)
	w, err := NewWatcher(orch, 0, nil)
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	writeFile(t, src, "assets/styles/scss/_buttons.scss", ".btn{}")

	select {
	case e := <-sub:
		assert.Equal(t, paths.Styles, e.Category)
		assert.Equal(t, events.ReloadCSS, e.Reload)
	case <-time.After(3 * time.Second):
		t.Fatal("no task ran after a stylesheet change")
	}
	require.NoError(t, w.Wait(ctx))

	for c, s := range stubs {
		if c == paths.Styles {
			assert.GreaterOrEqual(t, s.runs.Load(), int32(1))
			continue
		}
		assert.Equal(t, int32(0), s.runs.Load(), c)
	}
}

func TestWatchFollowsMissingRoots(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	pc := paths.Resolve(src, filepath.Join(dir, "dist"))

	fonts := &stubTask{category: paths.Fonts}
	broker := events.NewBroker()
	sub, cancel := broker.Subscribe(4)
	defer cancel()

	orch := NewOrchestrator(pc, runners([]tasks.Task{fonts}, broker), nil)
	w, err := NewWatcher(orch, 0, nil)
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	writeFile(t, src, "assets/styles/fonts/Inter.woff2", "font")

	select {
	case e := <-sub:
		assert.Equal(t, paths.Fonts, e.Category)
	case <-time.After(3 * time.Second):
		t.Fatal("new directories were not followed")
	}
}
