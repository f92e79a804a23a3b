package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/assetforge/internal/config"
	ferrors "github.com/conneroisu/assetforge/internal/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func project(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	src, dist := filepath.Join(dir, "src"), filepath.Join(dir, "dist")
	files := map[string]string{
		"html/index.html":                 "<html><body>@@head.html</body></html>",
		"html/common/head.html":           "<h1>Hi</h1>",
		"assets/styles/fonts/Inter.woff2": "font",
	}
	for rel, contents := range files {
		p := filepath.Join(src, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
	}
	return src, dist
}

func TestBuildCommand(t *testing.T) {
	src, dist := project(t)

	out, err := execute(t, "build", "--src", src, "--dist", dist, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "templates")
	assert.Contains(t, out, "files in")

	index, err := os.ReadFile(filepath.Join(dist, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "<h1>Hi</h1>")
	assert.FileExists(t, filepath.Join(dist, "assets", "styles", "fonts", "Inter.woff2"))
	assert.NoFileExists(t, filepath.Join(dist, "head.html"))
}

func TestBuildCommandRejectsOverlappingRoots(t *testing.T) {
	src, _ := project(t)

	_, err := execute(t, "build", "--src", src, "--dist", src)
	require.Error(t, err)
	assert.True(t, ferrors.IsConfigError(err))
	assert.DirExists(t, src, "sources are never cleaned")
}

func TestRunCommand(t *testing.T) {
	src, dist := project(t)

	_, err := execute(t, "run", "fonts", "--src", src, "--dist", dist, "--log-level", "error")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dist, "assets", "styles", "fonts", "Inter.woff2"))
	assert.NoFileExists(t, filepath.Join(dist, "index.html"))

	_, err = execute(t, "run", "videos", "--src", src, "--dist", dist)
	assert.Error(t, err)
}

func TestCleanCommand(t *testing.T) {
	src, dist := project(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dist, "stale"), 0o755))

	_, err := execute(t, "clean", "--src", src, "--dist", dist)
	require.NoError(t, err)
	assert.NoDirExists(t, dist)
}

func TestConfigShow(t *testing.T) {
	src, dist := project(t)

	out, err := execute(t, "config", "show", "--src", src, "--dist", dist)
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, src, cfg.Paths.Src)
	assert.Equal(t, dist, cfg.Paths.Build)
	assert.Equal(t, 3100, cfg.Server.Port)
	assert.Equal(t, "@@", cfg.Templates.Prefix)
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	_, err = execute(t, "version", "--format", "xml")
	assert.Error(t, err)
	versionFormat = "text"
}
