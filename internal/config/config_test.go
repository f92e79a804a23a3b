package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "src", cfg.Paths.Src)
	assert.Equal(t, "dist", cfg.Paths.Build)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 3100, cfg.Server.Port)
	assert.True(t, cfg.Server.LiveReload)
	assert.Equal(t, time.Duration(0), cfg.Watch.Debounce)
	assert.Equal(t, "@@", cfg.Templates.Prefix)
	assert.True(t, cfg.Templates.WebPHTML)
	assert.False(t, cfg.Templates.Minify)
	assert.Equal(t, "chrome58,edge16,firefox57,safari11", cfg.Styles.Targets)
	assert.True(t, cfg.Styles.GroupMedia)
	assert.True(t, cfg.Styles.WebPCSS)
	assert.Equal(t, "sass --embed-source-map --embed-sources --source-map-urls=absolute {input}", cfg.Styles.Compiler)
	assert.Equal(t, "es2015", cfg.Scripts.Target)
	assert.True(t, cfg.Scripts.Lint)
	assert.False(t, cfg.Scripts.LintFatal)
	assert.Equal(t, 70, cfg.Images.Quality)
	assert.Equal(t, 70, cfg.Images.WebPQuality)
	assert.Positive(t, cfg.Images.Workers)
	assert.Equal(t, "icons.svg", cfg.Sprites.Name)
	assert.Equal(t, "localhost:3100", cfg.Server.Addr())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".assetforge.yml")
	require.NoError(t, os.WriteFile(file, []byte(`
paths:
  src: site
  build: public
server:
  port: 8080
watch:
  debounce: 150ms
scripts:
  lint_fatal: true
images:
  quality: 85
`), 0o644))

	t.Setenv("ASSETFORGE_SERVER_HOST", "127.0.0.1")

	v := viper.New()
	v.SetConfigFile(file)
	ConfigureEnv(v)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "site", cfg.Paths.Src)
	assert.Equal(t, "public", cfg.Paths.Build)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 150*time.Millisecond, cfg.Watch.Debounce)
	assert.True(t, cfg.Scripts.LintFatal)
	assert.Equal(t, 85, cfg.Images.Quality)
	assert.Equal(t, "icons.svg", cfg.Sprites.Name)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{name: "port too large", mutate: func(c *Config) { c.Server.Port = 70000 }, key: "server.port"},
		{name: "negative port", mutate: func(c *Config) { c.Server.Port = -1 }, key: "server.port"},
		{name: "empty host", mutate: func(c *Config) { c.Server.Host = "" }, key: "server.host"},
		{name: "empty src", mutate: func(c *Config) { c.Paths.Src = "" }, key: "paths.src"},
		{name: "same roots", mutate: func(c *Config) { c.Paths.Build = "src" }, key: "paths.build"},
		{name: "src inside build", mutate: func(c *Config) { c.Paths.Src = "dist/src" }, key: "paths.src"},
		{name: "build inside src", mutate: func(c *Config) { c.Paths.Build = "src/dist" }, key: "paths.build"},
		{name: "quality zero", mutate: func(c *Config) { c.Images.Quality = 0 }, key: "images.quality"},
		{name: "webp quality high", mutate: func(c *Config) { c.Images.WebPQuality = 101 }, key: "images.webp_quality"},
		{name: "bad css target", mutate: func(c *Config) { c.Styles.Targets = "chrome58,last 5 versions" }, key: "styles.targets"},
		{name: "bad js target", mutate: func(c *Config) { c.Scripts.Target = "es6" }, key: "scripts.target"},
		{name: "compiler injection", mutate: func(c *Config) { c.Styles.Compiler = "sass; rm -rf /" }, key: "styles.compiler"},
		{name: "empty encoder", mutate: func(c *Config) { c.Images.WebPEncoder = " " }, key: "images.webp_encoder"},
		{name: "linter injection", mutate: func(c *Config) { c.Scripts.Linter = "eslint $(id)" }, key: "scripts.linter"},
		{name: "sprite path", mutate: func(c *Config) { c.Sprites.Name = "../icons.svg" }, key: "sprites.name"},
		{name: "sprite extension", mutate: func(c *Config) { c.Sprites.Name = "icons.png" }, key: "sprites.name"},
		{name: "negative debounce", mutate: func(c *Config) { c.Watch.Debounce = -time.Second }, key: "watch.debounce"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }, key: "log.level"},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "xml" }, key: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, ferrors.IsConfigError(err))

			var fe *ferrors.ForgeError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.key, fe.Context["key"])
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadDecodeError(t *testing.T) {
	v := viper.New()
	v.Set("server.port", "not-a-port")

	_, err := LoadFrom(v)
	require.Error(t, err)
	assert.True(t, ferrors.IsConfigError(err))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"chrome58", "safari11"}, SplitList(" chrome58, ,safari11 "))
	assert.Empty(t, SplitList(""))
}
