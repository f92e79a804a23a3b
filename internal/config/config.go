// Package config provides configuration management for assetforge using
// Viper. Values come from .assetforge.yml, ASSETFORGE_ prefixed environment
// variables and command-line flags, with defaults registered by SetDefaults.
//
// Configuration is loaded once at startup. An invalid configuration is a
// configuration error and aborts the process before any task runs.
package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/validation"
)

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "ASSETFORGE"

var envKeyReplacer = strings.NewReplacer(".", "_")

// ConfigureEnv binds ASSETFORGE_<SECTION>_<KEY> environment variables on v.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
}

// Config is the root of the configuration tree.
type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"     yaml:"paths"`
	Server    ServerConfig    `mapstructure:"server"    yaml:"server"`
	Watch     WatchConfig     `mapstructure:"watch"     yaml:"watch"`
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates"`
	Styles    StylesConfig    `mapstructure:"styles"    yaml:"styles"`
	Scripts   ScriptsConfig   `mapstructure:"scripts"   yaml:"scripts"`
	Images    ImagesConfig    `mapstructure:"images"    yaml:"images"`
	Sprites   SpritesConfig   `mapstructure:"sprites"   yaml:"sprites"`
	Log       LogConfig       `mapstructure:"log"       yaml:"log"`
}

type PathsConfig struct {
	Src   string `mapstructure:"src"   yaml:"src"`
	Build string `mapstructure:"build" yaml:"build"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host"            yaml:"host"`
	Port           int      `mapstructure:"port"            yaml:"port"`
	CORS           bool     `mapstructure:"cors"            yaml:"cors"`
	LiveReload     bool     `mapstructure:"livereload"      yaml:"livereload"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type TemplatesConfig struct {
	Prefix   string `mapstructure:"prefix"    yaml:"prefix"`
	WebPHTML bool   `mapstructure:"webp_html" yaml:"webp_html"`
	Minify   bool   `mapstructure:"minify"    yaml:"minify"`
}

type StylesConfig struct {
	// Compiler is the SCSS compiler command line. {input} and {output} are
	// replaced by file paths; without them stdin and stdout are used. A
	// source map embedded in its output is carried into the written maps.
	Compiler   string `mapstructure:"compiler"    yaml:"compiler"`
	Targets    string `mapstructure:"targets"     yaml:"targets"`
	GroupMedia bool   `mapstructure:"group_media" yaml:"group_media"`
	WebPCSS    bool   `mapstructure:"webp_css"    yaml:"webp_css"`
}

type ScriptsConfig struct {
	Target    string `mapstructure:"target"     yaml:"target"`
	Lint      bool   `mapstructure:"lint"       yaml:"lint"`
	LintFatal bool   `mapstructure:"lint_fatal" yaml:"lint_fatal"`
	// Linter is an optional external linter command line; empty selects
	// the built-in esbuild diagnostics.
	Linter string `mapstructure:"linter" yaml:"linter"`
}

type ImagesConfig struct {
	Quality     int    `mapstructure:"quality"      yaml:"quality"`
	WebPQuality int    `mapstructure:"webp_quality" yaml:"webp_quality"`
	WebPEncoder string `mapstructure:"webp_encoder" yaml:"webp_encoder"`
	Workers     int    `mapstructure:"workers"      yaml:"workers"`
}

type SpritesConfig struct {
	Name    string `mapstructure:"name"    yaml:"name"`
	Example bool   `mapstructure:"example" yaml:"example"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.src", "src")
	v.SetDefault("paths.build", "dist")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3100)
	v.SetDefault("server.cors", false)
	v.SetDefault("server.livereload", true)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("watch.debounce", "0s")

	v.SetDefault("templates.prefix", "@@")
	v.SetDefault("templates.webp_html", true)
	v.SetDefault("templates.minify", false)

	v.SetDefault("styles.compiler", "sass --embed-source-map --embed-sources --source-map-urls=absolute {input}")
	v.SetDefault("styles.targets", "chrome58,edge16,firefox57,safari11")
	v.SetDefault("styles.group_media", true)
	v.SetDefault("styles.webp_css", true)

	v.SetDefault("scripts.target", "es2015")
	v.SetDefault("scripts.lint", true)
	v.SetDefault("scripts.lint_fatal", false)
	v.SetDefault("scripts.linter", "")

	v.SetDefault("images.quality", 70)
	v.SetDefault("images.webp_quality", 70)
	v.SetDefault("images.webp_encoder", "cwebp -quiet -q {quality} {input} -o {output}")
	v.SetDefault("images.workers", runtime.NumCPU())

	v.SetDefault("sprites.name", "icons.svg")
	v.SetDefault("sprites.example", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Default returns the configuration made of defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := unmarshal(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, ferrors.NewConfigError(ferrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to decode configuration: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Images.Workers <= 0 {
		cfg.Images.Workers = runtime.NumCPU()
	}
	return &cfg, nil
}

var (
	cssTargetPattern = regexp.MustCompile(`^[a-z]+[0-9]+(\.[0-9]+){0,2}$`)
	jsTargetPattern  = regexp.MustCompile(`^(es5|es20[0-9]{2}|esnext)$`)
)

// Validate checks every value. The first problem is returned as a
// configuration error naming the offending key.
func (c *Config) Validate() error {
	checks := []func() error{
		c.validatePaths,
		c.validateServer,
		c.validateWatch,
		c.validateTemplates,
		c.validateStyles,
		c.validateScripts,
		c.validateImages,
		c.validateSprites,
		c.validateLog,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func invalid(key, format string, args ...interface{}) error {
	return ferrors.NewConfigError(ferrors.ErrCodeConfigInvalid, key+": "+fmt.Sprintf(format, args...)).
		WithContext("key", key)
}

func (c *Config) validatePaths() error {
	if err := validation.ValidatePath(c.Paths.Src); err != nil {
		return invalid("paths.src", "%v", err)
	}
	if err := validation.ValidatePath(c.Paths.Build); err != nil {
		return invalid("paths.build", "%v", err)
	}

	src, err := filepath.Abs(c.Paths.Src)
	if err != nil {
		return invalid("paths.src", "%v", err)
	}
	build, err := filepath.Abs(c.Paths.Build)
	if err != nil {
		return invalid("paths.build", "%v", err)
	}

	if src == build {
		return invalid("paths.build", "must differ from paths.src")
	}
	if within(src, build) {
		return invalid("paths.src", "must not be inside the build root %s", c.Paths.Build)
	}
	if within(build, src) {
		return invalid("paths.build", "must not be inside the source root %s", c.Paths.Src)
	}
	return nil
}

// within reports whether path lies strictly below root.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c *Config) validateServer() error {
	// 0 lets the kernel pick a port; tests rely on it.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return invalid("server.port", "%d is not in valid range 0-65535", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return invalid("server.host", "cannot be empty")
	}
	if strings.ContainsAny(c.Server.Host, ";&|$`()<>\"'\\ ") {
		return invalid("server.host", "contains dangerous characters")
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.Debounce < 0 {
		return invalid("watch.debounce", "cannot be negative")
	}
	return nil
}

func (c *Config) validateTemplates() error {
	if strings.TrimSpace(c.Templates.Prefix) == "" {
		return invalid("templates.prefix", "cannot be empty")
	}
	return nil
}

func (c *Config) validateStyles() error {
	if err := validateCommandLine(c.Styles.Compiler); err != nil {
		return invalid("styles.compiler", "%v", err)
	}
	for _, target := range SplitList(c.Styles.Targets) {
		if !cssTargetPattern.MatchString(target) {
			return invalid("styles.targets", "malformed browser target %q", target)
		}
	}
	return nil
}

func (c *Config) validateScripts() error {
	if !jsTargetPattern.MatchString(strings.ToLower(c.Scripts.Target)) {
		return invalid("scripts.target", "unsupported target %q", c.Scripts.Target)
	}
	if c.Scripts.Linter != "" {
		if err := validateCommandLine(c.Scripts.Linter); err != nil {
			return invalid("scripts.linter", "%v", err)
		}
	}
	return nil
}

func (c *Config) validateImages() error {
	if c.Images.Quality < 1 || c.Images.Quality > 100 {
		return invalid("images.quality", "%d is not in range 1-100", c.Images.Quality)
	}
	if c.Images.WebPQuality < 1 || c.Images.WebPQuality > 100 {
		return invalid("images.webp_quality", "%d is not in range 1-100", c.Images.WebPQuality)
	}
	if err := validateCommandLine(c.Images.WebPEncoder); err != nil {
		return invalid("images.webp_encoder", "%v", err)
	}
	return nil
}

func (c *Config) validateSprites() error {
	name := c.Sprites.Name
	if name == "" || filepath.Base(name) != name || filepath.Ext(name) != ".svg" {
		return invalid("sprites.name", "%q must be a plain .svg file name", name)
	}
	return nil
}

func (c *Config) validateLog() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("log.level", "unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format", "unknown format %q", c.Log.Format)
	}
	return nil
}

func validateCommandLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("command cannot be empty")
	}
	if err := validation.ValidateCommand(fields[0]); err != nil {
		return err
	}
	for _, arg := range fields[1:] {
		if err := validation.ValidateArgument(arg); err != nil {
			return fmt.Errorf("argument %q: %w", arg, err)
		}
	}
	return nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
