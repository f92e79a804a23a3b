//go:build property
// +build property

package config

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestConfigurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("port validity follows the tcp range", prop.ForAll(
		func(port int) bool {
			cfg := Default()
			cfg.Server.Port = port
			err := cfg.Validate()
			return (err == nil) == (port >= 0 && port <= 65535)
		},
		gen.IntRange(-100000, 100000),
	))

	properties.Property("image quality validity follows 1..100", prop.ForAll(
		func(quality int) bool {
			cfg := Default()
			cfg.Images.Quality = quality
			err := cfg.Validate()
			return (err == nil) == (quality >= 1 && quality <= 100)
		},
		gen.IntRange(-50, 150),
	))

	properties.Property("identifier browser targets are accepted", prop.ForAll(
		func(engine string, version uint8) bool {
			cfg := Default()
			cfg.Styles.Targets = engine + string(rune('0'+version%10))
			return cfg.Validate() == nil
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }).Map(strings.ToLower),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}
