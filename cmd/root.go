// Package cmd provides the assetforge command-line interface.
//
// Configuration sources, highest priority first:
//
//  1. Command-line flags (--src, --dist, --port, ...)
//  2. ASSETFORGE_<SECTION>_<KEY> environment variables
//  3. The file named by --config or ASSETFORGE_CONFIG_FILE
//  4. .assetforge.yml in the working directory
//  5. Built-in defaults
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/assetforge/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "assetforge",
	Short: "Build and serve static site assets",
	Long: `assetforge compiles a static site's sources into a build directory:
HTML with includes, SCSS, JavaScript, images with WebP copies, SVG
sprites and fonts.

Run without a subcommand to build, watch and serve with live reload.

Examples:
  assetforge                    # Build, then watch and serve
  assetforge build              # Clean and build once
  assetforge run styles scripts # Rebuild selected categories
  assetforge config show        # Print the effective configuration`,
	SilenceUsage: true,
	RunE:         runDevelop,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .assetforge.yml, can also use ASSETFORGE_CONFIG_FILE)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("src", "src", "source root")
	flags.String("dist", "dist", "build root")

	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("paths.src", flags.Lookup("src"))
	_ = viper.BindPFlag("paths.build", flags.Lookup("dist"))

	addServeFlags(rootCmd.Flags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".assetforge")
	}

	config.ConfigureEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
