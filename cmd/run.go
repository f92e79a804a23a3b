package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/assetforge/internal/paths"
)

var runCmd = &cobra.Command{
	Use:   "run <category>...",
	Short: "Run selected tasks without cleaning",
	Long: `Run the named tasks concurrently without cleaning the build root.

Categories: templates, styles, scripts, images, sprites, fonts.

Examples:
  assetforge run styles
  assetforge run templates images`,
	Args:      cobra.MinimumNArgs(1),
	ValidArgs: paths.Names(paths.All()),
	RunE:      runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	categories := make([]paths.Category, len(args))
	for i, arg := range args {
		c, err := paths.Parse(arg)
		if err != nil {
			return err
		}
		categories[i] = c
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	report, err := a.orch.Run(ctx, categories...)
	printReport(cmd.OutOrStdout(), a.orch.Categories(), report)
	return err
}
