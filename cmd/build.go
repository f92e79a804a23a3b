package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetforge/internal/build"
	"github.com/conneroisu/assetforge/internal/paths"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Clean the build root and build every category once",
	Long: `Remove the build root, then run every task concurrently.

The command exits non-zero when any task fails and lists the failed
categories. Tasks that succeed still write their outputs.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	report, err := a.orch.Build(ctx)
	printReport(cmd.OutOrStdout(), a.orch.Categories(), report)
	return err
}

func printReport(w io.Writer, categories []paths.Category, report build.Report) {
	for _, c := range categories {
		res, ok := report.Results[c]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%-10s %3d written %3d changed\n", c, len(res.Written), len(res.Changed))
	}
	fmt.Fprintf(w, "%d files in %s\n", report.Written(), report.Duration.Round(time.Millisecond))
}
