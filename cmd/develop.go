package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/assetforge/internal/build"
	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/server"
)

var developCmd = &cobra.Command{
	Use:     "develop",
	Aliases: []string{"dev", "serve", "s"},
	Short:   "Build, then watch sources and serve with live reload",
	Long: `Build once, then watch the source tree and re-run only the tasks a
change affects. The build root is served over HTTP; open pages reload
when their outputs change and stylesheets are swapped in place.

Task failures are logged and watching continues. Stop with Ctrl-C.

Examples:
  assetforge develop
  assetforge develop --port 8080 --host 0.0.0.0`,
	Args: cobra.NoArgs,
	RunE: runDevelop,
}

func init() {
	addServeFlags(developCmd.Flags())
	rootCmd.AddCommand(developCmd)
}

func addServeFlags(flags *pflag.FlagSet) {
	flags.IntP("port", "p", 3100, "port to serve on")
	flags.String("host", "localhost", "host to bind to")
}

// bindServeFlags binds the flags of the command being run; develop and the
// root command each own a copy.
func bindServeFlags(flags *pflag.FlagSet) {
	_ = viper.BindPFlag("server.port", flags.Lookup("port"))
	_ = viper.BindPFlag("server.host", flags.Lookup("host"))
}

func runDevelop(cmd *cobra.Command, _ []string) error {
	bindServeFlags(cmd.Flags())

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if _, err := a.orch.Build(ctx); err != nil {
		var failure *ferrors.BuildFailure
		if !errors.As(err, &failure) {
			return err
		}
		a.logger.Warn(ctx, err, "Initial build failed, watching anyway")
	}

	watcher, err := build.NewWatcher(a.orch, a.cfg.Watch.Debounce, a.logger)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Server:  a.cfg.Server,
		Root:    a.paths.BuildRoot,
		Broker:  a.broker,
		Metrics: a.metrics,
		Status:  a.status,
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Watch(ctx) })
	g.Go(func() error { return srv.Start(ctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.logger.Info(context.Background(), "Stopped")
	return err
}
