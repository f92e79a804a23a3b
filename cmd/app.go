package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetforge/internal/build"
	"github.com/conneroisu/assetforge/internal/config"
	"github.com/conneroisu/assetforge/internal/events"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/metrics"
	"github.com/conneroisu/assetforge/internal/paths"
	"github.com/conneroisu/assetforge/internal/tasks"
)

// app holds everything one invocation wires together.
type app struct {
	cfg     *config.Config
	logger  logging.Logger
	paths   paths.PathConfig
	broker  *events.Broker
	metrics *metrics.Metrics
	orch    *build.Orchestrator
}

func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newApp(cfg, cmd.ErrOrStderr())
}

func newLogger(cfg config.LogConfig, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Format,
		Output: out,
	}), nil
}

func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}

	pc := paths.Resolve(cfg.Paths.Src, cfg.Paths.Build)
	if err := pc.Validate(); err != nil {
		return nil, err
	}

	list, err := tasks.FromConfig(cfg, pc, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		paths:   pc,
		broker:  events.NewBroker(),
		metrics: metrics.New(),
	}

	runners := make([]*tasks.Runner, len(list))
	for i, task := range list {
		runners[i] = tasks.NewRunner(task, logger, a.broker, a.metrics)
	}
	a.orch = build.NewOrchestrator(pc, runners, logger)
	return a, nil
}

// status reports the state of every task.
func (a *app) status() map[string]string {
	out := make(map[string]string)
	for _, c := range a.orch.Categories() {
		if r, ok := a.orch.Runner(c); ok {
			out[string(c)] = r.State().String()
		}
	}
	return out
}

func (a *app) close() {
	a.broker.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
