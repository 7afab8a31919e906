package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/channel"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/config"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/store"
)

// env is what every command needs: configuration, a logger and output.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	out    *OutputFormatter
}

// setup loads configuration and installs the default logger. Flags win over
// the environment, which wins over the config file.
func (o *RootOptions) setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log level", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(cmd.ErrOrStderr(), o.Format, level)
	slog.SetDefault(logger)

	return &env{
		cfg:    cfg,
		logger: logger,
		out: &OutputFormatter{
			Format:  o.Format,
			Writer:  cmd.OutOrStdout(),
			Verbose: o.Verbose,
		},
	}, nil
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// broker bundles the store and the three channels named by the config.
type broker struct {
	store     *store.Store
	models    *channel.ModelSlot
	scenarios *channel.Queue
	results   *channel.Queue
	logger    *slog.Logger
}

// openBroker connects to the configured database. Failure is a command
// error: nothing can run without the broker.
func (e *env) openBroker() (*broker, error) {
	st, err := store.Open(e.cfg.Database)
	if err != nil {
		connErr := &domain.ConnectionError{Target: e.cfg.Database, Err: err}
		e.logger.Error("broker unavailable", "database", e.cfg.Database, "error", err)
		_ = e.out.Error(ErrCodeBroker, connErr.Error(), map[string]string{"database": e.cfg.Database})
		return nil, WrapExitError(ExitCommandError, "broker unavailable", connErr)
	}
	e.logger.Debug("broker ready", "database", e.cfg.Database)

	queueOpts := []channel.QueueOption{
		channel.WithPollInterval(e.cfg.Worker.PollInterval),
		channel.WithLease(e.cfg.Worker.LeaseTimeout),
		channel.WithLogger(e.logger),
	}
	return &broker{
		store: st,
		models: channel.NewModelSlot(st, e.cfg.Queues.Model,
			channel.WithModelTTL(e.cfg.ModelTTL),
			channel.WithModelLogger(e.logger),
		),
		scenarios: channel.NewQueue(st, e.cfg.Queues.Scenarios, queueOpts...),
		results:   channel.NewQueue(st, e.cfg.Queues.Results, queueOpts...),
		logger:    e.logger,
	}, nil
}

func (b *broker) Close() {
	if err := b.store.Close(); err != nil {
		b.logger.Error("error closing broker", "error", err)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, or when
// the command's own context is done.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
