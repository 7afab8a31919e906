package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/monitor"
)

// MonitorOptions holds flags for the monitor command.
type MonitorOptions struct {
	*RootOptions
	Once     bool
	Lang     string
	Interval time.Duration
	Duration time.Duration
}

// NewMonitorCommand creates the monitor command.
func NewMonitorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MonitorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Aggregate results and report queue depths",
		Long: `Consume the result channel and print running statistics per model and
per worker, together with the depth of the scenario and result channels.

With --once the queue depths are printed a single time and no result is
consumed.

Example:
  montecarlo monitor
  montecarlo monitor --interval 5s --lang es
  montecarlo monitor --once --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "print queue depths once and exit")
	cmd.Flags().StringVar(&opts.Lang, "lang", "en", "language tag used to group numbers")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "refresh period (default: monitor.interval)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")

	return cmd
}

func runMonitor(opts *MonitorOptions, cmd *cobra.Command) error {
	tag, err := language.Parse(opts.Lang)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --lang", err)
	}
	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	b, err := e.openBroker()
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := signalContext(cmd, e.logger)
	defer cancel()
	if opts.Duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, opts.Duration)
		defer stop()
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = e.cfg.Monitor.Interval
	}
	agg := monitor.NewAggregator(
		monitor.WithMaxSamples(e.cfg.Monitor.MaxSamples),
		monitor.WithActiveWindow(e.cfg.Worker.InactiveAfter),
	)

	var printErr error
	emit := func(s monitor.Summary) {
		if printErr != nil {
			return
		}
		printErr = e.out.Print(s, func(w io.Writer) error {
			return monitor.Render(w, s, tag)
		})
	}

	svc := monitor.NewService(agg, b.results,
		[]monitor.DepthSource{b.scenarios, b.results},
		monitor.WithInterval(interval),
		monitor.WithLogger(e.logger),
		monitor.OnTick(emit),
	)

	if opts.Once {
		svc.PollDepths(ctx)
		emit(agg.Snapshot())
		return printErr
	}

	if err := svc.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "monitor stopped", err)
	}
	if printErr != nil {
		return printErr
	}
	emit(agg.Snapshot())
	return printErr
}
