package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/formula"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/worker"
)

// WorkerOptions holds flags for the worker command.
type WorkerOptions struct {
	*RootOptions
	Replicas int
	ID       string
}

// NewWorkerCommand creates the worker command.
func NewWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WorkerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Evaluate scenarios until interrupted",
		Long: `Start one or more workers.

Each worker loads the parked model, then takes scenarios one at a time from
the scenario channel, evaluates the model formula and publishes the result.
A scenario for a different model triggers a reload. Final statistics are
printed on shutdown.

Example:
  montecarlo worker --db ./broker.db
  montecarlo worker --replicas 4 --id node1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkers(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Replicas, "replicas", "n", 1, "number of independent workers in this process")
	cmd.Flags().StringVar(&opts.ID, "id", "", "worker id (suffixed with -N when replicas > 1)")

	return cmd
}

func runWorkers(opts *WorkerOptions, cmd *cobra.Command) error {
	if opts.Replicas < 1 {
		return NewExitError(ExitCommandError, "--replicas must be at least 1")
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

	wcfg := e.cfg.Worker
	workers, err := worker.RunReplicas(ctx, opts.Replicas, func(i int) *worker.Worker {
		eval := formula.NewEvaluator(nil)
		eval.Timeout = wcfg.EvalTimeout

		wopts := []worker.Option{
			worker.WithEvaluator(eval),
			worker.WithLogger(e.logger),
			worker.WithStartupRetryDelay(wcfg.StartupRetryDelay),
			worker.WithModelRetryDelay(wcfg.ModelRetryDelay),
			worker.WithInactiveAfter(wcfg.InactiveAfter),
			worker.WithStatsInterval(wcfg.StatsInterval),
		}
		if id := replicaID(opts.ID, i, opts.Replicas); id != "" {
			wopts = append(wopts, worker.WithID(id))
		}
		return worker.New(b.models, b.scenarios, b.results, wopts...)
	})
	if err != nil {
		return WrapExitError(ExitFailure, "worker error", err)
	}

	snaps := make([]worker.Snapshot, len(workers))
	for i, w := range workers {
		snaps[i] = w.Snapshot()
	}
	return e.out.Print(snaps, func(w io.Writer) error {
		return writeSnapshots(w, snaps)
	})
}

// replicaID derives the id of replica i. An empty base lets the worker
// generate its own.
func replicaID(base string, i, n int) string {
	if base == "" || n == 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, i+1)
}

func writeSnapshots(w io.Writer, snaps []worker.Snapshot) error {
	for _, s := range snaps {
		model := s.ModelID
		if model == "" {
			model = "-"
		}
		_, err := fmt.Fprintf(w,
			"%s  model %s  processed %d  avg %s  published %d  dropped %d  requeued %d  reloads %d  %s\n",
			s.WorkerID, model, s.Processed, s.AvgProcessing.Round(time.Microsecond),
			s.Published, s.Dropped, s.Requeued, s.Reloads, s.Status,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
