package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/channel"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/modelfile"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/producer"
)

// ProduceOptions holds flags for the produce command.
type ProduceOptions struct {
	*RootOptions
	Dir  string
	Seed int64

	ask prompter
}

// NewProduceCommand creates the interactive produce command.
func NewProduceCommand(rootOpts *RootOptions) *cobra.Command {
	return newProduceCommand(rootOpts, nil)
}

func newProduceCommand(rootOpts *RootOptions, ask prompter) *cobra.Command {
	opts := &ProduceOptions{RootOptions: rootOpts, ask: ask}

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Interactive producer menu",
		Long: `Run the interactive producer.

  1. Load a model from the catalog directory and park it
  2. Publish scenarios for the loaded model
  3. Exit

A model already parked on the model channel is picked up at start.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProduce(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "catalog directory (default: producer.models_dir)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "sampling seed (default: producer.seed from config)")

	return cmd
}

func runProduce(opts *ProduceOptions, cmd *cobra.Command) error {
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

	dir := opts.Dir
	if dir == "" {
		dir = e.cfg.Producer.ModelsDir
	}
	ask := opts.ask
	if ask == nil {
		ask = teaPrompter{opts: []tea.ProgramOption{
			tea.WithInput(cmd.InOrStdin()),
			tea.WithOutput(cmd.OutOrStdout()),
			tea.WithContext(ctx),
		}}
	}

	s := &session{
		prod:    newProducer(e, b, seedOr(opts.Seed, e.cfg.Producer.Seed)),
		catalog: modelfile.Catalog{Dir: dir},
		ids:     domain.ShortIDGenerator{},
		ask:     ask,
		out:     cmd.OutOrStdout(),
		logger:  e.logger,
	}
	switch err := useParked(ctx, b, s.prod); {
	case err == nil:
		fmt.Fprintf(s.out, "resuming with parked model %s\n", s.prod.Model().ID)
	case !errors.Is(err, channel.ErrNoModel):
		e.logger.Warn("cannot resume parked model", "error", err)
	}
	return s.run(ctx)
}

// session is one interactive producer run.
type session struct {
	prod    *producer.Producer
	catalog modelfile.Catalog
	ids     domain.IDGenerator
	ask     prompter
	out     io.Writer
	logger  *slog.Logger
}

func (s *session) run(ctx context.Context) error {
	for ctx.Err() == nil {
		fmt.Fprintln(s.out, "1. Load model")
		fmt.Fprintln(s.out, "2. Publish scenarios")
		fmt.Fprintln(s.out, "3. Exit")

		choice, err := s.ask.Ask("Select an option")
		if errors.Is(err, errPromptCancelled) {
			return nil
		}
		if err != nil {
			return WrapExitError(ExitFailure, "prompt failed", err)
		}

		switch strings.TrimSpace(choice) {
		case "1":
			err = s.loadModel(ctx)
		case "2":
			err = s.publishScenarios(ctx)
		case "3":
			fmt.Fprintln(s.out, "bye")
			return nil
		default:
			fmt.Fprintf(s.out, "invalid option %q\n", choice)
		}
		if errors.Is(err, errPromptCancelled) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *session) loadModel(ctx context.Context) error {
	entries, err := s.catalog.List()
	if err != nil {
		fmt.Fprintf(s.out, "cannot list %s: %v\n", s.catalog.Dir, err)
		return nil
	}
	if len(entries) == 0 {
		fmt.Fprintf(s.out, "no model definitions in %s\n", s.catalog.Dir)
		return nil
	}
	if err := writeCatalog(s.out, entries); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d) back\n", len(entries)+1)

	answer, err := s.ask.Ask("Select a model")
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || n < 1 || n > len(entries)+1 {
		fmt.Fprintf(s.out, "invalid selection %q\n", answer)
		return nil
	}
	if n == len(entries)+1 {
		return nil
	}

	entry := entries[n-1]
	m, err := modelfile.Load(entry.Path, s.ids)
	if err != nil {
		fmt.Fprintf(s.out, "cannot load %s: %v\n", entry.Name, err)
		return nil
	}
	parked, err := s.prod.PublishModel(ctx, m)
	if err != nil {
		s.logger.Error("publish model failed", "model_file", entry.Path, "error", err)
		fmt.Fprintf(s.out, "cannot publish %s: %v\n", entry.Name, err)
		return nil
	}
	fmt.Fprintf(s.out, "model %s published from %s (variables %v, iterations %d)\n",
		parked.Model.ID, entry.Name, parked.Model.VariableNames(), parked.Model.Iterations)
	return nil
}

func (s *session) publishScenarios(ctx context.Context) error {
	if s.prod.Model() == nil {
		fmt.Fprintln(s.out, "no model loaded, load one first")
		return nil
	}
	answer, err := s.ask.Ask("Number of scenarios")
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || n < 1 {
		fmt.Fprintf(s.out, "invalid number %q\n", answer)
		return nil
	}

	report, err := s.prod.GenerateAndPublish(ctx, n)
	if werr := writeBatch(s.out, report); werr != nil {
		return werr
	}
	if err != nil {
		fmt.Fprintf(s.out, "batch stopped: %v\n", err)
	}
	return nil
}
