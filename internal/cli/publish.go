package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/channel"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/modelfile"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/producer"
)

// modelView is the printed form of a parked model.
type modelView struct {
	ModelID     string    `json:"model_id"`
	Formula     string    `json:"formula"`
	Variables   []string  `json:"variables"`
	Iterations  int       `json:"iterations"`
	Version     int64     `json:"version"`
	PublishedAt time.Time `json:"published_at"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

func newModelView(e channel.PeekEntry) modelView {
	return modelView{
		ModelID:     e.Model.ID,
		Formula:     e.Model.Formula,
		Variables:   e.Model.VariableNames(),
		Iterations:  e.Model.Iterations,
		Version:     e.Version,
		PublishedAt: e.PublishedAt,
		ExpiresAt:   e.ExpiresAt,
	}
}

func (v modelView) write(w io.Writer) error {
	expires := "never"
	if !v.ExpiresAt.IsZero() {
		expires = v.ExpiresAt.UTC().Format(time.RFC3339)
	}
	_, err := fmt.Fprintf(w, "model %s (version %d, %d variables, expires %s)\n",
		v.ModelID, v.Version, len(v.Variables), expires)
	return err
}

func writeBatch(w io.Writer, r producer.BatchReport) error {
	_, err := fmt.Fprintf(w, "published %d/%d scenarios for model %s (failed %d, next seq %d) in %s\n",
		r.Published, r.Requested, r.ModelID, r.Failed, r.NextSeq, r.Elapsed.Round(time.Millisecond))
	return err
}

// PublishModelOptions holds flags for the publish-model command.
type PublishModelOptions struct {
	*RootOptions
	Scenarios int
	Seed      int64
}

// NewPublishModelCommand creates the publish-model command.
func NewPublishModelCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishModelOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish-model <file>",
		Short: "Park a model definition for workers",
		Long: `Load a model definition (.txt line format or .cue) and park it on the
model channel, replacing any model parked before. The model gets a fresh id.

Example:
  montecarlo publish-model models/ventas.txt
  montecarlo publish-model models/ventas.cue --scenarios 1000`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublishModel(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Scenarios, "scenarios", 0, "also publish this many scenarios")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "sampling seed (default: producer.seed from config)")

	return cmd
}

func runPublishModel(opts *PublishModelOptions, path string, cmd *cobra.Command) error {
	if opts.Scenarios < 0 {
		return NewExitError(ExitCommandError, "--scenarios must not be negative")
	}
	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}

	m, err := modelfile.Load(path, domain.ShortIDGenerator{})
	if err != nil {
		_ = e.out.Error(ErrCodeModelFile, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load model", err)
	}

	b, err := e.openBroker()
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := signalContext(cmd, e.logger)
	defer cancel()

	prod := newProducer(e, b, seedOr(opts.Seed, e.cfg.Producer.Seed))
	entry, err := prod.PublishModel(ctx, m)
	if err != nil {
		_ = e.out.Error(ErrCodePublish, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to publish model", err)
	}

	view := struct {
		Model modelView             `json:"model"`
		Batch *producer.BatchReport `json:"batch,omitempty"`
	}{Model: newModelView(entry)}

	if opts.Scenarios > 0 {
		report, err := prod.GenerateAndPublish(ctx, opts.Scenarios)
		view.Batch = &report
		if err != nil {
			return WrapExitError(ExitFailure, "scenario batch interrupted", err)
		}
	}

	return e.out.Print(view, func(w io.Writer) error {
		if err := view.Model.write(w); err != nil {
			return err
		}
		if view.Batch != nil {
			return writeBatch(w, *view.Batch)
		}
		return nil
	})
}

// PublishScenariosOptions holds flags for the publish-scenarios command.
type PublishScenariosOptions struct {
	*RootOptions
	Count int
	Seed  int64
}

// NewPublishScenariosCommand creates the publish-scenarios command.
func NewPublishScenariosCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishScenariosOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish-scenarios",
		Short: "Sample and publish scenarios for the parked model",
		Long: `Sample scenarios from the model currently parked on the model channel
and publish them to the scenario channel. Scenario ids continue from the
last batch published for the same model.

Example:
  montecarlo publish-scenarios --count 10000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublishScenarios(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "number of scenarios (required)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "sampling seed (default: producer.seed from config)")
	_ = cmd.MarkFlagRequired("count")

	return cmd
}

func runPublishScenarios(opts *PublishScenariosOptions, cmd *cobra.Command) error {
	if opts.Count < 1 {
		return NewExitError(ExitCommandError, "--count must be at least 1")
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

	prod := newProducer(e, b, seedOr(opts.Seed, e.cfg.Producer.Seed))
	if err := useParked(ctx, b, prod); err != nil {
		if errors.Is(err, channel.ErrNoModel) {
			_ = e.out.Error(ErrCodeNoModel, "no model parked: publish a model first", nil)
			return WrapExitError(ExitFailure, "cannot publish scenarios", err)
		}
		return WrapExitError(ExitFailure, "cannot publish scenarios", err)
	}

	report, err := prod.GenerateAndPublish(ctx, opts.Count)
	if err != nil {
		return WrapExitError(ExitFailure, "scenario batch interrupted", err)
	}
	return e.out.Print(report, func(w io.Writer) error {
		return writeBatch(w, report)
	})
}

func newProducer(e *env, b *broker, seed int64) *producer.Producer {
	return producer.New(b.models, b.scenarios,
		producer.WithSeed(seed),
		producer.WithProgressEvery(e.cfg.Producer.ProgressEvery),
		producer.WithSequences(b.store),
		producer.WithLogger(e.logger),
	)
}

// useParked makes the parked model the producer's sampling model.
func useParked(ctx context.Context, b *broker, prod *producer.Producer) error {
	entry, err := b.models.PeekEntry(ctx)
	if err != nil {
		return err
	}
	if entry == nil {
		return channel.ErrNoModel
	}
	return prod.UseModel(ctx, entry.Model)
}

func seedOr(flag, configured int64) int64 {
	if flag != 0 {
		return flag
	}
	return configured
}

// ModelsOptions holds flags for the models command.
type ModelsOptions struct {
	*RootOptions
	Dir string
}

// NewModelsCommand creates the models command.
func NewModelsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ModelsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "models",
		Short:         "List model definitions in the catalog directory",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			dir := opts.Dir
			if dir == "" {
				dir = e.cfg.Producer.ModelsDir
			}
			entries, err := modelfile.Catalog{Dir: dir}.List()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list models", err)
			}
			return e.out.Print(entries, func(w io.Writer) error {
				return writeCatalog(w, entries)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "catalog directory (default: producer.models_dir)")
	return cmd
}

func writeCatalog(w io.Writer, entries []modelfile.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no model definitions found")
		return err
	}
	for i, entry := range entries {
		if _, err := fmt.Fprintf(w, "%d) %s [%s] %s\n", i+1, entry.Name, entry.Format, entry.Path); err != nil {
			return err
		}
	}
	return nil
}
