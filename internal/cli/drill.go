package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/harness"
)

// DrillOptions holds flags for the drill command.
type DrillOptions struct {
	*RootOptions
	Dir string
}

// NewDrillCommand creates the drill command.
func NewDrillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DrillOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drill <file.yaml>...",
		Short: "Run end-to-end drills against a private broker",
		Long: `Run one or more drills. Each drill parks a model on its own broker,
publishes scenarios, runs workers until both channels drain and checks the
drill's expectations against what was delivered.

The configured database is not touched.

Exit codes:
  0  every expectation held
  1  an expectation failed
  2  a drill file is invalid or could not run

Example:
  montecarlo drill drills/two_workers.yaml
  montecarlo drill drills/*.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrills(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "keep-dir", "", "keep drill databases in this directory")

	return cmd
}

func runDrills(opts *DrillOptions, paths []string, cmd *cobra.Command) error {
	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}

	drills := make([]*harness.Drill, 0, len(paths))
	for _, path := range paths {
		d, err := harness.LoadDrill(path)
		if err != nil {
			_ = e.out.Error(ErrCodeDrill, err.Error(), map[string]string{"file": path})
			return WrapExitError(ExitCommandError, "invalid drill", err)
		}
		drills = append(drills, d)
	}

	ctx, cancel := signalContext(cmd, e.logger)
	defer cancel()

	runOpts := []harness.Option{harness.WithLogger(e.logger)}
	if opts.Dir != "" {
		runOpts = append(runOpts, harness.WithDir(opts.Dir))
	}

	reports := make([]*harness.Report, 0, len(drills))
	failed := 0
	for _, d := range drills {
		e.logger.Info("running drill", "drill", d.Name)
		r, err := harness.Run(ctx, d, runOpts...)
		if err != nil {
			_ = e.out.Error(ErrCodeDrill, err.Error(), map[string]string{"drill": d.Name})
			return WrapExitError(ExitCommandError, fmt.Sprintf("drill %s could not run", d.Name), err)
		}
		if !r.Pass() {
			failed++
		}
		reports = append(reports, r)
	}

	if err := e.out.Print(reports, func(w io.Writer) error {
		return writeReports(w, reports)
	}); err != nil {
		return err
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("[%s] %d of %d drills failed", ErrCodeExpectations, failed, len(reports)))
	}
	return nil
}

func writeReports(w io.Writer, reports []*harness.Report) error {
	for i, r := range reports {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := harness.WriteSummary(w, r); err != nil {
			return err
		}
		for _, f := range r.Failures {
			if _, err := fmt.Fprintf(w, "  FAIL %v\n", f); err != nil {
				return err
			}
		}
	}
	return nil
}
