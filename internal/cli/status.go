package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/channel"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/monitor"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Dead int
}

type deadLetterView struct {
	Queue      string    `json:"queue"`
	MessageID  int64     `json:"message_id"`
	Reason     string    `json:"reason"`
	Deliveries int       `json:"deliveries"`
	DeadAt     time.Time `json:"dead_at"`
	Body       string    `json:"body"`
}

type statusView struct {
	Model       *modelView             `json:"model"`
	Queues      []monitor.QueueSummary `json:"queues"`
	DeadLetters []deadLetterView       `json:"dead_letters,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the parked model and queue depths",
		Long: `Show the model parked on the model channel, the depth of the scenario
and result channels and, with --dead, the most recent dropped messages.

Example:
  montecarlo status
  montecarlo status --dead 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Dead, "dead", 0, "show up to N dead letters per queue")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	if opts.Dead < 0 {
		return NewExitError(ExitCommandError, "--dead must not be negative")
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

	ctx := cmd.Context()
	view := statusView{Queues: []monitor.QueueSummary{}}

	entry, err := b.models.PeekEntry(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read model channel", err)
	}
	if entry != nil {
		mv := newModelView(*entry)
		view.Model = &mv
	}

	for _, q := range []*channel.Queue{b.scenarios, b.results} {
		d, err := q.Depth(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read queue depth", err)
		}
		view.Queues = append(view.Queues, monitor.QueueSummary{
			Queue: q.Name(), Ready: d.Ready, Leased: d.Leased, Dead: d.Dead,
		})
		if opts.Dead == 0 {
			continue
		}
		letters, err := q.DeadLetters(ctx, opts.Dead)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read dead letters", err)
		}
		for _, l := range letters {
			view.DeadLetters = append(view.DeadLetters, deadLetterView{
				Queue:      l.Queue,
				MessageID:  l.MessageID,
				Reason:     l.Reason,
				Deliveries: l.Deliveries,
				DeadAt:     l.DeadAt,
				Body:       string(l.Body),
			})
		}
	}

	return e.out.Print(view, func(w io.Writer) error {
		return writeStatus(w, view)
	})
}

func writeStatus(w io.Writer, v statusView) error {
	if v.Model == nil {
		if _, err := fmt.Fprintln(w, "no model parked"); err != nil {
			return err
		}
	} else if err := v.Model.write(w); err != nil {
		return err
	}
	for _, q := range v.Queues {
		if _, err := fmt.Fprintf(w, "queue %s  ready %d  leased %d  dead %d\n",
			q.Queue, q.Ready, q.Leased, q.Dead); err != nil {
			return err
		}
	}
	for _, l := range v.DeadLetters {
		if _, err := fmt.Fprintf(w, "dead %s #%d after %d deliveries: %s\n",
			l.Queue, l.MessageID, l.Deliveries, l.Reason); err != nil {
			return err
		}
	}
	return nil
}
