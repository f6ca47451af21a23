package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbiter-io/arbiter/internal/store"
)

func newHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		eventType string
		taskID    string
		period    string
		since     string
		until     string
		causal    bool
	)

	cmd := &cobra.Command{
		Use:           "history",
		Short:         "Query the audit ledger",
		Long: `Query the audit ledger.

Without flags every event is returned in append order. --task with
--causal returns the task's events in causal (parent before child)
order instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.EventFilter{
				EventType: eventType,
				TaskID:    taskID,
				Period:    period,
			}
			var err error
			if filter.Since, err = parseEventTime(since); err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			if filter.Until, err = parseEventTime(until); err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}
			if causal && taskID == "" {
				return fmt.Errorf("--causal requires --task")
			}

			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			if causal {
				events, err := a.ledger.TaskHistory(cmd.Context(), taskID)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), rootOpts.Format, events, renderEvents)
			}

			events, err := a.ledger.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, events, renderEvents)
		},
	}

	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&taskID, "task", "", "filter by task id")
	cmd.Flags().StringVar(&period, "period", "", "filter by period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&since, "since", "", "events at or after this RFC 3339 time")
	cmd.Flags().StringVar(&until, "until", "", "events before this RFC 3339 time")
	cmd.Flags().BoolVar(&causal, "causal", false, "order a task's events causally")
	return cmd
}

func parseEventTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
