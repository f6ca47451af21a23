package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arbiter-io/arbiter/internal/record"
)

func newReversalCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverse",
		Short: "Create, execute, and verify batch reversals",
	}

	cmd.AddCommand(newReversalCreateCommand(rootOpts))
	cmd.AddCommand(newReversalExecuteCommand(rootOpts))
	cmd.AddCommand(newReversalVerifyCommand(rootOpts))
	cmd.AddCommand(newReversalActionsCommand(rootOpts))
	cmd.AddCommand(newReversalShowCommand(rootOpts))
	cmd.AddCommand(newSnapshotCommand(rootOpts))

	return cmd
}

func renderReversal(w io.Writer, v any) {
	r, ok := v.(record.ReversalBatch)
	if !ok {
		fmt.Fprintf(w, "%v\n", v)
		return
	}
	fmt.Fprintf(w, "%s  %s of %s  [%s]\n", r.ReversalID, r.ReversalType, r.ReversesBatchID, r.Status)
	fmt.Fprintf(w, "  hash: %s\n", r.ReversalHash)
	fmt.Fprintf(w, "  original batch hash: %s\n", r.OriginalBatchHash)
	if r.Reason != "" {
		fmt.Fprintf(w, "  reason: %s\n", r.Reason)
	}
	for _, a := range r.Actions {
		fmt.Fprintf(w, "  %s %s %s", a.ActionID, a.ActionType, a.Target)
		if a.Result != "" {
			fmt.Fprintf(w, " -> %s", a.Result)
		}
		fmt.Fprintln(w)
	}
}

func newReversalCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		partial bool
		reason  string
		items   []string
	)

	cmd := &cobra.Command{
		Use:           "create <batch-id>",
		Short:         "Draft a reversal of a completed batch",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rtype := record.ReversalFull
			if partial {
				rtype = record.ReversalPartial
			}
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			rev, err := a.reversals.CreateReversal(cmd.Context(), args[0], rtype, reason, items)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, rev, renderReversal)
		},
	}

	cmd.Flags().BoolVar(&partial, "partial", false, "reverse only the named items")
	cmd.Flags().StringVar(&reason, "reason", "", "why the batch is being reversed")
	cmd.Flags().StringArrayVar(&items, "item", nil, "artifact to reverse (repeatable, partial only)")
	return cmd
}

func newReversalExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "execute <reversal-id>",
		Short:         "Execute a drafted reversal (snapshots first, runs exactly once)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			rev, err := a.reversals.ExecuteReversal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, rev, renderReversal)
		},
	}
}

func newReversalVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "verify <reversal-id>",
		Short:         "Check that every compensating action applied cleanly",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.reversals.VerifyReversal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, result, func(w io.Writer, v any) {
				if result.Success {
					fmt.Fprintln(w, "verified")
				} else {
					fmt.Fprintf(w, "NOT VERIFIED: %s\n", result.Message)
				}
				if len(result.FailedActions) > 0 {
					fmt.Fprintf(w, "  failed actions: %s\n", strings.Join(result.FailedActions, ", "))
				}
			})
		},
	}
}

func newReversalActionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "actions <batch-id>",
		Short:         "Preview the compensating actions for a batch without executing",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			actions, err := a.reversals.CompensatingActions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, actions, func(w io.Writer, v any) {
				for _, act := range actions {
					fmt.Fprintf(w, "%s %s\n", act.ActionType, act.Target)
				}
			})
		},
	}
}

func newReversalShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <reversal-id>",
		Short:         "Show one reversal",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			rev, err := a.store.GetReversal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rev == nil {
				return fmt.Errorf("no reversal %s", args[0])
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, *rev, renderReversal)
		},
	}
}

func newSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "snapshot <snapshot-id>",
		Short:         "Show the pre-reversal snapshot for a reversal",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			snap, err := a.reversals.Snapshots().GetSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if snap == nil {
				return fmt.Errorf("no snapshot %s", args[0])
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, *snap, func(w io.Writer, v any) {
				fmt.Fprintf(w, "%s for %s at %s\n", snap.SnapshotID, snap.ReversalID,
					snap.CapturedAt.Format("2006-01-02T15:04:05Z07:00"))
				for _, fs := range snap.FileStates {
					if fs.Exists {
						fmt.Fprintf(w, "  %s %s\n", fs.Hash, fs.Path)
					} else {
						fmt.Fprintf(w, "  (absent) %s\n", fs.Path)
					}
				}
			})
		},
	}
}
