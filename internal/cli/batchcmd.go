package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/arbiter-io/arbiter/internal/record"
)

func newBatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Create and drive work batches through their lifecycle",
	}

	cmd.AddCommand(newBatchCreateCommand(rootOpts))
	cmd.AddCommand(newBatchStartCommand(rootOpts))
	cmd.AddCommand(newBatchItemCommand(rootOpts))
	cmd.AddCommand(newBatchArtifactCommand(rootOpts))
	cmd.AddCommand(newBatchVerifyCommand(rootOpts))
	cmd.AddCommand(newBatchCompleteCommand(rootOpts))
	cmd.AddCommand(newBatchFailCommand(rootOpts))
	cmd.AddCommand(newBatchShowCommand(rootOpts))
	cmd.AddCommand(newBatchListCommand(rootOpts))

	return cmd
}

// batchAction runs one coordinator call and renders the resulting batch.
func batchAction(rootOpts *RootOptions, cmd *cobra.Command, fn func(*app) (record.WorkBatch, error)) error {
	a, err := openApp(rootOpts)
	if err != nil {
		return err
	}
	defer a.close()

	b, err := fn(a)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), rootOpts.Format, b, renderBatch)
}

func newBatchCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		batchType string
		items     []string
		expected  []string
	)

	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Create a new batch in DRAFT",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			workItems := make([]record.WorkItem, 0, len(items))
			for _, id := range items {
				workItems = append(workItems, record.WorkItem{ID: id, Status: record.ItemPending})
			}
			return batchAction(rootOpts, cmd, func(a *app) (record.WorkBatch, error) {
				return a.batches.CreateBatch(cmd.Context(), batchType, workItems, expected)
			})
		},
	}

	cmd.Flags().StringVar(&batchType, "type", "", "batch type (required)")
	cmd.Flags().StringArrayVar(&items, "item", nil, "work item id (repeatable)")
	cmd.Flags().StringArrayVar(&expected, "expect", nil, "expected artifact path (repeatable)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newBatchStartCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "start <batch-id>",
		Short:         "Move a batch DRAFT -> EXECUTING",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return batchAction(rootOpts, cmd, func(a *app) (record.WorkBatch, error) {
				return a.batches.StartBatch(cmd.Context(), args[0])
			})
		},
	}
}

func newBatchItemCommand(rootOpts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:           "item <batch-id> <item-id>",
		Short:         "Update a work item's status",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return batchAction(rootOpts, cmd, func(a *app) (record.WorkBatch, error) {
				return a.batches.UpdateWorkItem(cmd.Context(), args[0], args[1], status)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", record.ItemDone, "new item status")
	return cmd
}

func newBatchArtifactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "artifact <batch-id> <path>",
		Short:         "Record a produced artifact on a batch",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return batchAction(rootOpts, cmd, func(a *app) (record.WorkBatch, error) {
				return a.batches.AddProducedArtifact(cmd.Context(), args[0], args[1])
			})
		},
	}
}

func newBatchVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "verify <batch-id>",
		Short:         "Move a batch EXECUTING -> VERIFYING and reconcile artifacts",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return batchAction(rootOpts, cmd, func(a *app) (record.WorkBatch, error) {
				return a.batches.VerifyBatch(cmd.Context(), args[0])
			})
		},
	}
}

func newBatchCompleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "complete <batch-id>",
		Short:         "Complete a verified batch (fails closed on unbalanced reconciliation)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return batchAction(rootOpts, cmd, func(a *app) (record.WorkBatch, error) {
				return a.batches.CompleteBatch(cmd.Context(), args[0])
			})
		},
	}
}

func newBatchFailCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:           "fail <batch-id>",
		Short:         "Mark a batch FAILED",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return batchAction(rootOpts, cmd, func(a *app) (record.WorkBatch, error) {
				return a.batches.FailBatch(cmd.Context(), args[0], reason)
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the batch failed")
	return cmd
}

func newBatchShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <batch-id>",
		Short:         "Show one batch",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return batchAction(rootOpts, cmd, func(a *app) (record.WorkBatch, error) {
				return a.batches.GetBatch(cmd.Context(), args[0])
			})
		},
	}
}

func newBatchListCommand(rootOpts *RootOptions) *cobra.Command {
	var includeArchived bool

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List batches in chain order",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			batches, err := a.batches.ListBatches(cmd.Context(), includeArchived)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, batches, func(w io.Writer, v any) {
				for _, b := range batches {
					renderBatch(w, b)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&includeArchived, "archived", false, "include archived (terminal) batches")
	return cmd
}
