// Package cli wires the arbiter command tree. Commands are thin: every
// decision is delegated to the coordinator, registry, batch, and reversal
// packages; the CLI only parses arguments and renders results.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Database  string
	Config    string
	Format    string // "json" | "text"
	AgentID   string
	Workspace string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the arbiter CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "arbiter",
		Short: "Arbiter - coordination authority for concurrent agents",
		Long: "Arbiter grants resource leases, records every coordination decision in an\n" +
			"append-only ledger, and tracks batches of work that can be verified and\n" +
			"reversed as a unit.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "arbiter.db", "path to the arbiter database")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.AgentID, "agent", "", "acting agent id")
	cmd.PersistentFlags().StringVar(&opts.Workspace, "workspace", ".", "workspace root for reversal file operations")

	cmd.AddCommand(newClaimCommand(opts))
	cmd.AddCommand(newPeekCommand(opts))
	cmd.AddCommand(newExtendCommand(opts))
	cmd.AddCommand(newReleaseCommand(opts))
	cmd.AddCommand(newForceReleaseCommand(opts))
	cmd.AddCommand(newRenewCommand(opts))
	cmd.AddCommand(newHeartbeatCommand(opts))
	cmd.AddCommand(newClaimsCommand(opts))
	cmd.AddCommand(newBatchCommand(opts))
	cmd.AddCommand(newReversalCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
