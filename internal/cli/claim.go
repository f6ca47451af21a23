package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/arbiter-io/arbiter/internal/lease"
	"github.com/arbiter-io/arbiter/internal/record"
	"github.com/arbiter-io/arbiter/internal/registry"
)

// parseResources converts "type:path" arguments into claimed resources.
// A bare path is treated as a file.
func parseResources(args []string) ([]record.ClaimedResource, error) {
	resources := make([]record.ClaimedResource, 0, len(args))
	for _, arg := range args {
		rtype := record.ResourceFile
		path := arg
		if len(arg) >= 4 && arg[:4] == "dir:" {
			rtype = record.ResourceDirectory
			path = arg[4:]
		} else if len(arg) >= 5 && arg[:5] == "file:" {
			path = arg[5:]
		}
		if path == "" {
			return nil, fmt.Errorf("empty resource path in %q", arg)
		}
		resources = append(resources, record.ClaimedResource{Type: rtype, Path: path})
	}
	return resources, nil
}

func newClaimCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		mode      string
		ttl       int64
		intent    string
		workID    string
		namespace string
		idemKey   string
		taskID    string
	)

	cmd := &cobra.Command{
		Use:   "claim <resource>...",
		Short: "Claim a lease on one or more resources",
		Long: `Claim a lease on one or more resources.

Resources are "file:<path>" or "dir:<path>"; a bare path means file.
With --namespace the claim goes through the namespace registry and
returns a cl- claim instead of a lease.

Example:
  arbiter claim --agent builder-1 --mode write dir:src file:go.mod`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := parseResources(args)
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			if namespace != "" {
				result, err := a.registry.Acquire(cmd.Context(), registry.AcquireRequest{
					TaskID:         taskID,
					AgentID:        rootOpts.AgentID,
					Namespace:      namespace,
					Resources:      resources,
					TTLSeconds:     ttl,
					IdempotencyKey: idemKey,
				})
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), rootOpts.Format, result, renderAcquire)
			}

			decision, err := a.leases.Claim(cmd.Context(), lease.ClaimRequest{
				Resources:  resources,
				Mode:       record.Mode(mode),
				TTLSeconds: ttl,
				Intent:     intent,
				AgentID:    rootOpts.AgentID,
				WorkID:     workID,
			})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, decision, renderDecision)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "write", "access mode (read|write)")
	cmd.Flags().Int64Var(&ttl, "ttl", 900, "lease lifetime in seconds")
	cmd.Flags().StringVar(&intent, "intent", "", "human-readable intent")
	cmd.Flags().StringVar(&workID, "work", "", "work/batch id this lease belongs to")
	cmd.Flags().StringVar(&namespace, "namespace", "", "acquire through the namespace registry")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "idempotency key for registry claims")
	cmd.Flags().StringVar(&taskID, "task", "", "task id for registry claims")

	return cmd
}

func newPeekCommand(rootOpts *RootOptions) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:           "peek [resource]...",
		Short:         "Check availability without creating a lease",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := parseResources(args)
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			decision, err := a.leases.Peek(cmd.Context(), resources, record.Mode(mode))
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, decision, renderDecision)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "write", "access mode to test (read|write)")
	return cmd
}

func newExtendCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "extend <lease-id> <resource>...",
		Short:         "Add resources to an existing lease",
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := parseResources(args[1:])
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			decision, err := a.leases.ClaimAdditional(cmd.Context(), args[0], resources)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, decision, renderDecision)
		},
	}
	return cmd
}

func newReleaseCommand(rootOpts *RootOptions) *cobra.Command {
	var outcome string

	cmd := &cobra.Command{
		Use:           "release <lease-id>",
		Short:         "Release a lease (idempotent)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			decision, err := a.leases.Release(cmd.Context(), args[0], outcome)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, decision, renderDecision)
		},
	}

	cmd.Flags().StringVar(&outcome, "outcome", "done", "recorded outcome of the work")
	return cmd
}

func newForceReleaseCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:           "force-release <resource>",
		Short:         "Administratively release every lease covering a resource",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return fmt.Errorf("--reason is required for force-release")
			}
			resources, err := parseResources(args)
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			decision, err := a.leases.ForceRelease(cmd.Context(), resources[0], reason, rootOpts.AgentID)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, decision, renderDecision)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the override is needed (required)")
	return cmd
}

func newRenewCommand(rootOpts *RootOptions) *cobra.Command {
	var ttl int64

	cmd := &cobra.Command{
		Use:           "renew <lease-id>",
		Short:         "Extend a lease's expiry",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			renewed, err := a.leases.Renew(cmd.Context(), args[0], ttl)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, *renewed, func(w io.Writer, v any) {
				renderLease(w, v.(record.Lease))
			})
		},
	}

	cmd.Flags().Int64Var(&ttl, "ttl", 900, "new lifetime in seconds from now")
	return cmd
}

func newHeartbeatCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		eventType string
		payload   string
	)

	cmd := &cobra.Command{
		Use:           "heartbeat <lease-id>",
		Short:         "Record a liveness/progress event against an active lease",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var payloadMap map[string]any
			if err := json.Unmarshal([]byte(payload), &payloadMap); err != nil {
				return fmt.Errorf("invalid --payload JSON: %w", err)
			}
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			accepted, err := a.leases.Status(cmd.Context(), args[0], eventType, payloadMap)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, map[string]any{"accepted": accepted}, func(w io.Writer, v any) {
				fmt.Fprintf(w, "accepted: %v\n", accepted)
			})
		},
	}

	cmd.Flags().StringVar(&eventType, "event", "lease.heartbeat", "event type to record")
	cmd.Flags().StringVar(&payload, "payload", "{}", "event payload as JSON")
	return cmd
}

func newClaimsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		namespace     string
		allNamespaces bool
	)

	cmd := &cobra.Command{
		Use:           "claims",
		Short:         "List active leases and namespace claims",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			leases, err := a.leases.ActiveLeases(cmd.Context())
			if err != nil {
				return err
			}
			claims, err := a.registry.ListClaims(cmd.Context(), rootOpts.AgentID, namespace, allNamespaces)
			if err != nil {
				return err
			}

			out := map[string]any{"leases": leases, "claims": claims}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, out, func(w io.Writer, v any) {
				for _, l := range leases {
					renderLease(w, l)
				}
				for _, c := range claims {
					fmt.Fprintf(w, "  claim %s ns=%s agent=%s\n", c.ClaimID, c.Namespace, c.AgentID)
				}
			})
		},
	}

	cmd.Flags().StringVar(&namespace, "namespace", "", "namespace to list")
	cmd.Flags().BoolVar(&allNamespaces, "all-namespaces", false, "list every visible namespace")
	return cmd
}
