package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/arbiter-io/arbiter/internal/lease"
	"github.com/arbiter-io/arbiter/internal/record"
	"github.com/arbiter-io/arbiter/internal/registry"
)

// printResult renders v as indented JSON or as text via render, depending
// on the selected format.
func printResult(w io.Writer, format string, v any, render func(io.Writer, any)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	render(w, v)
	return nil
}

// renderDecision writes the human-readable form of a coordinator decision.
func renderDecision(w io.Writer, v any) {
	d, ok := v.(lease.Decision)
	if !ok {
		fmt.Fprintf(w, "%v\n", v)
		return
	}
	fmt.Fprintf(w, "%s", d.Outcome)
	if d.ReasonCode != "" {
		fmt.Fprintf(w, " (%s)", d.ReasonCode)
	}
	fmt.Fprintln(w)
	if d.HeldBy != "" {
		fmt.Fprintf(w, "  held by: %s\n", d.HeldBy)
	}
	if d.Message != "" {
		fmt.Fprintf(w, "  %s\n", d.Message)
	}
	if d.Lease != nil {
		renderLease(w, *d.Lease)
	}
}

// renderAcquire writes the human-readable form of a registry acquisition.
func renderAcquire(w io.Writer, v any) {
	r, ok := v.(registry.AcquireResult)
	if !ok {
		fmt.Fprintf(w, "%v\n", v)
		return
	}
	if r.Denied != nil {
		fmt.Fprintf(w, "DENIED (%s)\n  %s\n", r.Denied.ReasonCode, r.Denied.Message)
		return
	}
	if r.Conflict != nil {
		fmt.Fprintf(w, "BUSY\n  held by: %s (claim %s)\n  resource: %s:%s\n",
			r.Conflict.AgentID, r.Conflict.ClaimID,
			r.Conflict.Resource.Type, r.Conflict.Resource.Path)
		return
	}
	if r.Replayed {
		fmt.Fprintln(w, "GRANTED (replayed)")
	} else {
		fmt.Fprintln(w, "GRANTED")
	}
	fmt.Fprintf(w, "  claim: %s  ns=%s  agent=%s\n", r.Claim.ClaimID, r.Claim.Namespace, r.Claim.AgentID)
	fmt.Fprintf(w, "  expires: %s\n", r.Claim.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
}

func renderLease(w io.Writer, l record.Lease) {
	fmt.Fprintf(w, "  lease: %s\n", l.LeaseID)
	fmt.Fprintf(w, "  owner: %s  mode: %s  status: %s\n", l.OwnerAgentID, l.Mode, l.Status)
	fmt.Fprintf(w, "  expires: %s\n", l.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	paths := make([]string, len(l.Resources))
	for i, r := range l.Resources {
		paths[i] = fmt.Sprintf("%s:%s", r.Type, r.Path)
	}
	fmt.Fprintf(w, "  resources: %s\n", strings.Join(paths, ", "))
}

func renderBatch(w io.Writer, v any) {
	b, ok := v.(record.WorkBatch)
	if !ok {
		fmt.Fprintf(w, "%v\n", v)
		return
	}
	fmt.Fprintf(w, "%s  %s  [%s]\n", b.BatchID, b.BatchType, b.Status)
	fmt.Fprintf(w, "  hash: %s\n", b.BatchHash)
	if b.PrevBatchHash != "" {
		fmt.Fprintf(w, "  prev: %s\n", b.PrevBatchHash)
	}
	for _, item := range b.WorkItems {
		fmt.Fprintf(w, "  item %s: %s\n", item.ID, item.Status)
	}
	if b.Reconciliation != nil {
		if b.Reconciliation.Balanced {
			fmt.Fprintln(w, "  reconciliation: balanced")
		} else {
			fmt.Fprintf(w, "  reconciliation: UNBALANCED, untracked: %s\n",
				strings.Join(b.Reconciliation.UntrackedDelta, ", "))
		}
	}
}

func renderEvents(w io.Writer, v any) {
	events, ok := v.([]record.AuditEvent)
	if !ok {
		fmt.Fprintf(w, "%v\n", v)
		return
	}
	for _, e := range events {
		fmt.Fprintf(w, "%s %4d  %-24s %s", e.Period, e.SequenceNumber, e.EventType, e.EventID)
		if e.AgentID != "" {
			fmt.Fprintf(w, "  agent=%s", e.AgentID)
		}
		fmt.Fprintln(w)
	}
}
