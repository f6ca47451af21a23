package cli

import (
	"fmt"

	"github.com/arbiter-io/arbiter/internal/batch"
	"github.com/arbiter-io/arbiter/internal/ledger"
	"github.com/arbiter-io/arbiter/internal/lease"
	"github.com/arbiter-io/arbiter/internal/record"
	"github.com/arbiter-io/arbiter/internal/registry"
	"github.com/arbiter-io/arbiter/internal/reversal"
	"github.com/arbiter-io/arbiter/internal/store"
)

// app bundles the opened store and the coordinators built over it.
// Each command opens the app, runs one operation, and closes it.
type app struct {
	store     *store.Store
	ledger    *ledger.Ledger
	leases    *lease.Coordinator
	registry  *registry.Registry
	batches   *batch.Coordinator
	reversals *reversal.Coordinator
}

// openApp opens the database and wires every coordinator.
func openApp(opts *RootOptions) (*app, error) {
	cfg, err := LoadConfig(opts.Config)
	if err != nil {
		return nil, err
	}
	applyConfig(opts, cfg)

	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", opts.Database, err)
	}

	clock := record.SystemClock{}
	lg := ledger.New(st, clock)
	snapshots := reversal.NewSnapshotManager(st, clock, opts.Workspace)

	return &app{
		store:     st,
		ledger:    lg,
		leases:    lease.NewCoordinator(st, lg, clock),
		registry:  registry.New(st, lg, clock, authorizerFromConfig(cfg)),
		batches:   batch.NewCoordinator(st, lg, clock),
		reversals: reversal.NewCoordinator(st, lg, clock, snapshots),
	}, nil
}

func (a *app) close() {
	_ = a.store.Close()
}
