package reversal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arbiter-io/arbiter/internal/record"
	"github.com/arbiter-io/arbiter/internal/store"
)

// SnapshotManager captures and retrieves pre-reversal snapshots of
// workspace paths.
type SnapshotManager struct {
	store *store.Store
	clock record.Clock
	root  string
}

// NewSnapshotManager creates a snapshot manager rooted at the workspace
// directory against which artifact paths are resolved.
func NewSnapshotManager(st *store.Store, clock record.Clock, root string) *SnapshotManager {
	return &SnapshotManager{store: st, clock: clock, root: root}
}

// CaptureSnapshot records the existence and content hash of every path.
// The snapshot ID derives deterministically from the reversal ID, so at
// most one snapshot exists per reversal. Missing paths are recorded with
// Exists=false and an empty hash.
func (m *SnapshotManager) CaptureSnapshot(ctx context.Context, reversalID string, paths []string) (record.Snapshot, error) {
	states := make([]record.FileState, 0, len(paths))
	for _, p := range paths {
		state, err := m.fileState(p)
		if err != nil {
			return record.Snapshot{}, fmt.Errorf("capture snapshot: %w", err)
		}
		states = append(states, state)
	}

	snap := record.Snapshot{
		SnapshotID: record.SnapshotID(reversalID),
		ReversalID: reversalID,
		FileStates: states,
		CapturedAt: m.clock.Now(),
	}
	if err := m.store.InsertSnapshot(ctx, snap); err != nil {
		return record.Snapshot{}, err
	}
	return snap, nil
}

// GetSnapshot returns a snapshot by ID, or nil if absent.
func (m *SnapshotManager) GetSnapshot(ctx context.Context, snapshotID string) (*record.Snapshot, error) {
	return m.store.GetSnapshot(ctx, snapshotID)
}

// fileState hashes one workspace-relative path.
func (m *SnapshotManager) fileState(path string) (record.FileState, error) {
	normalized := record.NormalizePath(path)
	abs, err := m.resolve(normalized)
	if err != nil {
		return record.FileState{}, err
	}
	data, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		return record.FileState{Path: normalized, Exists: false, Hash: ""}, nil
	}
	if err != nil {
		return record.FileState{}, fmt.Errorf("read %s: %w", normalized, err)
	}
	return record.FileState{Path: normalized, Exists: true, Hash: record.ContentHash(data)}, nil
}

// resolve joins a workspace-relative path with the root, rejecting paths
// that would escape it.
func (m *SnapshotManager) resolve(path string) (string, error) {
	if path == "" || !filepath.IsLocal(filepath.FromSlash(path)) {
		return "", fmt.Errorf("path %q escapes the workspace root", path)
	}
	return filepath.Join(m.root, filepath.FromSlash(path)), nil
}
