package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatch() WorkBatch {
	created := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	return WorkBatch{
		BatchID:           "wb-2026-03-15-0001",
		BatchType:         "refactor",
		Status:            BatchDraft,
		WorkItems:         []WorkItem{{ID: "item-1", Status: ItemPending}},
		ExpectedArtifacts: []string{"src/main.go"},
		ProducedArtifacts: []string{},
		PrevBatchHash:     "",
		SequenceNumber:    1,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

func TestBatchHashDeterministic(t *testing.T) {
	b := testBatch()

	h1, err := BatchHash(b)
	require.NoError(t, err)
	h2, err := BatchHash(b)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestBatchHashChangesWithMutation(t *testing.T) {
	b := testBatch()
	base, err := BatchHash(b)
	require.NoError(t, err)

	mutations := []struct {
		name   string
		mutate func(*WorkBatch)
	}{
		{"status", func(b *WorkBatch) { b.Status = BatchExecuting }},
		{"item status", func(b *WorkBatch) { b.WorkItems[0].Status = ItemDone }},
		{"produced artifact", func(b *WorkBatch) { b.ProducedArtifacts = append(b.ProducedArtifacts, "src/new.go") }},
		{"prev hash", func(b *WorkBatch) { b.PrevBatchHash = "abc" }},
		{"sequence", func(b *WorkBatch) { b.SequenceNumber = 2 }},
		{"updated at", func(b *WorkBatch) { b.UpdatedAt = b.UpdatedAt.Add(time.Second) }},
		{"reconciliation", func(b *WorkBatch) {
			b.Reconciliation = &ReconciliationReport{
				ProducedArtifacts: []string{},
				UntrackedDelta:    []string{},
				Balanced:          true,
			}
		}},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			mutated := testBatch()
			tt.mutate(&mutated)
			h, err := BatchHash(mutated)
			require.NoError(t, err)
			assert.NotEqual(t, base, h, "mutating %s must change the hash", tt.name)
		})
	}
}

func TestBatchHashExcludesOwnHash(t *testing.T) {
	b := testBatch()
	h1, err := BatchHash(b)
	require.NoError(t, err)

	b.BatchHash = h1
	h2, err := BatchHash(b)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "the stored hash must not feed its own computation")
}

func TestReversalHashDeterministic(t *testing.T) {
	r := ReversalBatch{
		ReversalID:        "rev-2026-03-15-0001",
		ReversesBatchID:   "wb-2026-03-15-0001",
		ReversalType:      ReversalFull,
		Status:            ReversalDraft,
		ItemsToReverse:    []string{"src/main.go"},
		Actions:           []CompensatingAction{},
		OriginalBatchHash: "deadbeef",
		CreatedAt:         time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}

	h1, err := ReversalHash(r)
	require.NoError(t, err)
	h2, err := ReversalHash(r)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	r.Status = ReversalCompleted
	h3, err := ReversalHash(r)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte("same bytes")
	assert.NotEqual(t, hashWithDomain(DomainBatch, data), hashWithDomain(DomainReversal, data))
	assert.NotEqual(t, hashWithDomain(DomainBatch, data), ContentHash(data))
}

func TestContentHashEmptyVsMissing(t *testing.T) {
	// An empty file still has a hash; a missing file is represented by the
	// empty string elsewhere. The two must never collide.
	h := ContentHash(nil)
	assert.NotEmpty(t, h)
	assert.Len(t, h, 64)
}
