package index

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnichannel-rag-platform/models"
)

func tenantChunk(tenantID, docID string, seq int, embedding []float32) models.Chunk {
	return models.Chunk{
		ID:            fmt.Sprintf("%s-%04d", docID, seq),
		DocumentID:    docID,
		TenantID:      tenantID,
		Text:          "text",
		SequenceIndex: seq,
		Embedding:     embedding,
	}
}

func TestRegistryEmptySnapshotForUnknownTenant(t *testing.T) {
	r := NewRegistry()

	snap := r.Snapshot("nobody")
	require.NotNil(t, snap)
	assert.True(t, snap.Empty())
	assert.Equal(t, "nobody", snap.TenantID)
}

func TestRegistrySwapPublishesChunks(t *testing.T) {
	r := NewRegistry()

	chunks := []models.Chunk{
		tenantChunk("tenant-a", "doc-2", 0, []float32{1, 0}),
		tenantChunk("tenant-a", "doc-1", 1, []float32{0, 1}),
		tenantChunk("tenant-a", "doc-1", 0, []float32{1, 1}),
	}
	require.NoError(t, r.Swap("tenant-a", chunks))

	snap := r.Snapshot("tenant-a")
	require.Len(t, snap.Chunks, 3)
	assert.Equal(t, 2, snap.Dimensions)
	assert.Equal(t, int64(1), snap.Version)

	// Sorted by document then sequence.
	assert.Equal(t, "doc-1-0000", snap.Chunks[0].ID)
	assert.Equal(t, "doc-1-0001", snap.Chunks[1].ID)
	assert.Equal(t, "doc-2-0000", snap.Chunks[2].ID)
}

func TestRegistrySwapRejectsForeignTenantChunks(t *testing.T) {
	r := NewRegistry()

	err := r.Swap("tenant-a", []models.Chunk{
		tenantChunk("tenant-a", "doc-1", 0, nil),
		tenantChunk("tenant-b", "doc-1", 1, nil),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTenantIsolation)

	// Nothing was published.
	assert.True(t, r.Snapshot("tenant-a").Empty())
}

func TestRegistrySwapRejectsMixedDimensions(t *testing.T) {
	r := NewRegistry()

	err := r.Swap("tenant-a", []models.Chunk{
		tenantChunk("tenant-a", "doc-1", 0, []float32{1, 0}),
		tenantChunk("tenant-a", "doc-1", 1, []float32{1, 0, 0}),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestRegistryOldSnapshotSurvivesSwap(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Swap("tenant-a", []models.Chunk{tenantChunk("tenant-a", "doc-1", 0, nil)}))

	before := r.Snapshot("tenant-a")
	require.NoError(t, r.Swap("tenant-a", []models.Chunk{
		tenantChunk("tenant-a", "doc-2", 0, nil),
		tenantChunk("tenant-a", "doc-2", 1, nil),
	}))

	// A reader holding the old snapshot still sees the old view.
	assert.Len(t, before.Chunks, 1)
	assert.Equal(t, "doc-1-0000", before.Chunks[0].ID)

	after := r.Snapshot("tenant-a")
	assert.Len(t, after.Chunks, 2)
	assert.Equal(t, int64(2), after.Version)
}

func TestRegistryReplaceDocument(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Swap("tenant-a", []models.Chunk{
		tenantChunk("tenant-a", "doc-1", 0, nil),
		tenantChunk("tenant-a", "doc-2", 0, nil),
	}))

	require.NoError(t, r.ReplaceDocument("tenant-a", "doc-1", []models.Chunk{
		tenantChunk("tenant-a", "doc-1", 0, nil),
		tenantChunk("tenant-a", "doc-1", 1, nil),
	}))

	snap := r.Snapshot("tenant-a")
	assert.Len(t, snap.Chunks, 3)

	require.NoError(t, r.RemoveDocument("tenant-a", "doc-1"))
	snap = r.Snapshot("tenant-a")
	require.Len(t, snap.Chunks, 1)
	assert.Equal(t, "doc-2", snap.Chunks[0].DocumentID)
}

func TestRegistryTenantsAreIsolated(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Swap("tenant-a", []models.Chunk{tenantChunk("tenant-a", "doc-a", 0, nil)}))
	require.NoError(t, r.Swap("tenant-b", []models.Chunk{tenantChunk("tenant-b", "doc-b", 0, nil)}))

	for _, c := range r.Snapshot("tenant-a").Chunks {
		assert.Equal(t, "tenant-a", c.TenantID)
	}
	for _, c := range r.Snapshot("tenant-b").Chunks {
		assert.Equal(t, "tenant-b", c.TenantID)
	}
	assert.Equal(t, []string{"tenant-a", "tenant-b"}, r.Tenants())
}

func TestRegistryRandomizedTenantIsolation(t *testing.T) {
	r := NewRegistry()
	rng := rand.New(rand.NewSource(42))
	tenants := []string{"t0", "t1", "t2", "t3", "t4"}

	// Random interleaving of document replacements across tenants: no
	// snapshot may ever expose another tenant's chunks.
	for i := 0; i < 200; i++ {
		tenant := tenants[rng.Intn(len(tenants))]
		docID := fmt.Sprintf("doc-%d", rng.Intn(4))
		chunks := make([]models.Chunk, rng.Intn(5))
		for j := range chunks {
			chunks[j] = tenantChunk(tenant, docID, j, nil)
		}
		require.NoError(t, r.ReplaceDocument(tenant, docID, chunks))

		for _, other := range tenants {
			for _, c := range r.Snapshot(other).Chunks {
				require.Equal(t, other, c.TenantID,
					"tenant %s observed chunk %s of tenant %s", other, c.ID, c.TenantID)
			}
		}
	}
}

func TestRegistryConcurrentSwapsAndReads(t *testing.T) {
	r := NewRegistry()
	tenants := []string{"t0", "t1", "t2", "t3"}

	var wg sync.WaitGroup
	for _, tenant := range tenants {
		wg.Add(2)
		go func(tenant string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				docID := fmt.Sprintf("doc-%d", i%3)
				_ = r.ReplaceDocument(tenant, docID, []models.Chunk{
					tenantChunk(tenant, docID, 0, nil),
				})
			}
		}(tenant)
		go func(tenant string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				snap := r.Snapshot(tenant)
				for _, c := range snap.Chunks {
					if c.TenantID != tenant {
						t.Errorf("tenant %s observed chunk of %s", tenant, c.TenantID)
						return
					}
				}
			}
		}(tenant)
	}
	wg.Wait()
}

func TestRegistryLockTenantSerializes(t *testing.T) {
	r := NewRegistry()

	unlock := r.LockTenant("tenant-a")
	acquired := make(chan struct{})
	go func() {
		u := r.LockTenant("tenant-a")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first still held")
	default:
	}

	// Another tenant's lock is independent.
	otherUnlock := r.LockTenant("tenant-b")
	otherUnlock()

	unlock()
	<-acquired
}
