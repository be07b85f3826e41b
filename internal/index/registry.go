package index

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"omnichannel-rag-platform/models"
)

// Snapshot is an immutable view of one tenant's index. Readers get the
// current snapshot pointer and keep scoring against it even while an
// ingestion builds its replacement. Never mutate Chunks after publication.
type Snapshot struct {
	TenantID   string
	Chunks     []models.Chunk
	Dimensions int // 0 until the first embedded chunk is published
	Version    int64
	UpdatedAt  time.Time
}

// Empty reports whether the snapshot holds no chunks.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Chunks) == 0
}

// Registry holds the per-tenant snapshots. Queries read snapshots through a
// RWMutex; ingestion replaces a tenant's snapshot with a single pointer swap
// so a query observes either the old index or the new one, never a mix.
type Registry struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot

	ingestMu sync.Mutex
	ingests  map[string]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		snapshots: make(map[string]*Snapshot),
		ingests:   make(map[string]*sync.Mutex),
	}
}

// Snapshot returns the tenant's current index view. Tenants that never
// ingested anything get an empty snapshot, not nil.
func (r *Registry) Snapshot(tenantID string) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if snap, ok := r.snapshots[tenantID]; ok {
		return snap
	}
	return &Snapshot{TenantID: tenantID}
}

// Tenants lists every tenant with a published snapshot.
func (r *Registry) Tenants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenants := make([]string, 0, len(r.snapshots))
	for id := range r.snapshots {
		tenants = append(tenants, id)
	}
	sort.Strings(tenants)
	return tenants
}

// LockTenant serializes ingestion for one tenant without blocking other
// tenants. The returned func releases the lock.
func (r *Registry) LockTenant(tenantID string) func() {
	r.ingestMu.Lock()
	mu, ok := r.ingests[tenantID]
	if !ok {
		mu = &sync.Mutex{}
		r.ingests[tenantID] = mu
	}
	r.ingestMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Swap publishes a full replacement index for the tenant. Every chunk is
// validated before the pointer flip: a chunk tagged with another tenant
// fails with ErrTenantIsolation and embedded chunks must agree on
// dimensionality.
func (r *Registry) Swap(tenantID string, chunks []models.Chunk) error {
	dims := 0
	for _, c := range chunks {
		if c.TenantID != tenantID {
			return fmt.Errorf("%w: chunk %s belongs to tenant %s, not %s",
				models.ErrTenantIsolation, c.ID, c.TenantID, tenantID)
		}
		if len(c.Embedding) == 0 {
			continue
		}
		if dims == 0 {
			dims = len(c.Embedding)
		} else if len(c.Embedding) != dims {
			return fmt.Errorf("%w: chunk %s has %d dimensions, index has %d",
				models.ErrDimensionMismatch, c.ID, len(c.Embedding), dims)
		}
	}

	sorted := make([]models.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].DocumentID != sorted[j].DocumentID {
			return sorted[i].DocumentID < sorted[j].DocumentID
		}
		return sorted[i].SequenceIndex < sorted[j].SequenceIndex
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	version := int64(1)
	if prev, ok := r.snapshots[tenantID]; ok {
		version = prev.Version + 1
	}
	r.snapshots[tenantID] = &Snapshot{
		TenantID:   tenantID,
		Chunks:     sorted,
		Dimensions: dims,
		Version:    version,
		UpdatedAt:  time.Now(),
	}
	return nil
}

// ReplaceDocument swaps in a snapshot where documentID's chunks are replaced
// by newChunks. Passing no chunks removes the document from the index.
func (r *Registry) ReplaceDocument(tenantID, documentID string, newChunks []models.Chunk) error {
	current := r.Snapshot(tenantID)

	next := make([]models.Chunk, 0, len(current.Chunks)+len(newChunks))
	for _, c := range current.Chunks {
		if c.DocumentID != documentID {
			next = append(next, c)
		}
	}
	next = append(next, newChunks...)

	return r.Swap(tenantID, next)
}

// RemoveDocument drops a document's chunks from the tenant index.
func (r *Registry) RemoveDocument(tenantID, documentID string) error {
	return r.ReplaceDocument(tenantID, documentID, nil)
}
