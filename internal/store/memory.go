package store

import (
	"context"
	"sort"
	"sync"

	"github.com/JonMunkholm/equipstat/internal/core"
	"github.com/jonboulle/clockwork"
)

// Memory is an in-process DatasetStore. All operations are serialized by a
// single mutex, which also makes Admit atomic per owner.
type Memory struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	nextID   int64
	datasets map[int64]core.Dataset
	orphans  map[string]orphan
	seq      int64
}

type orphan struct {
	seq      int64
	attempts int
	lastErr  string
}

// NewMemory returns an empty store stamping uploads with clock.
func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock:    clock,
		datasets: make(map[int64]core.Dataset),
		orphans:  make(map[string]orphan),
	}
}

// Admit inserts ds and evicts the owner's datasets beyond keep.
func (m *Memory) Admit(_ context.Context, ds core.NewDataset, keep int) (core.Dataset, []core.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	created := core.Dataset{
		ID:               m.nextID,
		OwnerID:          ds.OwnerID,
		OriginalFilename: ds.OriginalFilename,
		BlobKey:          ds.BlobKey,
		UploadedAt:       m.clock.Now().UTC(),
		RowCount:         ds.RowCount,
		Summary:          ds.Summary,
	}
	m.datasets[created.ID] = created

	owned := m.ownedLocked(ds.OwnerID)
	refs := make([]core.DatasetRef, len(owned))
	for i, d := range owned {
		refs[i] = d.Ref()
	}

	var evicted []core.Dataset
	for _, id := range core.SelectEvictions(refs, keep) {
		evicted = append(evicted, m.datasets[id])
		delete(m.datasets, id)
	}
	return created, evicted, nil
}

func (m *Memory) ownedLocked(ownerID string) []core.Dataset {
	var out []core.Dataset
	for _, d := range m.datasets {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	core.SortDatasets(out)
	return out
}

// List returns up to limit of the owner's datasets, newest first.
func (m *Memory) List(_ context.Context, ownerID string, limit int) ([]core.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.ownedLocked(ownerID)
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns one of the owner's datasets.
func (m *Memory) Get(_ context.Context, ownerID string, id int64) (core.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.datasets[id]
	if !ok || d.OwnerID != ownerID {
		return core.Dataset{}, core.ErrDatasetNotFound
	}
	return d, nil
}

// Delete removes one of the owner's datasets and returns it.
func (m *Memory) Delete(_ context.Context, ownerID string, id int64) (core.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.datasets[id]
	if !ok || d.OwnerID != ownerID {
		return core.Dataset{}, core.ErrDatasetNotFound
	}
	delete(m.datasets, id)
	return d, nil
}

// RecordOrphan remembers a blob whose release failed.
func (m *Memory) RecordOrphan(_ context.Context, blobKey string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.orphans[blobKey]
	m.seq++
	o.seq = m.seq
	o.attempts++
	if cause != nil {
		o.lastErr = cause.Error()
	}
	m.orphans[blobKey] = o
	return nil
}

// Orphans returns up to limit orphaned keys, least recently recorded first.
func (m *Memory) Orphans(_ context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.orphans))
	for k := range m.orphans {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return m.orphans[keys[i]].seq < m.orphans[keys[j]].seq
	})
	if limit >= 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

// ResolveOrphan forgets a released blob.
func (m *Memory) ResolveOrphan(_ context.Context, blobKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orphans, blobKey)
	return nil
}

// OrphanAttempts reports how many times blobKey was recorded, for tests and
// diagnostics.
func (m *Memory) OrphanAttempts(blobKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orphans[blobKey].attempts
}
