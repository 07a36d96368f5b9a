package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/alimasry/go-review-tracker/oplog"
)

// dirtyState tracks what needs flushing for a single document.
type dirtyState struct {
	flushedOps int  // number of ops already flushed (index into history)
	created    bool // doc created locally but not yet in backing store

	// truncateTo is the length the backing log must be cut to before new
	// ops are flushed, or -1; when set it equals flushedOps. truncations
	// counts TruncateOperations calls so a flush can tell whether one raced
	// with it.
	truncateTo  int
	truncations int
}

// CachedStore wraps a backing DocumentStore with an in-memory cache.
// All reads and writes are served from the cache. Dirty documents are
// flushed to the backing store periodically in the background.
type CachedStore struct {
	cache         *MemoryStore
	backing       DocumentStore
	mu            sync.Mutex
	dirty         map[string]*dirtyState
	flushInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
}

// NewCachedStore creates a CachedStore that caches in memory and flushes
// dirty documents to the backing store every flushInterval.
func NewCachedStore(backing DocumentStore, flushInterval time.Duration) *CachedStore {
	cs := &CachedStore{
		cache:         NewMemoryStore(),
		backing:       backing,
		dirty:         make(map[string]*dirtyState),
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go cs.flushLoop()
	return cs
}

func (cs *CachedStore) Create(ctx context.Context, id, source string, elements []oplog.Element) error {
	if _, err := cs.backing.Get(ctx, id); err == nil {
		return fmt.Errorf("document %q: %w", id, ErrExists)
	}
	if err := cs.cache.Create(ctx, id, source, elements); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.dirty[id] = &dirtyState{created: true, truncateTo: -1}
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) Get(ctx context.Context, id string) (*DocumentInfo, error) {
	info, err := cs.cache.Get(ctx, id)
	if err == nil {
		return info, nil
	}
	// Cache miss: load from backing store.
	if err := cs.loadFromBacking(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.Get(ctx, id)
}

func (cs *CachedStore) List(ctx context.Context) ([]DocumentInfo, error) {
	return cs.backing.List(ctx)
}

// markDirty returns the dirty state of id, creating it with flushed as the
// number of ops the backing store already has.
func (cs *CachedStore) markDirty(id string, flushed int) *dirtyState {
	ds := cs.dirty[id]
	if ds == nil {
		ds = &dirtyState{flushedOps: flushed, truncateTo: -1}
		cs.dirty[id] = ds
	}
	return ds
}

func (cs *CachedStore) historyLen(id string) int {
	cs.cache.mu.RLock()
	defer cs.cache.mu.RUnlock()
	if rec, ok := cs.cache.docs[id]; ok {
		return len(rec.history)
	}
	return 0
}

func (cs *CachedStore) AppendOperation(ctx context.Context, id string, op oplog.Operation) error {
	// Ensure doc is in cache.
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}

	// Snapshot history length before append so we know how many ops were
	// already flushed if this doc was previously clean (removed from dirty map).
	prevLen := cs.historyLen(id)

	if err := cs.cache.AppendOperation(ctx, id, op); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.markDirty(id, prevLen)
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) GetOperations(ctx context.Context, id string, from int) ([]oplog.Operation, error) {
	// Ensure doc is in cache.
	if _, err := cs.Get(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.GetOperations(ctx, id, from)
}

func (cs *CachedStore) TruncateOperations(ctx context.Context, id string, n int) error {
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}
	prevLen := cs.historyLen(id)
	if err := cs.cache.TruncateOperations(ctx, id, n); err != nil {
		return err
	}
	cs.mu.Lock()
	ds := cs.markDirty(id, prevLen)
	// A flush in progress may push ops past n, so the backing log is
	// always cut back before the next append.
	ds.flushedOps = min(ds.flushedOps, n)
	ds.truncateTo = ds.flushedOps
	ds.truncations++
	cs.mu.Unlock()
	return nil
}

// loadFromBacking loads a document and its operations from the backing store
// into the cache. It sets flushedOps so that already-persisted ops are not
// re-flushed.
func (cs *CachedStore) loadFromBacking(ctx context.Context, id string) error {
	info, err := cs.backing.Get(ctx, id)
	if err != nil {
		return err
	}
	ops, err := cs.backing.GetOperations(ctx, id, 0)
	if err != nil {
		return err
	}

	// Write directly into cache's internal map.
	cs.cache.mu.Lock()
	if _, exists := cs.cache.docs[id]; !exists {
		cs.cache.docs[id] = &docRecord{
			info:    *info,
			history: ops,
		}
	}
	cs.cache.mu.Unlock()

	// Set flushedOps so we don't re-flush existing ops.
	cs.mu.Lock()
	cs.markDirty(id, len(ops))
	cs.mu.Unlock()

	return nil
}

func (cs *CachedStore) flushLoop() {
	ticker := time.NewTicker(cs.flushInterval)
	defer ticker.Stop()
	defer close(cs.done)

	for {
		select {
		case <-ticker.C:
			cs.flush()
		case <-cs.stop:
			cs.flush()
			return
		}
	}
}

// flush writes all dirty documents to the backing store.
func (cs *CachedStore) flush() {
	cs.mu.Lock()
	// Snapshot the dirty map and work on a copy.
	snapshot := make(map[string]*dirtyState, len(cs.dirty))
	for id, ds := range cs.dirty {
		cp := *ds
		snapshot[id] = &cp
	}
	cs.mu.Unlock()

	ctx := context.Background()

	for id, ds := range snapshot {
		// Read current state from cache.
		cs.cache.mu.RLock()
		rec, ok := cs.cache.docs[id]
		if !ok {
			cs.cache.mu.RUnlock()
			continue
		}
		info := rec.snapshot()
		totalOps := len(rec.history)
		// Copy the new ops slice while holding the lock.
		var newOps []oplog.Operation
		if ds.flushedOps < totalOps {
			newOps = cloneOps(rec.history[ds.flushedOps:])
		}
		cs.cache.mu.RUnlock()

		// 1. Create doc in backing store if needed.
		if ds.created {
			err := cs.backing.Create(ctx, id, info.Source, info.Elements)
			if err != nil && !errors.Is(err, ErrExists) {
				log.Printf("cached store: failed to create doc %q in backing store: %v", id, err)
				continue
			}
			ds.created = false
		}

		// 2. Cut the backing log back before appending past an undo.
		if ds.truncateTo >= 0 {
			if err := cs.backing.TruncateOperations(ctx, id, ds.truncateTo); err != nil {
				log.Printf("cached store: failed to truncate doc %q to %d ops: %v", id, ds.truncateTo, err)
				continue
			}
			ds.truncateTo = -1
		}

		// 3. Flush new ops.
		for _, op := range newOps {
			if err := cs.backing.AppendOperation(ctx, id, op); err != nil {
				log.Printf("cached store: failed to flush op %d for doc %q: %v", ds.flushedOps, id, err)
				// Stop flushing this doc; retried next cycle.
				break
			}
			ds.flushedOps++
		}

		// Update the authoritative dirty state.
		cs.mu.Lock()
		if cur := cs.dirty[id]; cur != nil {
			cur.created = cur.created && ds.created
			if cur.truncations == ds.truncations {
				cur.flushedOps = ds.flushedOps
				cur.truncateTo = ds.truncateTo
			} else {
				// Truncated while flushing: keep the newer cut.
				cur.flushedOps = min(cur.flushedOps, ds.flushedOps)
				cur.truncateTo = cur.flushedOps
			}
			// Remove from dirty map if fully clean.
			if !cur.created && cur.truncateTo < 0 && cur.flushedOps >= totalOps {
				// New ops may have arrived since the snapshot.
				cs.cache.mu.RLock()
				if r, ok := cs.cache.docs[id]; ok && cur.flushedOps >= len(r.history) {
					delete(cs.dirty, id)
				}
				cs.cache.mu.RUnlock()
			}
		}
		cs.mu.Unlock()
	}
}

// Close signals the flush loop to perform a final flush and waits for it
// to complete.
func (cs *CachedStore) Close() {
	close(cs.stop)
	<-cs.done
}
