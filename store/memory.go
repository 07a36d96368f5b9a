package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alimasry/go-review-tracker/oplog"
)

type docRecord struct {
	info    DocumentInfo
	history []oplog.Operation
}

func (r *docRecord) snapshot() DocumentInfo {
	info := r.info
	info.Elements = cloneElements(r.info.Elements)
	info.Operations = len(r.history)
	return info
}

// MemoryStore is an in-memory implementation of DocumentStore.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*docRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*docRecord)}
}

func (s *MemoryStore) Create(_ context.Context, id, source string, elements []oplog.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[id]; exists {
		return fmt.Errorf("document %q: %w", id, ErrExists)
	}
	now := time.Now()
	s.docs[id] = &docRecord{
		info: DocumentInfo{
			ID:        id,
			Source:    source,
			Elements:  cloneElements(elements),
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	info := rec.snapshot()
	return &info, nil
}

func (s *MemoryStore) List(_ context.Context) ([]DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]DocumentInfo, 0, len(s.docs))
	for _, rec := range s.docs {
		result = append(result, rec.snapshot())
	}
	return result, nil
}

func (s *MemoryStore) AppendOperation(_ context.Context, id string, op oplog.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	rec.history = append(rec.history, op.Clone())
	rec.info.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) GetOperations(_ context.Context, id string, from int) ([]oplog.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	if from < 0 || from > len(rec.history) {
		return nil, fmt.Errorf("invalid operation index %d", from)
	}
	return cloneOps(rec.history[from:]), nil
}

func (s *MemoryStore) TruncateOperations(_ context.Context, id string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	if n < 0 {
		return fmt.Errorf("invalid operation count %d", n)
	}
	if n >= len(rec.history) {
		return nil
	}
	rec.history = rec.history[:n]
	rec.info.UpdatedAt = time.Now()
	return nil
}
