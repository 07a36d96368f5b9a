package store

import (
	"context"
	"errors"
	"time"

	"github.com/alimasry/go-review-tracker/oplog"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrExists   = errors.New("document already exists")
)

// DocumentInfo holds a reviewed source and the element snapshot it was
// segmented into. Operations is the length of the persisted log.
type DocumentInfo struct {
	ID         string
	Source     string
	Elements   []oplog.Element
	Operations int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DocumentStore persists review documents and their operation logs.
// Implementations: MemoryStore, CachedStore (write-behind), FirestoreStore.
type DocumentStore interface {
	Create(ctx context.Context, id, source string, elements []oplog.Element) error
	Get(ctx context.Context, id string) (*DocumentInfo, error)
	List(ctx context.Context) ([]DocumentInfo, error)
	AppendOperation(ctx context.Context, id string, op oplog.Operation) error
	// GetOperations returns the log from index from (0-based) onwards.
	GetOperations(ctx context.Context, id string, from int) ([]oplog.Operation, error)
	// TruncateOperations keeps the first n operations; a shorter log is left
	// alone. It backs undo.
	TruncateOperations(ctx context.Context, id string, n int) error
}

func cloneElements(elems []oplog.Element) []oplog.Element {
	if elems == nil {
		return nil
	}
	out := make([]oplog.Element, len(elems))
	for i, e := range elems {
		out[i] = e.Clone()
	}
	return out
}

func cloneOps(ops []oplog.Operation) []oplog.Operation {
	out := make([]oplog.Operation, len(ops))
	for i, op := range ops {
		out[i] = op.Clone()
	}
	return out
}
