package oplog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Log is the append-only record of a review session. It is the single
// source of truth: every view of the document is recomputed from it.
// A Log is not safe for concurrent use.
type Log struct {
	original []Element
	ops      []Operation
	redo     []Operation

	// Cached replay of original+ops. Rebuilt whenever ops shrink.
	state     *replayer
	replayErr error

	newID func() string
	now   func() time.Time
}

// NewLog starts an empty log over the original element snapshot.
func NewLog(original []Element) (*Log, error) {
	return Restore(original, nil)
}

// Restore rebuilds a log from a persisted snapshot and operations.
// Operations that do not replay cleanly are kept; State reports them.
func Restore(original []Element, ops []Operation) (*Log, error) {
	seen := make(map[string]bool, len(original))
	for _, e := range original {
		if e.ID == "" {
			return nil, fmt.Errorf("element with empty id: %w", ErrDuplicateID)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("element %q: %w", e.ID, ErrDuplicateID)
		}
		seen[e.ID] = true
	}
	var last uint64
	for i, op := range ops {
		if i > 0 && op.Sequence <= last {
			return nil, fmt.Errorf("operation %s has sequence %d after %d: %w", op.ID, op.Sequence, last, ErrSequenceOrder)
		}
		last = op.Sequence
	}
	l := &Log{
		original: cloneElements(original),
		ops:      cloneOps(ops),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	l.rebuild()
	return l, nil
}

func cloneOps(ops []Operation) []Operation {
	out := make([]Operation, len(ops))
	for i, op := range ops {
		out[i] = op.Clone()
	}
	return out
}

func (l *Log) rebuild() {
	r := newReplayer(l.original)
	var errs []error
	for _, op := range l.ops {
		if err := r.apply(op); err != nil {
			errs = append(errs, err)
		}
	}
	l.state = r
	l.replayErr = errors.Join(errs...)
}

// Len returns the number of operations in the log.
func (l *Log) Len() int { return len(l.ops) }

// LastSequence returns the sequence of the newest operation, or 0.
func (l *Log) LastSequence() uint64 {
	if len(l.ops) == 0 {
		return 0
	}
	return l.ops[len(l.ops)-1].Sequence
}

// Operations returns a copy of the log in sequence order.
func (l *Log) Operations() []Operation { return cloneOps(l.ops) }

// Original returns a copy of the original element snapshot.
func (l *Log) Original() []Element { return cloneElements(l.original) }

// State returns the current document state. A non-nil error lists
// operations that were skipped during replay.
func (l *Log) State() ([]Element, error) {
	return cloneElements(l.state.elems), l.replayErr
}

// StateAt returns the state after the first n operations.
func (l *Log) StateAt(n int) ([]Element, error) {
	n = min(max(n, 0), len(l.ops))
	return Replay(l.original, l.ops[:n])
}

// Element returns the current state of one element.
func (l *Log) Element(id string) (Element, bool) {
	if i := l.state.index(id); i >= 0 {
		return l.state.elems[i].Clone(), true
	}
	return Element{}, false
}

// OriginalElement returns the original snapshot of an element and its
// section index (ordinal position in the original document).
func (l *Log) OriginalElement(id string) (Element, int, bool) {
	for i, e := range l.original {
		if e.ID == id {
			return e.Clone(), i, true
		}
	}
	return Element{}, -1, false
}

// Append validates op against the current state, assigns it the next
// sequence and adds it to the log. Any redo history is discarded.
func (l *Log) Append(op Operation) (Operation, error) {
	op = op.Clone()
	if op.ID == "" {
		op.ID = l.newID()
	}
	if op.Timestamp.IsZero() {
		op.Timestamp = l.now()
	}
	op.Sequence = l.LastSequence() + 1
	if err := l.state.apply(op); err != nil {
		return Operation{}, err
	}
	l.ops = append(l.ops, op)
	l.redo = nil
	return op.Clone(), nil
}

// Edit records new content (and optionally metadata) for an element.
func (l *Log) Edit(id, newContent string, meta *Metadata) (Operation, error) {
	cur, ok := l.Element(id)
	if !ok {
		return Operation{}, inconsistent(Operation{Kind: KindEdit, ElementID: id}, "edit target does not exist")
	}
	metaChanged := meta != nil && !meta.Equal(cur.Metadata)
	if cur.Content == newContent && !metaChanged {
		return Operation{}, ErrNoChange
	}
	data := &EditData{OldContent: cur.Content, NewContent: newContent}
	if metaChanged {
		oldMeta := cur.Metadata
		newMeta := meta.Clone()
		data.OldMetadata = &oldMeta
		data.NewMetadata = &newMeta
	}
	return l.Append(Operation{Kind: KindEdit, ElementID: id, Edit: data})
}

// Insert adds a new element and returns the operation; its ElementID is
// the generated id of the new element.
func (l *Log) Insert(content string, meta Metadata, pos Position) (Operation, error) {
	return l.Append(Operation{
		Kind:      KindInsert,
		ElementID: "ins-" + l.newID(),
		Insert:    &InsertData{Content: content, Metadata: meta.Clone(), Position: pos},
	})
}

// Delete removes an element, keeping its content in the log.
func (l *Log) Delete(id string) (Operation, error) {
	cur, ok := l.Element(id)
	if !ok {
		return Operation{}, inconsistent(Operation{Kind: KindDelete, ElementID: id}, "delete target does not exist")
	}
	return l.Append(Operation{
		Kind:      KindDelete,
		ElementID: id,
		Delete:    &DeleteData{OriginalContent: cur.Content, OriginalMetadata: cur.Metadata},
	})
}

// Move relocates an element within the current state.
func (l *Log) Move(id string, from, to int) (Operation, error) {
	return l.Append(Operation{
		Kind:      KindMove,
		ElementID: id,
		Move:      &MoveData{FromIndex: from, ToIndex: to},
	})
}

// Undo removes the newest operation and keeps it for Redo.
func (l *Log) Undo() bool {
	if len(l.ops) == 0 {
		return false
	}
	last := l.ops[len(l.ops)-1]
	l.ops = l.ops[:len(l.ops)-1]
	l.redo = append(l.redo, last)
	l.rebuild()
	return true
}

// Redo re-appends the most recently undone operation.
func (l *Log) Redo() (Operation, bool) {
	if len(l.redo) == 0 {
		return Operation{}, false
	}
	op := l.redo[len(l.redo)-1]
	if err := l.state.apply(op); err != nil {
		// Only reachable if the log was restored from inconsistent data.
		l.redo = nil
		return Operation{}, false
	}
	l.redo = l.redo[:len(l.redo)-1]
	l.ops = append(l.ops, op)
	return op.Clone(), true
}

func (l *Log) CanUndo() bool { return len(l.ops) > 0 }
func (l *Log) CanRedo() bool { return len(l.redo) > 0 }

// Truncate keeps only the first n operations and clears redo history.
func (l *Log) Truncate(n int) {
	n = min(max(n, 0), len(l.ops))
	l.ops = l.ops[:n]
	l.redo = nil
	l.rebuild()
}
