// Package review ties a reviewed source file to its operation log: it
// records changes, keeps line offsets current and renders previews and
// exports from the log.
package review

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/alimasry/go-review-tracker/markup"
	"github.com/alimasry/go-review-tracker/offset"
	"github.com/alimasry/go-review-tracker/oplog"
	"github.com/alimasry/go-review-tracker/patch"
)

// ErrUnknownElement is returned when an element id is neither in the
// original snapshot nor in the current state.
var ErrUnknownElement = errors.New("unknown element")

// blockSep joins elements in the element-only renderings.
const blockSep = "\n\n"

// Document is one review session over a source file. A Document is not safe
// for concurrent use; the server serialises access per document.
type Document struct {
	ID string

	source string
	log    *oplog.Log
	lines  offset.Tracker
}

// New starts a review of source segmented into elements.
func New(id, source string, elements []oplog.Element) (*Document, error) {
	return Restore(id, source, elements, nil)
}

// Restore resumes a review from its persisted operations.
func Restore(id, source string, elements []oplog.Element, ops []oplog.Operation) (*Document, error) {
	l, err := oplog.Restore(elements, ops)
	if err != nil {
		return nil, fmt.Errorf("document %q: %w", id, err)
	}
	d := &Document{ID: id, source: source, log: l}
	d.rebuildLines()
	return d, nil
}

func (d *Document) Source() string { return d.source }
func (d *Document) Original() []oplog.Element { return d.log.Original() }
func (d *Document) Operations() []oplog.Operation { return d.log.Operations() }
func (d *Document) Len() int { return d.log.Len() }
func (d *Document) Sequence() uint64 { return d.log.LastSequence() }
func (d *Document) CanUndo() bool { return d.log.CanUndo() }
func (d *Document) CanRedo() bool { return d.log.CanRedo() }

// State is the current element list. The error reports operations that were
// skipped during replay; the state is valid either way.
func (d *Document) State() ([]oplog.Element, error) { return d.log.State() }

func (d *Document) Edit(id, content string, meta *oplog.Metadata) (oplog.Operation, error) {
	return d.track(d.log.Edit(id, content, meta))
}

func (d *Document) Insert(content string, meta oplog.Metadata, pos oplog.Position) (oplog.Operation, error) {
	return d.track(d.log.Insert(content, meta, pos))
}

func (d *Document) Delete(id string) (oplog.Operation, error) {
	return d.track(d.log.Delete(id))
}

func (d *Document) Move(id string, from, to int) (oplog.Operation, error) {
	return d.track(d.log.Move(id, from, to))
}

// Apply appends an operation built by a client. Fields derived from the
// current state are filled in: the old content and metadata of edits, the
// removed content of deletes and the id of inserts that have none. Sequence
// and timestamp are always assigned by the log.
func (d *Document) Apply(op oplog.Operation) (oplog.Operation, error) {
	op = op.Clone()
	op.Sequence = 0
	if op.Kind == oplog.KindInsert && op.ElementID == "" {
		op.ElementID = "ins-" + uuid.NewString()
	}
	if err := op.Validate(); err != nil {
		return oplog.Operation{}, err
	}
	if cur, ok := d.log.Element(op.ElementID); ok {
		switch op.Kind {
		case oplog.KindEdit:
			e := op.Edit
			metaChanged := e.NewMetadata != nil && !e.NewMetadata.Equal(cur.Metadata)
			if e.NewContent == cur.Content && !metaChanged {
				return oplog.Operation{}, oplog.ErrNoChange
			}
			e.OldContent = cur.Content
			e.OldMetadata = nil
			if metaChanged {
				m := cur.Metadata.Clone()
				e.OldMetadata = &m
			} else {
				e.NewMetadata = nil
			}
		case oplog.KindDelete:
			op.Delete = &oplog.DeleteData{OriginalContent: cur.Content, OriginalMetadata: cur.Metadata.Clone()}
		}
	}
	return d.track(d.log.Append(op))
}

func (d *Document) track(op oplog.Operation, err error) (oplog.Operation, error) {
	if err != nil {
		return op, err
	}
	d.record(op)
	return op, nil
}

// record feeds an edit's line shift to the tracker, keyed by the element's
// original section index and line.
func (d *Document) record(op oplog.Operation) {
	if op.Kind != oplog.KindEdit || op.Edit == nil {
		return
	}
	var section, line *int
	if orig, idx, ok := d.log.OriginalElement(op.ElementID); ok {
		section = &idx
		if orig.SourcePosition != nil {
			l := orig.SourcePosition.Line
			line = &l
		}
	}
	d.lines.Record(op.Sequence, op.ElementID, section, line, op.Edit.OldContent, op.Edit.NewContent)
}

func (d *Document) rebuildLines() {
	d.lines.Reset()
	for _, op := range d.log.Operations() {
		d.record(op)
	}
}

// Undo drops the newest operation. Line offsets are recomputed from the
// remaining log.
func (d *Document) Undo() bool {
	if !d.log.Undo() {
		return false
	}
	d.rebuildLines()
	return true
}

// Redo re-applies the most recently undone operation.
func (d *Document) Redo() (oplog.Operation, bool) {
	op, ok := d.log.Redo()
	if ok {
		d.rebuildLines()
	}
	return op, ok
}

// Truncate keeps the first n operations.
func (d *Document) Truncate(n int) {
	d.log.Truncate(n)
	d.rebuildLines()
}

// CurrentLine translates a line of the original source into the current
// document, counting only edits after sequence since (0 for all). Pass a
// negative section when the caller does not know it.
func (d *Document) CurrentLine(section, line int, since uint64) int {
	return d.lines.CurrentLine(section, line, since)
}

// LineShifts returns the recorded line shifts in log order.
func (d *Document) LineShifts() []offset.Record { return d.lines.Records() }

// Preview renders one element as change markup from its original content to
// its current content. Inserted elements render as one addition and deleted
// ones as one deletion.
func (d *Document) Preview(id string) (string, error) {
	orig, _, isOrig := d.log.OriginalElement(id)
	cur, exists := d.log.Element(id)
	switch {
	case exists && isOrig:
		return markup.EncodeDiff(orig.Content, cur.Content), nil
	case exists:
		return markup.Addition(cur.Content), nil
	case isOrig:
		return markup.Deletion(orig.Content), nil
	}
	return "", fmt.Errorf("element %q: %w", id, ErrUnknownElement)
}

// PreviewHTML is Preview rendered as HTML.
func (d *Document) PreviewHTML(id string) (string, error) {
	p, err := d.Preview(id)
	if err != nil {
		return "", err
	}
	return markup.RenderMarkupHTML(p)
}

// Export rebuilds the source file with every change applied.
func (d *Document) Export(mode patch.Mode) (*patch.Result, error) {
	return patch.Export(d.source, d.log.Original(), d.log.Operations(), mode)
}

// CleanMarkdown joins the current elements. Unlike Export it does not need
// the source, so formatting between blocks is normalised.
func (d *Document) CleanMarkdown() string {
	state, _ := d.log.State()
	parts := make([]string, len(state))
	for i, e := range state {
		parts[i] = e.Content
	}
	return strings.Join(parts, blockSep)
}

// TrackedMarkdown joins every element's preview. Deleted original elements
// are shown after the nearest earlier original element that survives.
func (d *Document) TrackedMarkdown() string {
	state, _ := d.log.State()
	current := make(map[string]bool, len(state))
	for _, e := range state {
		current[e.ID] = true
	}
	var (
		lead    []string
		trailer = make(map[string][]string)
		prev    string
	)
	for _, e := range d.log.Original() {
		if current[e.ID] {
			prev = e.ID
			continue
		}
		del := markup.Deletion(e.Content)
		if prev == "" {
			lead = append(lead, del)
		} else {
			trailer[prev] = append(trailer[prev], del)
		}
	}

	parts := lead
	for _, e := range state {
		p, _ := d.Preview(e.ID)
		parts = append(parts, p)
		parts = append(parts, trailer[e.ID]...)
	}
	return strings.Join(parts, blockSep)
}
