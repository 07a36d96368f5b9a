// Package anchor maps operations on document elements onto byte ranges of
// the original source text.
//
// Original elements are located once, in document order, trying the
// element's position hint, then an exact search, then a search that ignores
// whitespace differences. Inserts are placed relative to their anchor; an
// insert anchored to an earlier insert is chained onto that insert's
// position.
package anchor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alimasry/go-review-tracker/oplog"
)

// Confidence records which tier produced a resolution.
type Confidence string

const (
	PositionHint    Confidence = "position-hint"
	ExactMatch      Confidence = "exact-match"
	NormalizedMatch Confidence = "normalized-match"
	Chained         Confidence = "chained"
)

// Span is a half-open byte range of the source. Insertions have Start == End.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Resolution is where an operation applies in the original source.
type Resolution struct {
	OperationID string `json:"operationId"`
	ElementID   string `json:"elementId"`
	Span        Span   `json:"span"`
	Insertion   bool   `json:"insertion"`
	// Before is set for insertion points that sit in front of their anchor
	// element, so inserted text must be followed by a separator rather than
	// preceded by one.
	Before bool `json:"before,omitempty"`
	// Rank orders insertions sharing a point: lower ranks come first.
	Rank       int        `json:"rank"`
	Confidence Confidence `json:"confidence"`
}

// ErrAnchorNotFound is wrapped by every *AnchorError.
var ErrAnchorNotFound = errors.New("anchor not found")

// AnchorError reports an operation that could not be placed in the source.
type AnchorError struct {
	OperationID string
	ElementID   string
	Reason      string
}

func (e *AnchorError) Error() string {
	return fmt.Sprintf("operation %s on %q: %s", e.OperationID, e.ElementID, e.Reason)
}

func (e *AnchorError) Unwrap() error { return ErrAnchorNotFound }

type location struct {
	span Span
	conf Confidence
}

type pointKey struct {
	offset int
	before bool
}

// Resolver resolves the operations of one export. Operations must be passed
// to Resolve in sequence order. A Resolver is not safe for concurrent use.
type Resolver struct {
	source   string
	original map[string]oplog.Element
	located  map[string]location

	norm *normalized // whole source, built on first use

	points  map[pointKey][]string // insert element ids in text order
	inserts map[string]pointKey
}

// NewResolver locates every original element in source.
func NewResolver(source string, original []oplog.Element) *Resolver {
	r := &Resolver{
		source:   source,
		original: make(map[string]oplog.Element, len(original)),
		located:  make(map[string]location, len(original)),
		points:   make(map[pointKey][]string),
		inserts:  make(map[string]pointKey),
	}
	head := FrontMatterEnd(source)
	cursor := head
	for _, e := range original {
		r.original[e.ID] = e
		if loc, ok := r.locate(e, cursor, head); ok {
			r.located[e.ID] = loc
			cursor = max(cursor, loc.span.End)
		}
	}
	return r
}

func (r *Resolver) normalized() *normalized {
	if r.norm == nil {
		n := normalize(r.source)
		r.norm = &n
	}
	return r.norm
}

// locate finds an original element, searching from cursor before falling
// back to everything after the front matter.
func (r *Resolver) locate(e oplog.Element, cursor, head int) (location, bool) {
	if span, ok := r.hint(e); ok {
		return location{span, PositionHint}, true
	}
	if e.Content == "" {
		return location{}, false
	}
	needle := normalize(e.Content).text
	for _, from := range []int{cursor, head} {
		if i, ok := indexAtLineStart(r.source[from:], e.Content); ok {
			return location{Span{from + i, from + i + len(e.Content)}, ExactMatch}, true
		}
		if span, ok := r.normalized().find(needle, from); ok {
			return location{span, NormalizedMatch}, true
		}
		if from == head {
			break
		}
	}
	return location{}, false
}

// hint checks that the element's content actually starts on its hinted
// line, exactly or modulo whitespace.
func (r *Resolver) hint(e oplog.Element) (Span, bool) {
	if e.SourcePosition == nil {
		return Span{}, false
	}
	start, ok := lineOffset(r.source, e.SourcePosition.Line)
	if !ok {
		return Span{}, false
	}
	rest := r.source[start:]
	if strings.HasPrefix(rest, e.Content) {
		return Span{start, start + len(e.Content)}, true
	}
	needle := normalize(e.Content).text
	window := rest[:min(len(rest), 2*len(e.Content)+64)]
	if span, ok := normalize(window).prefix(needle); ok {
		return Span{start + span.Start, start + span.End}, true
	}
	return Span{}, false
}

// Locate returns the source span of an original element.
func (r *Resolver) Locate(id string) (Span, Confidence, bool) {
	loc, ok := r.located[id]
	return loc.span, loc.conf, ok
}

// End returns the insertion offset for content appended to the document:
// the end of the last non-blank byte.
func (r *Resolver) End() int {
	return len(strings.TrimRight(r.source, " \t\r\n"))
}

// Resolve places one operation. Edits, deletes and moves resolve to the
// span of their original element. Inserts resolve to an insertion point.
func (r *Resolver) Resolve(op oplog.Operation) (Resolution, error) {
	res := Resolution{OperationID: op.ID, ElementID: op.ElementID}
	if op.Kind == oplog.KindInsert {
		if op.Insert == nil {
			return res, r.fail(op, "missing insert data")
		}
		return r.insert(op, res)
	}
	if loc, ok := r.located[op.ElementID]; ok {
		res.Span = loc.span
		res.Confidence = loc.conf
		return res, nil
	}
	if key, ok := r.inserts[op.ElementID]; ok {
		res.Span = Span{key.offset, key.offset}
		res.Insertion = true
		res.Before = key.before
		res.Rank = r.rank(key, op.ElementID)
		res.Confidence = Chained
		return res, nil
	}
	if _, ok := r.original[op.ElementID]; ok {
		return res, r.fail(op, "element not found in source")
	}
	return res, r.fail(op, "unknown element")
}

func (r *Resolver) insert(op oplog.Operation, res Resolution) (Resolution, error) {
	if _, dup := r.inserts[op.ElementID]; dup {
		return res, r.fail(op, "element already inserted")
	}
	pos := op.Insert.Position
	anchor := pos.Anchor()
	before := pos.After == "" && pos.Before != ""

	var (
		key  pointKey
		conf Confidence
		at   = -1 // position in the point's list; -1 appends
	)
	switch {
	case anchor == "":
		key = pointKey{offset: r.End()}
		conf = ExactMatch
	case r.hasInsert(anchor):
		key = r.inserts[anchor]
		conf = Chained
		if before {
			at = r.rank(key, anchor)
		}
	default:
		loc, ok := r.located[anchor]
		if !ok {
			if _, known := r.original[anchor]; known {
				return res, r.fail(op, fmt.Sprintf("anchor %q not found in source", anchor))
			}
			return res, r.fail(op, fmt.Sprintf("unknown anchor %q", anchor))
		}
		conf = loc.conf
		if before {
			key = pointKey{offset: loc.span.Start, before: true}
		} else {
			key = pointKey{offset: loc.span.End}
		}
	}

	list := r.points[key]
	if at < 0 {
		at = len(list)
	}
	list = append(list[:at], append([]string{op.ElementID}, list[at:]...)...)
	r.points[key] = list
	r.inserts[op.ElementID] = key

	res.Span = Span{key.offset, key.offset}
	res.Insertion = true
	res.Before = key.before
	res.Rank = at
	res.Confidence = conf
	return res, nil
}

func (r *Resolver) hasInsert(id string) bool {
	_, ok := r.inserts[id]
	return ok
}

func (r *Resolver) rank(key pointKey, id string) int {
	for i, v := range r.points[key] {
		if v == id {
			return i
		}
	}
	return -1
}

// Ranks returns the final ranks of every insert placed so far. Inserting
// before an earlier insert shifts the ranks of those after it, so callers
// building patches should read ranks once all inserts are resolved.
func (r *Resolver) Ranks() map[string]int {
	out := make(map[string]int, len(r.inserts))
	for _, ids := range r.points {
		for i, id := range ids {
			out[id] = i
		}
	}
	return out
}

func (r *Resolver) fail(op oplog.Operation, reason string) error {
	return &AnchorError{OperationID: op.ID, ElementID: op.ElementID, Reason: reason}
}
