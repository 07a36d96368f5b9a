package patch

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/alimasry/go-review-tracker/anchor"
	"github.com/alimasry/go-review-tracker/diff"
	"github.com/alimasry/go-review-tracker/markup"
	"github.com/alimasry/go-review-tracker/oplog"
)

// Mode selects how changes appear in an exported source.
type Mode int

const (
	// Clean accepts every change.
	Clean Mode = iota
	// Tracked shows every change inline as change markup.
	Tracked
)

func (m Mode) String() string {
	if m == Tracked {
		return "tracked"
	}
	return "clean"
}

// ParseMode parses "clean" or "tracked". The empty string is Clean.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "clean", "":
		return Clean, nil
	case "tracked":
		return Tracked, nil
	}
	return Clean, fmt.Errorf("unknown export mode %q", s)
}

// Applied describes one net change written into the export.
type Applied struct {
	OperationIDs []string          `json:"operationIds"`
	ElementID    string            `json:"elementId"`
	Kind         oplog.Kind        `json:"kind"`
	Span         anchor.Span       `json:"span"`
	Confidence   anchor.Confidence `json:"confidence"`
}

// Skipped describes operations that could not be exported.
type Skipped struct {
	OperationIDs []string `json:"operationIds"`
	ElementID    string   `json:"elementId"`
	Err          error    `json:"-"`
	Reason       string   `json:"reason"`
}

// Result is an exported source and what happened to every change.
type Result struct {
	Text    string    `json:"text"`
	Applied []Applied `json:"applied"`
	Skipped []Skipped `json:"skipped"`
}

func (r *Result) skip(ids []string, elementID string, err error) {
	r.Skipped = append(r.Skipped, Skipped{OperationIDs: ids, ElementID: elementID, Err: err, Reason: err.Error()})
}

// effect is the net change one element contributes to the export.
type effect struct {
	kind    oplog.Kind
	id      string
	ops     []string
	newText string         // final content for edits and insertions
	removal bool           // a delete, or the removal half of a move
	pos     oplog.Position // anchor of an insertion
	res     anchor.Resolution
}

func (ef *effect) insertion() bool {
	return !ef.removal && (ef.kind == oplog.KindInsert || ef.kind == oplog.KindMove)
}

// op is the operation handed to the resolver for this effect.
func (ef *effect) op() oplog.Operation {
	op := oplog.Operation{ID: ef.id, Kind: ef.kind, ElementID: ef.id}
	if len(ef.ops) > 0 {
		op.ID = ef.ops[len(ef.ops)-1]
	}
	if ef.insertion() {
		op.Kind = oplog.KindInsert
		op.Insert = &oplog.InsertData{Content: ef.newText, Position: ef.pos}
	}
	return op
}

// text is the replacement for span, the effect's resolved span after any
// widening. Tracked insertions and removals carry their separators inside
// the markup so that accepting or rejecting every change restores the clean
// export or the source.
func (ef *effect) text(source string, span anchor.Span, rank int, mode Mode) string {
	old := source[span.Start:span.End]
	switch {
	case ef.removal && mode == Tracked:
		return markup.Deletion(old)
	case ef.removal:
		return ""
	case ef.insertion():
		t := insertionText(ef.newText, separator(source), ef.res.Before, span.Start == 0 && rank == 0)
		if mode == Tracked {
			return markup.Addition(t)
		}
		return t
	case mode == Tracked:
		return markup.EncodeDiff(old, ef.newText)
	}
	return ef.newText
}

// Export rebuilds source with the operations applied. The log is folded
// into net effects against the replayed final state:
//   - original elements whose relative order survives stay in place and get
//     one edit from their original to their final content;
//   - removed original elements get one delete;
//   - inserted and moved elements are inserted after their predecessor in
//     the final state, chaining onto earlier insertions.
//
// Operations that fail to replay or resolve are reported in Result.Skipped
// and never block the rest of the export. The error is non-nil only for
// invalid input.
func Export(source string, original []oplog.Element, ops []oplog.Operation, mode Mode) (*Result, error) {
	log, err := oplog.Restore(original, ops)
	if err != nil {
		return nil, err
	}
	state, replayErr := log.State()

	res := &Result{}
	failed := make(map[string]bool)
	for _, e := range unwrap(replayErr) {
		var re *oplog.ReplayError
		if errors.As(e, &re) {
			failed[re.OperationID] = true
			res.skip([]string{re.OperationID}, re.ElementID, e)
		}
	}
	opsByElem := make(map[string][]string)
	for _, op := range ops {
		if !failed[op.ID] {
			opsByElem[op.ElementID] = append(opsByElem[op.ElementID], op.ID)
		}
	}

	r := anchor.NewResolver(source, original)
	var resolved []*effect
	for _, ef := range fold(original, state, opsByElem, r) {
		resolution, err := r.Resolve(ef.op())
		if err != nil {
			res.skip(ef.ops, ef.id, err)
			continue
		}
		ef.res = resolution
		resolved = append(resolved, ef)
	}

	ranks := r.Ranks()
	var (
		patches []Patch
		owners  []*effect
	)
	for _, ef := range resolved {
		if ef.res.Insertion && ef.newText == "" {
			continue
		}
		p := Patch{OperationID: ef.op().ID, Span: ef.res.Span, ref: len(patches) + 1}
		if ef.res.Insertion {
			p.Rank = ranks[ef.id]
		}
		patches = append(patches, p)
		owners = append(owners, ef)
	}
	absorbSeparators(source, patches, func(i int) bool { return owners[i].removal })
	for i := range patches {
		patches[i].Text = owners[i].text(source, patches[i].Span, patches[i].Rank, mode)
	}

	text, rejected := Apply(source, patches)
	res.Text = text
	refused := make(map[int]bool)
	for _, rj := range rejected {
		ef := owners[rj.Patch.ref-1]
		refused[rj.Patch.ref] = true
		res.skip(ef.ops, ef.id, rj.Err)
	}
	for i, p := range patches {
		if refused[p.ref] {
			continue
		}
		ef := owners[i]
		res.Applied = append(res.Applied, Applied{
			OperationIDs: ef.ops,
			ElementID:    ef.id,
			Kind:         ef.kind,
			Span:         p.Span,
			Confidence:   ef.res.Confidence,
		})
	}
	return res, nil
}

func unwrap(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// fold computes the net effects of the log in the order they must be
// resolved: removals and edits of original elements first, then insertions
// in final document order so that each can chain onto the one before it.
func fold(original, state []oplog.Element, opsByElem map[string][]string, r *anchor.Resolver) []*effect {
	final := make(map[string]oplog.Element, len(state))
	for _, e := range state {
		final[e.ID] = e
	}
	isOriginal := make(map[string]bool, len(original))
	var kept []string
	for _, e := range original {
		isOriginal[e.ID] = true
		if _, ok := final[e.ID]; ok {
			kept = append(kept, e.ID)
		}
	}
	var finalOrder []string
	for _, e := range state {
		if isOriginal[e.ID] {
			finalOrder = append(finalOrder, e.ID)
		}
	}
	// Originals on the longest common subsequence keep their place; any
	// other surviving original has moved.
	fixed := make(map[string]bool)
	for _, id := range diff.LCS(kept, finalOrder) {
		fixed[id] = true
	}

	var effects []*effect
	for _, e := range original {
		f, ok := final[e.ID]
		switch {
		case !ok:
			effects = append(effects, &effect{kind: oplog.KindDelete, id: e.ID, ops: opsByElem[e.ID], removal: true})
		case !fixed[e.ID]:
			effects = append(effects, &effect{kind: oplog.KindMove, id: e.ID, ops: opsByElem[e.ID], removal: true})
		case f.Content != e.Content:
			effects = append(effects, &effect{kind: oplog.KindEdit, id: e.ID, ops: opsByElem[e.ID], newText: f.Content})
		}
	}

	placed := make(map[string]bool)
	located := func(id string) bool {
		_, _, ok := r.Locate(id)
		return fixed[id] && ok
	}
	for i, e := range state {
		if fixed[e.ID] {
			continue
		}
		ef := &effect{kind: oplog.KindInsert, id: e.ID, ops: opsByElem[e.ID], newText: e.Content}
		if isOriginal[e.ID] {
			// A move whose source cannot be located is skipped whole: its
			// removal half fails to resolve, so nothing is inserted and
			// nothing may anchor on it.
			if _, _, ok := r.Locate(e.ID); !ok {
				continue
			}
			ef.kind = oplog.KindMove
		}
		ef.pos = insertionAnchor(state, i, func(id string) bool { return placed[id] || located(id) }, located)
		placed[e.ID] = true
		effects = append(effects, ef)
	}
	return effects
}

// insertionAnchor places state[i] after the nearest earlier element that
// can anchor it, or before the nearest later original that stayed in place.
// With neither, the element is appended to the document.
func insertionAnchor(state []oplog.Element, i int, anchors, fixed func(string) bool) oplog.Position {
	for j := i - 1; j >= 0; j-- {
		if anchors(state[j].ID) {
			return oplog.Position{After: state[j].ID}
		}
	}
	for _, next := range state[i+1:] {
		if fixed(next.ID) {
			return oplog.Position{Before: next.ID}
		}
	}
	return oplog.Position{}
}

// separator is the blank line used between blocks, matching the source's
// line endings.
func separator(source string) string {
	if strings.Contains(source, "\r\n") {
		return "\r\n\r\n"
	}
	return "\n\n"
}

func insertionText(text, sep string, before, atStart bool) string {
	switch {
	case before:
		return text + sep
	case atStart:
		return text
	}
	return sep + text
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\n' }

// absorbSeparators widens removals so they also take the blank lines
// separating them from the next block, or from the previous block at the
// end of the document. A removal is only widened when that does not collide
// with another patch.
func absorbSeparators(source string, patches []Patch, removal func(int) bool) {
	head := anchor.FrontMatterEnd(source)
	var idx []int
	for i := range patches {
		if removal(i) {
			idx = append(idx, i)
		}
	}
	slices.SortFunc(idx, func(a, b int) int {
		return cmp.Compare(patches[b].Span.Start, patches[a].Span.Start)
	})
	for _, i := range idx {
		s, e := patches[i].Span.Start, patches[i].Span.End
		if m, ok := gapAfter(source, e); ok && free(patches, i, anchor.Span{Start: s, End: m}) {
			patches[i].Span.End = m
			continue
		}
		if m, ok := gapBefore(source, s, head); ok && free(patches, i, anchor.Span{Start: m, End: e}) {
			patches[i].Span.Start = m
		}
	}
}

// gapAfter returns the end of the whole blank lines following e, if more
// content follows them.
func gapAfter(source string, e int) (int, bool) {
	j := e
	for j < len(source) && isSpace(source[j]) {
		j++
	}
	if j == len(source) {
		return 0, false
	}
	last := strings.LastIndexByte(source[e:j], '\n')
	if last < 0 {
		return 0, false
	}
	return e + last + 1, true
}

// gapBefore returns the start of the line breaks preceding s, if more
// content precedes them.
func gapBefore(source string, s, head int) (int, bool) {
	j := s
	for j > head && isSpace(source[j-1]) {
		j--
	}
	if j == head {
		return 0, false
	}
	first := strings.IndexByte(source[j:s], '\n')
	if first < 0 {
		return 0, false
	}
	m := j + first
	if m > j && source[m-1] == '\r' {
		m--
	}
	return m, true
}

func free(patches []Patch, self int, span anchor.Span) bool {
	for k, p := range patches {
		if k == self {
			continue
		}
		o := p.Span
		if o.Start == o.End {
			if span.Start < o.Start && o.Start < span.End {
				return false
			}
			continue
		}
		if o.Start < span.End && span.Start < o.End {
			return false
		}
	}
	return true
}
