package patch

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/alimasry/go-review-tracker/anchor"
	"github.com/alimasry/go-review-tracker/markup"
	"github.com/alimasry/go-review-tracker/oplog"
)

// opList builds a well-formed operation sequence.
type opList []oplog.Operation

func (l opList) add(op oplog.Operation) opList {
	op.Sequence = uint64(len(l) + 1)
	op.ID = fmt.Sprintf("op%d", op.Sequence)
	return append(l, op)
}

func (l opList) edit(id, content string) opList {
	return l.add(oplog.Operation{Kind: oplog.KindEdit, ElementID: id, Edit: &oplog.EditData{NewContent: content}})
}

func (l opList) insert(id, content string, pos oplog.Position) opList {
	return l.add(oplog.Operation{Kind: oplog.KindInsert, ElementID: id, Insert: &oplog.InsertData{Content: content, Position: pos}})
}

func (l opList) del(id string) opList {
	return l.add(oplog.Operation{Kind: oplog.KindDelete, ElementID: id, Delete: &oplog.DeleteData{}})
}

func (l opList) move(id string, from, to int) opList {
	return l.add(oplog.Operation{Kind: oplog.KindMove, ElementID: id, Move: &oplog.MoveData{FromIndex: from, ToIndex: to}})
}

func elems(contents ...string) []oplog.Element {
	out := make([]oplog.Element, len(contents))
	for i, c := range contents {
		out[i] = oplog.Element{ID: c, Content: c}
	}
	return out
}

func after(id string) oplog.Position  { return oplog.Position{After: id} }
func before(id string) oplog.Position { return oplog.Position{Before: id} }

func mustExport(t *testing.T, source string, original []oplog.Element, ops opList, mode Mode) *Result {
	t.Helper()
	res, err := Export(source, original, ops, mode)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	return res
}

func TestExport_Clean(t *testing.T) {
	abc := "A\n\nB\n\nC"
	tests := []struct {
		name     string
		source   string
		original []oplog.Element
		ops      opList
		want     string
	}{
		{
			name:     "no operations",
			source:   abc,
			original: elems("A", "B", "C"),
			want:     abc,
		},
		{
			name:     "chained inserts",
			source:   "A\n\nB",
			original: elems("A", "B"),
			ops:      opList{}.insert("D", "D", after("A")).insert("E", "E", after("D")),
			want:     "A\n\nD\n\nE\n\nB",
		},
		{
			name:     "shared anchor keeps sequence order",
			source:   "A\n\nB",
			original: elems("A", "B"),
			ops:      opList{}.insert("D", "D", after("A")).insert("E", "E", after("A")),
			want:     "A\n\nD\n\nE\n\nB",
		},
		{
			name:     "insert before",
			source:   abc,
			original: elems("A", "B", "C"),
			ops:      opList{}.insert("X", "X", before("A")),
			want:     "X\n\nA\n\nB\n\nC",
		},
		{
			name:     "insert without anchor appends",
			source:   "A\n\nB\n",
			original: elems("A", "B"),
			ops:      opList{}.insert("X", "X", oplog.Position{}),
			want:     "A\n\nB\n\nX\n",
		},
		{
			name:   "insert into empty source",
			source: "",
			ops:    opList{}.insert("X", "X", oplog.Position{}),
			want:   "X",
		},
		{
			name:     "delete middle",
			source:   abc,
			original: elems("A", "B", "C"),
			ops:      opList{}.del("B"),
			want:     "A\n\nC",
		},
		{
			name:     "delete first",
			source:   abc,
			original: elems("A", "B", "C"),
			ops:      opList{}.del("A"),
			want:     "B\n\nC",
		},
		{
			name:     "delete last",
			source:   abc,
			original: elems("A", "B", "C"),
			ops:      opList{}.del("C"),
			want:     "A\n\nB",
		},
		{
			name:     "delete adjacent",
			source:   abc,
			original: elems("A", "B", "C"),
			ops:      opList{}.del("B").del("C"),
			want:     "A",
		},
		{
			name:     "move to front",
			source:   abc,
			original: elems("A", "B", "C"),
			ops:      opList{}.move("C", 2, 0),
			want:     "C\n\nA\n\nB",
		},
		{
			name:     "move to end",
			source:   abc,
			original: elems("A", "B", "C"),
			ops:      opList{}.move("A", 0, 2),
			want:     "B\n\nC\n\nA",
		},
		{
			name:     "edited insert",
			source:   "A\n\nB",
			original: elems("A", "B"),
			ops:      opList{}.insert("D", "D", after("A")).edit("D", "D2"),
			want:     "A\n\nD2\n\nB",
		},
		{
			name:     "deleted insert",
			source:   "A\n\nB",
			original: elems("A", "B"),
			ops:      opList{}.insert("D", "D", after("A")).del("D"),
			want:     "A\n\nB",
		},
		{
			name:     "edit then delete",
			source:   abc,
			original: elems("A", "B", "C"),
			ops:      opList{}.edit("B", "B2").del("B"),
			want:     "A\n\nC",
		},
		{
			name:     "edits fold into one",
			source:   abc,
			original: elems("A", "B", "C"),
			ops:      opList{}.edit("B", "B2").edit("B", "B3"),
			want:     "A\n\nB3\n\nC",
		},
		{
			name:     "edit back to original",
			source:   abc,
			original: elems("A", "B", "C"),
			ops:      opList{}.edit("B", "B2").edit("B", "B"),
			want:     abc,
		},
		{
			name:     "crlf insert",
			source:   "A\r\n\r\nB",
			original: elems("A", "B"),
			ops:      opList{}.insert("D", "D", after("A")),
			want:     "A\r\n\r\nD\r\n\r\nB",
		},
		{
			name:     "crlf delete last",
			source:   "A\r\n\r\nB",
			original: elems("A", "B"),
			ops:      opList{}.del("B"),
			want:     "A",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustExport(t, tt.source, tt.original, tt.ops, Clean)
			if res.Text != tt.want {
				t.Errorf("Text = %q, want %q", res.Text, tt.want)
			}
			if len(res.Skipped) != 0 {
				t.Errorf("Skipped = %+v", res.Skipped)
			}
		})
	}
}

func TestExport_EditWithPositionHint(t *testing.T) {
	src := "First.\n\nSecond.\n\nThird."
	original := []oplog.Element{
		{ID: "a", Content: "First."},
		{ID: "b", Content: "Second.", SourcePosition: &oplog.SourcePosition{Line: 3, Column: 1}},
		{ID: "c", Content: "Third."},
	}
	res := mustExport(t, src, original, opList{}.edit("b", "Second EDITED."), Clean)
	if want := "First.\n\nSecond EDITED.\n\nThird."; res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if len(res.Applied) != 1 {
		t.Fatalf("Applied = %+v", res.Applied)
	}
	a := res.Applied[0]
	if a.Confidence != anchor.PositionHint || a.Kind != oplog.KindEdit || a.Span != span(8, 15) {
		t.Errorf("Applied = %+v", a)
	}
}

func TestExport_EditFoundByContent(t *testing.T) {
	src := "# Title\n\nFirst paragraph.\n\nSecond paragraph here.\n\nLast one.\n"
	original := []oplog.Element{
		{ID: "h", Content: "# Title"},
		{ID: "p1", Content: "First paragraph."},
		{ID: "p2", Content: "Second paragraph here."},
		{ID: "p3", Content: "Last one."},
	}
	res := mustExport(t, src, original, opList{}.edit("p2", "Second paragraph, revised."), Clean)
	want := "# Title\n\nFirst paragraph.\n\nSecond paragraph, revised.\n\nLast one.\n"
	if res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if res.Applied[0].Confidence != anchor.ExactMatch {
		t.Errorf("Confidence = %s", res.Applied[0].Confidence)
	}
}

func TestExport_NormalizedListBlock(t *testing.T) {
	src := "Intro.\n\n-   item\n-   other\n\nEnd.\n"
	original := []oplog.Element{
		{ID: "p", Content: "Intro."},
		{ID: "l", Content: "- item\n- other"},
		{ID: "e", Content: "End."},
	}
	res := mustExport(t, src, original, opList{}.edit("l", "- item\n- changed"), Clean)
	if want := "Intro.\n\n- item\n- changed\n\nEnd.\n"; res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if res.Applied[0].Confidence != anchor.NormalizedMatch {
		t.Errorf("Confidence = %s", res.Applied[0].Confidence)
	}
}

func TestExport_FrontMatter(t *testing.T) {
	const fm = "---\ntitle: First.\n---\n"
	tests := []struct {
		name     string
		source   string
		original []oplog.Element
		ops      opList
		want     string
	}{
		{
			name:     "edit",
			source:   fm + "\nFirst.\n\nSecond.",
			original: elems("First.", "Second."),
			ops:      opList{}.edit("First.", "Premier."),
			want:     fm + "\nPremier.\n\nSecond.",
		},
		{
			name:     "insert before first block",
			source:   fm + "\nFirst.\n\nSecond.",
			original: elems("First.", "Second."),
			ops:      opList{}.insert("X", "X", before("First.")),
			want:     fm + "\nX\n\nFirst.\n\nSecond.",
		},
		{
			name:     "delete first block",
			source:   fm + "\nFirst.\n\nSecond.",
			original: elems("First.", "Second."),
			ops:      opList{}.del("First."),
			want:     fm + "\nSecond.",
		},
		{
			name:     "delete only block",
			source:   fm + "\nFirst.",
			original: elems("First."),
			ops:      opList{}.del("First."),
			want:     fm + "\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustExport(t, tt.source, tt.original, tt.ops, Clean)
			if res.Text != tt.want {
				t.Errorf("Text = %q, want %q", res.Text, tt.want)
			}
		})
	}
}

func TestExport_Tracked(t *testing.T) {
	src := "First.\n\nSecond.\n\nThird."
	original := []oplog.Element{
		{ID: "a", Content: "First."},
		{ID: "b", Content: "Second."},
		{ID: "c", Content: "Third."},
	}
	res := mustExport(t, src, original, opList{}.edit("b", "Second EDITED."), Tracked)
	if want := "First.\n\n{~~Second.~>Second EDITED.~~}\n\nThird."; res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
}

// Accepting every change of a tracked export gives the clean export and
// rejecting every change gives the source back.
func TestExport_TrackedAcceptReject(t *testing.T) {
	src := "A\n\nB\n\nC"
	original := elems("A", "B", "C")
	tests := []struct {
		name string
		ops  opList
	}{
		{"edit", opList{}.edit("B", "B with more words")},
		{"delete", opList{}.del("B")},
		{"delete last", opList{}.del("C")},
		{"insert", opList{}.insert("D", "D", after("A"))},
		{"chained", opList{}.insert("D", "D", after("A")).insert("E", "E", after("D"))},
		{"insert before", opList{}.insert("X", "X", before("A"))},
		{"move", opList{}.move("C", 2, 0)},
		{"mixed", opList{}.edit("A", "A2").del("B").insert("D", "D", after("C"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clean := mustExport(t, src, original, tt.ops, Clean)
			tracked := mustExport(t, src, original, tt.ops, Tracked)
			if got := markup.Strip(tracked.Text); got != clean.Text {
				t.Errorf("Strip(%q) = %q, want %q", tracked.Text, got, clean.Text)
			}
			if got := markup.Reject(tracked.Text); got != src {
				t.Errorf("Reject(%q) = %q, want %q", tracked.Text, got, src)
			}
		})
	}
}

func TestExport_SkipsReplayErrors(t *testing.T) {
	src := "A\n\nB"
	ops := opList{}.edit("nope", "x").edit("B", "B2")
	res := mustExport(t, src, elems("A", "B"), ops, Clean)
	if res.Text != "A\n\nB2" {
		t.Errorf("Text = %q", res.Text)
	}
	if len(res.Skipped) != 1 {
		t.Fatalf("Skipped = %+v", res.Skipped)
	}
	s := res.Skipped[0]
	if s.ElementID != "nope" || len(s.OperationIDs) != 1 || s.OperationIDs[0] != "op1" {
		t.Errorf("Skipped = %+v", s)
	}
	if !errors.Is(s.Err, oplog.ErrReplayInconsistency) {
		t.Errorf("Err = %v", s.Err)
	}
}

func TestExport_SkipsUnlocatableElements(t *testing.T) {
	src := "A\n\nB"
	original := []oplog.Element{
		{ID: "a", Content: "A"},
		{ID: "g", Content: "Ghost paragraph."},
		{ID: "b", Content: "B"},
	}
	ops := opList{}.edit("g", "Still a ghost.").edit("b", "B2").insert("D", "D", after("g"))
	res := mustExport(t, src, original, ops, Clean)
	// D falls back to following A, the nearest element found in the source.
	if want := "A\n\nD\n\nB2"; res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if len(res.Skipped) != 1 {
		t.Fatalf("Skipped = %+v", res.Skipped)
	}
	s := res.Skipped[0]
	if s.ElementID != "g" || !errors.Is(s.Err, anchor.ErrAnchorNotFound) {
		t.Errorf("Skipped = %+v", s)
	}
	if !strings.Contains(s.Reason, "not found") {
		t.Errorf("Reason = %q", s.Reason)
	}
}

func TestExport_SkipsMoveOfUnlocatableElement(t *testing.T) {
	src := "A.\n\nB drifted.\n\nC."
	original := []oplog.Element{
		{ID: "a", Content: "A."},
		{ID: "b", Content: "B original."},
		{ID: "c", Content: "C."},
	}
	ops := opList{}.move("b", 1, 2).insert("d", "D.", after("b"))
	for _, mode := range []Mode{Clean, Tracked} {
		t.Run(mode.String(), func(t *testing.T) {
			res := mustExport(t, src, original, ops, mode)
			// Nothing of b is written; d anchors on c instead.
			want := "A.\n\nB drifted.\n\nC.\n\nD."
			if mode == Tracked {
				want = "A.\n\nB drifted.\n\nC.{++\n\nD.++}"
			}
			if res.Text != want {
				t.Errorf("Text = %q, want %q", res.Text, want)
			}
			if len(res.Skipped) != 1 {
				t.Fatalf("Skipped = %+v", res.Skipped)
			}
			s := res.Skipped[0]
			if s.ElementID != "b" || len(s.OperationIDs) != 1 || s.OperationIDs[0] != "op1" || !errors.Is(s.Err, anchor.ErrAnchorNotFound) {
				t.Errorf("Skipped = %+v", s)
			}
			for _, a := range res.Applied {
				if a.ElementID == "b" {
					t.Errorf("move reported as applied: %+v", a)
				}
			}
			if len(res.Applied) != 1 || res.Applied[0].ElementID != "d" {
				t.Errorf("Applied = %+v", res.Applied)
			}
		})
	}
}

func TestExport_AppliedListsFoldedOperations(t *testing.T) {
	ops := opList{}.edit("B", "B2").edit("B", "B3")
	res := mustExport(t, "A\n\nB", elems("A", "B"), ops, Clean)
	if len(res.Applied) != 1 {
		t.Fatalf("Applied = %+v", res.Applied)
	}
	if got := res.Applied[0].OperationIDs; len(got) != 2 || got[0] != "op1" || got[1] != "op2" {
		t.Errorf("OperationIDs = %v", got)
	}
}

func TestExport_RejectsBadLog(t *testing.T) {
	ops := opList{}.edit("A", "x")
	ops[0].Sequence = 0
	ops = append(ops, ops[0])
	if _, err := Export("A", elems("A"), ops, Clean); !errors.Is(err, oplog.ErrSequenceOrder) {
		t.Errorf("err = %v, want ErrSequenceOrder", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Clean, false},
		{"clean", Clean, false},
		{"tracked", Tracked, false},
		{"critic", Clean, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
			}
			if err == nil && got.String() != tt.want.String() {
				t.Errorf("String = %q", got.String())
			}
		})
	}
}
