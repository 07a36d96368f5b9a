package patch

import (
	"errors"
	"testing"

	"github.com/alimasry/go-review-tracker/anchor"
)

func span(s, e int) anchor.Span { return anchor.Span{Start: s, End: e} }

func TestApply(t *testing.T) {
	const src = "abcdefgh"
	tests := []struct {
		name         string
		patches      []Patch
		want         string
		wantRejected int
	}{
		{
			name:    "replace",
			patches: []Patch{{Span: span(2, 4), Text: "XY"}},
			want:    "abXYefgh",
		},
		{
			name:    "given in any order",
			patches: []Patch{{Span: span(0, 1), Text: "A"}, {Span: span(6, 8), Text: ""}, {Span: span(3, 3), Text: "+"}},
			want:    "Abc+def",
		},
		{
			name:    "insertions by rank",
			patches: []Patch{{Span: span(4, 4), Rank: 1, Text: "2"}, {Span: span(4, 4), Rank: 0, Text: "1"}},
			want:    "abcd12efgh",
		},
		{
			name:    "insertion at start of replaced span",
			patches: []Patch{{Span: span(2, 2), Text: "^"}, {Span: span(2, 4), Text: "--"}},
			want:    "ab^--efgh",
		},
		{
			name:    "insertion at end of replaced span",
			patches: []Patch{{Span: span(4, 4), Text: "$"}, {Span: span(2, 4), Text: "--"}},
			want:    "ab--$efgh",
		},
		{
			name:         "overlap",
			patches:      []Patch{{Span: span(2, 5), Text: "1"}, {Span: span(4, 6), Text: "2"}},
			want:         "abcd2gh",
			wantRejected: 1,
		},
		{
			name:         "insertion inside replaced span",
			patches:      []Patch{{Span: span(3, 3), Text: "!"}, {Span: span(2, 5), Text: "_"}},
			want:         "abc!defgh",
			wantRejected: 1,
		},
		{
			name:         "out of range",
			patches:      []Patch{{Span: span(6, 12), Text: "?"}, {Span: span(0, 1), Text: "A"}},
			want:         "Abcdefgh",
			wantRejected: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rejected := Apply(src, tt.patches)
			if got != tt.want {
				t.Errorf("Apply = %q, want %q", got, tt.want)
			}
			if len(rejected) != tt.wantRejected {
				t.Errorf("rejected %d patches, want %d: %v", len(rejected), tt.wantRejected, rejected)
			}
		})
	}
}

func TestApply_RejectionErrors(t *testing.T) {
	_, rejected := Apply("abc", []Patch{
		{OperationID: "o1", Span: span(0, 2)},
		{OperationID: "o2", Span: span(1, 3)},
		{OperationID: "o3", Span: span(2, 9)},
	})
	if len(rejected) != 2 {
		t.Fatalf("rejected = %v", rejected)
	}
	byID := map[string]error{}
	for _, r := range rejected {
		byID[r.Patch.OperationID] = r.Err
	}
	if !errors.Is(byID["o3"], ErrOutOfRange) {
		t.Errorf("o3: %v", byID["o3"])
	}
	if !errors.Is(byID["o1"], ErrOverlap) {
		t.Errorf("o1: %v", byID["o1"])
	}
}

// Applying from the end must give the same text as splicing front to back
// while shifting later offsets by hand.
func TestApply_MatchesForwardSplice(t *testing.T) {
	src := "The quick brown fox jumps over the lazy dog."
	patches := []Patch{
		{Span: span(4, 9), Text: "slow"},
		{Span: span(10, 10), Text: "and "},
		{Span: span(16, 19), Text: "turtle"},
		{Span: span(35, 39), Text: ""},
		{Span: span(44, 44), Text: "!"},
	}
	want := src
	delta := 0
	for _, p := range patches {
		s, e := p.Span.Start+delta, p.Span.End+delta
		want = want[:s] + p.Text + want[e:]
		delta += len(p.Text) - (p.Span.End - p.Span.Start)
	}
	got, rejected := Apply(src, patches)
	if len(rejected) != 0 {
		t.Fatalf("rejected = %v", rejected)
	}
	if got != want {
		t.Errorf("Apply = %q, want %q", got, want)
	}
}
