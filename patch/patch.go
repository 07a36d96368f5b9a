// Package patch rebuilds a source text with resolved changes applied,
// leaving every byte outside the changed spans untouched.
package patch

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/alimasry/go-review-tracker/anchor"
)

var (
	// ErrOverlap is returned for a patch whose span intersects a patch that
	// was already applied.
	ErrOverlap = errors.New("patch overlaps another patch")

	// ErrOutOfRange is returned for a patch whose span is not inside the source.
	ErrOutOfRange = errors.New("patch span out of range")
)

// Patch replaces Span of the source with Text. Insertions have an empty
// span; several insertions at one offset are ordered by ascending Rank.
type Patch struct {
	OperationID string
	Span        anchor.Span
	Rank        int
	Text        string

	ref int // set by Export to find the patch's effect again
}

// Rejected is a patch Apply refused.
type Rejected struct {
	Patch Patch
	Err   error
}

// Apply splices patches into source from the highest offset to the lowest,
// so offsets of patches not yet applied stay valid. Patches are ordered by
// start, then end, then rank, all descending. A patch overlapping one
// already applied is rejected and the rest are still applied.
func Apply(source string, patches []Patch) (string, []Rejected) {
	var (
		sorted   []Patch
		rejected []Rejected
	)
	for _, p := range patches {
		if p.Span.Start < 0 || p.Span.Start > p.Span.End || p.Span.End > len(source) {
			rejected = append(rejected, Rejected{p, fmt.Errorf("span [%d, %d) in %d bytes: %w", p.Span.Start, p.Span.End, len(source), ErrOutOfRange)})
			continue
		}
		sorted = append(sorted, p)
	}
	slices.SortStableFunc(sorted, func(a, b Patch) int {
		return cmp.Or(
			cmp.Compare(b.Span.Start, a.Span.Start),
			cmp.Compare(b.Span.End, a.Span.End),
			cmp.Compare(b.Rank, a.Rank),
		)
	})

	text := source
	limit := len(source) // start of the lowest patch applied so far
	for _, p := range sorted {
		if p.Span.End > limit {
			rejected = append(rejected, Rejected{p, fmt.Errorf("span [%d, %d): %w", p.Span.Start, p.Span.End, ErrOverlap)})
			continue
		}
		text = text[:p.Span.Start] + p.Text + text[p.Span.End:]
		limit = p.Span.Start
	}
	return text, rejected
}
