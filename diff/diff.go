// Package diff computes minimal line and word level differences between two
// snapshots of an element's text.
//
// All functions are quadratic in the number of tokens (words or lines) of
// their inputs. Callers diff one element at a time, never a whole document.
package diff

import (
	"slices"
	"strings"
	"unicode"
)

// Kind is the role a span of text plays in a diff.
type Kind int

const (
	Unchanged Kind = iota
	Add
	Delete
)

func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Add:
		return "add"
	case Delete:
		return "delete"
	}
	return "unknown"
}

// Change is one run of a diff. Concatenating the Unchanged and Add runs
// yields the new text; Unchanged and Delete yield the old text.
type Change struct {
	Kind Kind
	Text string
}

// LCS returns the longest common subsequence of a and b.
//
// When scores tie during backtracking the second sequence is stepped, so the
// result is deterministic for inputs with several equally long answers.
func LCS[T comparable](a, b []T) []T {
	dp := table(a, b)
	i, j := len(a), len(b)
	out := make([]T, 0, dp[i][j])
	for i > 0 && j > 0 {
		switch {
		case a[i-1] == b[j-1]:
			out = append(out, a[i-1])
			i--
			j--
		case dp[i-1][j] > dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	slices.Reverse(out)
	return out
}

func table[T comparable](a, b []T) [][]int {
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}
	return dp
}

// walk aligns a and b along their LCS, matching each common token at the
// first position where both sides reach it. Within a gap every deletion is
// emitted before any addition.
func walk[T comparable](a, b []T, emit func(Kind, T)) {
	common := LCS(a, b)
	i, j, k := 0, 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case k < len(common) && i < len(a) && j < len(b) && a[i] == common[k] && b[j] == common[k]:
			emit(Unchanged, a[i])
			i++
			j++
			k++
		case i < len(a) && (k == len(common) || a[i] != common[k]):
			emit(Delete, a[i])
			i++
		case j < len(b):
			emit(Add, b[j])
			j++
		default:
			emit(Delete, a[i])
			i++
		}
	}
}

// Diff compares two texts, line by line when either contains a line break
// and word by word otherwise.
func Diff(oldText, newText string) []Change {
	if strings.Contains(oldText, "\n") || strings.Contains(newText, "\n") {
		return Lines(oldText, newText)
	}
	return Words(oldText, newText)
}

// Words diffs two texts split into alternating runs of whitespace and
// non-whitespace. Separators are tokens, so no text is lost.
func Words(oldText, newText string) []Change {
	var out []Change
	walk(tokenize(oldText), tokenize(newText), func(k Kind, s string) {
		out = append(out, Change{Kind: k, Text: s})
	})
	return merge(out)
}

func tokenize(s string) []string {
	var toks []string
	start := 0
	inSpace := false
	for i, r := range s {
		sp := unicode.IsSpace(r)
		if i > start && sp != inSpace {
			toks = append(toks, s[start:i])
			start = i
		}
		inSpace = sp
	}
	if start < len(s) {
		toks = append(toks, s[start:])
	}
	return toks
}

type lineOp struct {
	kind Kind
	text string
}

// Lines diffs two texts line by line. A single changed line replaced by a
// single line is refined with Words; other changed runs become one deletion
// of all old lines followed by one addition of all new lines.
func Lines(oldText, newText string) []Change {
	var ops []lineOp
	walk(strings.Split(oldText, "\n"), strings.Split(newText, "\n"), func(k Kind, s string) {
		ops = append(ops, lineOp{k, s})
	})

	var (
		out              []Change
		oldSeen, newSeen bool
	)
	// separator emits the line break that precedes the next old and/or new
	// line, attributed to whichever sides actually have one.
	separator := func(onOld, onNew bool) {
		needOld := onOld && oldSeen
		needNew := onNew && newSeen
		switch {
		case needOld && needNew:
			out = append(out, Change{Unchanged, "\n"})
		case needOld:
			out = append(out, Change{Delete, "\n"})
		case needNew:
			out = append(out, Change{Add, "\n"})
		}
		oldSeen = oldSeen || onOld
		newSeen = newSeen || onNew
	}

	for i := 0; i < len(ops); {
		if ops[i].kind == Unchanged {
			separator(true, true)
			out = append(out, Change{Unchanged, ops[i].text})
			i++
			continue
		}
		var dels, adds []string
		for ; i < len(ops) && ops[i].kind != Unchanged; i++ {
			if ops[i].kind == Delete {
				dels = append(dels, ops[i].text)
			} else {
				adds = append(adds, ops[i].text)
			}
		}
		separator(len(dels) > 0, len(adds) > 0)
		switch {
		case len(dels) == 1 && len(adds) == 1:
			out = append(out, Words(dels[0], adds[0])...)
		default:
			if len(dels) > 0 {
				out = append(out, Change{Delete, strings.Join(dels, "\n")})
			}
			if len(adds) > 0 {
				out = append(out, Change{Add, strings.Join(adds, "\n")})
			}
		}
	}
	return merge(out)
}

// merge joins adjacent changes of the same kind and drops empty ones.
func merge(changes []Change) []Change {
	var out []Change
	for _, c := range changes {
		if c.Text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Kind == c.Kind {
			out[n-1].Text += c.Text
			continue
		}
		out = append(out, c)
	}
	return out
}

// Old reconstructs the old side of a diff.
func Old(changes []Change) string { return join(changes, Add) }

// New reconstructs the new side of a diff.
func New(changes []Change) string { return join(changes, Delete) }

func join(changes []Change, skip Kind) string {
	var b strings.Builder
	for _, c := range changes {
		if c.Kind != skip {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// Changed reports whether a diff contains any addition or deletion.
func Changed(changes []Change) bool {
	for _, c := range changes {
		if c.Kind != Unchanged {
			return true
		}
	}
	return false
}

// LineCount returns the number of lines in s. The empty string is one line.
func LineCount(s string) int { return strings.Count(s, "\n") + 1 }

// LineDelta returns how many lines an edit from oldText to newText adds
// (positive) or removes (negative).
func LineDelta(oldText, newText string) int { return LineCount(newText) - LineCount(oldText) }
