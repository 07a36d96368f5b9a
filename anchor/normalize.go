package anchor

import (
	"sort"
	"strings"
)

// normalized is a whitespace-normalised copy of a text together with, for
// every byte of the copy, the range of original bytes it was produced from.
type normalized struct {
	text   string
	starts []int
	ends   []int
}

type normalizer struct {
	buf     []byte
	starts  []int
	ends    []int
	pending []int // offsets of line breaks since the last non-blank line
	content bool
}

func (n *normalizer) emit(c byte, start, end int) {
	n.buf = append(n.buf, c)
	n.starts = append(n.starts, start)
	n.ends = append(n.ends, end)
}

// normalize canonicalises the whitespace that intermediate tooling tends to
// rewrite without changing meaning:
//   - CRLF line endings become LF and trailing blanks are dropped;
//   - leading indentation is dropped;
//   - a list marker is followed by exactly one space;
//   - blockquote markers lose the blanks after them;
//   - runs of blanks inside a line become one space;
//   - runs of blank lines become one blank line; leading and trailing
//     blank lines are dropped.
func normalize(s string) normalized {
	var n normalizer
	for i := 0; ; {
		end := len(s)
		if k := strings.IndexByte(s[i:], '\n'); k >= 0 {
			end = i + k
		}
		n.line(s, i, end)
		if end == len(s) {
			break
		}
		n.pending = append(n.pending, end)
		i = end + 1
	}
	return normalized{text: string(n.buf), starts: n.starts, ends: n.ends}
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

func (n *normalizer) line(s string, start, end int) {
	ce := end
	for ce > start && (isBlank(s[ce-1]) || s[ce-1] == '\r') {
		ce--
	}
	j := start
	for j < ce && isBlank(s[j]) {
		j++
	}
	if j == ce {
		return
	}
	if n.content && len(n.pending) > 0 {
		first := n.pending[0]
		n.emit('\n', first, first+1)
		if len(n.pending) > 1 {
			last := n.pending[len(n.pending)-1]
			n.emit('\n', last, last+1)
		}
	}
	n.pending = n.pending[:0]
	n.content = true

	for j < ce && s[j] == '>' {
		n.emit('>', j, j+1)
		j++
		for j < ce && isBlank(s[j]) {
			j++
		}
	}
	if k := listMarker(s, j, ce); k > j {
		for ; j < k; j++ {
			n.emit(s[j], j, j+1)
		}
		m := k
		for m < ce && isBlank(s[m]) {
			m++
		}
		n.emit(' ', k, m)
		j = m
	}
	for j < ce {
		if isBlank(s[j]) {
			m := j
			for m < ce && isBlank(s[m]) {
				m++
			}
			n.emit(' ', j, m)
			j = m
			continue
		}
		n.emit(s[j], j, j+1)
		j++
	}
}

// listMarker returns the end of a list marker ("-", "*", "+", "1." or "1)")
// starting at j, or j if there is none. A marker must be followed by a blank.
func listMarker(s string, j, end int) int {
	if j >= end {
		return j
	}
	k := j
	switch c := s[j]; {
	case c == '-' || c == '*' || c == '+':
		k = j + 1
	case c >= '0' && c <= '9':
		for k < end && s[k] >= '0' && s[k] <= '9' {
			k++
		}
		if k >= end || (s[k] != '.' && s[k] != ')') {
			return j
		}
		k++
	default:
		return j
	}
	if k < end && isBlank(s[k]) {
		return k
	}
	return j
}

// find searches for needle (already normalised) in n starting at the
// normalised position of source offset from. It returns the original byte
// range of the match.
func (n normalized) find(needle string, from int) (Span, bool) {
	if needle == "" {
		return Span{}, false
	}
	k := sort.SearchInts(n.starts, from)
	i, ok := indexAtLineStart(n.text[k:], needle)
	if !ok {
		return Span{}, false
	}
	ns := k + i
	ne := ns + len(needle)
	return Span{Start: n.starts[ns], End: n.ends[ne-1]}, true
}

// prefix reports whether n begins with needle and returns the original
// range of the matched prefix.
func (n normalized) prefix(needle string) (Span, bool) {
	if needle == "" || !strings.HasPrefix(n.text, needle) {
		return Span{}, false
	}
	return Span{Start: n.starts[0], End: n.ends[len(needle)-1]}, true
}

// indexAtLineStart returns the first occurrence of needle in s that starts a
// line, or the first occurrence anywhere if none does.
func indexAtLineStart(s, needle string) (int, bool) {
	first := -1
	for off := 0; off <= len(s); {
		i := strings.Index(s[off:], needle)
		if i < 0 {
			break
		}
		at := off + i
		if at == 0 || s[at-1] == '\n' {
			return at, true
		}
		if first < 0 {
			first = at
		}
		off = at + 1
	}
	return first, first >= 0
}

// FrontMatterEnd returns the length of a leading YAML front matter block
// ("---" through the closing "---" or "..." line), or 0 if there is none.
func FrontMatterEnd(source string) int {
	if !strings.HasPrefix(source, "---\n") && !strings.HasPrefix(source, "---\r\n") {
		return 0
	}
	i := strings.IndexByte(source, '\n') + 1
	for i < len(source) {
		next := len(source)
		if k := strings.IndexByte(source[i:], '\n'); k >= 0 {
			next = i + k + 1
		}
		line := strings.TrimRight(source[i:next], "\r\n")
		if line == "---" || line == "..." {
			return next
		}
		i = next
	}
	return 0
}

// lineOffset returns the byte offset of the start of the 1-based line.
func lineOffset(source string, line int) (int, bool) {
	if line < 1 {
		return 0, false
	}
	off := 0
	for l := 1; l < line; l++ {
		k := strings.IndexByte(source[off:], '\n')
		if k < 0 {
			return 0, false
		}
		off += k + 1
	}
	return off, true
}
