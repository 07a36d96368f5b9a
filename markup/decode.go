package markup

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedMarkup is wrapped by every *MalformedError.
var ErrMalformedMarkup = errors.New("malformed change markup")

// MalformedError reports an opener with no matching closer. The region is
// kept as literal text.
type MalformedError struct {
	Offset int
	Opener string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("unclosed %s at offset %d", e.Opener, e.Offset)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedMarkup }

// token is matched by a single alternation so that adjacent and overlapping
// markers are taken strictly in source order. Group numbers are listed next
// to each alternative.
var token = regexp.MustCompile(`(?s)` +
	`\{\+\+(.*?)\+\+\}` + // 1 addition
	`|\{--(.*?)--\}` + // 2 deletion
	`|\{~~(.*?)~>(.*?)~~\}` + // 3, 4 substitution
	`|\{>>(.*?)<<\}` + // 5 comment
	`|\{==(.*?)==\}` + // 6 highlight
	"|`([^`]*)`" + // 7 code
	`|\*\*(.+?)\*\*` + // 8 strong
	`|\*([^*\s](?:[^*]*[^*\s])?)\*` + // 9 emphasis
	`|\[([^\]]*)\]\(([^)\s]*)\)`) // 10, 11 link

var openers = []string{openAdd, openDel, openSub, openCom, openHi}

// Decode parses text into nodes. Change markup nested inside strong,
// emphasis and link containers is decoded too.
//
// Unclosed openers stay in the surrounding text node; the returned error
// joins one *MalformedError per opener. The node tree is valid either way.
func Decode(text string) ([]Node, error) {
	nodes, errs := decode(text, 0)
	return nodes, errors.Join(errs...)
}

func decode(s string, base int) ([]Node, []error) {
	var (
		nodes []Node
		errs  []error
		pos   int
	)
	literal := func(end int) {
		if end <= pos {
			return
		}
		lit := s[pos:end]
		nodes = append(nodes, Node{Kind: KindText, Text: lit})
		errs = append(errs, unclosed(lit, base+pos)...)
	}
	for _, m := range token.FindAllStringSubmatchIndex(s, -1) {
		literal(m[0])
		group := func(g int) string { return s[m[2*g]:m[2*g+1]] }
		matched := func(g int) bool { return m[2*g] >= 0 }
		// container decodes the content of group g in place.
		container := func(kind Kind, marker string, g int) Node {
			children, cerrs := decode(group(g), base+m[2*g])
			errs = append(errs, cerrs...)
			return Node{Kind: kind, Marker: marker, Children: children}
		}

		switch {
		case matched(1):
			nodes = append(nodes, Node{Kind: KindAddition, Text: group(1)})
		case matched(2):
			nodes = append(nodes, Node{Kind: KindDeletion, Text: group(2)})
		case matched(3):
			nodes = append(nodes, Node{Kind: KindSubstitution, Children: []Node{
				{Kind: KindDeletion, Text: group(3)},
				{Kind: KindAddition, Text: group(4)},
			}})
		case matched(5):
			nodes = append(nodes, Node{Kind: KindComment, Text: group(5)})
		case matched(6):
			nodes = append(nodes, Node{Kind: KindHighlight, Text: group(6)})
		case matched(7):
			nodes = append(nodes, Node{Kind: KindCode, Marker: "`", Text: group(7)})
		case matched(8):
			nodes = append(nodes, container(KindStrong, "**", 8))
		case matched(9):
			nodes = append(nodes, container(KindEmphasis, "*", 9))
		case matched(10):
			n := container(KindLink, "", 10)
			n.URL = group(11)
			nodes = append(nodes, n)
		}
		pos = m[1]
	}
	literal(len(s))
	return nodes, errs
}

func unclosed(lit string, base int) []error {
	var errs []error
	for _, op := range openers {
		for i := 0; ; {
			j := strings.Index(lit[i:], op)
			if j < 0 {
				break
			}
			errs = append(errs, &MalformedError{Offset: base + i + j, Opener: op})
			i += j + len(op)
		}
	}
	return errs
}

// Walk calls fn for every node in depth-first pre-order.
func Walk(nodes []Node, fn func(Node)) {
	for _, n := range nodes {
		fn(n)
		Walk(n.Children, fn)
	}
}

// Changes returns the change nodes in source order, including those nested
// in containers. Substitutions are returned whole, not as their two halves.
func Changes(nodes []Node) []Node {
	var out []Node
	for _, n := range nodes {
		if n.Kind.IsChange() {
			out = append(out, n)
			continue
		}
		out = append(out, Changes(n.Children)...)
	}
	return out
}

// Source renders nodes back into markup text. For input without malformed
// regions Source(Decode(s)) == s.
func Source(nodes []Node) string {
	var b strings.Builder
	writeSource(&b, nodes)
	return b.String()
}

func writeSource(b *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		switch n.Kind {
		case KindText:
			b.WriteString(n.Text)
		case KindAddition:
			b.WriteString(Addition(n.Text))
		case KindDeletion:
			b.WriteString(Deletion(n.Text))
		case KindSubstitution:
			oldText, newText := substitutionSides(n)
			b.WriteString(Substitution(oldText, newText))
		case KindComment:
			b.WriteString(Comment(n.Text))
		case KindHighlight:
			b.WriteString(Highlight(n.Text))
		case KindCode:
			b.WriteString("`" + n.Text + "`")
		case KindStrong, KindEmphasis:
			b.WriteString(n.Marker)
			writeSource(b, n.Children)
			b.WriteString(n.Marker)
		case KindLink:
			b.WriteString("[")
			writeSource(b, n.Children)
			b.WriteString("](" + n.URL + ")")
		}
	}
}

func substitutionSides(n Node) (oldText, newText string) {
	for _, c := range n.Children {
		switch c.Kind {
		case KindDeletion:
			oldText = c.Text
		case KindAddition:
			newText = c.Text
		}
	}
	return oldText, newText
}
