package markup

import (
	"bytes"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// RenderHTML renders decoded nodes as an HTML fragment for previews. Change
// nodes become spans carrying critic-* classes; a highlight directly
// followed by a comment is rendered as one span with the comment attached.
func RenderHTML(nodes []Node) (string, error) {
	var buf bytes.Buffer
	for _, n := range htmlNodes(nodes) {
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// RenderMarkupHTML decodes text and renders it. Malformed regions are
// rendered as literal text and reported in the error.
func RenderMarkupHTML(text string) (string, error) {
	nodes, derr := Decode(text)
	out, err := RenderHTML(nodes)
	if err != nil {
		return "", err
	}
	return out, derr
}

func htmlNodes(nodes []Node) []*html.Node {
	var out []*html.Node
	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		switch n.Kind {
		case KindText:
			out = append(out, text(n.Text))
		case KindAddition, KindDeletion, KindComment:
			out = append(out, critic(n.Kind, text(n.Text)))
		case KindSubstitution:
			oldText, newText := substitutionSides(n)
			el := critic(n.Kind, text(newText))
			el.Attr = append(el.Attr, html.Attribute{Key: "data-critic-original", Val: oldText})
			out = append(out, el)
		case KindHighlight:
			el := critic(n.Kind, text(n.Text))
			if i+1 < len(nodes) && nodes[i+1].Kind == KindComment {
				el.Attr = append(el.Attr, html.Attribute{Key: "data-critic-comment", Val: nodes[i+1].Text})
				i++
			}
			out = append(out, el)
		case KindCode:
			out = append(out, element(atom.Code, nil, text(n.Text)))
		case KindStrong:
			out = append(out, element(atom.Strong, nil, htmlNodes(n.Children)...))
		case KindEmphasis:
			out = append(out, element(atom.Em, nil, htmlNodes(n.Children)...))
		case KindLink:
			attrs := []html.Attribute{{Key: "href", Val: n.URL}}
			out = append(out, element(atom.A, attrs, htmlNodes(n.Children)...))
		}
	}
	return out
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func element(a atom.Atom, attrs []html.Attribute, children ...*html.Node) *html.Node {
	el := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
	for _, c := range children {
		el.AppendChild(c)
	}
	return el
}

func critic(k Kind, children ...*html.Node) *html.Node {
	return element(atom.Span, []html.Attribute{
		{Key: "class", Val: "critic-" + string(k)},
		{Key: "data-critic-type", Val: string(k)},
	}, children...)
}
