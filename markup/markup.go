// Package markup encodes diffs as inline change markup and decodes change
// markup back into a tree of plain value nodes.
//
// The grammar has five forms:
//
//	{++added++}  {--deleted--}  {~~old~>new~~}  {>>comment<<}  {==highlight==}
//
// Markers carry no escaping. Each form ends at the first closer that follows
// its opener, so content that itself contains that closer (such as "++}"
// inside an addition, or "~>" inside the old side of a substitution) does not
// survive an encode and decode round trip.
package markup

import (
	"strings"

	"github.com/alimasry/go-review-tracker/diff"
)

// Kind identifies a decoded node.
type Kind string

const (
	KindText         Kind = "text"
	KindAddition     Kind = "addition"
	KindDeletion     Kind = "deletion"
	KindSubstitution Kind = "substitution"
	KindComment      Kind = "comment"
	KindHighlight    Kind = "highlight"

	KindStrong   Kind = "strong"
	KindEmphasis Kind = "emphasis"
	KindCode     Kind = "code"
	KindLink     Kind = "link"
)

// IsChange reports whether k is one of the five change markup kinds.
func (k Kind) IsChange() bool {
	switch k {
	case KindAddition, KindDeletion, KindSubstitution, KindComment, KindHighlight:
		return true
	}
	return false
}

// Node is one decoded piece of text. Nodes hold only values and their own
// children, never references back into the input or to a parent.
//
// A substitution has exactly two children: the deletion of the old text and
// the addition of the new text. Container kinds (strong, emphasis, link)
// carry their decoded content in Children.
type Node struct {
	Kind     Kind   `json:"kind"`
	Text     string `json:"text,omitempty"`
	Marker   string `json:"marker,omitempty"`
	URL      string `json:"url,omitempty"`
	Children []Node `json:"children,omitempty"`
}

const (
	openAdd, closeAdd = "{++", "++}"
	openDel, closeDel = "{--", "--}"
	openSub, closeSub = "{~~", "~~}"
	subSep            = "~>"
	openCom, closeCom = "{>>", "<<}"
	openHi, closeHi   = "{==", "==}"
)

// Addition wraps s as an addition.
func Addition(s string) string { return openAdd + s + closeAdd }

// Deletion wraps s as a deletion.
func Deletion(s string) string { return openDel + s + closeDel }

// Substitution marks oldText as replaced by newText.
func Substitution(oldText, newText string) string {
	return openSub + oldText + subSep + newText + closeSub
}

// Comment wraps s as a reviewer comment.
func Comment(s string) string { return openCom + s + closeCom }

// Highlight wraps s as highlighted text.
func Highlight(s string) string { return openHi + s + closeHi }

// Encode renders a diff as change markup. Unchanged text is copied as is and
// a deletion directly followed by an addition always becomes one
// substitution.
func Encode(changes []diff.Change) string {
	var b strings.Builder
	for i := 0; i < len(changes); i++ {
		c := changes[i]
		switch c.Kind {
		case diff.Unchanged:
			b.WriteString(c.Text)
		case diff.Add:
			b.WriteString(Addition(c.Text))
		case diff.Delete:
			if i+1 < len(changes) && changes[i+1].Kind == diff.Add {
				b.WriteString(Substitution(c.Text, changes[i+1].Text))
				i++
				continue
			}
			b.WriteString(Deletion(c.Text))
		}
	}
	return b.String()
}

// EncodeDiff is Encode(diff.Diff(oldText, newText)).
func EncodeDiff(oldText, newText string) string {
	return Encode(diff.Diff(oldText, newText))
}
