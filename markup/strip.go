package markup

import (
	"regexp"
	"strings"
)

// change matches the five change forms only; containers are left alone.
var change = regexp.MustCompile(`(?s)` +
	`\{\+\+(.*?)\+\+\}` + // 1 addition
	`|\{--(.*?)--\}` + // 2 deletion
	`|\{~~(.*?)~>(.*?)~~\}` + // 3, 4 substitution
	`|\{>>(.*?)<<\}` + // 5 comment
	`|\{==(.*?)==\}`) // 6 highlight

// StripOptions controls how change markup is flattened.
type StripOptions struct {
	// Reject keeps the old side of every change instead of the new one.
	Reject bool
	// KeepComments turns comments into <!-- review-comment ... --> HTML
	// comments instead of dropping them.
	KeepComments bool
}

// Strip accepts every change: additions and the new side of substitutions
// are kept, deletions and comments are dropped, highlights keep their text.
func Strip(text string) string { return StripWithOptions(text, StripOptions{}) }

// Reject is the inverse of Strip: it restores the text before the changes.
func Reject(text string) string { return StripWithOptions(text, StripOptions{Reject: true}) }

// StripWithOptions removes all change markup from text, keeping the side of
// each change selected by opts.
func StripWithOptions(text string, opts StripOptions) string {
	var b strings.Builder
	pos := 0
	for _, m := range change.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(text[pos:m[0]])
		group := func(g int) string { return text[m[2*g]:m[2*g+1]] }
		matched := func(g int) bool { return m[2*g] >= 0 }
		switch {
		case matched(1):
			if !opts.Reject {
				b.WriteString(group(1))
			}
		case matched(2):
			if opts.Reject {
				b.WriteString(group(2))
			}
		case matched(3):
			if opts.Reject {
				b.WriteString(group(3))
			} else {
				b.WriteString(group(4))
			}
		case matched(5):
			if opts.KeepComments {
				b.WriteString(htmlComment(group(5)))
			}
		case matched(6):
			b.WriteString(group(6))
		}
		pos = m[1]
	}
	b.WriteString(text[pos:])
	return b.String()
}

func htmlComment(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	// "--" may not appear inside an HTML comment.
	return "<!-- review-comment " + strings.ReplaceAll(s, "--", "- -") + " -->"
}
