// Package offset tracks how edits shift line numbers so references keyed by
// an original line can be translated into current coordinates.
package offset

import "github.com/alimasry/go-review-tracker/diff"

// Record is the line shift caused by one edit.
type Record struct {
	Sequence     uint64 `json:"sequence"`
	ElementID    string `json:"elementId"`
	SectionIndex *int   `json:"sectionIndex,omitempty"`
	Line         *int   `json:"line,omitempty"`
	LineDelta    int    `json:"lineDelta"`
}

// Tracker accumulates line shifts for one session. The zero value is ready
// to use. A Tracker is not safe for concurrent use.
type Tracker struct {
	records []Record
}

// Record stores the line shift of an edit from oldContent to newContent on
// an element whose original section index and line are known (nil when
// not). Edits that keep the line count are not recorded.
func (t *Tracker) Record(seq uint64, elementID string, section, line *int, oldContent, newContent string) (Record, bool) {
	delta := diff.LineDelta(oldContent, newContent)
	if delta == 0 {
		return Record{}, false
	}
	r := Record{
		Sequence:     seq,
		ElementID:    elementID,
		SectionIndex: copyInt(section),
		Line:         copyInt(line),
		LineDelta:    delta,
	}
	t.records = append(t.records, r)
	return r, true
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// CurrentLine translates originalLine into the current document. A record
// applies when it lies before the queried position: by section index when
// both sides know theirs, otherwise by original line. A negative section
// means the caller does not know it. Only records with a sequence greater
// than since are counted; since 0 counts every record.
func (t *Tracker) CurrentLine(section, originalLine int, since uint64) int {
	line := originalLine
	for _, r := range t.records {
		if r.Sequence <= since {
			continue
		}
		if r.before(section, originalLine) {
			line += r.LineDelta
		}
	}
	return line
}

func (r Record) before(section, line int) bool {
	if section >= 0 && r.SectionIndex != nil {
		return *r.SectionIndex < section
	}
	if r.Line != nil {
		return *r.Line < line
	}
	return false
}

// Records returns a copy of the recorded shifts in insertion order.
func (t *Tracker) Records() []Record {
	out := make([]Record, len(t.records))
	for i, r := range t.records {
		r.SectionIndex = copyInt(r.SectionIndex)
		r.Line = copyInt(r.Line)
		out[i] = r
	}
	return out
}

// Reset discards all records.
func (t *Tracker) Reset() { t.records = nil }
