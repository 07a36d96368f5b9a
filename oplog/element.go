package oplog

// Metadata describes the block an element was segmented from.
type Metadata struct {
	Kind       string            `json:"kind"`
	Level      int               `json:"level,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Classes    []string          `json:"classes,omitempty"`
}

// SourcePosition is a hint to where an element starts in the source file.
// Line is 1-based, as emitted by the segmenter.
type SourcePosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Element is one block of the reviewed document.
type Element struct {
	ID             string          `json:"id"`
	Content        string          `json:"content"`
	Metadata       Metadata        `json:"metadata"`
	SourcePosition *SourcePosition `json:"sourcePosition,omitempty"`
	SourceFile     string          `json:"sourceFile,omitempty"`
}

// Clone returns a deep copy of the element.
func (e Element) Clone() Element {
	c := e
	c.Metadata = e.Metadata.Clone()
	if e.SourcePosition != nil {
		sp := *e.SourcePosition
		c.SourcePosition = &sp
	}
	return c
}

// Clone returns a deep copy of the metadata.
func (m Metadata) Clone() Metadata {
	c := m
	if m.Attributes != nil {
		c.Attributes = make(map[string]string, len(m.Attributes))
		for k, v := range m.Attributes {
			c.Attributes[k] = v
		}
	}
	if m.Classes != nil {
		c.Classes = append([]string(nil), m.Classes...)
	}
	return c
}

// Equal reports whether two metadata values describe the same block.
func (m Metadata) Equal(o Metadata) bool {
	if m.Kind != o.Kind || m.Level != o.Level {
		return false
	}
	if len(m.Attributes) != len(o.Attributes) || len(m.Classes) != len(o.Classes) {
		return false
	}
	for k, v := range m.Attributes {
		if ov, ok := o.Attributes[k]; !ok || ov != v {
			return false
		}
	}
	for i := range m.Classes {
		if m.Classes[i] != o.Classes[i] {
			return false
		}
	}
	return true
}

func cloneElements(elems []Element) []Element {
	out := make([]Element, len(elems))
	for i, e := range elems {
		out[i] = e.Clone()
	}
	return out
}
