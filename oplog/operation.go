package oplog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies what an operation does to an element.
type Kind string

const (
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
	KindEdit   Kind = "edit"
	KindMove   Kind = "move"
)

// Position anchors an inserted element relative to another element.
// At most one of After and Before should be set; Parent is used when neither is.
type Position struct {
	After  string `json:"after,omitempty"`
	Before string `json:"before,omitempty"`
	Parent string `json:"parent,omitempty"`
}

// Anchor returns the id the insert is placed relative to, if any.
func (p Position) Anchor() string {
	switch {
	case p.After != "":
		return p.After
	case p.Before != "":
		return p.Before
	default:
		return p.Parent
	}
}

type EditData struct {
	OldContent  string    `json:"oldContent"`
	NewContent  string    `json:"newContent"`
	OldMetadata *Metadata `json:"oldMetadata,omitempty"`
	NewMetadata *Metadata `json:"newMetadata,omitempty"`
}

type InsertData struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	Position Position `json:"position"`
}

type DeleteData struct {
	OriginalContent  string   `json:"originalContent"`
	OriginalMetadata Metadata `json:"originalMetadata"`
}

type MoveData struct {
	FromIndex int `json:"fromIndex"`
	ToIndex   int `json:"toIndex"`
}

// Operation is a single entry of the log. Exactly one of the data fields is
// set and it must match Kind; on the wire they share the "data" key.
type Operation struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	ElementID string    `json:"elementId"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId,omitempty"`

	Edit   *EditData   `json:"-"`
	Insert *InsertData `json:"-"`
	Delete *DeleteData `json:"-"`
	Move   *MoveData   `json:"-"`
}

// Validate checks that the payload matches the kind.
func (op Operation) Validate() error {
	if op.ElementID == "" {
		return fmt.Errorf("operation %q: missing element id", op.ID)
	}
	var ok bool
	switch op.Kind {
	case KindEdit:
		ok = op.Edit != nil
	case KindInsert:
		ok = op.Insert != nil
	case KindDelete:
		ok = op.Delete != nil
	case KindMove:
		ok = op.Move != nil
	default:
		return fmt.Errorf("operation %q: unknown kind %q", op.ID, op.Kind)
	}
	if !ok {
		return fmt.Errorf("operation %q: missing %s data", op.ID, op.Kind)
	}
	return nil
}

func (op Operation) data() any {
	switch op.Kind {
	case KindEdit:
		return op.Edit
	case KindInsert:
		return op.Insert
	case KindDelete:
		return op.Delete
	case KindMove:
		return op.Move
	}
	return nil
}

// Clone returns a copy that shares no payload with op.
func (op Operation) Clone() Operation {
	c := op
	if op.Edit != nil {
		e := *op.Edit
		if e.OldMetadata != nil {
			m := e.OldMetadata.Clone()
			e.OldMetadata = &m
		}
		if e.NewMetadata != nil {
			m := e.NewMetadata.Clone()
			e.NewMetadata = &m
		}
		c.Edit = &e
	}
	if op.Insert != nil {
		in := *op.Insert
		in.Metadata = in.Metadata.Clone()
		c.Insert = &in
	}
	if op.Delete != nil {
		d := *op.Delete
		d.OriginalMetadata = d.OriginalMetadata.Clone()
		c.Delete = &d
	}
	if op.Move != nil {
		m := *op.Move
		c.Move = &m
	}
	return c
}

type operationJSON Operation

type operationWire struct {
	operationJSON
	Data json.RawMessage `json:"data"`
}

func (op Operation) MarshalJSON() ([]byte, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(op.data())
	if err != nil {
		return nil, err
	}
	return json.Marshal(operationWire{operationJSON: operationJSON(op), Data: data})
}

func (op *Operation) UnmarshalJSON(b []byte) error {
	var w operationWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*op = Operation(w.operationJSON)
	if len(w.Data) == 0 || string(w.Data) == "null" {
		return fmt.Errorf("operation %q: missing data", op.ID)
	}
	var target any
	switch op.Kind {
	case KindEdit:
		op.Edit = &EditData{}
		target = op.Edit
	case KindInsert:
		op.Insert = &InsertData{}
		target = op.Insert
	case KindDelete:
		op.Delete = &DeleteData{}
		target = op.Delete
	case KindMove:
		op.Move = &MoveData{}
		target = op.Move
	default:
		return fmt.Errorf("operation %q: unknown kind %q", op.ID, op.Kind)
	}
	dec := json.NewDecoder(bytes.NewReader(w.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("operation %q: %s data: %w", op.ID, op.Kind, err)
	}
	return nil
}
