package oplog

import "errors"

// slot identifies the point an inserted element was placed at. Inserts that
// chain off each other share the slot of the first one.
type slot struct {
	anchor string
	before bool
}

// replayer is the derived document state plus the bookkeeping needed to
// place inserts the same way the source resolver does.
type replayer struct {
	elems []Element
	slots map[string]slot
}

func newReplayer(original []Element) *replayer {
	return &replayer{
		elems: cloneElements(original),
		slots: make(map[string]slot),
	}
}

func (r *replayer) index(id string) int {
	for i, e := range r.elems {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// apply mutates the state with op, or reports why it cannot.
func (r *replayer) apply(op Operation) error {
	if err := op.Validate(); err != nil {
		return inconsistent(op, "%v", err)
	}
	switch op.Kind {
	case KindEdit:
		i := r.index(op.ElementID)
		if i < 0 {
			return inconsistent(op, "edit target does not exist")
		}
		r.elems[i].Content = op.Edit.NewContent
		if op.Edit.NewMetadata != nil {
			r.elems[i].Metadata = op.Edit.NewMetadata.Clone()
		}
	case KindDelete:
		i := r.index(op.ElementID)
		if i < 0 {
			return inconsistent(op, "delete target does not exist")
		}
		r.elems = append(r.elems[:i], r.elems[i+1:]...)
	case KindMove:
		i := r.index(op.ElementID)
		if i < 0 {
			return inconsistent(op, "move target does not exist")
		}
		e := r.elems[i]
		r.elems = append(r.elems[:i], r.elems[i+1:]...)
		to := min(max(op.Move.ToIndex, 0), len(r.elems))
		r.elems = append(r.elems[:to], append([]Element{e}, r.elems[to:]...)...)
	case KindInsert:
		if r.index(op.ElementID) >= 0 {
			return inconsistent(op, "inserted id already exists")
		}
		at, s, err := r.insertIndex(op)
		if err != nil {
			return err
		}
		e := Element{
			ID:       op.ElementID,
			Content:  op.Insert.Content,
			Metadata: op.Insert.Metadata.Clone(),
		}
		r.elems = append(r.elems[:at], append([]Element{e}, r.elems[at:]...)...)
		r.slots[op.ElementID] = s
	}
	return nil
}

func (r *replayer) insertIndex(op Operation) (int, slot, error) {
	pos := op.Insert.Position
	anchor := pos.Anchor()
	if anchor == "" {
		return len(r.elems), slot{}, nil
	}
	i := r.index(anchor)
	if i < 0 {
		return 0, slot{}, inconsistent(op, "insert anchor %q does not exist", anchor)
	}
	s, chained := r.slots[anchor]
	if pos.After == "" && pos.Before != "" {
		if !chained {
			s = slot{anchor: anchor, before: true}
		}
		return i, s, nil
	}
	if !chained {
		s = slot{anchor: anchor}
	}
	// Advance past everything already placed at the same point.
	j := i + 1
	for j < len(r.elems) {
		if other, ok := r.slots[r.elems[j].ID]; !ok || other != s {
			break
		}
		j++
	}
	return j, s, nil
}

// Replay derives the document state from the original elements and the
// ordered operations. Operations that reference unknown elements are
// skipped; the returned error joins one *ReplayError per skipped operation.
func Replay(original []Element, ops []Operation) ([]Element, error) {
	r := newReplayer(original)
	var errs []error
	for _, op := range ops {
		if err := r.apply(op); err != nil {
			errs = append(errs, err)
		}
	}
	return cloneElements(r.elems), errors.Join(errs...)
}
