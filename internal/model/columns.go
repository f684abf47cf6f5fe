package model

import "encoding/json"

// ColumnSelection is an insertion-ordered set of sheet header names chosen
// as personalization fields. The zero value is an empty selection.
//
// ColumnSelection is a value type: Toggle returns a new selection and never
// mutates the receiver's backing array.
type ColumnSelection struct {
	names []string
}

// NewColumnSelection builds a selection from names, dropping duplicates
// while keeping the first occurrence's position.
func NewColumnSelection(names ...string) ColumnSelection {
	var sel ColumnSelection
	for _, n := range names {
		if !sel.Contains(n) {
			sel.names = append(sel.names, n)
		}
	}
	return sel
}

// Toggle removes name if it is selected, otherwise appends it.
func (c ColumnSelection) Toggle(name string) ColumnSelection {
	next := make([]string, 0, len(c.names)+1)
	removed := false
	for _, n := range c.names {
		if n == name {
			removed = true
			continue
		}
		next = append(next, n)
	}
	if !removed {
		next = append(next, name)
	}
	return ColumnSelection{names: next}
}

// Contains reports whether name is selected.
func (c ColumnSelection) Contains(name string) bool {
	for _, n := range c.names {
		if n == name {
			return true
		}
	}
	return false
}

// Names returns a copy of the selected names in display order.
func (c ColumnSelection) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Len returns the number of selected columns.
func (c ColumnSelection) Len() int {
	return len(c.names)
}

// MarshalJSON encodes the selection as a JSON array of names.
func (c ColumnSelection) MarshalJSON() ([]byte, error) {
	if c.names == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.names)
}

// UnmarshalJSON decodes a JSON array, dropping duplicates.
func (c *ColumnSelection) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*c = NewColumnSelection(names...)
	return nil
}
