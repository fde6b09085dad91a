package model

import (
	"errors"
	"slices"
	"sort"
)

// ErrEmptyTerm is returned when a document operation is given the empty term.
// The empty term is reserved for the "all documents" posting list.
var ErrEmptyTerm = errors.New("empty term")

// Document is the in-memory document value object.
//
// A Document is not safe for concurrent mutation. Documents handed to a
// writable database are cloned, so callers may keep mutating their copy.
type Document struct {
	Data   []byte               `json:"data,omitempty"`
	Terms  map[string]*TermInfo `json:"terms,omitempty"`
	Values map[ValueSlot][]byte `json:"values,omitempty"`
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{
		Terms:  make(map[string]*TermInfo),
		Values: make(map[ValueSlot][]byte),
	}
}

// WithData sets the document data and returns the document.
func (d *Document) WithData(data []byte) *Document {
	d.Data = data
	return d
}

// WithTerm adds a term and returns the document. Errors are ignored; use
// AddTerm when the term may be empty.
func (d *Document) WithTerm(term string, wdfInc uint32) *Document {
	_ = d.AddTerm(term, wdfInc)
	return d
}

// WithPosting adds a positional term occurrence and returns the document.
func (d *Document) WithPosting(term string, pos uint32) *Document {
	_ = d.AddPosting(term, pos, 1)
	return d
}

// WithValue sets a value slot and returns the document.
func (d *Document) WithValue(slot ValueSlot, value []byte) *Document {
	d.SetValue(slot, value)
	return d
}

func (d *Document) term(term string) (*TermInfo, error) {
	if term == "" {
		return nil, ErrEmptyTerm
	}
	if d.Terms == nil {
		d.Terms = make(map[string]*TermInfo)
	}
	ti, ok := d.Terms[term]
	if !ok {
		ti = &TermInfo{}
		d.Terms[term] = ti
	}
	return ti, nil
}

// AddTerm adds a term without positional information, increasing its wdf by
// wdfInc.
func (d *Document) AddTerm(term string, wdfInc uint32) error {
	ti, err := d.term(term)
	if err != nil {
		return err
	}
	ti.WDF += wdfInc
	return nil
}

// AddPosting adds an occurrence of term at pos, increasing its wdf by wdfInc.
func (d *Document) AddPosting(term string, pos uint32, wdfInc uint32) error {
	ti, err := d.term(term)
	if err != nil {
		return err
	}
	ti.WDF += wdfInc
	i, found := slices.BinarySearch(ti.Positions, pos)
	if !found {
		ti.Positions = slices.Insert(ti.Positions, i, pos)
	}
	return nil
}

// RemoveTerm removes a term and all of its positions.
func (d *Document) RemoveTerm(term string) {
	delete(d.Terms, term)
}

// HasTerm reports whether the document is indexed by term.
func (d *Document) HasTerm(term string) bool {
	if d == nil {
		return false
	}
	_, ok := d.Terms[term]
	return ok
}

// Term returns the term info for term, or nil.
func (d *Document) Term(term string) *TermInfo {
	if d == nil {
		return nil
	}
	return d.Terms[term]
}

// SetValue sets the value in slot. An empty value clears the slot.
func (d *Document) SetValue(slot ValueSlot, value []byte) {
	if len(value) == 0 {
		delete(d.Values, slot)
		return
	}
	if d.Values == nil {
		d.Values = make(map[ValueSlot][]byte)
	}
	d.Values[slot] = append([]byte(nil), value...)
}

// Value returns the value stored in slot (nil when unset).
func (d *Document) Value(slot ValueSlot) []byte {
	if d == nil {
		return nil
	}
	return d.Values[slot]
}

// TermList returns the document's terms in ascending byte order.
func (d *Document) TermList() []string {
	terms := make([]string, 0, len(d.Terms))
	for t := range d.Terms {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// Length returns the document length: the sum of all wdf values.
func (d *Document) Length() uint64 {
	var n uint64
	for _, ti := range d.Terms {
		n += uint64(ti.WDF)
	}
	return n
}

// HasPositions reports whether any term carries positional information.
func (d *Document) HasPositions() bool {
	for _, ti := range d.Terms {
		if len(ti.Positions) > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := &Document{
		Terms:  make(map[string]*TermInfo, len(d.Terms)),
		Values: make(map[ValueSlot][]byte, len(d.Values)),
	}
	if d.Data != nil {
		c.Data = append([]byte(nil), d.Data...)
	}
	for t, ti := range d.Terms {
		c.Terms[t] = ti.clone()
	}
	for s, v := range d.Values {
		c.Values[s] = append([]byte(nil), v...)
	}
	return c
}

// ApproxSize estimates the in-memory footprint of the document in bytes.
func (d *Document) ApproxSize() int64 {
	if d == nil {
		return 0
	}
	n := int64(len(d.Data))
	for t, ti := range d.Terms {
		n += int64(len(t)) + 8 + 4*int64(len(ti.Positions))
	}
	for _, v := range d.Values {
		n += 4 + int64(len(v))
	}
	return n
}
