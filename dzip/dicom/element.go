package dicom

import (
	"encoding/binary"
	"fmt"
)

// UndefinedLength marks sequences and items terminated by delimiters
const UndefinedLength uint32 = 0xFFFFFFFF

// ElementParseError records one element that could not be read. The parser
// recovers from it; it never aborts extraction of the file.
type ElementParseError struct {
	Tag    Tag
	Offset int64
	Err    error
}

func (e *ElementParseError) Error() string {
	return fmt.Sprintf("element %s at offset %d: %v", e.Tag, e.Offset, e.Err)
}

func (e *ElementParseError) Unwrap() error { return e.Err }

// Element is one decoded data element. Value holds the raw bytes in the
// stream's byte order; sequences carry their items instead.
type Element struct {
	Tag     Tag
	VR      string
	Length  uint32
	Offset  int64
	Value   []byte
	Items   []*Dataset
	Skipped bool  // value was larger than the retention limit and was discarded
	Err     error // value could not be read in full

	order binary.ByteOrder
}

// ByteOrder returns the byte order the value was encoded in
func (e *Element) ByteOrder() binary.ByteOrder {
	if e.order == nil {
		return binary.LittleEndian
	}
	return e.order
}

// As returns a shallow copy of e reinterpreted with another VR. Private tags in
// implicit VR streams only get a real VR from the vendor catalog.
func (e *Element) As(vr string) *Element {
	c := *e
	c.VR = vr
	return &c
}

// Dataset is an ordered set of elements, either the top level of a file or one
// sequence item.
type Dataset struct {
	elements map[Tag]*Element
	order    []Tag
}

// NewDataset returns an empty data set
func NewDataset() *Dataset {
	return &Dataset{elements: make(map[Tag]*Element)}
}

// Add inserts e; the first occurrence of a repeated tag wins
func (d *Dataset) Add(e *Element) {
	if _, exists := d.elements[e.Tag]; exists {
		return
	}
	d.elements[e.Tag] = e
	d.order = append(d.order, e.Tag)
}

// Get returns the top-level element for t
func (d *Dataset) Get(t Tag) (*Element, bool) {
	if d == nil {
		return nil, false
	}
	e, ok := d.elements[t]
	return e, ok
}

// Find searches d and every nested sequence item depth first
func (d *Dataset) Find(t Tag) (*Element, bool) {
	if d == nil {
		return nil, false
	}
	if e, ok := d.elements[t]; ok {
		return e, true
	}
	for _, key := range d.order {
		e := d.elements[key]
		for _, item := range e.Items {
			if found, ok := item.Find(t); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// Item returns item i of the sequence at t, if present
func (d *Dataset) Item(t Tag, i int) (*Dataset, bool) {
	e, ok := d.Get(t)
	if !ok || i < 0 || i >= len(e.Items) {
		return nil, false
	}
	return e.Items[i], true
}

// Tags returns the element tags in stream order
func (d *Dataset) Tags() []Tag {
	if d == nil {
		return nil
	}
	out := make([]Tag, len(d.order))
	copy(out, d.order)
	return out
}

// Len returns the number of top-level elements
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}
