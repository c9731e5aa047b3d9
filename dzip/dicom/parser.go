// Package dicom walks a DICOM Part 10 element stream from the preamble up to,
// and never past, the top-level Pixel Data element.
package dicom

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/ZanzyTHEbar/dicomzip/dzip/common"
)

// Transfer syntaxes with a data set encoding of their own
const (
	ImplicitVRLittleEndian         = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian         = "1.2.840.10008.1.2.1"
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99"
	ExplicitVRBigEndian            = "1.2.840.10008.1.2.2"
)

const (
	preambleLength = 128
	magic          = "DICM"
	metaValueLimit = 1 << 16 // group 0002 values are never skipped below this
	valueChunk     = 1 << 16 // larger values grow with the bytes actually read
)

var validVRs = map[string]bool{
	"AE": true, "AS": true, "AT": true, "CS": true, "DA": true, "DS": true,
	"DT": true, "FL": true, "FD": true, "IS": true, "LO": true, "LT": true,
	"OB": true, "OD": true, "OF": true, "OL": true, "OV": true, "OW": true,
	"PN": true, "SH": true, "SL": true, "SQ": true, "SS": true, "ST": true,
	"SV": true, "TM": true, "UC": true, "UI": true, "UL": true, "UN": true,
	"UR": true, "US": true, "UT": true, "UV": true,
}

// VRs with a 2-byte reserved field and a 4-byte length in explicit syntaxes
var longLengthVRs = map[string]bool{
	"OB": true, "OD": true, "OF": true, "OL": true, "OV": true, "OW": true,
	"SQ": true, "SV": true, "UC": true, "UN": true, "UR": true, "UT": true,
	"UV": true,
}

// Options bounds the work done on a single stream
type Options struct {
	MaxValueLength   uint32 // values above this are skipped instead of buffered
	MaxSequenceDepth int    // deeper sequences are skipped (defined length) or end the walk
}

// DefaultOptions returns the limits used when none are configured
func DefaultOptions() Options {
	return Options{MaxValueLength: 16 << 20, MaxSequenceDepth: 8}
}

// File is the result of walking one stream
type File struct {
	Meta            *Dataset
	Dataset         *Dataset
	TransferSyntax  string
	Implicit        bool
	ByteOrder       binary.ByteOrder
	PixelDataOffset int64 // offset of the Pixel Data tag, -1 if the stream ended first
	BytesRead       int64 // bytes consumed; never beyond PixelDataOffset
	Errors          []*ElementParseError
}

// Degraded reports whether any element failed to decode
func (f *File) Degraded() bool {
	return len(f.Errors) > 0
}

type syntax struct {
	implicit bool
	order    binary.ByteOrder
	deflated bool
}

func lookupSyntax(uid string) (syntax, bool) {
	switch uid {
	case ImplicitVRLittleEndian:
		return syntax{implicit: true, order: binary.LittleEndian}, true
	case ExplicitVRLittleEndian:
		return syntax{order: binary.LittleEndian}, true
	case DeflatedExplicitVRLittleEndian:
		return syntax{order: binary.LittleEndian, deflated: true}, true
	case ExplicitVRBigEndian:
		return syntax{order: binary.BigEndian}, true
	}
	// encapsulated (JPEG family, RLE, MPEG, HEVC, HTJ2K) keep an explicit LE data set
	for _, prefix := range []string{
		"1.2.840.10008.1.2.4.",
		"1.2.840.10008.1.2.5",
		"1.2.840.10008.1.2.8.",
	} {
		if strings.HasPrefix(uid, prefix) {
			return syntax{order: binary.LittleEndian}, true
		}
	}
	return syntax{}, false
}

type parser struct {
	br       *bufio.Reader
	offset   int64
	order    binary.ByteOrder
	implicit bool
	opts     Options
	limit    uint32
	pixel    int64
	errs     []*ElementParseError
}

// Parse walks r and returns every element before Pixel Data. Element level
// failures are collected on File.Errors; the only error returned is
// common.ErrNoMetaHeader, when there is no preamble or group 0002 to anchor on.
func Parse(r io.Reader, opts Options) (*File, error) {
	if opts.MaxValueLength == 0 {
		opts.MaxValueLength = DefaultOptions().MaxValueLength
	}
	if opts.MaxSequenceDepth <= 0 {
		opts.MaxSequenceDepth = DefaultOptions().MaxSequenceDepth
	}

	p := &parser{
		br:    bufio.NewReader(r),
		order: binary.LittleEndian,
		opts:  opts,
		limit: max(opts.MaxValueLength, metaValueLimit),
		pixel: -1,
	}

	head, err := p.read(preambleLength + len(magic))
	if err != nil || string(head[preambleLength:]) != magic {
		return nil, fmt.Errorf("no DICM preamble: %w", common.ErrNoMetaHeader)
	}

	meta := NewDataset()
	for {
		b, err := p.br.Peek(2)
		if err != nil || binary.LittleEndian.Uint16(b) != 0x0002 {
			break
		}
		el, err := p.readElement(0)
		if el != nil {
			meta.Add(el)
		}
		if err != nil {
			break
		}
	}
	if meta.Len() == 0 {
		return nil, fmt.Errorf("group 0002 missing: %w", common.ErrNoMetaHeader)
	}

	f := &File{Meta: meta, Dataset: NewDataset()}
	if el, ok := meta.Get(tag.TransferSyntaxUID); ok {
		f.TransferSyntax, _ = el.Text()
	}

	syn, known := lookupSyntax(f.TransferSyntax)
	if !known {
		syn = p.sniffSyntax()
		p.fail(tag.TransferSyntaxUID, p.offset,
			fmt.Errorf("%q: %w", f.TransferSyntax, common.ErrUnsupportedTransferSyntax))
	}
	p.order, p.implicit = syn.order, syn.implicit
	p.limit = opts.MaxValueLength
	if syn.deflated {
		// offsets from here on count inflated bytes
		p.br = bufio.NewReader(flate.NewReader(p.br))
	}

	_ = p.readDataset(f.Dataset, 0, -1)

	f.Implicit = p.implicit
	f.ByteOrder = p.order
	f.PixelDataOffset = p.pixel
	f.BytesRead = p.offset
	f.Errors = p.errs
	return f, nil
}

// sniffSyntax guesses the data set encoding from the first element header
func (p *parser) sniffSyntax() syntax {
	b, err := p.br.Peek(6)
	if err == nil && validVRs[string(b[4:6])] {
		return syntax{order: binary.LittleEndian}
	}
	return syntax{implicit: true, order: binary.LittleEndian}
}

func (p *parser) fail(t Tag, offset int64, err error) *ElementParseError {
	var perr *ElementParseError
	if errors.As(err, &perr) {
		return perr
	}
	perr = &ElementParseError{Tag: t, Offset: offset, Err: err}
	p.errs = append(p.errs, perr)
	return perr
}

func (p *parser) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	k, err := io.ReadFull(p.br, buf)
	p.offset += int64(k)
	return buf, err
}

// readValue reads an n byte value without trusting n for the allocation
func (p *parser) readValue(n int) ([]byte, error) {
	if n <= valueChunk {
		return p.read(n)
	}
	var buf bytes.Buffer
	buf.Grow(valueChunk)
	k, err := buf.ReadFrom(io.LimitReader(p.br, int64(n)))
	p.offset += k
	if err != nil {
		return nil, err
	}
	if k < int64(n) {
		return nil, io.ErrUnexpectedEOF
	}
	return buf.Bytes(), nil
}

func (p *parser) skip(n int64) error {
	k, err := io.CopyN(io.Discard, p.br, n)
	p.offset += k
	if err != nil {
		return common.ErrTruncated
	}
	return nil
}

// readDataset reads elements into ds until end (absolute offset), an item
// delimiter, or, at depth 0, Pixel Data or the end of the stream.
func (p *parser) readDataset(ds *Dataset, depth int, end int64) error {
	for {
		if end >= 0 && p.offset >= end {
			if p.offset > end {
				return p.fail(Tag{}, p.offset, fmt.Errorf("item overrun by %d bytes: %w", p.offset-end, common.ErrInvalidLength))
			}
			return nil
		}

		if depth == 0 && end < 0 {
			b, err := p.br.Peek(4)
			if len(b) == 0 && err != nil {
				return nil
			}
			if err != nil {
				return p.fail(Tag{}, p.offset, common.ErrTruncated)
			}
			t := Tag{Group: p.order.Uint16(b[0:2]), Element: p.order.Uint16(b[2:4])}
			if t == tag.PixelData {
				p.pixel = p.offset
				return nil
			}
			if t == TrailingPaddingTag {
				return nil
			}
		}

		el, err := p.readElement(depth)
		if errors.Is(err, io.EOF) {
			if end < 0 && depth == 0 {
				return nil
			}
			return p.fail(Tag{}, p.offset, common.ErrTruncated)
		}
		if el != nil && el.Tag == ItemDelimitationTag {
			return err
		}
		if el != nil {
			ds.Add(el)
		}
		if err != nil {
			return err
		}
	}
}

type header struct {
	tag    Tag
	vr     string
	length uint32
	offset int64
}

func (p *parser) readHeader() (header, error) {
	h := header{offset: p.offset}
	b, err := p.read(4)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return h, io.EOF
		}
		return h, p.fail(Tag{}, h.offset, common.ErrTruncated)
	}
	h.tag = Tag{Group: p.order.Uint16(b[0:2]), Element: p.order.Uint16(b[2:4])}

	if h.tag.Group == 0xFFFE {
		b, err = p.read(4)
		if err != nil {
			return h, p.fail(h.tag, h.offset, common.ErrTruncated)
		}
		h.length = p.order.Uint32(b)
		return h, nil
	}

	if p.implicit {
		b, err = p.read(4)
		if err != nil {
			return h, p.fail(h.tag, h.offset, common.ErrTruncated)
		}
		h.length = p.order.Uint32(b)
		h.vr = LookupVR(h.tag)
		return h, nil
	}

	b, err = p.read(2)
	if err != nil {
		return h, p.fail(h.tag, h.offset, common.ErrTruncated)
	}
	h.vr = string(b)
	if !validVRs[h.vr] {
		return h, p.fail(h.tag, h.offset, fmt.Errorf("%q: %w", h.vr, common.ErrInvalidVR))
	}

	if longLengthVRs[h.vr] {
		b, err = p.read(6)
		if err != nil {
			return h, p.fail(h.tag, h.offset, common.ErrTruncated)
		}
		h.length = p.order.Uint32(b[2:6])
	} else {
		b, err = p.read(2)
		if err != nil {
			return h, p.fail(h.tag, h.offset, common.ErrTruncated)
		}
		h.length = uint32(p.order.Uint16(b))
	}
	return h, nil
}

// readElement reads one element. A non-nil element may come back together
// with an error when its value was cut short; the walk cannot continue then.
func (p *parser) readElement(depth int) (*Element, error) {
	h, err := p.readHeader()
	if err != nil {
		return nil, err
	}

	el := &Element{Tag: h.tag, VR: h.vr, Length: h.length, Offset: h.offset, order: p.order}

	if h.tag.Group == 0xFFFE {
		if h.tag == ItemDelimitationTag {
			return el, nil
		}
		return nil, p.fail(h.tag, h.offset, fmt.Errorf("delimiter outside a sequence: %w", common.ErrInvalidLength))
	}

	isSequence := h.vr == "SQ" || (h.length == UndefinedLength && (h.vr == "UN" || p.implicit))
	if isSequence {
		return p.readSequence(el, depth)
	}

	if h.length == UndefinedLength {
		if h.vr == "OB" || h.vr == "OW" {
			if err := p.skipFragments(); err != nil {
				el.Err = p.fail(h.tag, h.offset, err)
				return el, el.Err
			}
			el.Skipped = true
			return el, nil
		}
		el.Err = p.fail(h.tag, h.offset, common.ErrInvalidLength)
		return el, el.Err
	}

	if h.length > p.limit {
		if err := p.skip(int64(h.length)); err != nil {
			el.Err = p.fail(h.tag, h.offset, err)
			return el, el.Err
		}
		el.Skipped = true
		return el, nil
	}

	value, err := p.readValue(int(h.length))
	if err != nil {
		el.Err = p.fail(h.tag, h.offset, fmt.Errorf("declared %d bytes: %w", h.length, common.ErrTruncated))
		return el, el.Err
	}
	el.Value = value
	return el, nil
}

func (p *parser) readSequence(el *Element, depth int) (*Element, error) {
	unknown := el.VR == "UN"
	el.VR = "SQ"
	if depth+1 > p.opts.MaxSequenceDepth {
		perr := p.fail(el.Tag, el.Offset, common.ErrDepthExceeded)
		if el.Length == UndefinedLength {
			el.Err = perr
			return el, perr
		}
		if err := p.skip(int64(el.Length)); err != nil {
			el.Err = p.fail(el.Tag, el.Offset, err)
			return el, el.Err
		}
		el.Skipped = true
		return el, nil
	}

	// undefined length UN is an implicit VR little endian sequence
	restoreImplicit := p.implicit
	if !p.implicit && unknown && el.Length == UndefinedLength {
		p.implicit = true
	}
	items, err := p.readItems(depth+1, el.Length)
	p.implicit = restoreImplicit

	el.Items = items
	if err != nil {
		el.Err = err
		return el, err
	}
	return el, nil
}

func (p *parser) readItems(depth int, length uint32) ([]*Dataset, error) {
	var items []*Dataset
	end := int64(-1)
	if length != UndefinedLength {
		end = p.offset + int64(length)
	}

	for {
		if end >= 0 && p.offset >= end {
			if p.offset > end {
				return items, p.fail(Tag{}, p.offset, fmt.Errorf("sequence overrun: %w", common.ErrInvalidLength))
			}
			return items, nil
		}

		h, err := p.readItemHeader()
		if err != nil {
			return items, err
		}

		switch h.tag {
		case SequenceDelimitationTag:
			return items, nil
		case ItemTag:
			item := NewDataset()
			itemEnd := int64(-1)
			if h.length != UndefinedLength {
				itemEnd = p.offset + int64(h.length)
			}
			err := p.readDataset(item, depth, itemEnd)
			items = append(items, item)
			if err != nil {
				return items, err
			}
		default:
			return items, p.fail(h.tag, h.offset, fmt.Errorf("unexpected tag in sequence: %w", common.ErrInvalidLength))
		}
	}
}

// items and delimiters always carry a bare 4-byte length, whatever the syntax
func (p *parser) readItemHeader() (header, error) {
	h := header{offset: p.offset}
	b, err := p.read(8)
	if err != nil {
		return h, p.fail(Tag{}, h.offset, common.ErrTruncated)
	}
	h.tag = Tag{Group: p.order.Uint16(b[0:2]), Element: p.order.Uint16(b[2:4])}
	h.length = p.order.Uint32(b[4:8])
	return h, nil
}

// skipFragments passes over an encapsulated value without keeping it
func (p *parser) skipFragments() error {
	for {
		h, err := p.readItemHeader()
		if err != nil {
			return common.ErrTruncated
		}
		switch h.tag {
		case SequenceDelimitationTag:
			return nil
		case ItemTag:
			if h.length == UndefinedLength {
				return common.ErrInvalidLength
			}
			if err := p.skip(int64(h.length)); err != nil {
				return err
			}
		default:
			return common.ErrInvalidLength
		}
	}
}
