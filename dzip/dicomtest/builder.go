// Package dicomtest builds small DICOM Part 10 streams and ZIP containers for
// tests. Nothing here is used outside of _test.go files.
package dicomtest

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const (
	ImplicitLE = "1.2.840.10008.1.2"
	ExplicitLE = "1.2.840.10008.1.2.1"
	Deflated   = "1.2.840.10008.1.2.1.99"
	ExplicitBE = "1.2.840.10008.1.2.2"

	MRImageStorage         = "1.2.840.10008.5.1.4.1.1.4"
	EnhancedMRImageStorage = "1.2.840.10008.5.1.4.1.1.4.1"
	CTImageStorage         = "1.2.840.10008.5.1.4.1.1.2"
)

const undefined uint32 = 0xFFFFFFFF

var longVRs = map[string]bool{
	"OB": true, "OD": true, "OF": true, "OL": true, "OV": true, "OW": true,
	"SQ": true, "SV": true, "UC": true, "UN": true, "UR": true, "UT": true,
	"UV": true,
}

// Builder accumulates a data set in one transfer syntax
type Builder struct {
	ts       string
	implicit bool
	order    binary.ByteOrder
	sopClass string
	noMeta   bool
	body     bytes.Buffer
	pixelAt  int64
}

// New starts a stream in transfer syntax ts. Unknown syntaxes are encoded as
// explicit VR little endian.
func New(ts string) *Builder {
	b := &Builder{ts: ts, order: binary.LittleEndian, sopClass: MRImageStorage, pixelAt: -1}
	switch ts {
	case ImplicitLE:
		b.implicit = true
	case ExplicitBE:
		b.order = binary.BigEndian
	}
	return b
}

// Item starts a sequence item encoded like b
func (b *Builder) Item() *Builder {
	return &Builder{ts: b.ts, implicit: b.implicit, order: b.order, pixelAt: -1}
}

// SOPClass sets the Media Storage SOP Class UID in the meta group
func (b *Builder) SOPClass(uid string) *Builder {
	b.sopClass = uid
	return b
}

// WithoutMeta keeps the preamble and DICM marker but omits group 0002
func (b *Builder) WithoutMeta() *Builder {
	b.noMeta = true
	return b
}

// Str appends a text element padded to even length
func (b *Builder) Str(t tag.Tag, vr, value string) *Builder {
	v := []byte(value)
	if len(v)%2 == 1 {
		pad := byte(' ')
		if vr == "UI" {
			pad = 0
		}
		v = append(v, pad)
	}
	return b.element(t, vr, uint32(len(v)), v)
}

// U16 appends a US element
func (b *Builder) U16(t tag.Tag, values ...uint16) *Builder {
	v := make([]byte, 2*len(values))
	for i, n := range values {
		b.order.PutUint16(v[2*i:], n)
	}
	return b.element(t, "US", uint32(len(v)), v)
}

// FD appends an FD element
func (b *Builder) FD(t tag.Tag, values ...float64) *Builder {
	v := make([]byte, 8*len(values))
	for i, n := range values {
		b.order.PutUint64(v[8*i:], math.Float64bits(n))
	}
	return b.element(t, "FD", uint32(len(v)), v)
}

// Raw appends an element whose header declares length but whose value is
// exactly value; a mismatch produces a truncated or misaligned stream.
func (b *Builder) Raw(t tag.Tag, vr string, length uint32, value []byte) *Builder {
	return b.element(t, vr, length, value)
}

// Bytes appends arbitrary bytes to the body
func (b *Builder) Bytes(raw []byte) *Builder {
	b.body.Write(raw)
	return b
}

// Sequence appends an SQ element holding items. With undefinedLength set,
// both the sequence and its items are delimiter terminated.
func (b *Builder) Sequence(t tag.Tag, undefinedLength bool, items ...*Builder) *Builder {
	var seq bytes.Buffer
	for _, item := range items {
		body := item.body.Bytes()
		b.writeTag(&seq, 0xFFFE, 0xE000)
		if undefinedLength {
			b.writeUint32(&seq, undefined)
			seq.Write(body)
			b.writeTag(&seq, 0xFFFE, 0xE00D)
			b.writeUint32(&seq, 0)
		} else {
			b.writeUint32(&seq, uint32(len(body)))
			seq.Write(body)
		}
	}
	if undefinedLength {
		b.writeTag(&seq, 0xFFFE, 0xE0DD)
		b.writeUint32(&seq, 0)
		return b.element(t, "SQ", undefined, seq.Bytes())
	}
	return b.element(t, "SQ", uint32(seq.Len()), seq.Bytes())
}

// PixelData appends a Pixel Data element of n bytes
func (b *Builder) PixelData(n int) *Builder {
	b.pixelAt = int64(b.body.Len())
	return b.element(tag.PixelData, "OW", uint32(n), make([]byte, n))
}

func (b *Builder) element(t tag.Tag, vr string, length uint32, value []byte) *Builder {
	b.writeTag(&b.body, t.Group, t.Element)
	switch {
	case b.implicit:
		b.writeUint32(&b.body, length)
	case longVRs[vr]:
		b.body.WriteString(vr)
		b.body.Write([]byte{0, 0})
		b.writeUint32(&b.body, length)
	default:
		b.body.WriteString(vr)
		var l [2]byte
		b.order.PutUint16(l[:], uint16(length))
		b.body.Write(l[:])
	}
	b.body.Write(value)
	return b
}

func (b *Builder) writeTag(w *bytes.Buffer, group, element uint16) {
	var t [4]byte
	b.order.PutUint16(t[0:], group)
	b.order.PutUint16(t[2:], element)
	w.Write(t[:])
}

func (b *Builder) writeUint32(w *bytes.Buffer, v uint32) {
	var l [4]byte
	b.order.PutUint32(l[:], v)
	w.Write(l[:])
}

func (b *Builder) header() []byte {
	out := make([]byte, 128, 256)
	out = append(out, "DICM"...)
	if b.noMeta {
		return out
	}

	meta := New(ExplicitLE)
	meta.Raw(tag.FileMetaInformationVersion, "OB", 2, []byte{0, 1})
	meta.Str(tag.MediaStorageSOPClassUID, "UI", b.sopClass)
	meta.Str(tag.MediaStorageSOPInstanceUID, "UI", "1.2.826.0.1.3680043.2.1125.1")
	meta.Str(tag.TransferSyntaxUID, "UI", b.ts)

	group := New(ExplicitLE)
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(meta.body.Len()))
	group.Raw(tag.FileMetaInformationGroupLength, "UL", 4, l[:])

	out = append(out, group.body.Bytes()...)
	return append(out, meta.body.Bytes()...)
}

// Encode returns the complete Part 10 stream
func (b *Builder) Encode() []byte {
	head := b.header()
	if b.ts != Deflated || b.noMeta {
		return append(head, b.body.Bytes()...)
	}

	var z bytes.Buffer
	fw, err := flate.NewWriter(&z, flate.DefaultCompression)
	if err != nil {
		panic(err)
	}
	fw.Write(b.body.Bytes())
	fw.Close()
	return append(head, z.Bytes()...)
}

// PixelDataOffset returns where Pixel Data starts in the (inflated) stream,
// or -1 when none was appended.
func (b *Builder) PixelDataOffset() int64 {
	if b.pixelAt < 0 {
		return -1
	}
	return int64(len(b.header())) + b.pixelAt
}

// Member is one ZIP entry
type Member struct {
	Name  string
	Data  []byte
	Store bool // write uncompressed
}

// Zip encodes members into a ZIP container in order
func Zip(tb testing.TB, members ...Member) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		method := zip.Deflate
		if m.Store {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: m.Name, Method: method})
		if err != nil {
			tb.Fatalf("zip header %s: %v", m.Name, err)
		}
		if _, err := w.Write(m.Data); err != nil {
			tb.Fatalf("zip write %s: %v", m.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// WriteZip writes a ZIP container into a temp directory and returns its path
func WriteZip(tb testing.TB, name string, members ...Member) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, Zip(tb, members...), 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}

// MR returns a classic MR data set for patient id with the common acquisition
// fields filled in. Callers append PixelData last.
func MR(patientID string) *Builder {
	return New(ExplicitLE).
		Str(tag.SOPClassUID, "UI", MRImageStorage).
		Str(tag.StudyDate, "DA", "20240115").
		Str(tag.Modality, "CS", "MR").
		Str(tag.Manufacturer, "LO", "SIEMENS").
		Str(tag.PatientID, "LO", patientID).
		Str(tag.Tag{Group: 0x0018, Element: 0x0050}, "DS", "3").
		Str(tag.Tag{Group: 0x0018, Element: 0x0080}, "DS", "500").
		Str(tag.Tag{Group: 0x0018, Element: 0x0081}, "DS", "15").
		U16(tag.Tag{Group: 0x0018, Element: 0x1310}, 0, 256, 192, 0).
		Str(tag.StudyInstanceUID, "UI", "1.2.3.4").
		Str(tag.SeriesInstanceUID, "UI", "1.2.3.4.5").
		U16(tag.Rows, 256).
		U16(tag.Columns, 256)
}
