package extract

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/ZanzyTHEbar/dicomzip/dzip/archive"
	"github.com/ZanzyTHEbar/dicomzip/dzip/dicom"
	"github.com/ZanzyTHEbar/dicomzip/dzip/vendor"
)

// MemberOpener is the part of archive.Reader the extractor needs
type MemberOpener interface {
	Open(i int) (io.ReadCloser, error)
}

// Extractor decodes records. Safe for concurrent use.
type Extractor struct {
	opts    dicom.Options
	vendors *vendor.Registry
	logger  zerolog.Logger
}

// New returns an extractor; vendors may be nil to disable private tag decoding
func New(vendors *vendor.Registry, opts dicom.Options, logger zerolog.Logger) *Extractor {
	return &Extractor{opts: opts, vendors: vendors, logger: logger}
}

// ExtractMember streams member m from src and decodes it
func (x *Extractor) ExtractMember(src MemberOpener, m archive.Member) Record {
	rc, err := src.Open(m.Index)
	if err != nil {
		x.logger.Warn().Err(err).Str("member", m.Name).Msg("member unreadable")
		return failedRecord(m.Index, m.Name, err)
	}
	defer rc.Close()
	return x.Extract(m.Index, m.Name, rc)
}

// Extract decodes the stream r. index and name only label the record.
func (x *Extractor) Extract(index int, name string, r io.Reader) Record {
	f, err := dicom.Parse(r, x.opts)
	if err != nil {
		x.logger.Debug().Err(err).Str("member", name).Msg("no meta header")
		return failedRecord(index, name, err)
	}
	return x.FromFile(index, name, f)
}

// FromFile builds a record from an already parsed file
func (x *Extractor) FromFile(index int, name string, f *dicom.File) Record {
	rec := Record{
		Index:          index,
		Name:           name,
		TransferSyntax: orNA(f.TransferSyntax),
		Status:         StatusOK,
		BytesRead:      f.BytesRead,
	}

	for _, fld := range recordFields {
		el, ok := f.Dataset.Get(fld.tag)
		*fld.dst(&rec) = text(el, ok)
	}
	// SOP Class falls back to the meta group
	if rec.SOPClassUID == NA {
		el, ok := f.Meta.Get(tag.MediaStorageSOPClassUID)
		rec.SOPClassUID = text(el, ok)
	}

	if strings.EqualFold(rec.Modality, "MR") {
		rec.MR = decodeMR(f.Dataset, rec.SOPClassUID == dicom.EnhancedMRImageStorage)
	}

	if x.vendors != nil && rec.Manufacturer != NA {
		if catalog, ok := x.vendors.Match(rec.Manufacturer); ok {
			rec.Vendor = catalog.Extract(f.Dataset)
		}
	}

	if len(f.Errors) > 0 {
		rec.Status = StatusDegraded
		rec.Errors = make([]error, len(f.Errors))
		for i, e := range f.Errors {
			rec.Errors[i] = e
		}
		x.logger.Debug().
			Str("member", name).
			Int("errors", len(f.Errors)).
			Err(f.Errors[0]).
			Msg("degraded record")
	}
	return rec
}

func decodeMR(ds *dicom.Dataset, enhanced bool) *MRParameters {
	mr := newMRParameters()
	mr.Enhanced = enhanced

	lookup := ds.Get
	if enhanced {
		lookup = enhancedLookup(ds)
	}

	for _, fld := range mrFields {
		value := NA
		if enhanced && fld.enhanced != (dicom.Tag{}) {
			el, ok := lookup(fld.enhanced)
			value = text(el, ok)
		}
		if value == NA {
			el, ok := lookup(fld.classic)
			value = text(el, ok)
		}
		*fld.dst(mr) = value
	}

	mr.AcquisitionMatrix = acquisitionMatrix(lookup)
	mr.AcquisitionResolution = resolution(
		mr.AcquisitionMatrix,
		floats(lookup(tag.PixelSpacing)),
		first(floats(lookup(tag.Rows))),
		first(floats(lookup(tag.Columns))),
	)
	return mr
}

// enhancedLookup searches the top level, then the first shared functional
// group item, then the first per-frame item.
func enhancedLookup(ds *dicom.Dataset) func(dicom.Tag) (*dicom.Element, bool) {
	shared, _ := ds.Item(dicom.SharedFunctionalGroupsSequence, 0)
	perFrame, _ := ds.Item(dicom.PerFrameFunctionalGroupsSequence, 0)
	return func(t dicom.Tag) (*dicom.Element, bool) {
		if el, ok := ds.Get(t); ok {
			return el, true
		}
		if el, ok := shared.Find(t); ok {
			return el, true
		}
		return perFrame.Find(t)
	}
}

func acquisitionMatrix(lookup func(dicom.Tag) (*dicom.Element, bool)) AcqMatrix {
	if el, ok := lookup(dicom.AcquisitionMatrix); ok && el.Err == nil && !el.Skipped {
		if dicom.IsTextVR(el.VR) {
			s, _ := el.Text()
			return ParseAcquisitionMatrixText(s)
		}
		return ParseAcquisitionMatrix(el.Value, el.ByteOrder())
	}

	freq := first(floats(lookup(dicom.MRAcquisitionFrequencyEncodingStep)))
	phase := first(floats(lookup(dicom.MRAcquisitionPhaseEncodingSteps)))
	if freq <= 0 || phase <= 0 {
		return AcqMatrix{}
	}
	return AcqMatrix{Frequency: uint32(freq), Phase: uint32(phase), Valid: true}
}

func floats(el *dicom.Element, ok bool) []float64 {
	if !ok {
		return nil
	}
	v, err := el.Floats()
	if err != nil {
		return nil
	}
	return v
}

func first(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

func orNA(s string) string {
	if s == "" {
		return NA
	}
	return s
}
