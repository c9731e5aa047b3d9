package dicom_test

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/ZanzyTHEbar/dicomzip/dzip/common"
	"github.com/ZanzyTHEbar/dicomzip/dzip/dicom"
	"github.com/ZanzyTHEbar/dicomzip/dzip/dicomtest"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"TransferSyntaxes", testParseTransferSyntaxes},
		{"StopsAtPixelData", testParseStopsAtPixelData},
		{"TruncatedValue", testParseTruncatedValue},
		{"TruncatedLargeValue", testParseTruncatedLargeValue},
		{"LargeValue", testParseLargeValue},
		{"Sequences", testParseSequences},
		{"DepthLimit", testParseDepthLimit},
		{"OversizedValueSkipped", testParseOversizedValueSkipped},
		{"UnknownTransferSyntax", testParseUnknownTransferSyntax},
		{"MissingMeta", testParseMissingMeta},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func parse(t *testing.T, data []byte) *dicom.File {
	t.Helper()
	f, err := dicom.Parse(bytes.NewReader(data), dicom.DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, f)
	return f
}

func text(t *testing.T, ds *dicom.Dataset, tg dicom.Tag) string {
	t.Helper()
	el, ok := ds.Get(tg)
	require.True(t, ok, "element %s should be present", tg)
	s, err := el.Text()
	require.NoError(t, err)
	return s
}

func testParseTransferSyntaxes(t *testing.T) {
	for _, ts := range []string{
		dicomtest.ExplicitLE,
		dicomtest.ImplicitLE,
		dicomtest.ExplicitBE,
		dicomtest.Deflated,
	} {
		t.Run(ts, func(t *testing.T) {
			b := dicomtest.New(ts).
				Str(tag.Modality, "CS", "MR").
				Str(tag.PatientID, "LO", "12345").
				Str(tag.Tag{Group: 0x0018, Element: 0x0050}, "DS", "1.5").
				U16(dicom.AcquisitionMatrix, 0, 256, 192, 0).
				PixelData(32)

			f := parse(t, b.Encode())
			assert.Equal(t, ts, f.TransferSyntax)
			assert.Empty(t, f.Errors)
			assert.Equal(t, "MR", text(t, f.Dataset, tag.Modality))
			assert.Equal(t, "12345", text(t, f.Dataset, tag.PatientID))
			assert.Equal(t, "1.5", text(t, f.Dataset, tag.Tag{Group: 0x0018, Element: 0x0050}))

			el, ok := f.Dataset.Get(dicom.AcquisitionMatrix)
			require.True(t, ok)
			vals, err := el.Floats()
			require.NoError(t, err)
			assert.Equal(t, []float64{0, 256, 192, 0}, vals)

			assert.Equal(t, b.PixelDataOffset(), f.PixelDataOffset)
		})
	}
}

func testParseStopsAtPixelData(t *testing.T) {
	b := dicomtest.MR("12345").PixelData(4096)
	data := b.Encode()

	f := parse(t, data)
	assert.Equal(t, b.PixelDataOffset(), f.PixelDataOffset)
	assert.Equal(t, f.PixelDataOffset, f.BytesRead, "nothing past the Pixel Data tag is consumed")
	assert.Less(t, f.BytesRead, int64(len(data)))

	_, ok := f.Dataset.Get(tag.PixelData)
	assert.False(t, ok)
}

func testParseTruncatedValue(t *testing.T) {
	data := dicomtest.New(dicomtest.ExplicitLE).
		Str(tag.Modality, "CS", "MR").
		Str(tag.PatientID, "LO", "12345").
		Raw(tag.Tag{Group: 0x0018, Element: 0x0080}, "DS", 64, []byte("500 ")).
		Encode()

	f := parse(t, data)
	assert.Equal(t, "12345", text(t, f.Dataset, tag.PatientID))
	assert.Equal(t, int64(-1), f.PixelDataOffset)
	require.True(t, f.Degraded())
	require.Len(t, f.Errors, 1)
	assert.ErrorIs(t, f.Errors[0], common.ErrTruncated)
	assert.Equal(t, tag.Tag{Group: 0x0018, Element: 0x0080}, f.Errors[0].Tag)

	el, ok := f.Dataset.Get(tag.Tag{Group: 0x0018, Element: 0x0080})
	require.True(t, ok)
	_, err := el.Text()
	assert.ErrorIs(t, err, common.ErrTruncated)
}

func testParseTruncatedLargeValue(t *testing.T) {
	declared := dicom.DefaultOptions().MaxValueLength - 2
	data := dicomtest.New(dicomtest.ExplicitLE).
		Str(tag.PatientID, "LO", "12345").
		Raw(tag.Tag{Group: 0x0029, Element: 0x1010}, "OB", declared, []byte("short")).
		Encode()

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	f := parse(t, data)
	runtime.ReadMemStats(&after)

	assert.Equal(t, "12345", text(t, f.Dataset, tag.PatientID))
	require.Len(t, f.Errors, 1)
	assert.ErrorIs(t, f.Errors[0], common.ErrTruncated)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(declared/4), "allocation follows the bytes present")
}

func testParseLargeValue(t *testing.T) {
	value := bytes.Repeat([]byte{0xAB}, 300_000)
	data := dicomtest.New(dicomtest.ExplicitLE).
		Str(tag.PatientID, "LO", "12345").
		Raw(tag.Tag{Group: 0x0029, Element: 0x1010}, "OB", uint32(len(value)), value).
		Encode()

	f := parse(t, data)
	assert.False(t, f.Degraded())
	el, ok := f.Dataset.Get(tag.Tag{Group: 0x0029, Element: 0x1010})
	require.True(t, ok)
	assert.Equal(t, value, el.Value)
	assert.Equal(t, "12345", text(t, f.Dataset, tag.PatientID))
}

func testParseSequences(t *testing.T) {
	for _, undefined := range []bool{false, true} {
		for _, ts := range []string{dicomtest.ExplicitLE, dicomtest.ImplicitLE} {
			b := dicomtest.New(ts)
			inner := b.Item().FD(dicom.EffectiveEchoTime, 4.5)
			timing := b.Item().Sequence(dicom.MREchoSequence, undefined, inner)
			shared := b.Item().Sequence(dicom.MRTimingAndRelatedParamsSequence, undefined, timing)

			data := b.
				Str(tag.PatientID, "LO", "abc").
				Sequence(dicom.SharedFunctionalGroupsSequence, undefined, shared).
				Str(tag.Tag{Group: 0x0020, Element: 0x0011}, "IS", "7").
				PixelData(8).
				Encode()

			f := parse(t, data)
			assert.Empty(t, f.Errors, "ts=%s undefined=%v", ts, undefined)

			item, ok := f.Dataset.Item(dicom.SharedFunctionalGroupsSequence, 0)
			require.True(t, ok)
			el, ok := item.Find(dicom.EffectiveEchoTime)
			require.True(t, ok)
			vals, err := el.Floats()
			require.NoError(t, err)
			assert.Equal(t, []float64{4.5}, vals)

			_, ok = f.Dataset.Get(dicom.EffectiveEchoTime)
			assert.False(t, ok, "nested elements stay in their items")
			assert.Equal(t, "7", text(t, f.Dataset, tag.Tag{Group: 0x0020, Element: 0x0011}))
		}
	}
}

func testParseDepthLimit(t *testing.T) {
	b := dicomtest.New(dicomtest.ExplicitLE)
	leaf := b.Item().Str(tag.PatientID, "LO", "deep")
	mid := b.Item().Sequence(dicom.MREchoSequence, false, leaf)

	data := b.
		Sequence(dicom.SharedFunctionalGroupsSequence, false, mid).
		Str(tag.Modality, "CS", "MR").
		Encode()

	f, err := dicom.Parse(bytes.NewReader(data), dicom.Options{MaxSequenceDepth: 1})
	require.NoError(t, err)
	require.Len(t, f.Errors, 1)
	assert.ErrorIs(t, f.Errors[0], common.ErrDepthExceeded)
	assert.Equal(t, "MR", text(t, f.Dataset, tag.Modality), "parsing resumes after a skipped sequence")

	_, ok := f.Dataset.Find(tag.PatientID)
	assert.False(t, ok)
}

func testParseOversizedValueSkipped(t *testing.T) {
	data := dicomtest.New(dicomtest.ExplicitLE).
		Str(tag.Tag{Group: 0x0008, Element: 0x103E}, "LO", "a long series description").
		Str(tag.PatientID, "LO", "42").
		Encode()

	f, err := dicom.Parse(bytes.NewReader(data), dicom.Options{MaxValueLength: 8})
	require.NoError(t, err)
	assert.Empty(t, f.Errors)

	el, ok := f.Dataset.Get(tag.Tag{Group: 0x0008, Element: 0x103E})
	require.True(t, ok)
	assert.True(t, el.Skipped)
	_, err = el.Text()
	assert.Error(t, err)

	assert.Equal(t, "42", text(t, f.Dataset, tag.PatientID))
}

func testParseUnknownTransferSyntax(t *testing.T) {
	data := dicomtest.New("1.2.3.999").
		Str(tag.PatientID, "LO", "77").
		PixelData(8).
		Encode()

	f := parse(t, data)
	require.NotEmpty(t, f.Errors)
	assert.ErrorIs(t, f.Errors[0], common.ErrUnsupportedTransferSyntax)
	assert.Equal(t, "77", text(t, f.Dataset, tag.PatientID))
	assert.False(t, f.Implicit)
}

func testParseMissingMeta(t *testing.T) {
	_, err := dicom.Parse(bytes.NewReader([]byte("not a dicom file")), dicom.DefaultOptions())
	assert.ErrorIs(t, err, common.ErrNoMetaHeader)

	data := dicomtest.New(dicomtest.ExplicitLE).
		WithoutMeta().
		Str(tag.PatientID, "LO", "1").
		Encode()
	_, err = dicom.Parse(bytes.NewReader(data), dicom.DefaultOptions())
	assert.ErrorIs(t, err, common.ErrNoMetaHeader)
}
