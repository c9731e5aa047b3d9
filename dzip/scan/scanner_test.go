package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/ZanzyTHEbar/dicomzip/dzip/archive"
	"github.com/ZanzyTHEbar/dicomzip/dzip/dicomtest"
	"github.com/ZanzyTHEbar/dicomzip/dzip/extract"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Workers = 4
	return opts
}

func openScanner(t *testing.T, opts Options, members ...dicomtest.Member) *Scanner {
	t.Helper()
	path := dicomtest.WriteZip(t, "study.zip", members...)
	s, err := Open(path, opts, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mr(patientID, series string) []byte {
	return dicomtest.MR(patientID).
		Str(tag.SeriesDescription, "LO", series).
		PixelData(256).
		Encode()
}

func TestScanner(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"ThreeDICOMTwoOther", testScannerThreeDICOMTwoOther},
		{"NoDICOM", testScannerNoDICOM},
		{"FailedRecordAccounting", testScannerFailedRecordAccounting},
		{"PreserveOrder", testScannerPreserveOrder},
		{"CompletionOrder", testScannerCompletionOrder},
		{"InMemory", testScannerInMemory},
		{"Cancelled", testScannerCancelled},
		{"Indices", testScannerIndices},
		{"Metrics", testScannerMetrics},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func testScannerThreeDICOMTwoOther(t *testing.T) {
	s := openScanner(t, testOptions(),
		dicomtest.Member{Name: "series1/IM0001", Data: mr("12345", "T1")},
		dicomtest.Member{Name: "series1/IM0002", Data: mr("12345", "T1")},
		dicomtest.Member{Name: "notes.txt", Data: []byte("scanner notes")},
		dicomtest.Member{Name: "series2/IM0001", Data: mr("12345", "T2")},
		dicomtest.Member{Name: "viewer.exe", Data: make([]byte, 4096)},
	)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Stats.Members)
	assert.Equal(t, 3, report.Stats.Candidates)
	assert.Equal(t, 3, report.Stats.Processed)
	assert.Equal(t, 2, report.Stats.Skipped)
	assert.Equal(t, 0, report.Stats.Errors)
	assert.Len(t, report.Candidates, 5)
	assert.Len(t, report.Records, 3)
	assert.NotEmpty(t, report.RunID)

	mrns, err := s.MRNs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"12345"}, mrns)
}

func testScannerNoDICOM(t *testing.T) {
	s := openScanner(t, testOptions(),
		dicomtest.Member{Name: "a.txt", Data: []byte("a")},
		dicomtest.Member{Name: "b.bin", Data: make([]byte, 512)},
	)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Stats.Processed)
	assert.Equal(t, 2, report.Stats.Skipped)
	assert.Empty(t, report.Records)
	assert.Empty(t, report.MRNs())
}

func testScannerFailedRecordAccounting(t *testing.T) {
	noMeta := dicomtest.New(dicomtest.ExplicitLE).WithoutMeta().Str(tag.PatientID, "LO", "X").Encode()
	truncated := dicomtest.New(dicomtest.ExplicitLE).
		Str(tag.Modality, "CS", "MR").
		Str(tag.PatientID, "LO", "777").
		Raw(tag.Tag{Group: 0x0018, Element: 0x0080}, "DS", 100, []byte("12")).
		Encode()

	s := openScanner(t, testOptions(),
		dicomtest.Member{Name: "ok", Data: mr("1", "A")},
		dicomtest.Member{Name: "nometa", Data: noMeta},
		dicomtest.Member{Name: "truncated", Data: truncated},
		dicomtest.Member{Name: "__MACOSX/._ok", Data: mr("2", "A")},
	)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	st := report.Stats
	assert.Equal(t, 4, st.Members)
	assert.Equal(t, 3, st.Candidates)
	assert.Equal(t, 2, st.Processed)
	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, 1, st.Degraded)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, st.Members, st.Processed+st.Skipped+st.Errors)

	assert.Equal(t, extract.StatusFailed, report.Records[1].Status)
	assert.Equal(t, extract.StatusDegraded, report.Records[2].Status)
	assert.Equal(t, []string{"1", "777"}, report.MRNs(), "failed records never contribute NA")
}

func manyMembers(n int) []dicomtest.Member {
	members := make([]dicomtest.Member, 0, n)
	for i := 0; i < n; i++ {
		members = append(members, dicomtest.Member{
			Name: fmt.Sprintf("IM%04d", i),
			Data: mr(fmt.Sprintf("P%02d", i%7), "S"),
		})
	}
	return members
}

func testScannerPreserveOrder(t *testing.T) {
	opts := testOptions()
	opts.Workers = 8
	s := openScanner(t, opts, manyMembers(60)...)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Records, 60)
	for i, rec := range report.Records {
		assert.Equal(t, fmt.Sprintf("IM%04d", i), rec.Name)
		assert.Equal(t, i, rec.Index)
	}
	assert.Len(t, report.MRNs(), 7)
}

func testScannerCompletionOrder(t *testing.T) {
	opts := testOptions()
	opts.Workers = 8
	opts.PreserveOrder = false
	s := openScanner(t, opts, manyMembers(60)...)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Records, 60)
	assert.False(t, report.Ordered)

	names := make(map[string]bool)
	for _, rec := range report.Records {
		names[rec.Name] = true
	}
	assert.Len(t, names, 60, "every candidate yields exactly one record")
	assert.Len(t, report.MRNs(), 7)
}

func testScannerInMemory(t *testing.T) {
	opts := testOptions()
	opts.InMemory = true
	s := openScanner(t, opts, dicomtest.Member{Name: "a", Data: mr("42", "A")})

	mrns, err := s.MRNs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, mrns)
}

func testScannerCancelled(t *testing.T) {
	s := openScanner(t, testOptions(), manyMembers(10)...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func testScannerIndices(t *testing.T) {
	ct := dicomtest.New(dicomtest.ExplicitLE).
		Str(tag.Modality, "CS", "CT").
		Str(tag.PatientID, "LO", "1").
		Str(tag.StudyInstanceUID, "UI", "1.2.3.4").
		Str(tag.SeriesInstanceUID, "UI", "1.2.3.4.9").
		PixelData(8).
		Encode()

	s := openScanner(t, testOptions(),
		dicomtest.Member{Name: "mr1", Data: mr("1", "A")},
		dicomtest.Member{Name: "ct1", Data: ct},
		dicomtest.Member{Name: "mr2", Data: mr("1", "A")},
	)
	report, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]uint64{"MR": 2, "CT": 1}, report.Modalities.Counts())
	assert.Equal(t, []uint32{0, 2}, report.Modalities.Positions("MR").ToArray())
	assert.Equal(t, uint64(3), report.Modalities.Any("MR", "CT").GetCardinality())

	assert.Equal(t, []string{"1.2.3.4"}, report.Studies.Studies())
	assert.Equal(t, map[string]int{"1.2.3.4.5": 2, "1.2.3.4.9": 1}, report.Studies.Series("1.2.3.4"))
}

func testScannerMetrics(t *testing.T) {
	m := NewMetrics()
	s := openScanner(t, testOptions(),
		dicomtest.Member{Name: "a", Data: mr("1", "A")},
		dicomtest.Member{Name: "b.txt", Data: []byte("x")},
	)
	s.WithMetrics(m)

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MembersTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedTotal.WithLabelValues("too short")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("completed")))

	path := filepath.Join(t.TempDir(), "dicomzip.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dicomzip_members_total 2")
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.zip"), testOptions(), zerolog.Nop())
	require.Error(t, err)
	assert.True(t, archive.IsArchiveError(err))

	notZip := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(notZip, []byte("definitely not a zip"), 0o644))
	_, err = Open(notZip, testOptions(), zerolog.Nop())
	var ae *archive.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, archive.KindFormat, ae.Kind)
}
