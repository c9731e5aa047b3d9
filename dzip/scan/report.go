package scan

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/ZanzyTHEbar/dicomzip/dzip/classify"
	"github.com/ZanzyTHEbar/dicomzip/dzip/common"
	"github.com/ZanzyTHEbar/dicomzip/dzip/extract"
)

// Stats aggregates one scan. Processed + Skipped + Errors == Members.
type Stats struct {
	Members    int
	Candidates int // members with the DICM signature
	Processed  int // records that are ok or degraded
	Skipped    int // members that are not DICOM
	Errors     int // records that failed
	Degraded   int // subset of Processed with element errors

	CompressedBytes   uint64
	UncompressedBytes uint64
	ParsedBytes       int64

	ReadDuration    time.Duration // opening the container
	DetectDuration  time.Duration // signature probes
	ExtractDuration time.Duration // deep parse of candidates
	TotalDuration   time.Duration
}

// FilesPerSecond is members classified per second of detection
func (s Stats) FilesPerSecond() float64 {
	return common.NewTimeUtils().Rate(s.Members, s.DetectDuration)
}

// RecordsPerSecond is candidates parsed per second of deep extraction
func (s Stats) RecordsPerSecond() float64 {
	return common.NewTimeUtils().Rate(s.Candidates, s.ExtractDuration)
}

// CompressionRatio is uncompressed over compressed size, 0 for empty archives
func (s Stats) CompressionRatio() float64 {
	if s.CompressedBytes == 0 {
		return 0
	}
	return float64(s.UncompressedBytes) / float64(s.CompressedBytes)
}

// Report is the result of one scan
type Report struct {
	RunID       string
	Archive     string
	ArchiveSize int64
	Workers     int
	Ordered     bool

	Candidates []classify.Candidate // one per member, in member order
	Records    []extract.Record     // one per positive candidate
	Stats      Stats

	Modalities *ModalityIndex // positions into Records
	Studies    *StudyIndex
}

// DICOMCandidates returns the positive candidates in member order
func (r *Report) DICOMCandidates() []classify.Candidate {
	out := make([]classify.Candidate, 0, r.Stats.Candidates)
	for _, c := range r.Candidates {
		if c.IsDICOM {
			out = append(out, c)
		}
	}
	return out
}

// MRNs returns the distinct Patient IDs, sorted, without empty or NA values.
// IDs carrying control characters are dropped so each one prints as one line.
func (r *Report) MRNs() []string {
	return uniqueMRNs(r.Records)
}

func uniqueMRNs(records []extract.Record) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0)
	for _, rec := range records {
		id := rec.PatientID
		if id == "" || id == extract.NA || strings.ContainsFunc(id, unicode.IsControl) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
