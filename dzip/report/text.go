// Package report renders scan results for stdout: a human readable full
// report, a JSON document, or bare MRN lines.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ZanzyTHEbar/dicomzip/dzip/common"
	"github.com/ZanzyTHEbar/dicomzip/dzip/extract"
	"github.com/ZanzyTHEbar/dicomzip/dzip/scan"
)

// BuildText renders the full report
func BuildText(r *scan.Report) string {
	tu := common.NewTimeUtils()
	st := r.Stats

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Archive: %s (%s)\n", r.Archive, humanize.Bytes(uint64(max(r.ArchiveSize, 0)))))
	b.WriteString(fmt.Sprintf("Run: %s\n", r.RunID))

	b.WriteString(fmt.Sprintf("\nDetected DICOM files (%d):\n", st.Candidates))
	for _, c := range r.DICOMCandidates() {
		b.WriteString(fmt.Sprintf("  %s (%s)\n", c.Name, humanize.Bytes(c.UncompressedSize)))
	}

	if len(r.Records) > 0 {
		b.WriteString("\nRecords:\n")
		for _, rec := range r.Records {
			writeRecord(&b, rec)
		}
	}

	if studies := r.Studies.Studies(); len(studies) > 0 {
		b.WriteString("\nStudies:\n")
		for _, study := range studies {
			series := r.Studies.Series(study)
			b.WriteString(fmt.Sprintf("  %s: %d series\n", study, len(series)))
		}
	}

	if mods := r.Modalities.Modalities(); len(mods) > 0 {
		counts := r.Modalities.Counts()
		parts := make([]string, len(mods))
		for i, m := range mods {
			parts[i] = fmt.Sprintf("%s=%d", m, counts[m])
		}
		b.WriteString(fmt.Sprintf("\nModalities: %s\n", strings.Join(parts, " ")))
	}

	b.WriteString("\nSummary:\n")
	b.WriteString(fmt.Sprintf("  Members: %d  DICOM: %d  Processed: %d  Skipped: %d  Errors: %d  Degraded: %d\n",
		st.Members, st.Candidates, st.Processed, st.Skipped, st.Errors, st.Degraded))
	b.WriteString(fmt.Sprintf("  Compressed: %s  Uncompressed: %s  Ratio: %.2f\n",
		humanize.Bytes(st.CompressedBytes), humanize.Bytes(st.UncompressedBytes), st.CompressionRatio()))
	b.WriteString(fmt.Sprintf("  Read: %s  Detection: %s  Deep scan: %s  Total: %s\n",
		tu.FormatDuration(st.ReadDuration), tu.FormatDuration(st.DetectDuration),
		tu.FormatDuration(st.ExtractDuration), tu.FormatDuration(st.TotalDuration)))
	b.WriteString(fmt.Sprintf("  Throughput: %.1f files/sec  Deep scan: %.1f files/sec  Workers: %d\n",
		st.FilesPerSecond(), st.RecordsPerSecond(), r.Workers))

	return b.String()
}

func writeRecord(b *strings.Builder, rec extract.Record) {
	b.WriteString(fmt.Sprintf("  %s [%s] %s %s study=%s series=%s #%s %q\n",
		rec.Name, rec.Status, rec.Modality, rec.Manufacturer,
		rec.StudyInstanceUID, rec.SeriesInstanceUID, rec.SeriesNumber, rec.SeriesDescription))

	if mr := rec.MR; mr != nil {
		kind := "MR"
		if mr.Enhanced {
			kind = "Enhanced MR"
		}
		b.WriteString(fmt.Sprintf("    %s [%s,%s,%s] DIM: %s SAR: %s RX Coil: %s BW: %s Hz/px TE: %s TR: %s TI: %s FA: %s\n",
			kind, mr.ScanningSequence, mr.SequenceVariant, mr.ScanOptions, mr.MRAcquisitionType,
			mr.SAR, mr.ReceiveCoilName, mr.PixelBandwidth,
			mr.EchoTime, mr.RepetitionTime, mr.InversionTime, mr.FlipAngle))
		b.WriteString(fmt.Sprintf("    AMTX: %s PE dir: %s FOV: %s pFOV: %s%% samp: %s%% spacing: %s rows: %s cols: %s thick: %s c2c: %s res: %s\n",
			mr.AcquisitionMatrix, mr.PhaseEncodingDirection, mr.ReconstructionDiameter,
			mr.PercentPhaseFOV, mr.PercentSampling, mr.PixelSpacing, mr.Rows, mr.Columns,
			mr.SliceThickness, mr.SpacingBetweenSlices, mr.AcquisitionResolution))
	}

	if rec.Vendor.Len() > 0 {
		pairs := make([]string, 0, rec.Vendor.Len())
		for _, t := range rec.Vendor.Tags() {
			v := rec.Vendor.Values[t]
			pairs = append(pairs, v.Name+"="+v.String())
		}
		sort.Strings(pairs)
		b.WriteString(fmt.Sprintf("    %s: %s\n", rec.Vendor.Vendor, strings.Join(pairs, " ")))
	}

	for _, err := range rec.Errors {
		b.WriteString(fmt.Sprintf("    error: %v\n", err))
	}
}

// WriteText writes the full report to w
func WriteText(w io.Writer, r *scan.Report) error {
	_, err := io.WriteString(w, BuildText(r))
	return err
}

// WriteMRNs writes one identifier per line and nothing else
func WriteMRNs(w io.Writer, mrns []string) error {
	if len(mrns) == 0 {
		return nil
	}
	_, err := io.WriteString(w, strings.Join(mrns, "\n")+"\n")
	return err
}
