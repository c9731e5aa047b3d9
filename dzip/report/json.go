package report

import (
	"encoding/json"
	"io"

	"github.com/ZanzyTHEbar/dicomzip/dzip/extract"
	"github.com/ZanzyTHEbar/dicomzip/dzip/scan"
)

type jsonReport struct {
	RunID      string         `json:"run_id"`
	Archive    string         `json:"archive"`
	Size       int64          `json:"archive_size"`
	Workers    int            `json:"workers"`
	Ordered    bool           `json:"ordered"`
	Stats      jsonStats      `json:"stats"`
	Records    []jsonRecord   `json:"records"`
	Modalities map[string]int `json:"modalities"`
}

type jsonStats struct {
	Members           int     `json:"members"`
	Candidates        int     `json:"dicom"`
	Processed         int     `json:"processed"`
	Skipped           int     `json:"skipped"`
	Errors            int     `json:"errors"`
	Degraded          int     `json:"degraded"`
	CompressedBytes   uint64  `json:"compressed_bytes"`
	UncompressedBytes uint64  `json:"uncompressed_bytes"`
	ReadSeconds       float64 `json:"read_seconds"`
	DetectSeconds     float64 `json:"detect_seconds"`
	ExtractSeconds    float64 `json:"extract_seconds"`
	TotalSeconds      float64 `json:"total_seconds"`
	FilesPerSecond    float64 `json:"files_per_second"`
	RecordsPerSecond  float64 `json:"records_per_second"`
}

type jsonRecord struct {
	Name              string                `json:"name"`
	Status            extract.Status        `json:"status"`
	StudyInstanceUID  string                `json:"study_instance_uid"`
	SeriesInstanceUID string                `json:"series_instance_uid"`
	SOPInstanceUID    string                `json:"sop_instance_uid"`
	SOPClassUID       string                `json:"sop_class_uid"`
	Manufacturer      string                `json:"manufacturer"`
	Modality          string                `json:"modality"`
	PatientID         string                `json:"patient_id"`
	SeriesDescription string                `json:"series_description"`
	SeriesNumber      string                `json:"series_number"`
	TransferSyntax    string                `json:"transfer_syntax"`
	MR                *extract.MRParameters `json:"mr,omitempty"`
	AcquisitionMatrix string                `json:"acquisition_matrix,omitempty"`
	Vendor            map[string]string     `json:"vendor,omitempty"`
	Errors            []string              `json:"errors,omitempty"`
}

// WriteJSON writes the report as an indented JSON document
func WriteJSON(w io.Writer, r *scan.Report) error {
	st := r.Stats
	doc := jsonReport{
		RunID:   r.RunID,
		Archive: r.Archive,
		Size:    r.ArchiveSize,
		Workers: r.Workers,
		Ordered: r.Ordered,
		Stats: jsonStats{
			Members:           st.Members,
			Candidates:        st.Candidates,
			Processed:         st.Processed,
			Skipped:           st.Skipped,
			Errors:            st.Errors,
			Degraded:          st.Degraded,
			CompressedBytes:   st.CompressedBytes,
			UncompressedBytes: st.UncompressedBytes,
			ReadSeconds:       st.ReadDuration.Seconds(),
			DetectSeconds:     st.DetectDuration.Seconds(),
			ExtractSeconds:    st.ExtractDuration.Seconds(),
			TotalSeconds:      st.TotalDuration.Seconds(),
			FilesPerSecond:    st.FilesPerSecond(),
			RecordsPerSecond:  st.RecordsPerSecond(),
		},
		Records:    make([]jsonRecord, 0, len(r.Records)),
		Modalities: make(map[string]int),
	}
	for m, n := range r.Modalities.Counts() {
		doc.Modalities[m] = int(n)
	}

	for _, rec := range r.Records {
		jr := jsonRecord{
			Name:              rec.Name,
			Status:            rec.Status,
			StudyInstanceUID:  rec.StudyInstanceUID,
			SeriesInstanceUID: rec.SeriesInstanceUID,
			SOPInstanceUID:    rec.SOPInstanceUID,
			SOPClassUID:       rec.SOPClassUID,
			Manufacturer:      rec.Manufacturer,
			Modality:          rec.Modality,
			PatientID:         rec.PatientID,
			SeriesDescription: rec.SeriesDescription,
			SeriesNumber:      rec.SeriesNumber,
			TransferSyntax:    rec.TransferSyntax,
			MR:                rec.MR,
		}
		if rec.MR != nil {
			jr.AcquisitionMatrix = rec.MR.AcquisitionMatrix.String()
		}
		if rec.Vendor.Len() > 0 {
			jr.Vendor = make(map[string]string, rec.Vendor.Len())
			for _, v := range rec.Vendor.Values {
				jr.Vendor[v.Name] = v.String()
			}
		}
		for _, err := range rec.Errors {
			jr.Errors = append(jr.Errors, err.Error())
		}
		doc.Records = append(doc.Records, jr)
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = w.Write(raw)
	return err
}
