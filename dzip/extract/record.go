// Package extract turns one DICOM member into a metadata record. It never
// fails: unreadable input becomes a record of "N/A" values.
package extract

import (
	"github.com/ZanzyTHEbar/dicomzip/dzip/vendor"
)

// NA marks a field whose value is unavailable
const NA = "N/A"

// Status summarises how much of a record could be decoded
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded" // some elements failed, the rest decoded
	StatusFailed   Status = "failed"   // no meta header or unreadable member
)

// Record is the result of deep extraction of one candidate
type Record struct {
	Index int
	Name  string

	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
	SOPClassUID       string
	Manufacturer      string
	Modality          string
	PatientID         string
	StudyDate         string
	SeriesDescription string
	SeriesNumber      string
	SeriesDate        string
	SeriesTime        string
	TransferSyntax    string

	MR     *MRParameters // set when Modality is MR
	Vendor *vendor.Block // set when Manufacturer has a catalog and entries were found

	Status    Status
	Errors    []error
	BytesRead int64
}

// MRParameters holds MR acquisition fields, each defaulting to NA
type MRParameters struct {
	Enhanced bool

	EchoTime               string
	RepetitionTime         string
	InversionTime          string
	FlipAngle              string
	SliceThickness         string
	SpacingBetweenSlices   string
	PixelBandwidth         string
	ReceiveCoilName        string
	ScanningSequence       string
	SequenceVariant        string
	ScanOptions            string
	MRAcquisitionType      string
	PhaseEncodingDirection string
	PercentSampling        string
	PercentPhaseFOV        string
	ReconstructionDiameter string
	PixelSpacing           string
	Rows                   string
	Columns                string
	SAR                    string
	DBdt                   string
	B1rms                  string

	AcquisitionMatrix     AcqMatrix
	AcquisitionResolution string
}

// failedRecord is the all-unavailable record for a member that could not be parsed
func failedRecord(index int, name string, err error) Record {
	r := Record{Index: index, Name: name, Status: StatusFailed}
	for _, f := range recordFields {
		*f.dst(&r) = NA
	}
	r.TransferSyntax = NA
	if err != nil {
		r.Errors = []error{err}
	}
	return r
}

func newMRParameters() *MRParameters {
	mr := &MRParameters{AcquisitionResolution: NA}
	for _, f := range mrFields {
		*f.dst(mr) = NA
	}
	return mr
}
