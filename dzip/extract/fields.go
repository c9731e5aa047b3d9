package extract

import (
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/ZanzyTHEbar/dicomzip/dzip/dicom"
)

type recordField struct {
	tag dicom.Tag
	dst func(*Record) *string
}

var recordFields = []recordField{
	{tag.StudyInstanceUID, func(r *Record) *string { return &r.StudyInstanceUID }},
	{tag.SeriesInstanceUID, func(r *Record) *string { return &r.SeriesInstanceUID }},
	{tag.SOPInstanceUID, func(r *Record) *string { return &r.SOPInstanceUID }},
	{tag.SOPClassUID, func(r *Record) *string { return &r.SOPClassUID }},
	{tag.Manufacturer, func(r *Record) *string { return &r.Manufacturer }},
	{tag.Modality, func(r *Record) *string { return &r.Modality }},
	{tag.PatientID, func(r *Record) *string { return &r.PatientID }},
	{tag.StudyDate, func(r *Record) *string { return &r.StudyDate }},
	{tag.SeriesDescription, func(r *Record) *string { return &r.SeriesDescription }},
	{tag.SeriesNumber, func(r *Record) *string { return &r.SeriesNumber }},
	{tag.SeriesDate, func(r *Record) *string { return &r.SeriesDate }},
	{tag.SeriesTime, func(r *Record) *string { return &r.SeriesTime }},
}

// mrField maps one MR parameter. Enhanced MR images carry some parameters
// under a different attribute; enhanced is tried before classic there.
type mrField struct {
	classic  dicom.Tag
	enhanced dicom.Tag
	dst      func(*MRParameters) *string
}

var (
	scanningSequence = dicom.NewTag(0x0018, 0x0020)
	sequenceVariant  = dicom.NewTag(0x0018, 0x0021)
	sliceThickness   = dicom.NewTag(0x0018, 0x0050)
	repetitionTime   = dicom.NewTag(0x0018, 0x0080)
	echoTime         = dicom.NewTag(0x0018, 0x0081)
	pixelBandwidth   = dicom.NewTag(0x0018, 0x0095)
)

var mrFields = []mrField{
	{classic: echoTime, enhanced: dicom.EffectiveEchoTime, dst: func(m *MRParameters) *string { return &m.EchoTime }},
	{classic: repetitionTime, dst: func(m *MRParameters) *string { return &m.RepetitionTime }},
	{classic: dicom.InversionTime, enhanced: dicom.InversionTimes, dst: func(m *MRParameters) *string { return &m.InversionTime }},
	{classic: dicom.FlipAngle, dst: func(m *MRParameters) *string { return &m.FlipAngle }},
	{classic: sliceThickness, dst: func(m *MRParameters) *string { return &m.SliceThickness }},
	{classic: dicom.SpacingBetweenSlices, dst: func(m *MRParameters) *string { return &m.SpacingBetweenSlices }},
	{classic: pixelBandwidth, dst: func(m *MRParameters) *string { return &m.PixelBandwidth }},
	{classic: dicom.ReceiveCoilName, dst: func(m *MRParameters) *string { return &m.ReceiveCoilName }},
	{classic: scanningSequence, enhanced: dicom.EchoPulseSequence, dst: func(m *MRParameters) *string { return &m.ScanningSequence }},
	{classic: sequenceVariant, dst: func(m *MRParameters) *string { return &m.SequenceVariant }},
	{classic: dicom.ScanOptions, dst: func(m *MRParameters) *string { return &m.ScanOptions }},
	{classic: dicom.MRAcquisitionType, dst: func(m *MRParameters) *string { return &m.MRAcquisitionType }},
	{classic: dicom.InPlanePhaseEncodingDirection, dst: func(m *MRParameters) *string { return &m.PhaseEncodingDirection }},
	{classic: dicom.PercentSampling, dst: func(m *MRParameters) *string { return &m.PercentSampling }},
	{classic: dicom.PercentPhaseFieldOfView, dst: func(m *MRParameters) *string { return &m.PercentPhaseFOV }},
	{classic: dicom.ReconstructionDiameter, dst: func(m *MRParameters) *string { return &m.ReconstructionDiameter }},
	{classic: tag.PixelSpacing, dst: func(m *MRParameters) *string { return &m.PixelSpacing }},
	{classic: tag.Rows, dst: func(m *MRParameters) *string { return &m.Rows }},
	{classic: tag.Columns, dst: func(m *MRParameters) *string { return &m.Columns }},
	{classic: dicom.SAR, dst: func(m *MRParameters) *string { return &m.SAR }},
	{classic: dicom.DBdt, dst: func(m *MRParameters) *string { return &m.DBdt }},
	{classic: dicom.B1rms, dst: func(m *MRParameters) *string { return &m.B1rms }},
}

// text renders el or returns NA when it is missing, broken or empty
func text(el *dicom.Element, ok bool) string {
	if !ok || el == nil {
		return NA
	}
	s, err := el.Text()
	if err != nil || s == "" {
		return NA
	}
	return s
}
