package dicom

import (
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Tag is a (group, element) pair identifying one data element
type Tag = tag.Tag

// NewTag builds a Tag from its group and element numbers
func NewTag(group, element uint16) Tag {
	return Tag{Group: group, Element: element}
}

// Delimiters and structural tags
var (
	ItemTag                 = NewTag(0xFFFE, 0xE000)
	ItemDelimitationTag     = NewTag(0xFFFE, 0xE00D)
	SequenceDelimitationTag = NewTag(0xFFFE, 0xE0DD)
	TrailingPaddingTag      = NewTag(0xFFFC, 0xFFFC)
)

// MR acquisition and Enhanced MR functional group tags not worth pulling by keyword
var (
	ScanOptions                        = NewTag(0x0018, 0x0022)
	MRAcquisitionType                  = NewTag(0x0018, 0x0023)
	SequenceName                       = NewTag(0x0018, 0x0024)
	InversionTime                      = NewTag(0x0018, 0x0082)
	SpacingBetweenSlices               = NewTag(0x0018, 0x0088)
	NumberOfPhaseEncodingSteps         = NewTag(0x0018, 0x0089)
	PercentSampling                    = NewTag(0x0018, 0x0093)
	PercentPhaseFieldOfView            = NewTag(0x0018, 0x0094)
	ReconstructionDiameter             = NewTag(0x0018, 0x1100)
	ReceiveCoilName                    = NewTag(0x0018, 0x1250)
	AcquisitionMatrix                  = NewTag(0x0018, 0x1310)
	InPlanePhaseEncodingDirection      = NewTag(0x0018, 0x1312)
	FlipAngle                          = NewTag(0x0018, 0x1314)
	SAR                                = NewTag(0x0018, 0x1316)
	DBdt                               = NewTag(0x0018, 0x1318)
	B1rms                              = NewTag(0x0018, 0x1320)
	MRImagingModifierSequence          = NewTag(0x0018, 0x9006)
	EchoPulseSequence                  = NewTag(0x0018, 0x9008)
	MRReceiveCoilSequence              = NewTag(0x0018, 0x9042)
	MRAcquisitionFrequencyEncodingStep = NewTag(0x0018, 0x9058)
	InversionTimes                     = NewTag(0x0018, 0x9079)
	EffectiveEchoTime                  = NewTag(0x0018, 0x9082)
	MRFOVGeometrySequence              = NewTag(0x0018, 0x9107)
	MRTimingAndRelatedParamsSequence   = NewTag(0x0018, 0x9112)
	MREchoSequence                     = NewTag(0x0018, 0x9114)
	MRAcquisitionPhaseEncodingSteps    = NewTag(0x0018, 0x9231)
	PixelMeasuresSequence              = NewTag(0x0028, 0x9110)
	SharedFunctionalGroupsSequence     = NewTag(0x5200, 0x9229)
	PerFrameFunctionalGroupsSequence   = NewTag(0x5200, 0x9230)
)

// EnhancedMRImageStorage is the SOP Class whose MR parameters live in functional groups
const EnhancedMRImageStorage = "1.2.840.10008.5.1.4.1.1.4.1"

// dictionary maps the tags this module decodes to their VR. Implicit VR streams
// need it to recognise sequences and binary numbers; unknown tags read as UN.
var dictionary = map[Tag]string{
	tag.FileMetaInformationGroupLength: "UL",
	tag.FileMetaInformationVersion:     "OB",
	tag.MediaStorageSOPClassUID:        "UI",
	tag.MediaStorageSOPInstanceUID:     "UI",
	tag.TransferSyntaxUID:              "UI",
	tag.ImplementationClassUID:         "UI",
	tag.ImplementationVersionName:      "SH",

	tag.SpecificCharacterSet: "CS",
	tag.SOPClassUID:          "UI",
	tag.SOPInstanceUID:       "UI",
	tag.StudyDate:            "DA",
	tag.SeriesDate:           "DA",
	tag.StudyTime:            "TM",
	tag.SeriesTime:           "TM",
	tag.Modality:             "CS",
	tag.Manufacturer:         "LO",
	tag.SeriesDescription:    "LO",
	tag.PatientName:          "PN",
	tag.PatientID:            "LO",
	tag.StudyInstanceUID:     "UI",
	tag.SeriesInstanceUID:    "UI",
	tag.SeriesNumber:         "IS",
	tag.Rows:                 "US",
	tag.Columns:              "US",
	tag.PixelSpacing:         "DS",
	tag.BitsAllocated:        "US",
	tag.PixelData:            "OW",

	NewTag(0x0018, 0x0020):        "CS", // Scanning Sequence
	NewTag(0x0018, 0x0021):        "CS", // Sequence Variant
	ScanOptions:                   "CS",
	MRAcquisitionType:             "CS",
	SequenceName:                  "SH",
	NewTag(0x0018, 0x0050):        "DS", // Slice Thickness
	NewTag(0x0018, 0x0080):        "DS", // Repetition Time
	NewTag(0x0018, 0x0081):        "DS", // Echo Time
	InversionTime:                 "DS",
	SpacingBetweenSlices:          "DS",
	NumberOfPhaseEncodingSteps:    "IS",
	PercentSampling:               "DS",
	PercentPhaseFieldOfView:       "DS",
	NewTag(0x0018, 0x0095):        "DS", // Pixel Bandwidth
	ReconstructionDiameter:        "DS",
	ReceiveCoilName:               "SH",
	AcquisitionMatrix:             "US",
	InPlanePhaseEncodingDirection: "CS",
	FlipAngle:                     "DS",
	SAR:                           "DS",
	DBdt:                          "DS",
	B1rms:                         "FD",

	MRImagingModifierSequence:          "SQ",
	MRReceiveCoilSequence:              "SQ",
	MRFOVGeometrySequence:              "SQ",
	MRTimingAndRelatedParamsSequence:   "SQ",
	MREchoSequence:                     "SQ",
	PixelMeasuresSequence:              "SQ",
	SharedFunctionalGroupsSequence:     "SQ",
	PerFrameFunctionalGroupsSequence:   "SQ",
	EchoPulseSequence:                  "CS",
	MRAcquisitionFrequencyEncodingStep: "US",
	MRAcquisitionPhaseEncodingSteps:    "US",
	EffectiveEchoTime:                  "FD",
	InversionTimes:                     "FD",
}

// LookupVR returns the dictionary VR for t, or UN when t is not known
func LookupVR(t Tag) string {
	if vr, ok := dictionary[t]; ok {
		return vr
	}
	if t.Element == 0x0000 {
		return "UL" // group length
	}
	return "UN"
}
