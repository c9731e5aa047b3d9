package dicom

import (
	"math"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/dicomzip/dzip/common"
)

var textVRs = map[string]bool{
	"AE": true, "AS": true, "CS": true, "DA": true, "DS": true, "DT": true,
	"IS": true, "LO": true, "LT": true, "PN": true, "SH": true, "ST": true,
	"TM": true, "UC": true, "UI": true, "UR": true, "UT": true,
}

// binary numeric VRs and their element width
var numericVRs = map[string]int{
	"US": 2, "SS": 2, "UL": 4, "SL": 4, "FL": 4, "FD": 8, "UV": 8, "SV": 8,
}

// IsTextVR reports whether values of vr are character strings
func IsTextVR(vr string) bool { return textVRs[vr] }

// IsNumericVR reports whether values of vr are fixed-width binary numbers
func IsNumericVR(vr string) bool {
	_, ok := numericVRs[vr]
	return ok
}

func (e *Element) usable() error {
	if e.Err != nil {
		return e.Err
	}
	if e.Skipped {
		return common.ErrTruncated
	}
	return nil
}

// Text returns the value as one string. Text VRs are trimmed of padding,
// binary numbers are rendered and joined by backslashes, and opaque VRs are
// accepted only when they hold printable ASCII.
func (e *Element) Text() (string, error) {
	if err := e.usable(); err != nil {
		return "", err
	}
	switch {
	case textVRs[e.VR]:
		return trimPadding(string(e.Value)), nil
	case IsNumericVR(e.VR):
		nums, err := e.Floats()
		if err != nil {
			return "", err
		}
		parts := make([]string, len(nums))
		for i, n := range nums {
			parts[i] = strconv.FormatFloat(n, 'f', -1, 64)
		}
		return strings.Join(parts, `\`), nil
	default:
		s := trimPadding(string(e.Value))
		if !printable(s) {
			return "", common.ErrBinaryValue
		}
		return s, nil
	}
}

// Strings splits a text value on the backslash value delimiter
func (e *Element) Strings() ([]string, error) {
	s, err := e.Text()
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, `\`)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

// Floats decodes every value as a float64. DS/IS (and opaque VRs holding
// text) are parsed; binary VRs are decoded in the element's byte order.
func (e *Element) Floats() ([]float64, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	if width, ok := numericVRs[e.VR]; ok {
		return e.decodeBinary(width)
	}

	parts, err := e.Strings()
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (e *Element) decodeBinary(width int) ([]float64, error) {
	if len(e.Value)%width != 0 {
		return nil, common.ErrInvalidLength
	}
	order := e.ByteOrder()
	out := make([]float64, 0, len(e.Value)/width)
	for off := 0; off+width <= len(e.Value); off += width {
		b := e.Value[off : off+width]
		var v float64
		switch e.VR {
		case "US":
			v = float64(order.Uint16(b))
		case "SS":
			v = float64(int16(order.Uint16(b)))
		case "UL":
			v = float64(order.Uint32(b))
		case "SL":
			v = float64(int32(order.Uint32(b)))
		case "FL":
			v = float64(math.Float32frombits(order.Uint32(b)))
		case "FD":
			v = math.Float64frombits(order.Uint64(b))
		case "UV":
			v = float64(order.Uint64(b))
		case "SV":
			v = float64(int64(order.Uint64(b)))
		}
		out = append(out, v)
	}
	return out, nil
}

func trimPadding(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "\x00 ")
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
