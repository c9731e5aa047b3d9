package extract

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// AcqMatrix is the (frequency, phase) pair selected from Acquisition Matrix.
// The zero value is the unavailable matrix.
type AcqMatrix struct {
	Frequency uint32
	Phase     uint32
	Valid     bool
}

func (m AcqMatrix) String() string {
	if !m.Valid {
		return NA
	}
	return fmt.Sprintf("%dx%d", m.Frequency, m.Phase)
}

// ParseAcquisitionMatrix decodes the binary US form. It accepts any input;
// missing values count as zero.
func ParseAcquisitionMatrix(value []byte, order binary.ByteOrder) AcqMatrix {
	if order == nil {
		order = binary.LittleEndian
	}
	var v [4]uint32
	for i := 0; i < 4 && 2*i+2 <= len(value); i++ {
		v[i] = uint32(order.Uint16(value[2*i:]))
	}
	return selectPair(v)
}

// ParseAcquisitionMatrixText decodes a backslash separated rendering such as
// "0\256\192\0". Unparsable or missing values count as zero.
func ParseAcquisitionMatrixText(s string) AcqMatrix {
	var v [4]uint32
	for i, part := range strings.Split(s, `\`) {
		if i >= len(v) {
			break
		}
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 16)
		if err != nil {
			continue
		}
		v[i] = uint32(n)
	}
	return selectPair(v)
}

// selectPair accepts exactly four layouts and requires both picked values to
// be non-zero:
//
//	0\f\p\0
//	f\0\0\p
//	f\p\0\0
//	0\0\f\p
func selectPair(v [4]uint32) AcqMatrix {
	var f, p uint32
	switch {
	case v[0] == 0 && v[3] == 0 && v[1] != 0 && v[2] != 0:
		f, p = v[1], v[2]
	case v[1] == 0 && v[2] == 0 && v[0] != 0 && v[3] != 0:
		f, p = v[0], v[3]
	case v[2] == 0 && v[3] == 0 && v[0] != 0 && v[1] != 0:
		f, p = v[0], v[1]
	case v[0] == 0 && v[1] == 0 && v[2] != 0 && v[3] != 0:
		f, p = v[2], v[3]
	default:
		return AcqMatrix{}
	}
	return AcqMatrix{Frequency: f, Phase: p, Valid: true}
}

// resolution returns the acquired pixel size in mm from the reconstructed
// geometry: pixel spacing times image size over the acquired matrix.
func resolution(m AcqMatrix, spacing []float64, rows, cols float64) string {
	if !m.Valid || len(spacing) < 2 || rows <= 0 || cols <= 0 {
		return NA
	}
	x := spacing[0] * rows / float64(m.Frequency)
	y := spacing[1] * cols / float64(m.Phase)
	return fmt.Sprintf("%.2f x %.2f mm", x, y)
}
