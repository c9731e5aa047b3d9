package extract

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAcquisitionMatrixText(t *testing.T) {
	tests := []struct {
		in    string
		freq  uint32
		phase uint32
		valid bool
	}{
		{`0\256\192\0`, 256, 192, true},
		{`320\0\0\240`, 320, 240, true},
		{`256\224\0\0`, 256, 224, true},
		{`0\0\128\96`, 128, 96, true},
		{` 0 \ 256 \ 192 \ 0 `, 256, 192, true},
		{`0\0\0\0`, 0, 0, false},
		{`256\256\256\256`, 0, 0, false},
		{`0\256\0\0`, 0, 0, false},
		{`256\0\192\0`, 0, 0, false},
		{`0\abc\192\0`, 0, 0, false},
		{`0\256`, 0, 0, false},
		{``, 0, 0, false},
		{`0\256\192\0\7`, 256, 192, true},
		{`0\70000\192\0`, 0, 0, false},
		{`-1\256\192\0`, 256, 192, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m := ParseAcquisitionMatrixText(tt.in)
			assert.Equal(t, tt.valid, m.Valid)
			assert.Equal(t, tt.freq, m.Frequency)
			assert.Equal(t, tt.phase, m.Phase)
			if !tt.valid {
				assert.Equal(t, NA, m.String())
			}
		})
	}
}

func TestParseAcquisitionMatrixBinary(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		b := make([]byte, 8)
		order.PutUint16(b[2:], 256)
		order.PutUint16(b[4:], 192)

		m := ParseAcquisitionMatrix(b, order)
		assert.Equal(t, AcqMatrix{Frequency: 256, Phase: 192, Valid: true}, m)
		assert.Equal(t, "256x192", m.String())

		// short and odd length input never panics
		assert.False(t, ParseAcquisitionMatrix(b[:3], order).Valid)
		assert.False(t, ParseAcquisitionMatrix(nil, order).Valid)
	}
	assert.True(t, ParseAcquisitionMatrix([]byte{0, 0, 0, 1, 0xC0, 0, 0, 0}, nil).Valid)
}

// Every input of four values is either one of the accepted layouts with both
// selected values non-zero, or unavailable.
func TestAcquisitionMatrixRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pick := func() uint32 {
		if rng.Intn(2) == 0 {
			return 0
		}
		return uint32(1 + rng.Intn(1024))
	}

	for i := 0; i < 5000; i++ {
		v := [4]uint32{pick(), pick(), pick(), pick()}

		var wantF, wantP uint32
		wantValid := true
		switch {
		case v[0] == 0 && v[3] == 0 && v[1] != 0 && v[2] != 0:
			wantF, wantP = v[1], v[2]
		case v[1] == 0 && v[2] == 0 && v[0] != 0 && v[3] != 0:
			wantF, wantP = v[0], v[3]
		case v[2] == 0 && v[3] == 0 && v[0] != 0 && v[1] != 0:
			wantF, wantP = v[0], v[1]
		case v[0] == 0 && v[1] == 0 && v[2] != 0 && v[3] != 0:
			wantF, wantP = v[2], v[3]
		default:
			wantValid = false
		}

		fromText := ParseAcquisitionMatrixText(fmt.Sprintf(`%d\%d\%d\%d`, v[0], v[1], v[2], v[3]))
		b := make([]byte, 8)
		for j, n := range v {
			binary.LittleEndian.PutUint16(b[2*j:], uint16(n))
		}
		fromBinary := ParseAcquisitionMatrix(b, binary.LittleEndian)

		assert.Equal(t, fromText, fromBinary, "input %v", v)
		assert.Equal(t, wantValid, fromText.Valid, "input %v", v)
		if wantValid {
			assert.NotZero(t, fromText.Frequency)
			assert.NotZero(t, fromText.Phase)
			assert.Equal(t, wantF, fromText.Frequency, "input %v", v)
			assert.Equal(t, wantP, fromText.Phase, "input %v", v)
		} else {
			assert.Equal(t, AcqMatrix{}, fromText)
		}
	}

	// arbitrary bytes never panic
	for i := 0; i < 1000; i++ {
		b := make([]byte, rng.Intn(12))
		rng.Read(b)
		m := ParseAcquisitionMatrix(b, binary.LittleEndian)
		if m.Valid {
			assert.NotZero(t, m.Frequency)
			assert.NotZero(t, m.Phase)
		}
	}
}

func TestResolution(t *testing.T) {
	m := AcqMatrix{Frequency: 256, Phase: 192, Valid: true}
	assert.Equal(t, "1.00 x 1.33 mm", resolution(m, []float64{0.5, 0.5}, 512, 512))
	assert.Equal(t, NA, resolution(AcqMatrix{}, []float64{0.5, 0.5}, 512, 512))
	assert.Equal(t, NA, resolution(m, []float64{0.5}, 512, 512))
	assert.Equal(t, NA, resolution(m, []float64{0.5, 0.5}, 0, 512))
}
