package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncoding_PackUnpack(t *testing.T) {
	enc := DefaultEncoding()
	tests := []struct {
		in   float64
		want uint16
	}{
		{0, 0},
		{0.004, 0},
		{0.006, 1},
		{12.341, 1234},
		{-3, 0},
		{1e6, math.MaxUint16 - 1},
		{math.NaN(), math.MaxUint16},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, enc.Pack(tt.in), "pack %g", tt.in)
	}

	assert.InDelta(t, 12.34, enc.Unpack(1234), 1e-9)
	assert.True(t, math.IsNaN(enc.Unpack(math.MaxUint16)))
	assert.NoError(t, enc.Validate())
	assert.Error(t, Encoding{ScaleFactor: 0}.Validate())
}
