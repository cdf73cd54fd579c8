package netcdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileGrid(t *testing.T) {
	g := tileGrid{ny: 5, nx: 7, size: 3}
	assert.Equal(t, 2, g.rows())
	assert.Equal(t, 3, g.cols())
	assert.Equal(t, 6, g.count())

	y0, y1, x0, x1 := g.bounds(1, 2)
	assert.Equal(t, []int{3, 5, 6, 7}, []int{y0, y1, x0, x1}, "edge tiles are clipped")
}

func TestCompressTiles_RoundTrip(t *testing.T) {
	g := tileGrid{ny: 5, nx: 7, size: 3}
	packed := make([]uint16, g.ny*g.nx)
	for i := range packed {
		packed[i] = uint16(i * 100)
	}
	packed[len(packed)-1] = 65535

	payload, offsets, err := compressTiles(packed, g)
	require.NoError(t, err)
	require.Len(t, offsets, g.count()+1)
	assert.Equal(t, int32(0), offsets[0])
	assert.Equal(t, int32(len(payload)), offsets[len(offsets)-1])

	for ty := range g.rows() {
		for tx := range g.cols() {
			i := ty*g.cols() + tx
			y0, y1, x0, x1 := g.bounds(ty, tx)
			vals, err := inflateTile(payload[offsets[i]:offsets[i+1]], (y1-y0)*(x1-x0))
			require.NoError(t, err)
			k := 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					assert.Equal(t, packed[y*g.nx+x], vals[k], "tile %d,%d at %d,%d", ty, tx, y, x)
					k++
				}
			}
		}
	}
}

func TestInflateTile_Truncated(t *testing.T) {
	g := tileGrid{ny: 2, nx: 2, size: 2}
	payload, _, err := compressTiles([]uint16{1, 2, 3, 4}, g)
	require.NoError(t, err)

	_, err = inflateTile(payload, 8)
	assert.Error(t, err, "asks for more values than the tile holds")
}
