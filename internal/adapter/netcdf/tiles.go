package netcdf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// tileSize is the side of the square tiles the rate is compressed in. It
// divides every automatic chunk size, so a chunk read decodes whole tiles.
const tileSize = 128

// tileGrid splits an ny by nx raster into tiles of side size, row-major.
type tileGrid struct {
	ny, nx, size int
}

func (g tileGrid) cols() int  { return (g.nx + g.size - 1) / g.size }
func (g tileGrid) rows() int  { return (g.ny + g.size - 1) / g.size }
func (g tileGrid) count() int { return g.rows() * g.cols() }

// bounds returns rows [y0, y1) and columns [x0, x1) of tile (ty, tx).
func (g tileGrid) bounds(ty, tx int) (y0, y1, x0, x1 int) {
	y0, x0 = ty*g.size, tx*g.size
	return y0, min(y0+g.size, g.ny), x0, min(x0+g.size, g.nx)
}

// compressTiles deflates each tile of packed, a row-major ny by nx raster,
// and returns the concatenated streams with count+1 byte offsets.
func compressTiles(packed []uint16, g tileGrid) ([]byte, []int32, error) {
	var out bytes.Buffer
	offsets := make([]int32, 0, g.count()+1)
	offsets = append(offsets, 0)
	raw := make([]byte, 0, 2*g.size*g.size)
	for ty := range g.rows() {
		for tx := range g.cols() {
			y0, y1, x0, x1 := g.bounds(ty, tx)
			raw = raw[:0]
			for y := y0; y < y1; y++ {
				for _, q := range packed[y*g.nx+x0 : y*g.nx+x1] {
					raw = binary.BigEndian.AppendUint16(raw, q)
				}
			}
			zw := zlib.NewWriter(&out)
			if _, err := zw.Write(raw); err != nil {
				return nil, nil, fmt.Errorf("compress tile %d,%d: %w", ty, tx, err)
			}
			if err := zw.Close(); err != nil {
				return nil, nil, fmt.Errorf("compress tile %d,%d: %w", ty, tx, err)
			}
			if out.Len() > 1<<31-1 {
				return nil, nil, errors.New("compressed raster exceeds 2 GiB")
			}
			offsets = append(offsets, int32(out.Len()))
		}
	}
	return out.Bytes(), offsets, nil
}

// inflateTile decodes one compressed tile of n values.
func inflateTile(data []byte, n int) ([]uint16, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	raw := make([]byte, 2*n)
	if _, err := io.ReadFull(zr, raw); err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(raw[2*i:])
	}
	return out, nil
}
