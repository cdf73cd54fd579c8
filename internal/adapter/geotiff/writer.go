// Package geotiff writes and reads single-band unsigned 16-bit GeoTIFF rasters
// with deflate compression, GeoKeys for a projected EPSG code and attributes
// stored as GDAL metadata.
package geotiff

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"maps"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ctessum/sparse"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

// stripBytes bounds the uncompressed size of one strip.
const stripBytes = 64 << 10

// Writer writes layers as deflate-compressed GeoTIFF files.
type Writer struct {
	level int
}

// NewWriter returns a Writer using the default deflate level.
func NewWriter() *Writer {
	return &Writer{level: zlib.DefaultCompression}
}

// WriteLayer writes l to path, replacing any existing file.
func (w *Writer) WriteLayer(path string, l *domain.Layer) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	b, err := w.encode(l)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return writeAtomic(path, b)
}

// UpdateAttrs merges attrs into the metadata of the raster at path and
// rewrites it.
func (w *Writer) UpdateAttrs(path string, attrs map[string]string) error {
	l, err := w.ReadLayer(path)
	if err != nil {
		return err
	}
	maps.Copy(l.Attrs, attrs)
	return w.WriteLayer(path, l)
}

// ReadLayer reads a raster written by WriteLayer.
func (w *Writer) ReadLayer(path string) (*domain.Layer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	l, err := decode(b)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return l, nil
}

func (w *Writer) encode(l *domain.Layer) ([]byte, error) {
	ny, nx := len(l.Y), len(l.X)
	rowsPerStrip := max(1, stripBytes/(2*nx))
	nstrips := (ny + rowsPerStrip - 1) / rowsPerStrip

	var out bytes.Buffer
	out.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})

	offsets := make([]uint32, nstrips)
	counts := make([]uint32, nstrips)
	row := make([]byte, 2*nx)
	for s := 0; s < nstrips; s++ {
		offsets[s] = uint32(out.Len())
		zw, err := zlib.NewWriterLevel(&out, w.level)
		if err != nil {
			return nil, err
		}
		for r := s * rowsPerStrip; r < min((s+1)*rowsPerStrip, ny); r++ {
			// TIFF rows run north to south.
			src := ny - 1 - r
			for x := 0; x < nx; x++ {
				le.PutUint16(row[2*x:], l.Encoding.Pack(l.Data.Get(src, x)))
			}
			if _, err := zw.Write(row); err != nil {
				return nil, err
			}
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		counts[s] = uint32(out.Len()) - offsets[s]
	}

	md, err := encodeMetadata(l.Attrs, l.Encoding.ScaleFactor)
	if err != nil {
		return nil, err
	}
	res := l.Resolution
	fields := []field{
		longs(tagImageWidth, uint32(nx)),
		longs(tagImageLength, uint32(ny)),
		shorts(tagBitsPerSample, 16),
		shorts(tagCompression, 8),
		shorts(tagPhotometric, 1),
		longs(tagStripOffsets, offsets...),
		shorts(tagSamplesPerPixel, 1),
		longs(tagRowsPerStrip, uint32(rowsPerStrip)),
		longs(tagStripByteCounts, counts...),
		shorts(tagPlanarConfig, 1),
		shorts(tagSampleFormat, 1),
		doubles(tagModelPixelScale, res, res, 0),
		doubles(tagModelTiepoint, 0, 0, 0, l.X[0]-res/2, l.Y[ny-1]+res/2, 0),
		shorts(tagGeoKeyDirectory,
			1, 1, 0, 4,
			keyModelType, 0, 1, modelTypeProjected,
			keyRasterType, 0, 1, rasterPixelIsArea,
			keyProjectedCSType, 0, 1, uint16(l.EPSG),
			keyProjLinearUnits, 0, 1, linearMeter,
		),
		ascii(tagGDALMetadata, md),
		ascii(tagGDALNoData, strconv.Itoa(int(l.Encoding.FillValue))),
	}

	// Values longer than four bytes go before the IFD.
	valueOffsets := make([]uint32, len(fields))
	for i, f := range fields {
		if len(f.data) <= 4 {
			continue
		}
		if out.Len()%2 == 1 {
			out.WriteByte(0)
		}
		valueOffsets[i] = uint32(out.Len())
		out.Write(f.data)
	}
	if out.Len()%2 == 1 {
		out.WriteByte(0)
	}

	ifd := uint32(out.Len())
	var entry [12]byte
	var count [2]byte
	le.PutUint16(count[:], uint16(len(fields)))
	out.Write(count[:])
	for i, f := range fields {
		le.PutUint16(entry[0:], f.tag)
		le.PutUint16(entry[2:], f.typ)
		le.PutUint32(entry[4:], f.count)
		clear(entry[8:])
		if len(f.data) <= 4 {
			copy(entry[8:], f.data)
		} else {
			le.PutUint32(entry[8:], valueOffsets[i])
		}
		out.Write(entry[:])
	}
	out.Write([]byte{0, 0, 0, 0})

	b := out.Bytes()
	le.PutUint32(b[4:], ifd)
	return b, nil
}

func decode(b []byte) (*domain.Layer, error) {
	tags, err := readTags(b)
	if err != nil {
		return nil, err
	}
	img, err := tiff.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	gray, ok := img.(*image.Gray16)
	if !ok {
		return nil, fmt.Errorf("unsupported image type %T, want 16-bit grayscale", img)
	}

	scale := tags[tagModelPixelScale].doubles()
	tie := tags[tagModelTiepoint].doubles()
	if len(scale) < 2 || len(tie) < 6 {
		return nil, errors.New("missing georeferencing tags")
	}
	epsg, err := projectedEPSG(tags[tagGeoKeyDirectory].shorts())
	if err != nil {
		return nil, err
	}
	attrs, bandScale, err := decodeMetadata(tags[tagGDALMetadata].string())
	if err != nil {
		return nil, err
	}
	enc := domain.Encoding{FillValue: 65535, ScaleFactor: bandScale}
	if v, ok := tags[tagGDALNoData]; ok {
		fill, err := strconv.ParseUint(v.string(), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("nodata %q: %w", v.string(), err)
		}
		enc.FillValue = uint16(fill)
	}

	bounds := gray.Bounds()
	nx, ny := bounds.Dx(), bounds.Dy()
	res := scale[0]
	l := &domain.Layer{
		Data:       sparse.ZerosDense(ny, nx),
		X:          make([]float64, nx),
		Y:          make([]float64, ny),
		Resolution: res,
		EPSG:       epsg,
		Encoding:   enc,
		Attrs:      attrs,
	}
	for i := range l.X {
		l.X[i] = tie[3] + (float64(i)+0.5)*res
	}
	for j := range l.Y {
		l.Y[j] = tie[4] - (float64(ny-j)-0.5)*res
	}
	for j := 0; j < ny; j++ {
		r := bounds.Min.Y + ny - 1 - j
		for i := 0; i < nx; i++ {
			l.Data.Set(enc.Unpack(gray.Gray16At(bounds.Min.X+i, r).Y), j, i)
		}
	}
	return l, nil
}

func projectedEPSG(keys []uint16) (int, error) {
	if len(keys) < 4 {
		return 0, errors.New("missing GeoKey directory")
	}
	n := int(keys[3])
	for i := 0; i < n && 4+4*i+3 < len(keys); i++ {
		k := keys[4+4*i:]
		if k[0] == keyProjectedCSType && k[1] == 0 {
			return int(k[3]), nil
		}
	}
	return 0, errors.New("no projected coordinate system GeoKey")
}

func writeAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
