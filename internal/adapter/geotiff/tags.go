package geotiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// TIFF tags written by this package.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALMetadata    = 42112
	tagGDALNoData      = 42113
)

// TIFF field types.
const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// GeoKeys.
const (
	keyModelType       = 1024
	keyRasterType      = 1025
	keyProjectedCSType = 3072
	keyProjLinearUnits = 3076

	modelTypeProjected = 1
	rasterPixelIsArea  = 1
	linearMeter        = 9001
)

var le = binary.LittleEndian

// field is one IFD entry with its value encoded little-endian.
type field struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func shorts(tag uint16, vals ...uint16) field {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		le.PutUint16(b[2*i:], v)
	}
	return field{tag: tag, typ: typeShort, count: uint32(len(vals)), data: b}
}

func longs(tag uint16, vals ...uint32) field {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		le.PutUint32(b[4*i:], v)
	}
	return field{tag: tag, typ: typeLong, count: uint32(len(vals)), data: b}
}

func doubles(tag uint16, vals ...float64) field {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		le.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return field{tag: tag, typ: typeDouble, count: uint32(len(vals)), data: b}
}

func ascii(tag uint16, s string) field {
	b := append([]byte(s), 0)
	return field{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

func typeSize(typ uint16) (int, error) {
	switch typ {
	case 1, typeASCII, 6, 7:
		return 1, nil
	case typeShort, 8:
		return 2, nil
	case typeLong, 9, 11:
		return 4, nil
	case 5, 10, typeDouble:
		return 8, nil
	}
	return 0, fmt.Errorf("unknown TIFF field type %d", typ)
}

// tagValue is a raw field read from a file.
type tagValue struct {
	typ   uint16
	count uint32
	data  []byte
	order binary.ByteOrder
}

func (v tagValue) shorts() []uint16 {
	out := make([]uint16, 0, v.count)
	for i := 0; i+1 < len(v.data); i += 2 {
		out = append(out, v.order.Uint16(v.data[i:]))
	}
	return out
}

func (v tagValue) doubles() []float64 {
	out := make([]float64, 0, v.count)
	for i := 0; i+7 < len(v.data); i += 8 {
		out = append(out, math.Float64frombits(v.order.Uint64(v.data[i:])))
	}
	return out
}

func (v tagValue) string() string {
	b := v.data
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

// readTags parses the first IFD of a TIFF file.
func readTags(b []byte) (map[uint16]tagValue, error) {
	if len(b) < 8 {
		return nil, errors.New("file too short for a TIFF header")
	}
	var order binary.ByteOrder
	switch string(b[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, errors.New("not a TIFF file")
	}
	if order.Uint16(b[2:]) != 42 {
		return nil, errors.New("not a classic TIFF file")
	}
	off := int(order.Uint32(b[4:]))
	if off+2 > len(b) {
		return nil, errors.New("IFD offset beyond end of file")
	}
	n := int(order.Uint16(b[off:]))
	if off+2+12*n > len(b) {
		return nil, errors.New("IFD beyond end of file")
	}

	tags := make(map[uint16]tagValue, n)
	for i := 0; i < n; i++ {
		e := b[off+2+12*i:]
		tag, typ, count := order.Uint16(e), order.Uint16(e[2:]), order.Uint32(e[4:])
		size, err := typeSize(typ)
		if err != nil {
			return nil, fmt.Errorf("tag %d: %w", tag, err)
		}
		length := size * int(count)
		var data []byte
		if length <= 4 {
			data = e[8 : 8+length]
		} else {
			p := int(order.Uint32(e[8:]))
			if p+length > len(b) {
				return nil, fmt.Errorf("tag %d value beyond end of file", tag)
			}
			data = b[p : p+length]
		}
		tags[tag] = tagValue{typ: typ, count: count, data: data, order: order}
	}
	return tags, nil
}
