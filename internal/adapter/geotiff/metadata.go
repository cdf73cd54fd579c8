package geotiff

import (
	"encoding/xml"
	"fmt"
	"slices"
	"strconv"
)

// gdalMetadata is the XML document GDAL keeps in TIFF tag 42112.
type gdalMetadata struct {
	XMLName xml.Name   `xml:"GDALMetadata"`
	Items   []gdalItem `xml:"Item"`
}

type gdalItem struct {
	Name   string `xml:"name,attr"`
	Sample string `xml:"sample,attr,omitempty"`
	Role   string `xml:"role,attr,omitempty"`
	Value  string `xml:",chardata"`
}

func encodeMetadata(attrs map[string]string, scale float64) (string, error) {
	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	slices.Sort(names)

	md := gdalMetadata{}
	for _, k := range names {
		md.Items = append(md.Items, gdalItem{Name: k, Value: attrs[k]})
	}
	md.Items = append(md.Items,
		gdalItem{Name: "SCALE", Sample: "0", Role: "scale", Value: strconv.FormatFloat(scale, 'g', -1, 64)},
		gdalItem{Name: "OFFSET", Sample: "0", Role: "offset", Value: "0"},
	)
	b, err := xml.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("encode GDAL metadata: %w", err)
	}
	return string(b), nil
}

// decodeMetadata returns the dataset items and the band scale (1 when absent).
func decodeMetadata(s string) (map[string]string, float64, error) {
	attrs := make(map[string]string)
	scale := 1.0
	if s == "" {
		return attrs, scale, nil
	}
	var md gdalMetadata
	if err := xml.Unmarshal([]byte(s), &md); err != nil {
		return nil, 0, fmt.Errorf("decode GDAL metadata: %w", err)
	}
	for _, it := range md.Items {
		switch {
		case it.Role == "scale":
			v, err := strconv.ParseFloat(it.Value, 64)
			if err != nil {
				return nil, 0, fmt.Errorf("band scale %q: %w", it.Value, err)
			}
			scale = v
		case it.Role != "":
		case it.Sample == "":
			attrs[it.Name] = it.Value
		}
	}
	return attrs, scale, nil
}
