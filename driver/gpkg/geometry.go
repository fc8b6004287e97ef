package gpkg

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// GeoPackage binary header flags.
const (
	flagLittleEndian = 0x01
	flagEnvelopeXY   = 0x02 // envelope indicator 1: [minx, maxx, miny, maxy]
	flagEmpty        = 0x10
	envelopeShift    = 1
	envelopeMask     = 0x07
)

var gpMagic = []byte("GP")

// envelopeSizes maps the envelope indicator to the envelope length in bytes.
var envelopeSizes = [...]int{0, 32, 48, 48, 64}

// encodeGeometry wraps the WKB of g in a GeoPackage binary header with an XY
// envelope. A nil geometry encodes as nil, stored as NULL.
func encodeGeometry(g orb.Geometry, srsID int32) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}

	b := g.Bound()
	empty := isEmpty(g)
	flags := byte(flagLittleEndian)
	if empty {
		flags |= flagEmpty
	} else {
		flags |= flagEnvelopeXY
	}

	out := make([]byte, 0, 8+32+len(body))
	out = append(out, gpMagic...)
	out = append(out, 0, flags)
	out = binary.LittleEndian.AppendUint32(out, uint32(srsID))
	if !empty {
		for _, v := range []float64{b.Min[0], b.Max[0], b.Min[1], b.Max[1]} {
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
		}
	}
	return append(out, body...), nil
}

// decodeGeometry parses a GeoPackage geometry blob. NULL and empty
// geometries decode as nil.
func decodeGeometry(data []byte) (orb.Geometry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < 8 || string(data[:2]) != string(gpMagic) {
		return nil, fmt.Errorf("%w: bad geometry header", ErrInvalidData)
	}
	flags := data[3]
	ind := int(flags>>envelopeShift) & envelopeMask
	if ind >= len(envelopeSizes) {
		return nil, fmt.Errorf("%w: bad envelope indicator %d", ErrInvalidData, ind)
	}
	start := 8 + envelopeSizes[ind]
	if len(data) < start {
		return nil, fmt.Errorf("%w: truncated geometry", ErrInvalidData)
	}
	if flags&flagEmpty != 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(data[start:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return g, nil
}

func isEmpty(g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.Point:
		return math.IsNaN(v[0]) && math.IsNaN(v[1])
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0
	case orb.MultiPolygon:
		return len(v) == 0
	case orb.Collection:
		return len(v) == 0
	default:
		return false
	}
}

// sqlGeometryType maps a schema geometry type to a gpkg_geometry_columns
// type name and its z flag.
func sqlGeometryType(schemaType string) (string, int) {
	base := strings.TrimPrefix(schemaType, "3D ")
	z := 0
	if base != schemaType {
		z = 1
	}
	switch base {
	case "Point", "LineString", "Polygon", "MultiPoint", "MultiLineString", "MultiPolygon", "GeometryCollection":
		return strings.ToUpper(base), z
	default:
		return "GEOMETRY", z
	}
}

var schemaGeometryTypes = map[string]string{
	"POINT":              "Point",
	"LINESTRING":         "LineString",
	"POLYGON":            "Polygon",
	"MULTIPOINT":         "MultiPoint",
	"MULTILINESTRING":    "MultiLineString",
	"MULTIPOLYGON":       "MultiPolygon",
	"GEOMETRYCOLLECTION": "GeometryCollection",
}

// schemaGeometryType is the inverse of sqlGeometryType.
func schemaGeometryType(sqlType string, z int) string {
	t, ok := schemaGeometryTypes[strings.ToUpper(sqlType)]
	if !ok {
		return "Unknown"
	}
	if z == 1 {
		return "3D " + t
	}
	return t
}
