package flatgeobuf

import (
	"fmt"
	"strings"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

// headerGeometryType maps a schema geometry type to the header type. Mixed
// and unrecognized types are stored as Unknown.
func headerGeometryType(schemaType string) flattypes.GeometryType {
	name := strings.TrimPrefix(schemaType, "3D ")
	for t, n := range flattypes.EnumNamesGeometryType {
		if n == name {
			return t
		}
	}
	return flattypes.GeometryTypeUnknown
}

// schemaGeometryType maps a header type to a schema geometry type.
func schemaGeometryType(t flattypes.GeometryType) string {
	name, ok := flattypes.EnumNamesGeometryType[t]
	if !ok {
		return "Unknown"
	}
	return name
}

// geometryToFGB converts an orb.Geometry to a FlatGeobuf writer.Geometry.
func geometryToFGB(geom orb.Geometry, builder *flatbuffers.Builder) (*writer.Geometry, error) {
	g := writer.NewGeometry(builder)

	switch v := geom.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})

	case orb.MultiPoint:
		g.SetType(flattypes.GeometryTypeMultiPoint)
		g.SetXY(appendXY(nil, v))

	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		g.SetXY(appendXY(nil, v))

	case orb.MultiLineString:
		g.SetType(flattypes.GeometryTypeMultiLineString)
		parts := make([][]orb.Point, len(v))
		for i, ls := range v {
			parts[i] = ls
		}
		xy, ends := flattenParts(parts)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := polygonXYEnds(v)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.Ring:
		return geometryToFGB(orb.Polygon{v}, builder)

	case orb.Bound:
		return geometryToFGB(v.ToPolygon(), builder)

	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			pg := writer.NewGeometry(builder)
			pg.SetType(flattypes.GeometryTypePolygon)
			xy, ends := polygonXYEnds(poly)
			pg.SetXY(xy)
			pg.SetEnds(ends)
			parts = append(parts, *pg)
		}
		g.SetParts(parts)

	case orb.Collection:
		g.SetType(flattypes.GeometryTypeGeometryCollection)
		parts := make([]writer.Geometry, 0, len(v))
		for _, child := range v {
			cg, err := geometryToFGB(child, builder)
			if err != nil {
				return nil, err
			}
			parts = append(parts, *cg)
		}
		g.SetParts(parts)

	case nil:
		return nil, ErrNullGeometry

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, geom)
	}

	return g, nil
}

func appendXY(xy []float64, pts []orb.Point) []float64 {
	for _, p := range pts {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

// flattenParts concatenates parts into one coordinate array with cumulative
// end offsets, counted in points.
func flattenParts(parts [][]orb.Point) ([]float64, []uint32) {
	var (
		xy   []float64
		ends = make([]uint32, 0, len(parts))
		n    uint32
	)
	for _, part := range parts {
		xy = appendXY(xy, part)
		n += uint32(len(part))
		ends = append(ends, n)
	}
	return xy, ends
}

func polygonXYEnds(poly orb.Polygon) ([]float64, []uint32) {
	parts := make([][]orb.Point, len(poly))
	for i, r := range poly {
		parts[i] = r
	}
	return flattenParts(parts)
}

// geometryFromFGB converts a FlatGeobuf geometry to an orb.Geometry. typ is
// used when the geometry does not carry its own type, as in files with a
// single header geometry type.
func geometryFromFGB(g *flattypes.Geometry, typ flattypes.GeometryType) (orb.Geometry, error) {
	if t := g.Type(); t != flattypes.GeometryTypeUnknown {
		typ = t
	}

	switch typ {
	case flattypes.GeometryTypePoint:
		pts := points(g, 0, g.XyLength()/2)
		if len(pts) == 0 {
			return orb.Point{}, nil
		}
		return pts[0], nil

	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(points(g, 0, g.XyLength()/2)), nil

	case flattypes.GeometryTypeLineString:
		return orb.LineString(points(g, 0, g.XyLength()/2)), nil

	case flattypes.GeometryTypeMultiLineString:
		parts := splitEnds(g)
		mls := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			mls[i] = orb.LineString(p)
		}
		return mls, nil

	case flattypes.GeometryTypePolygon:
		return polygonFromFGB(g), nil

	case flattypes.GeometryTypeMultiPolygon:
		if g.PartsLength() == 0 {
			return orb.MultiPolygon{polygonFromFGB(g)}, nil
		}
		mp := make(orb.MultiPolygon, 0, g.PartsLength())
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if !g.Parts(&part, i) {
				return nil, fmt.Errorf("%w: missing polygon part %d", ErrInvalidData, i)
			}
			mp = append(mp, polygonFromFGB(&part))
		}
		return mp, nil

	case flattypes.GeometryTypeGeometryCollection:
		coll := make(orb.Collection, 0, g.PartsLength())
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if !g.Parts(&part, i) {
				return nil, fmt.Errorf("%w: missing collection part %d", ErrInvalidData, i)
			}
			child, err := geometryFromFGB(&part, flattypes.GeometryTypeUnknown)
			if err != nil {
				return nil, err
			}
			coll = append(coll, child)
		}
		return coll, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, flattypes.EnumNamesGeometryType[typ])
	}
}

// points returns the points with indexes [from, to) of g's coordinates.
func points(g *flattypes.Geometry, from, to int) []orb.Point {
	pts := make([]orb.Point, 0, to-from)
	for i := from; i < to; i++ {
		pts = append(pts, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return pts
}

// splitEnds splits g's coordinates at its end offsets. Without ends the
// coordinates form a single part.
func splitEnds(g *flattypes.Geometry) [][]orb.Point {
	n := g.XyLength() / 2
	if g.EndsLength() == 0 {
		if n == 0 {
			return nil
		}
		return [][]orb.Point{points(g, 0, n)}
	}
	parts := make([][]orb.Point, 0, g.EndsLength())
	start := 0
	for i := 0; i < g.EndsLength(); i++ {
		end := int(g.Ends(i))
		if end > n {
			end = n
		}
		parts = append(parts, points(g, start, end))
		start = end
	}
	return parts
}

func polygonFromFGB(g *flattypes.Geometry) orb.Polygon {
	parts := splitEnds(g)
	poly := make(orb.Polygon, len(parts))
	for i, p := range parts {
		poly[i] = orb.Ring(p)
	}
	return poly
}
