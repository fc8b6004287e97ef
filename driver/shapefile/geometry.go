package shapefile

import (
	"fmt"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// schemaGeometryType maps a shape type to the layer geometry type.
func schemaGeometryType(t shp.ShapeType) string {
	switch t {
	case shp.POINT, shp.POINTM:
		return "Point"
	case shp.POINTZ:
		return "3D Point"
	case shp.POLYLINE, shp.POLYLINEM:
		return "LineString"
	case shp.POLYLINEZ:
		return "3D LineString"
	case shp.POLYGON, shp.POLYGONM:
		return "Polygon"
	case shp.POLYGONZ, shp.MULTIPATCH:
		return "3D Polygon"
	case shp.MULTIPOINT, shp.MULTIPOINTM:
		return "MultiPoint"
	case shp.MULTIPOINTZ:
		return "3D MultiPoint"
	default:
		return "Unknown"
	}
}

// shapeType maps a layer geometry type to the shape type written to disk.
func shapeType(schemaType string) (shp.ShapeType, error) {
	base := strings.TrimPrefix(schemaType, "3D ")
	z := base != schemaType

	var t, tz shp.ShapeType
	switch base {
	case "Point":
		t, tz = shp.POINT, shp.POINTZ
	case "MultiPoint":
		t, tz = shp.MULTIPOINT, shp.MULTIPOINTZ
	case "LineString", "MultiLineString":
		t, tz = shp.POLYLINE, shp.POLYLINEZ
	case "Polygon", "MultiPolygon":
		t, tz = shp.POLYGON, shp.POLYGONZ
	default:
		return shp.NULL, fmt.Errorf("%w: geometry type %q", ErrUnsupportedType, schemaType)
	}
	if z {
		return tz, nil
	}
	return t, nil
}

// geometryFromShape converts a shape read from disk. Null shapes become nil.
func geometryFromShape(s shp.Shape) (orb.Geometry, error) {
	switch v := s.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Point:
		return orb.Point{v.X, v.Y}, nil
	case *shp.PointZ:
		return orb.Point{v.X, v.Y}, nil
	case *shp.PointM:
		return orb.Point{v.X, v.Y}, nil
	case *shp.MultiPoint:
		return multiPoint(v.Points), nil
	case *shp.MultiPointZ:
		return multiPoint(v.Points), nil
	case *shp.MultiPointM:
		return multiPoint(v.Points), nil
	case *shp.PolyLine:
		return lines(splitParts(v.Parts, v.Points)), nil
	case *shp.PolyLineZ:
		return lines(splitParts(v.Parts, v.Points)), nil
	case *shp.PolyLineM:
		return lines(splitParts(v.Parts, v.Points)), nil
	case *shp.Polygon:
		return polygons(splitParts(v.Parts, v.Points)), nil
	case *shp.PolygonZ:
		return polygons(splitParts(v.Parts, v.Points)), nil
	case *shp.PolygonM:
		return polygons(splitParts(v.Parts, v.Points)), nil
	default:
		return nil, fmt.Errorf("%w: shape %T", ErrUnsupportedType, s)
	}
}

func multiPoint(pts []shp.Point) orb.MultiPoint {
	mp := make(orb.MultiPoint, len(pts))
	for i, p := range pts {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp
}

// splitParts cuts a flat point list at the part offsets.
func splitParts(parts []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || end > int32(len(pts)) {
			return out
		}
		part := make([]orb.Point, 0, end-start)
		for _, p := range pts[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}

func lines(parts [][]orb.Point) orb.Geometry {
	if len(parts) == 1 {
		return orb.LineString(parts[0])
	}
	mls := make(orb.MultiLineString, len(parts))
	for i, p := range parts {
		mls[i] = orb.LineString(p)
	}
	return mls
}

// polygons groups rings into polygons. Clockwise rings are outer rings and
// start a new polygon; counter-clockwise rings are holes of the polygon
// before them.
func polygons(parts [][]orb.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, p := range parts {
		ring := orb.Ring(p)
		if ring.Orientation() == orb.CW || len(mp) == 0 {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		last := len(mp) - 1
		mp[last] = append(mp[last], ring)
	}
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}

// shapeFromGeometry converts g for a layer of shape type t.
func shapeFromGeometry(g orb.Geometry, t shp.ShapeType) (shp.Shape, error) {
	if g == nil {
		return nil, ErrNullGeometry
	}

	switch t {
	case shp.POINT, shp.POINTZ:
		p, ok := g.(orb.Point)
		if !ok {
			break
		}
		if t == shp.POINTZ {
			return &shp.PointZ{X: p[0], Y: p[1]}, nil
		}
		return &shp.Point{X: p[0], Y: p[1]}, nil

	case shp.MULTIPOINT, shp.MULTIPOINTZ:
		mp, ok := g.(orb.MultiPoint)
		if !ok {
			break
		}
		pts := toShpPoints(mp)
		box := boxOf(mp.Bound())
		if t == shp.MULTIPOINTZ {
			return &shp.MultiPointZ{Box: box, NumPoints: int32(len(pts)), Points: pts, ZArray: make([]float64, len(pts)), MArray: make([]float64, len(pts))}, nil
		}
		return &shp.MultiPoint{Box: box, NumPoints: int32(len(pts)), Points: pts}, nil

	case shp.POLYLINE, shp.POLYLINEZ:
		var parts [][]shp.Point
		switch v := g.(type) {
		case orb.LineString:
			parts = [][]shp.Point{toShpPoints(v)}
		case orb.MultiLineString:
			for _, ls := range v {
				parts = append(parts, toShpPoints(ls))
			}
		default:
			return nil, mismatch(g, t)
		}
		pl := shp.NewPolyLine(parts)
		if t == shp.POLYLINEZ {
			return &shp.PolyLineZ{Box: pl.Box, NumParts: pl.NumParts, NumPoints: pl.NumPoints, Parts: pl.Parts, Points: pl.Points,
				ZArray: make([]float64, len(pl.Points)), MArray: make([]float64, len(pl.Points))}, nil
		}
		return pl, nil

	case shp.POLYGON, shp.POLYGONZ:
		var polys []orb.Polygon
		switch v := g.(type) {
		case orb.Polygon:
			polys = []orb.Polygon{v}
		case orb.MultiPolygon:
			polys = v
		default:
			return nil, mismatch(g, t)
		}
		var parts [][]shp.Point
		for _, poly := range polys {
			for i, r := range poly {
				parts = append(parts, toShpPoints(orientRing(r, i == 0)))
			}
		}
		pl := shp.NewPolyLine(parts)
		if t == shp.POLYGONZ {
			return &shp.PolygonZ{Box: pl.Box, NumParts: pl.NumParts, NumPoints: pl.NumPoints, Parts: pl.Parts, Points: pl.Points,
				ZArray: make([]float64, len(pl.Points)), MArray: make([]float64, len(pl.Points))}, nil
		}
		poly := shp.Polygon(*pl)
		return &poly, nil
	}
	return nil, mismatch(g, t)
}

func mismatch(g orb.Geometry, t shp.ShapeType) error {
	return fmt.Errorf("%w: %s geometry in a %s layer", ErrUnsupportedType, g.GeoJSONType(), schemaGeometryType(t))
}

// orientRing returns a closed copy of r wound clockwise for outer rings and
// counter-clockwise for holes.
func orientRing(r orb.Ring, outer bool) orb.Ring {
	out := append(orb.Ring(nil), r...)
	if len(out) > 0 && !out.Closed() {
		out = append(out, out[0])
	}
	want := orb.CCW
	if outer {
		want = orb.CW
	}
	if len(out) >= 4 && out.Orientation() != want {
		out.Reverse()
	}
	return out
}

func toShpPoints[T ~[]orb.Point](pts T) []shp.Point {
	out := make([]shp.Point, len(pts))
	for i, p := range pts {
		out[i] = shp.Point{X: p[0], Y: p[1]}
	}
	return out
}

func boxOf(b orb.Bound) shp.Box {
	return shp.Box{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]}
}
