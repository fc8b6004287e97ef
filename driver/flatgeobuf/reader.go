package flatgeobuf

import (
	"fmt"
	"math"
	"strings"

	fgb "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	vector "github.com/tingold/orb-vector"
)

// Reader provides read access to a FlatGeobuf file.
type Reader struct {
	fgb *fgb.FlatGeoBuf
}

// NewReader creates a reader for path. OS files are memory-mapped; virtual
// paths are read into memory first.
func NewReader(path string) (*Reader, error) {
	if vector.IsVirtual(path) {
		data, err := vector.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return NewReaderFromData(data)
	}
	f, err := fgb.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return &Reader{fgb: f}, nil
}

// NewReaderFromData creates a reader from byte data.
func NewReaderFromData(data []byte) (*Reader, error) {
	f, err := fgb.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return &Reader{fgb: f}, nil
}

// Header returns metadata about the FlatGeobuf file.
func (r *Reader) Header() *Header {
	h := r.fgb.Header()
	if h == nil {
		return nil
	}

	header := &Header{
		Name:          string(h.Name()),
		Description:   string(h.Description()),
		GeometryType:  schemaGeometryType(h.GeometryType()),
		FeaturesCount: h.FeaturesCount(),
		HasIndex:      h.IndexNodeSize() > 0,
	}

	if h.EnvelopeLength() >= 4 {
		header.Envelope = [4]float64{h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3)}
		header.HasEnvelope = true
	}

	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		header.CRS = &CRS{
			Code:        int(crs.Code()),
			Name:        string(crs.Name()),
			Description: string(crs.Description()),
		}
	}

	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if h.Columns(&col, i) {
			header.Columns = append(header.Columns, ColumnInfo{
				Name:     string(col.Name()),
				Type:     flattypes.EnumNamesColumnType[col.Type()],
				Nullable: col.Nullable(),
			})
		}
	}

	return header
}

// Schema returns the layer schema described by the header.
func (r *Reader) Schema() *vector.Schema {
	h := r.fgb.Header()
	s := &vector.Schema{
		Geometry:   schemaGeometryType(h.GeometryType()),
		Properties: make([]vector.Property, 0, h.ColumnsLength()),
	}
	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if h.Columns(&col, i) {
			s.Properties = append(s.Properties, vector.Property{
				Name: string(col.Name()),
				Type: propertyType(col.Type()),
			})
		}
	}
	return s
}

// CRS returns the proj-style and WKT forms of the header CRS, or empty
// strings if the file has none.
func (r *Reader) CRS() (string, string) {
	hdr := r.Header()
	if hdr == nil || hdr.CRS == nil {
		return "", ""
	}
	var crs, wkt string
	if hdr.CRS.Code > 0 {
		crs = vector.FromEPSG(hdr.CRS.Code)
	}
	if looksLikeWKT(hdr.CRS.Description) {
		wkt = hdr.CRS.Description
	}
	return vector.ResolveCRS(crs, wkt)
}

func looksLikeWKT(s string) bool {
	for _, kw := range []string{"GEOGCS[", "PROJCS[", "GEOGCRS[", "PROJCRS[", "COMPD_CS[", "GEOCCS["} {
		if strings.HasPrefix(s, kw) {
			return true
		}
	}
	return false
}

// ReadAll reads every feature through the spatial index.
func (r *Reader) ReadAll() ([]*geojson.Feature, error) {
	h := r.fgb.Header()
	if h.FeaturesCount() == 0 {
		return nil, nil
	}
	if h.IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}

	bound := orb.Bound{
		Min: orb.Point{-math.MaxFloat64, -math.MaxFloat64},
		Max: orb.Point{math.MaxFloat64, math.MaxFloat64},
	}
	if h.EnvelopeLength() >= 4 {
		bound = orb.Bound{
			Min: orb.Point{h.Envelope(0), h.Envelope(1)},
			Max: orb.Point{h.Envelope(2), h.Envelope(3)},
		}
	}
	fc, err := r.Search(bound)
	if err != nil {
		return nil, err
	}
	return fc.Features, nil
}

// Search performs a spatial query using the built-in index.
// Returns features whose bounding boxes intersect the query bounds.
func (r *Reader) Search(bounds orb.Bound) (*geojson.FeatureCollection, error) {
	h := r.fgb.Header()
	if h.IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}

	found, err := r.fgb.Search(bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range found {
		feature, err := convertFeature(f, h)
		if err != nil {
			return nil, err
		}
		fc.Append(feature)
	}
	return fc, nil
}

// Close releases the reader. The underlying mapping is released by the
// garbage collector.
func (r *Reader) Close() error {
	r.fgb = nil
	return nil
}

// convertFeature converts a FlatGeobuf feature to a geojson.Feature.
func convertFeature(f *flattypes.Feature, h *flattypes.Header) (*geojson.Feature, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil feature", ErrInvalidData)
	}

	var geom orb.Geometry
	var g flattypes.Geometry
	if f.Geometry(&g) != nil {
		var err error
		geom, err = geometryFromFGB(&g, h.GeometryType())
		if err != nil {
			return nil, err
		}
	}
	feature := geojson.NewFeature(geom)

	data := make([]byte, f.PropertiesLength())
	for i := range data {
		data[i] = byte(f.Properties(i))
	}
	props, err := decodeProperties(data, h)
	if err != nil {
		return nil, err
	}
	feature.Properties = props
	return feature, nil
}
