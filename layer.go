package vector

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MemLayer is an in-memory feature store implementing every Session method
// except Sync and Stop. File drivers embed it: they load features on start
// and serialize them on sync. FIDs are positions in the layer.
type MemLayer struct {
	driver   string
	name     string
	schema   *Schema
	crs      string
	crsWKT   string
	encoding string
	features []*geojson.Feature
	dirty    bool
}

// NewMemLayer returns an empty layer.
func NewMemLayer(driver, name string, schema *Schema, crs, crsWKT string) *MemLayer {
	crs, crsWKT = ResolveCRS(crs, crsWKT)
	return &MemLayer{
		driver:   driver,
		name:     name,
		schema:   schema.Clone(),
		crs:      crs,
		crsWKT:   crsWKT,
		encoding: "utf-8",
	}
}

// Load appends a feature read from storage without validating it.
func (l *MemLayer) Load(f *geojson.Feature) {
	l.features = append(l.features, cloneFeature(f, nil))
}

// SetEncoding sets the encoding reported by FileEncoding.
func (l *MemLayer) SetEncoding(enc string) { l.encoding = enc }

// LayerName returns the layer name.
func (l *MemLayer) LayerName() string { return l.name }

// Features returns the stored features in FID order. The slice must not be
// modified.
func (l *MemLayer) Features() []*geojson.Feature { return l.features }

// Dirty reports whether records were written since the last MarkClean.
func (l *MemLayer) Dirty() bool { return l.dirty }

// MarkClean records that the layer has been persisted.
func (l *MemLayer) MarkClean() { l.dirty = false }

// SchemaRef returns the layer's schema without copying it.
func (l *MemLayer) SchemaRef() *Schema { return l.schema }

func (l *MemLayer) Driver() string { return l.driver }

func (l *MemLayer) Schema() (*Schema, error) {
	if l.schema == nil {
		return nil, fmt.Errorf("%w: layer has no schema", ErrSchema)
	}
	return l.schema.Clone(), nil
}

func (l *MemLayer) CRS() (string, error)    { return l.crs, nil }
func (l *MemLayer) CRSWKT() (string, error) { return l.crsWKT, nil }
func (l *MemLayer) FileEncoding() string    { return l.encoding }
func (l *MemLayer) Len() (int, error)       { return len(l.features), nil }

func (l *MemLayer) Extent() (orb.Bound, error) {
	var (
		b     orb.Bound
		found bool
	)
	for _, f := range l.features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			b = f.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, nil
}

func (l *MemLayer) HasFeature(fid int64) (bool, error) {
	return fid >= 0 && fid < int64(len(l.features)), nil
}

func (l *MemLayer) Get(fid int64) (*geojson.Feature, error) {
	if fid < 0 || fid >= int64(len(l.features)) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, fid)
	}
	return cloneFeature(l.features[fid], fid), nil
}

func (l *MemLayer) Iterate(q Query) (Cursor, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return NewCursor(len(l.features), q, func(i int) (int64, *geojson.Feature, error) {
		return int64(i), cloneFeature(l.features[i], int64(i)), nil
	}), nil
}

// WriteRecords validates recs against the schema and appends them.
func (l *MemLayer) WriteRecords(recs []*geojson.Feature) error {
	for _, rec := range recs {
		if err := CheckRecord(l.schema, l.driver, rec); err != nil {
			return err
		}
	}
	for _, rec := range recs {
		l.features = append(l.features, cloneFeature(rec, nil))
	}
	if len(recs) > 0 {
		l.dirty = true
	}
	return nil
}

// CheckRecord reports why rec cannot be written to a layer with schema s.
func CheckRecord(s *Schema, driver string, rec *geojson.Feature) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidArgument)
	}
	if s == nil {
		return fmt.Errorf("%w: no schema", ErrSchema)
	}
	if !samePropertyKeys(rec, s) {
		return fmt.Errorf("%w: record does not match collection schema: %v != %v",
			ErrSchema, recordKeys(rec), s.Names())
	}
	if rec.Geometry == nil {
		return nil
	}
	switch s.Geometry {
	case "", "Unknown", "Any", "GeometryCollection":
		return nil
	}
	if !geometryCompatible(driver, s.Geometry, GeometryType(rec.Geometry)) {
		return fmt.Errorf("%w: record's geometry type does not match collection schema's geometry type: %q != %q",
			ErrSchema, GeometryType(rec.Geometry), s.Geometry)
	}
	return nil
}

func recordKeys(rec *geojson.Feature) []string {
	keys := make([]string, 0, len(rec.Properties))
	for k := range rec.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// cloneFeature copies f deeply enough that callers cannot mutate stored
// state. A non-nil fid becomes the feature ID.
func cloneFeature(f *geojson.Feature, fid any) *geojson.Feature {
	var g orb.Geometry
	if f.Geometry != nil {
		g = orb.Clone(f.Geometry)
	}
	out := geojson.NewFeature(g)
	if f.Properties != nil {
		out.Properties = make(geojson.Properties, len(f.Properties))
		for k, v := range f.Properties {
			out.Properties[k] = v
		}
	}
	if id, ok := fid.(int64); ok {
		out.ID = strconv.FormatInt(id, 10)
	}
	return out
}
