package flatgeobuf

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	vector "github.com/tingold/orb-vector"
)

var pointSchema = &vector.Schema{
	Geometry: "Point",
	Properties: []vector.Property{
		{Name: "index", Type: "int"},
		{Name: "name", Type: "str"},
	},
}

func writePoints(t *testing.T, n int, opts *Options) []byte {
	t.Helper()

	features := make([]*geojson.Feature, 0, n)
	for i := 0; i < n; i++ {
		f := geojson.NewFeature(orb.Point{float64(i), float64(i * 2)})
		f.Properties = geojson.Properties{
			"index": i,
			"name":  "point",
		}
		features = append(features, f)
	}

	var buf bytes.Buffer
	if err := Write(&buf, features, pointSchema, opts); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return buf.Bytes()
}

func TestNewReaderFromData_Invalid(t *testing.T) {
	_, err := NewReaderFromData([]byte("not a flatgeobuf"))
	if err == nil {
		t.Error("expected error for invalid data")
	}
}

func TestNewReaderFromData_Empty(t *testing.T) {
	_, err := NewReaderFromData([]byte{})
	if err == nil {
		t.Error("expected error for empty data")
	}
}

func TestWrite_Magic(t *testing.T) {
	data := writePoints(t, 3, nil)
	expectedMagic := []byte{0x66, 0x67, 0x62, 0x03, 0x66, 0x67, 0x62, 0x00}
	if !bytes.HasPrefix(data, expectedMagic) {
		t.Errorf("expected magic %x, got %x", expectedMagic, data[:8])
	}
}

func TestWrite_NullGeometry(t *testing.T) {
	f := geojson.NewFeature(nil)
	f.Properties = geojson.Properties{"index": 1, "name": "x"}

	var buf bytes.Buffer
	err := Write(&buf, []*geojson.Feature{f}, pointSchema, nil)
	if !errors.Is(err, ErrNullGeometry) {
		t.Errorf("expected ErrNullGeometry, got %v", err)
	}
}

func TestRoundTrip_Points(t *testing.T) {
	data := writePoints(t, 10, &Options{
		Name:         "test_points",
		IncludeIndex: true,
		CRS:          &CRS{Code: 4326, Description: vector.WGS84WKT},
	})

	reader, err := NewReaderFromData(data)
	if err != nil {
		t.Fatalf("NewReaderFromData failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	if header == nil {
		t.Fatal("expected non-nil header")
	}
	if header.Name != "test_points" {
		t.Errorf("expected name 'test_points', got %q", header.Name)
	}
	if header.GeometryType != "Point" {
		t.Errorf("expected geometry type 'Point', got %q", header.GeometryType)
	}
	if !header.HasIndex {
		t.Error("expected HasIndex to be true")
	}
	if header.FeaturesCount != 10 {
		t.Errorf("expected 10 features, got %d", header.FeaturesCount)
	}

	if diff := cmp.Diff(pointSchema, reader.Schema()); diff != "" {
		t.Errorf("schema mismatch (-want +got):\n%s", diff)
	}

	crs, wkt := reader.CRS()
	if crs != "+init=epsg:4326" {
		t.Errorf("expected +init=epsg:4326, got %q", crs)
	}
	if wkt != vector.WGS84WKT {
		t.Errorf("expected WGS84 WKT, got %q", wkt)
	}

	features, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(features) != 10 {
		t.Fatalf("expected 10 features, got %d", len(features))
	}

	// The index orders features along a Hilbert curve.
	sort.Slice(features, func(i, j int) bool {
		return features[i].Properties["index"].(int64) < features[j].Properties["index"].(int64)
	})
	for i, f := range features {
		want := orb.Point{float64(i), float64(i * 2)}
		if diff := cmp.Diff(orb.Geometry(want), f.Geometry); diff != "" {
			t.Errorf("feature %d geometry mismatch (-want +got):\n%s", i, diff)
		}
		if f.Properties["name"] != "point" {
			t.Errorf("feature %d: expected name 'point', got %v", i, f.Properties["name"])
		}
	}
}

func TestRoundTrip_Polygons(t *testing.T) {
	schema := &vector.Schema{
		Geometry:   "Polygon",
		Properties: []vector.Property{{Name: "name", Type: "str"}},
	}
	f1 := geojson.NewFeature(orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}})
	f1.Properties = geojson.Properties{"name": "square1"}
	f2 := geojson.NewFeature(orb.Polygon{{{20, 20}, {30, 20}, {30, 30}, {20, 30}, {20, 20}}})
	f2.Properties = geojson.Properties{"name": "square2"}

	tmpFile := filepath.Join(t.TempDir(), "test_polygons.fgb")
	file, err := os.Create(tmpFile)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	err = Write(file, []*geojson.Feature{f1, f2}, schema, nil)
	_ = file.Close()
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	reader, err := NewReader(tmpFile)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	if header := reader.Header(); header.GeometryType != "Polygon" {
		t.Errorf("expected geometry type 'Polygon', got %q", header.GeometryType)
	}

	features, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(features))
	}
}

func TestRoundTrip_Search(t *testing.T) {
	schema := &vector.Schema{
		Geometry:   "Point",
		Properties: []vector.Property{{Name: "x", Type: "int"}, {Name: "y", Type: "int"}},
	}
	var features []*geojson.Feature
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			f := geojson.NewFeature(orb.Point{float64(x), float64(y)})
			f.Properties = geojson.Properties{"x": x, "y": y}
			features = append(features, f)
		}
	}

	var buf bytes.Buffer
	if err := Write(&buf, features, schema, nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	reader, err := NewReaderFromData(buf.Bytes())
	if err != nil {
		t.Fatalf("NewReaderFromData failed: %v", err)
	}

	fc, err := reader.Search(orb.Bound{Min: orb.Point{2, 2}, Max: orb.Point{4, 4}})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(fc.Features) != 9 {
		t.Errorf("expected 9 features in search bounds, got %d", len(fc.Features))
	}
	for _, f := range fc.Features {
		p := f.Geometry.(orb.Point)
		if p[0] < 2 || p[0] > 4 || p[1] < 2 || p[1] > 4 {
			t.Errorf("feature outside bounds: %v", p)
		}
	}
}

func TestReadAll_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil, pointSchema, nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	reader, err := NewReaderFromData(buf.Bytes())
	if err != nil {
		t.Fatalf("NewReaderFromData failed: %v", err)
	}
	features, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(features) != 0 {
		t.Errorf("expected no features, got %d", len(features))
	}
	if diff := cmp.Diff(pointSchema, reader.Schema()); diff != "" {
		t.Errorf("schema mismatch (-want +got):\n%s", diff)
	}
}

func TestReadAll_NoIndex(t *testing.T) {
	data := writePoints(t, 3, &Options{IncludeIndex: false})

	reader, err := NewReaderFromData(data)
	if err != nil {
		t.Fatalf("NewReaderFromData failed: %v", err)
	}
	if _, err := reader.ReadAll(); !errors.Is(err, ErrNoIndex) {
		t.Errorf("expected ErrNoIndex, got %v", err)
	}
}
