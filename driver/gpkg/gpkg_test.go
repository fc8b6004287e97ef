package gpkg

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	vector "github.com/tingold/orb-vector"
)

var roadSchema = &vector.Schema{
	Geometry: "LineString",
	Properties: []vector.Property{
		{Name: "name", Type: "str:32"},
		{Name: "lanes", Type: "int"},
		{Name: "speed", Type: "float"},
		{Name: "paved", Type: "bool"},
		{Name: "opened", Type: "date"},
	},
}

func roads() []*geojson.Feature {
	a := geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}, {2, 1}})
	a.Properties = geojson.Properties{"name": "Main", "lanes": int64(2), "speed": 50.5, "paved": true, "opened": "1999-12-31"}
	b := geojson.NewFeature(nil)
	b.Properties = geojson.Properties{"name": "Unbuilt", "lanes": nil, "speed": nil, "paved": false, "opened": nil}
	return []*geojson.Feature{a, b}
}

func TestGeometryRoundTrip(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{1, 2},
		orb.LineString{{0, 0}, {1, 1}},
		orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		orb.MultiPoint{{1, 1}, {2, 2}},
		orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}},
	}
	for _, g := range geoms {
		blob, err := encodeGeometry(g, 4326)
		if err != nil {
			t.Fatalf("encodeGeometry(%T) failed: %v", g, err)
		}
		if string(blob[:2]) != "GP" || blob[3]&flagEnvelopeXY == 0 {
			t.Errorf("%T: unexpected header % x", g, blob[:8])
		}
		got, err := decodeGeometry(blob)
		if err != nil {
			t.Fatalf("decodeGeometry(%T) failed: %v", g, err)
		}
		if !orb.Equal(g, got) {
			t.Errorf("expected %v, got %v", g, got)
		}
	}

	if blob, err := encodeGeometry(nil, 0); err != nil || blob != nil {
		t.Errorf("expected nil blob for nil geometry, got %v, %v", blob, err)
	}
	if _, err := decodeGeometry([]byte("XX\x00\x01\x00\x00\x00\x00")); !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData, got %v", err)
	}
}

func TestTypeMapping(t *testing.T) {
	for decl, want := range map[string]string{
		"INTEGER":  "int",
		"TEXT(32)": "str:32",
		"TEXT":     "str",
		"REAL":     "float",
		"BOOLEAN":  "bool",
		"DATE":     "date",
		"DATETIME": "datetime",
		"BLOB":     "bytes",
	} {
		if got := propertyType(decl); got != want {
			t.Errorf("propertyType(%q) = %q, want %q", decl, got, want)
		}
	}
	if _, err := sqlType("complex"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
	if got, z := sqlGeometryType("3D MultiPolygon"); got != "MULTIPOLYGON" || z != 1 {
		t.Errorf("unexpected geometry type %q z=%d", got, z)
	}
	if got := schemaGeometryType("GEOMETRY", 0); got != "Unknown" {
		t.Errorf("expected Unknown, got %q", got)
	}
}

func TestWriteReadLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roads.gpkg")

	c, err := vector.Open(path, vector.ModeWrite, &vector.Options{Driver: DriverName, Schema: roadSchema, Layer: "roads", CRS: "+init=epsg:3857"})
	if err != nil {
		t.Fatalf("Open(w) failed: %v", err)
	}
	if err := c.WriteRecords(roads()); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	pts := &vector.Schema{Geometry: "Point", Properties: []vector.Property{}}
	c, err = vector.Open(path, vector.ModeWrite, &vector.Options{Driver: DriverName, Schema: pts, Layer: "stops"})
	if err != nil {
		t.Fatalf("Open(w) second layer failed: %v", err)
	}
	if err := c.Write(geojson.NewFeature(orb.Point{3, 4})); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	layers, err := vector.ListLayers(path, nil)
	if err != nil {
		t.Fatalf("ListLayers failed: %v", err)
	}
	if diff := cmp.Diff([]string{"roads", "stops"}, layers); diff != "" {
		t.Errorf("layers mismatch (-want +got):\n%s", diff)
	}

	c, err = vector.Open(path, vector.ModeRead, &vector.Options{Layer: "roads"})
	if err != nil {
		t.Fatalf("Open(r) failed: %v", err)
	}
	defer c.Close()

	s, err := c.Schema()
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	if diff := cmp.Diff(roadSchema, s); diff != "" {
		t.Errorf("schema mismatch (-want +got):\n%s", diff)
	}
	if crs, _ := c.CRS(); crs != "+init=epsg:3857" {
		t.Errorf("expected +init=epsg:3857, got %q", crs)
	}

	want := roads()
	it, err := c.Iter()
	if err != nil {
		t.Fatalf("Iter failed: %v", err)
	}
	defer it.Close()
	i := 0
	for it.Next() {
		got := it.Feature()
		if diff := cmp.Diff(want[i].Properties, got.Properties); diff != "" {
			t.Errorf("feature %d properties mismatch (-want +got):\n%s", i, diff)
		}
		if want[i].Geometry == nil {
			if got.Geometry != nil {
				t.Errorf("feature %d: expected null geometry, got %v", i, got.Geometry)
			}
		} else if !orb.Equal(want[i].Geometry, got.Geometry) {
			t.Errorf("feature %d: expected %v, got %v", i, want[i].Geometry, got.Geometry)
		}
		i++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if i != len(want) {
		t.Errorf("expected %d features, got %d", len(want), i)
	}

	byIndex, err := vector.Open(path, vector.ModeRead, &vector.Options{LayerIndex: 1})
	if err != nil {
		t.Fatalf("Open(r, index 1) failed: %v", err)
	}
	defer byIndex.Close()
	if got := byIndex.Name(); got != "stops" {
		t.Errorf("expected stops, got %q", got)
	}

	if _, err := vector.Open(path, vector.ModeRead, &vector.Options{LayerIndex: 5}); !errors.Is(err, vector.ErrDriver) {
		t.Errorf("expected ErrDriver for a missing layer index, got %v", err)
	}
}

func TestAppendRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.gpkg")
	c, err := vector.Open(path, vector.ModeWrite, &vector.Options{Driver: DriverName, Schema: roadSchema})
	if err != nil {
		t.Fatalf("Open(w) failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	env := vector.DefaultEnv()
	before := env.Active()
	if _, err := vector.Open(path, vector.ModeAppend, nil); !errors.Is(err, vector.ErrDriver) {
		t.Errorf("expected ErrDriver for append, got %v", err)
	}
	if env.Active() != before {
		t.Errorf("expected runtime context to be released, active %d != %d", env.Active(), before)
	}
}

func TestVirtualPath(t *testing.T) {
	path := "/vsimem/gpkg-test/roads.gpkg"
	c, err := vector.Open(path, vector.ModeWrite, &vector.Options{Driver: DriverName, Schema: roadSchema})
	if err != nil {
		t.Fatalf("Open(w) failed: %v", err)
	}
	if err := c.WriteRecords(roads()); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	defer vector.RemoveVirtualFile(path)

	if !(Driver{}).Probe(path) {
		t.Error("expected probe to match")
	}
	c, err = vector.Open(path, vector.ModeRead, nil)
	if err != nil {
		t.Fatalf("Open(r) failed: %v", err)
	}
	defer c.Close()
	if got := c.Name(); got != "roads" {
		t.Errorf("expected layer roads, got %q", got)
	}
	if n, err := c.Len(); err != nil || n != 2 {
		t.Errorf("expected 2 features, got %d (%v)", n, err)
	}
}
