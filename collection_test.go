package vector

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var placeSchema = &Schema{
	Geometry: "Point",
	Properties: []Property{
		{Name: "name", Type: "str"},
		{Name: "rank", Type: "int"},
	},
}

func place(name string, rank int, x, y float64) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{x, y})
	f.Properties = geojson.Properties{"name": name, "rank": rank}
	return f
}

func newTestEnv(t *testing.T) *Env {
	t.Helper()
	env, err := NewEnv(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEnv failed: %v", err)
	}
	return env
}

func writeMemory(t *testing.T, env *Env, path string, recs ...*geojson.Feature) {
	t.Helper()
	c, err := Open(path, ModeWrite, &Options{Driver: MemoryDriver, Schema: placeSchema, CRS: "+init=epsg:4326", Layer: "places", Env: env})
	if err != nil {
		t.Fatalf("Open(w) failed: %v", err)
	}
	if env.Active() != 1 {
		t.Errorf("expected one active entry while open, got %d", env.Active())
	}
	if err := c.WriteRecords(recs); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}
	if n, _ := c.Len(); n != len(recs) {
		t.Errorf("expected Len %d after write, got %d", len(recs), n)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	t.Cleanup(func() { DropMemoryDataset(path) })
}

func TestMemoryLifecycle(t *testing.T) {
	env := newTestEnv(t)
	path := "memory:lifecycle"
	writeMemory(t, env, path, place("Ashby", 1, 0, 0), place("Brill", 2, 3, 4))
	if env.Active() != 0 {
		t.Fatalf("expected the context to be released, active %d", env.Active())
	}

	c, err := Open(path, ModeAppend, &Options{Env: env})
	if err != nil {
		t.Fatalf("Open(a) failed: %v", err)
	}
	if err := c.Write(place("Cowley", 3, -1, 10)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := c.Iter(); !errors.Is(err, ErrNotReadable) {
		t.Errorf("expected ErrNotReadable in append mode, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	c, err = Open(path, ModeRead, &Options{Env: env})
	if err != nil {
		t.Fatalf("Open(r) failed: %v", err)
	}
	defer c.Close()

	if c.Driver() != MemoryDriver || c.Name() != "places" || c.Encoding() != "utf-8" {
		t.Errorf("unexpected collection %s, driver %q, encoding %q", c, c.Driver(), c.Encoding())
	}
	meta, err := c.Meta()
	if err != nil {
		t.Fatalf("Meta failed: %v", err)
	}
	want := Meta{Driver: MemoryDriver, Schema: *placeSchema, CRS: "+init=epsg:4326", CRSWKT: WGS84WKT}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Errorf("meta mismatch (-want +got):\n%s", diff)
	}
	if n, err := c.Len(); err != nil || n != 3 {
		t.Errorf("expected 3 features, got %d (%v)", n, err)
	}
	b, err := c.Bounds()
	if err != nil {
		t.Fatalf("Bounds failed: %v", err)
	}
	if want := (orb.Bound{Min: orb.Point{-1, 0}, Max: orb.Point{3, 10}}); b != want {
		t.Errorf("expected bounds %v, got %v", want, b)
	}

	f, err := c.Get(2)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if f.ID != "2" || f.Properties["name"] != "Cowley" {
		t.Errorf("unexpected feature %v %v", f.ID, f.Properties)
	}
	if ok, _ := c.Contains(3); ok {
		t.Error("expected FID 3 to be absent")
	}
	if _, err := c.Get(3); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	it, err := c.Keys(&Query{Slice: Slice{}.By(-1)})
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	var keys []int64
	for it.Next() {
		if it.Feature() != nil {
			t.Error("expected no feature from a keys iterator")
		}
		keys = append(keys, it.Key())
	}
	if diff := cmp.Diff([]int64{2, 1, 0}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	if err := c.Write(place("Dunton", 4, 0, 0)); !errors.Is(err, ErrNotWritable) {
		t.Errorf("expected ErrNotWritable in read mode, got %v", err)
	}
}

func TestClosedCollection(t *testing.T) {
	env := newTestEnv(t)
	path := "memory:closed"
	writeMemory(t, env, path, place("Ashby", 1, 0, 0), place("Brill", 2, 3, 4))

	c, err := Open(path, ModeRead, &Options{Env: env})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if n, _ := c.Len(); n != 2 {
		t.Fatalf("expected 2 features, got %d", n)
	}
	if _, err := c.Bounds(); err != nil {
		t.Fatalf("Bounds failed: %v", err)
	}
	it, err := c.Iter()
	if err != nil {
		t.Fatalf("Iter failed: %v", err)
	}
	if !it.Next() {
		t.Fatal("expected a first feature")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("expected a second Close to be a no-op, got %v", err)
	}
	if !c.Closed() || env.Active() != 0 {
		t.Errorf("expected a closed collection and a released context")
	}

	if it.Next() {
		t.Error("expected iteration to stop after Close")
	}
	if !errors.Is(it.Err(), ErrClosed) {
		t.Errorf("expected ErrClosed from the iterator, got %v", it.Err())
	}
	if _, err := c.Schema(); !errors.Is(err, ErrClosed) {
		t.Errorf("Schema: expected ErrClosed, got %v", err)
	}
	if _, err := c.Iter(); !errors.Is(err, ErrClosed) {
		t.Errorf("Iter: expected ErrClosed, got %v", err)
	}
	if _, err := c.Get(0); !errors.Is(err, ErrClosed) {
		t.Errorf("Get: expected ErrClosed, got %v", err)
	}
	if err := c.Flush(); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush: expected ErrClosed, got %v", err)
	}

	// the last observed values survive Close
	if n, err := c.Len(); err != nil || n != 2 {
		t.Errorf("expected Len 2 after Close, got %d (%v)", n, err)
	}
	if b, err := c.Bounds(); err != nil || b.Max != (orb.Point{3, 4}) {
		t.Errorf("unexpected Bounds after Close: %v (%v)", b, err)
	}
}

func TestOpenArguments(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		path string
		mode Mode
		opts *Options
		want error
	}{
		{"empty path", "", ModeRead, nil, ErrInvalidArgument},
		{"bad mode", "memory:x", Mode("x"), nil, ErrInvalidArgument},
		{"bad vsi", "memory:x", ModeRead, &Options{VSI: "rar"}, ErrInvalidArgument},
		{"negative index", "memory:x", ModeRead, &Options{LayerIndex: -1}, ErrInvalidArgument},
		{"unknown enabled driver", "memory:x", ModeRead, &Options{EnabledDrivers: []string{"KML"}}, ErrDriver},
		{"no dataset", "memory:missing", ModeRead, &Options{EnabledDrivers: []string{MemoryDriver}}, ErrDriver},
		{"no driver", "memory:x", ModeWrite, &Options{Schema: placeSchema}, ErrDriver},
		{"unsupported driver", "memory:x", ModeWrite, &Options{Driver: "KML", Schema: placeSchema}, ErrDriver},
		{"layer index in write", "memory:x", ModeWrite, &Options{Driver: MemoryDriver, Schema: placeSchema, LayerIndex: 1}, ErrInvalidArgument},
		{"geojson layer", "memory:x", ModeWrite, &Options{Driver: "GeoJSON", Schema: placeSchema, Layer: "l"}, ErrInvalidArgument},
		{"no schema", "memory:x", ModeWrite, &Options{Driver: MemoryDriver}, ErrSchema},
		{"no properties", "memory:x", ModeWrite, &Options{Driver: MemoryDriver, Schema: &Schema{Geometry: "Point"}}, ErrSchema},
		{"no geometry", "memory:x", ModeWrite, &Options{Driver: MemoryDriver, Schema: &Schema{Properties: []Property{}}}, ErrSchema},
		{"bad crs", "memory:x", ModeWrite, &Options{Driver: MemoryDriver, Schema: placeSchema, CRS: "wgs84"}, ErrCRS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.opts != nil {
				tt.opts.Env = env
			}
			_, err := Open(tt.path, tt.mode, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if env.Active() != 0 {
				t.Errorf("expected a released context, active %d", env.Active())
			}
		})
	}
}

func TestWriteRecordsSchema(t *testing.T) {
	env := newTestEnv(t)
	c, err := Open("memory:schema", ModeWrite, &Options{Driver: MemoryDriver, Schema: placeSchema, Env: env})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer DropMemoryDataset("memory:schema")
	defer c.Close()

	if c.Name() != "memory:schema" {
		t.Errorf("expected the default layer name, got %q", c.Name())
	}

	extra := place("Ashby", 1, 0, 0)
	extra.Properties["pop"] = 10
	line := geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}})
	line.Properties = geojson.Properties{"name": "x", "rank": 1}
	null := geojson.NewFeature(nil)
	null.Properties = geojson.Properties{"name": "nowhere", "rank": 0}

	if err := c.WriteRecords([]*geojson.Feature{place("ok", 1, 0, 0), extra}); !errors.Is(err, ErrSchema) {
		t.Errorf("expected ErrSchema for extra keys, got %v", err)
	}
	if err := c.Write(line); !errors.Is(err, ErrSchema) {
		t.Errorf("expected ErrSchema for a line, got %v", err)
	}
	if n, _ := c.Len(); n != 0 {
		t.Errorf("expected rejected batches to write nothing, got %d", n)
	}
	if err := c.Write(null); err != nil {
		t.Errorf("expected a null geometry to be accepted, got %v", err)
	}

	if !c.ValidateRecord(place("a", 1, 0, 0)) || c.ValidateRecord(extra) || c.ValidateRecord(line) {
		t.Error("unexpected ValidateRecord result")
	}
	if !c.ValidateRecordGeometry(null) || c.ValidateRecordGeometry(nil) {
		t.Error("unexpected ValidateRecordGeometry result")
	}
}

func TestGeometryCompatible(t *testing.T) {
	tests := []struct {
		driver, schema, rec string
		want                bool
	}{
		{MemoryDriver, "Point", "Point", true},
		{MemoryDriver, "LineString", "MultiLineString", false},
		{"ESRI Shapefile", "LineString", "MultiLineString", true},
		{"ESRI Shapefile", "MultiPolygon", "Polygon", true},
		{"ESRI Shapefile", "Point", "MultiPoint", false},
		{"ESRI Shapefile", "3D Polygon", "Polygon", true},
	}
	for _, tt := range tests {
		if got := geometryCompatible(tt.driver, tt.schema, tt.rec); got != tt.want {
			t.Errorf("geometryCompatible(%q, %q, %q) = %v, want %v", tt.driver, tt.schema, tt.rec, got, tt.want)
		}
	}
}

// rogueDriver opens sessions under a name missing from the support table.
type rogueDriver struct {
	stopped *int
}

func (rogueDriver) Name() string { return "Rogue" }

func (rogueDriver) Probe(path string) bool { return path == "rogue:data" }

func (d rogueDriver) Start(h *Handle) (Session, error) {
	return &rogueSession{MemLayer: NewMemLayer("Rogue", "rogue", placeSchema, "", ""), stopped: d.stopped}, nil
}

type rogueSession struct {
	*MemLayer
	stopped *int
}

func (s *rogueSession) Sync() error { return nil }
func (s *rogueSession) Stop() error {
	*s.stopped++
	return nil
}

func TestUnsupportedSessionDriver(t *testing.T) {
	stopped := 0
	Register(rogueDriver{stopped: &stopped})
	t.Cleanup(func() { unregisterDriver("Rogue") })

	env := newTestEnv(t)
	before := testutil.ToFloat64(sessionOpenFailures.WithLabelValues(string(ModeRead)))

	_, err := Open("rogue:data", ModeRead, &Options{Env: env})
	if !errors.Is(err, ErrDriver) {
		t.Fatalf("expected ErrDriver, got %v", err)
	}
	if stopped != 1 {
		t.Errorf("expected the rejected session to be stopped once, got %d", stopped)
	}
	if env.Active() != 0 {
		t.Errorf("expected a released context, active %d", env.Active())
	}
	if got := testutil.ToFloat64(sessionOpenFailures.WithLabelValues(string(ModeRead))); got != before+1 {
		t.Errorf("expected the failure counter to grow by one, %v -> %v", before, got)
	}
}

func TestDriverSupport(t *testing.T) {
	if !SupportsMode("GPKG", ModeWrite) || SupportsMode("GPKG", ModeAppend) {
		t.Error("unexpected GPKG support")
	}
	if SupportsMode("KML", ModeRead) {
		t.Error("expected KML to be unsupported")
	}
	if canonicalDriver("Shapefile") != "ESRI Shapefile" {
		t.Error("expected the Shapefile alias to resolve")
	}
	want := []string{"ESRI Shapefile", "FlatGeobuf", "GPKG", "GeoJSON", "Memory"}
	if diff := cmp.Diff(want, SupportedDrivers()); diff != "" {
		t.Errorf("drivers mismatch (-want +got):\n%s", diff)
	}
}

// laggyDriver opens Memory sessions whose count forgets synced records.
type laggyDriver struct{}

func (laggyDriver) Name() string { return "Laggy" }

func (laggyDriver) Probe(path string) bool { return path == "laggy:data" }

func (laggyDriver) Start(h *Handle) (Session, error) {
	return &laggySession{MemLayer: NewMemLayer(MemoryDriver, "laggy", placeSchema, "", "")}, nil
}

type laggySession struct {
	*MemLayer
	synced int
}

func (s *laggySession) Len() (int, error) {
	n, _ := s.MemLayer.Len()
	return n - s.synced, nil
}

func (s *laggySession) Sync() error {
	s.synced = len(s.Features())
	s.MarkClean()
	return nil
}

func (s *laggySession) Stop() error { return nil }

func TestFlushKeepsLength(t *testing.T) {
	Register(laggyDriver{})
	t.Cleanup(func() { unregisterDriver("Laggy") })

	c, err := Open("laggy:data", ModeAppend, &Options{Env: newTestEnv(t)})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()

	if err := c.WriteRecords([]*geojson.Feature{place("Ashby", 1, 0, 0), place("Brill", 2, 3, 4)}); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}
	before, err := c.Len()
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if before != 2 {
		t.Fatalf("expected 2 staged records, got %d", before)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if n, _ := c.session.Len(); n != 0 {
		t.Fatalf("expected the session to underreport after sync, got %d", n)
	}
	after, err := c.Len()
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if after < before {
		t.Errorf("expected len to stay at %d after flush, got %d", before, after)
	}
}

func TestFilterBBoxAndMask(t *testing.T) {
	env := newTestEnv(t)
	writeMemory(t, env, "memory:exclusive", place("Ashby", 1, 0, 0))

	c, err := Open("memory:exclusive", ModeRead, &Options{Env: env})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()

	b := orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{1, 1}}
	mask := orb.Polygon{{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}, {-1, -1}}}
	it, err := c.Filter(&Query{BBox: &b, Mask: mask})
	if !errors.Is(err, ErrBBoxAndMask) {
		t.Errorf("expected ErrBBoxAndMask, got %v", err)
	}
	if it != nil {
		t.Errorf("expected no iterator, got %v", it)
	}
}
