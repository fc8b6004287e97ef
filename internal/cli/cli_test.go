package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	vector "github.com/tingold/orb-vector"
)

const towns = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]}, "properties": {"name": "Ashby", "pop": 120}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [5, 5]}, "properties": {"name": "Brill", "pop": 3400}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [20, 20]}, "properties": {"name": "Cowley", "pop": 87}}
  ]
}`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), err
}

func loadTowns(t *testing.T) string {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "towns.gpkg")
	out, err := run(t, towns, "load", "--driver", "GPKG", "--layer", "towns", dest)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if want := "wrote 3 features to " + dest + "\n"; out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
	return dest
}

func TestLoadListInfo(t *testing.T) {
	dest := loadTowns(t)

	out, err := run(t, "", "ls", dest)
	if err != nil {
		t.Fatalf("ls failed: %v", err)
	}
	if out != "towns\n" {
		t.Errorf("expected towns, got %q", out)
	}

	out, err = run(t, "", "info", dest)
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	var info datasetInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("info output is not JSON: %v\n%s", err, out)
	}
	if info.Driver != "GPKG" || info.Layer != "towns" || info.Geometry != "Point" {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.Count == nil || *info.Count != 3 {
		t.Errorf("expected count 3, got %v", info.Count)
	}
	if diff := cmp.Diff([]float64{0, 0, 20, 20}, info.Bounds); diff != "" {
		t.Errorf("bounds mismatch (-want +got):\n%s", diff)
	}
	wantProps := []propertyInfo{{Name: "name", Type: "str"}, {Name: "pop", Type: "int"}}
	if diff := cmp.Diff(wantProps, info.Properties); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}
	if info.CRSWKT != "" {
		t.Errorf("expected no WKT without --wkt, got %q", info.CRSWKT)
	}
}

func dumpNames(t *testing.T, args ...string) []string {
	t.Helper()
	out, err := run(t, "", append([]string{"dump"}, args...)...)
	if err != nil {
		t.Fatalf("dump %v failed: %v", args, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection([]byte(out))
	if err != nil {
		t.Fatalf("dump output is not a FeatureCollection: %v", err)
	}
	names := make([]string, 0, len(fc.Features))
	for _, f := range fc.Features {
		names = append(names, f.Properties.MustString("name"))
	}
	return names
}

func TestDump(t *testing.T) {
	dest := loadTowns(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"all", nil, []string{"Ashby", "Brill", "Cowley"}},
		{"bbox", []string{"--bbox", "-1,-1,10,10"}, []string{"Ashby", "Brill"}},
		{"reversed", []string{"--step", "-1"}, []string{"Cowley", "Brill", "Ashby"}},
		{"tail", []string{"--start", "-2"}, []string{"Brill", "Cowley"}},
		{"head", []string{"--stop", "1"}, []string{"Ashby"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dumpNames(t, append(tt.args, dest)...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("names mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.gpkg")
	if _, err := run(t, towns, "load", dest); !errors.Is(err, vector.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument without --driver, got %v", err)
	}
	if _, err := run(t, "not json", "load", "--driver", "GPKG", dest); err == nil {
		t.Error("expected an error for invalid input")
	}
	if _, err := run(t, "", "dump", dest); err == nil {
		t.Error("expected an error for a missing dataset")
	}
}

func TestLoadBetweenDrivers(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "towns.geojson")
	if _, err := run(t, towns, "load", "--driver", "GeoJSON", src); err != nil {
		t.Fatalf("load GeoJSON failed: %v", err)
	}
	fgb := filepath.Join(dir, "towns.fgb")
	if _, err := run(t, "", "load", "--src", src, "--driver", "FlatGeobuf", fgb); err != nil {
		t.Fatalf("load FlatGeobuf failed: %v", err)
	}
	if _, err := run(t, "", "load", "--src", src, "--append", fgb); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	c, err := vector.Open(fgb, vector.ModeRead, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()
	if n, err := c.Len(); err != nil || n != 6 {
		t.Errorf("expected 6 features, got %d (%v)", n, err)
	}
}

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("-10, 40.5, 10, 60")
	if err != nil {
		t.Fatalf("parseBBox failed: %v", err)
	}
	want := orb.Bound{Min: orb.Point{-10, 40.5}, Max: orb.Point{10, 60}}
	if b != want {
		t.Errorf("expected %v, got %v", want, b)
	}
	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "10,0,0,10"} {
		if _, err := parseBBox(bad); !errors.Is(err, vector.ErrInvalidArgument) {
			t.Errorf("parseBBox(%q): expected ErrInvalidArgument, got %v", bad, err)
		}
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("VECTOR_OPT_SHAPE_ENCODING", "cp1252")
	out, err := run(t, "", "env")
	if err != nil {
		t.Fatalf("env failed: %v", err)
	}
	for _, want := range []string{"GPKG", "rw", "ESRI Shapefile", "raw", "SHAPE_ENCODING=cp1252"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	t.Setenv("VECTOR_ENABLED_DRIVERS", "GeoJSON")
	out, err = run(t, "", "env")
	if err != nil {
		t.Fatalf("env failed: %v", err)
	}
	if !strings.Contains(out, "(disabled)") {
		t.Errorf("expected disabled drivers in output:\n%s", out)
	}

	t.Setenv("VECTOR_ENABLED_DRIVERS", "Bogus")
	if _, err := run(t, "", "env"); !errors.Is(err, vector.ErrDriver) {
		t.Errorf("expected ErrDriver for an unknown driver, got %v", err)
	}
}
