package geojson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/paulmach/orb/geojson"
	vector "github.com/tingold/orb-vector"
)

// document is a decoded GeoJSON file.
type document struct {
	name     string
	crs      string
	features []*geojson.Feature
	schema   *vector.Schema
}

type rawObject struct {
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	CRS        *legacyCRS        `json:"crs"`
	Features   []json.RawMessage `json:"features"`
	Properties json.RawMessage   `json:"properties"`
}

// legacyCRS is the named CRS member of GeoJSON 2008 documents.
type legacyCRS struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

var epsgURN = regexp.MustCompile(`(?i)EPSG:+(?:[\d.]*:)?(\d+)$`)

func (c *legacyCRS) epsg() (int, bool) {
	if c == nil {
		return 0, false
	}
	m := epsgURN.FindStringSubmatch(c.Properties.Name)
	if m == nil {
		return 0, false
	}
	code, err := strconv.Atoi(m[1])
	return code, err == nil
}

// decode parses a FeatureCollection, a single Feature or a bare geometry.
func decode(data []byte) (*document, error) {
	var obj rawObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}

	doc := &document{name: obj.Name, crs: vector.FromEPSG(4326)}
	if code, ok := obj.CRS.epsg(); ok {
		doc.crs = vector.FromEPSG(code)
	}

	var raws []json.RawMessage
	switch obj.Type {
	case "FeatureCollection":
		raws = obj.Features
	case "Feature":
		raws = []json.RawMessage{data}
	case "":
		return nil, fmt.Errorf("%w: missing type member", ErrInvalidData)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
		}
		doc.features = []*geojson.Feature{geojson.NewFeature(g.Coordinates)}
		doc.schema = &vector.Schema{Geometry: vector.GeometryType(g.Coordinates), Properties: []vector.Property{}}
		return doc, nil
	}

	inf := newInferrer()
	for i, raw := range raws {
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %d: %w", ErrInvalidData, i, err)
		}
		var member rawObject
		if err := json.Unmarshal(raw, &member); err != nil {
			return nil, fmt.Errorf("%w: feature %d: %w", ErrInvalidData, i, err)
		}
		keys, values, err := decodeProperties(member.Properties)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %d: %w", ErrInvalidData, i, err)
		}
		f.ID = nil
		f.Properties = values
		inf.add(f, keys)
		doc.features = append(doc.features, f)
	}

	doc.schema = inf.schema()
	for _, f := range doc.features {
		for _, p := range doc.schema.Properties {
			if _, ok := f.Properties[p.Name]; !ok {
				f.Properties[p.Name] = nil
			}
		}
	}
	return doc, nil
}

// decodeProperties decodes a properties object preserving key order.
// Integral numbers decode as int64 and other numbers as float64.
func decodeProperties(raw json.RawMessage) ([]string, geojson.Properties, error) {
	props := geojson.Properties{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, props, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, nil, fmt.Errorf("properties must be an object")
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, dup := props[key]; !dup {
			keys = append(keys, key)
		}
		props[key] = normalize(v)
	}
	return keys, props, nil
}

// normalize converts json.Number values to int64 or float64.
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, e := range val {
			val[k] = normalize(e)
		}
		return val
	case []any:
		for i, e := range val {
			val[i] = normalize(e)
		}
		return val
	default:
		return v
	}
}

// inferrer derives a layer schema from decoded features.
type inferrer struct {
	order    []string
	types    map[string]string
	geometry string
	mixed    bool
}

func newInferrer() *inferrer {
	return &inferrer{types: map[string]string{}}
}

func (inf *inferrer) add(f *geojson.Feature, keys []string) {
	if f.Geometry != nil {
		t := vector.GeometryType(f.Geometry)
		switch {
		case inf.geometry == "":
			inf.geometry = t
		case inf.geometry != t:
			inf.mixed = true
		}
	}
	for _, k := range keys {
		prev, seen := inf.types[k]
		if !seen {
			inf.order = append(inf.order, k)
		}
		inf.types[k] = mergeType(prev, valueType(f.Properties[k]))
	}
}

func (inf *inferrer) schema() *vector.Schema {
	s := &vector.Schema{Geometry: inf.geometry, Properties: make([]vector.Property, 0, len(inf.order))}
	if inf.mixed || s.Geometry == "" {
		s.Geometry = "Unknown"
	}
	for _, k := range inf.order {
		t := inf.types[k]
		if t == "" {
			t = "str"
		}
		s.Properties = append(s.Properties, vector.Property{Name: k, Type: t})
	}
	return s
}

func valueType(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	default:
		return "json"
	}
}

// mergeType widens a column type to admit another value type.
func mergeType(a, b string) string {
	switch {
	case a == "" || a == b:
		return b
	case b == "":
		return a
	case (a == "int" && b == "float") || (a == "float" && b == "int"):
		return "float"
	default:
		return "str"
	}
}
