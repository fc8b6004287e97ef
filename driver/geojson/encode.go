package geojson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	vector "github.com/tingold/orb-vector"
)

type outFeature struct {
	Type       string            `json:"type"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties orderedProperties `json:"properties"`
}

type outCollection struct {
	Type     string       `json:"type"`
	Name     string       `json:"name,omitempty"`
	CRS      any          `json:"crs,omitempty"`
	Features []outFeature `json:"features"`
}

// orderedProperties marshals as a JSON object whose members keep the
// order of keys.
type orderedProperties struct {
	keys   []string
	values []any
}

func (p orderedProperties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.values[i])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encode renders features as a FeatureCollection. Feature IDs are dropped;
// every schema property is written in schema order, with null for missing
// values. A legacy crs member is written for CRSs other than EPSG:4326.
func encode(name, crs string, schema *vector.Schema, features []*geojson.Feature) ([]byte, error) {
	fc := outCollection{
		Type:     "FeatureCollection",
		Name:     name,
		Features: make([]outFeature, 0, len(features)),
	}
	if code, ok := vector.EPSGCode(crs); ok && code != 4326 {
		fc.CRS = map[string]any{
			"type": "name",
			"properties": map[string]any{
				"name": "urn:ogc:def:crs:EPSG::" + strconv.Itoa(code),
			},
		}
	}

	for _, f := range features {
		out := outFeature{Type: "Feature"}
		if f.Geometry != nil {
			out.Geometry = geojson.NewGeometry(f.Geometry)
		}
		for _, p := range schema.Properties {
			out.Properties.keys = append(out.Properties.keys, p.Name)
			out.Properties.values = append(out.Properties.values, encodeValue(f.Properties[p.Name], p.Type))
		}
		fc.Features = append(fc.Features, out)
	}
	return json.Marshal(fc)
}

// encodeValue prepares v for a column of the given type. Values of float
// columns always carry a decimal point so they decode as floats again.
func encodeValue(v any, propType string) any {
	base, _, _ := vector.FieldType(propType)
	if base != "float" {
		return v
	}
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	default:
		return v
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.Number(s)
}
