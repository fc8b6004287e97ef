package shapefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb/geojson"
	vector "github.com/tingold/orb-vector"
)

// Layer is the decoded content of a shapefile dataset.
type Layer struct {
	Schema   *vector.Schema
	Features []*geojson.Feature
	WKT      string // from the .prj sibling, if any
	Encoding string // lower-cased encoding label used for attributes
}

// Read decodes the shapefile at path and its siblings. The path may be
// virtual. A non-empty encoding overrides the .cpg sibling.
func Read(path, encodingName string) (*Layer, error) {
	shpData, err := vector.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(shpData) < 100 || !bytes.HasPrefix(shpData, magic) {
		return nil, fmt.Errorf("%w: %s: bad file header", ErrInvalidData, path)
	}
	dbfData, err := vector.ReadFile(vector.SiblingPath(path, extDBF))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: missing attribute table: %w", ErrInvalidData, path, err)
	}

	if encodingName == "" {
		if cpg, err := vector.ReadFile(vector.SiblingPath(path, extCPG)); err == nil {
			encodingName = string(cpg)
		}
	}
	enc, label, err := lookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	dec := enc.NewDecoder()

	var wkt string
	if prj, err := vector.ReadFile(vector.SiblingPath(path, extPRJ)); err == nil {
		wkt = strings.TrimSpace(string(prj))
	}

	layerType := shp.ShapeType(binary.LittleEndian.Uint32(shpData[32:36]))
	r := shp.SequentialReaderFromExt(io.NopCloser(bytes.NewReader(shpData)), io.NopCloser(bytes.NewReader(dbfData)))
	defer r.Close()

	var (
		features []*geojson.Feature
		types    []string
	)
	for r.Next() {
		fields := r.Fields()
		if types == nil {
			types = fieldTypes(fields)
		}
		_, s := r.Shape()
		g, err := geometryFromShape(s)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", len(features), err)
		}
		f := geojson.NewFeature(g)
		for i, field := range fields {
			raw := r.Attribute(i)
			if field.Fieldtype == 'C' {
				if raw, err = dec.String(raw); err != nil {
					return nil, fmt.Errorf("%w: feature %d: %w", ErrEncoding, len(features), err)
				}
			}
			v, err := decodeValue(raw, types[i])
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", len(features), err)
			}
			f.Properties[fieldName(field)] = v
		}
		features = append(features, f)
	}
	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidData, path, err)
	}

	fields := r.Fields()
	if types == nil {
		types = fieldTypes(fields)
	}
	schema := &vector.Schema{
		Geometry:   schemaGeometryType(layerType),
		Properties: make([]vector.Property, len(fields)),
	}
	for i, field := range fields {
		schema.Properties[i] = vector.Property{Name: fieldName(field), Type: types[i]}
	}
	return &Layer{Schema: schema, Features: features, WKT: wkt, Encoding: label}, nil
}

func fieldTypes(fields []shp.Field) []string {
	types := make([]string, len(fields))
	for i, f := range fields {
		types[i] = propertyType(f)
	}
	return types
}
