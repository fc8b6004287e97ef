package flatgeobuf

import (
	"io"

	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb/geojson"
	vector "github.com/tingold/orb-vector"
)

// Write encodes features as a FlatGeobuf file with columns taken from
// schema. Every feature must have a geometry. An empty layer is written
// without an index.
func Write(w io.Writer, features []*geojson.Feature, schema *vector.Schema, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	if schema == nil {
		schema = &vector.Schema{Geometry: "Unknown"}
	}
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			return ErrNullGeometry
		}
	}

	cols, err := schemaColumns(schema)
	if err != nil {
		return err
	}

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetGeometryType(headerGeometryType(schema.Geometry))
	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}
	if len(cols) > 0 {
		header.SetColumns(buildColumns(cols, builder))
	}

	if opts.CRS != nil {
		crs := writer.NewCrs(builder)
		crs.SetOrg("EPSG")
		if opts.CRS.Code > 0 {
			crs.SetCode(int32(opts.CRS.Code))
		}
		if opts.CRS.Name != "" {
			crs.SetName(opts.CRS.Name)
		}
		if opts.CRS.Description != "" {
			crs.SetDescription(opts.CRS.Description)
		}
		header.SetCrs(crs)
	}

	gen := &featureGenerator{features: features, cols: cols}
	fw := writer.NewWriter(header, opts.IncludeIndex && len(features) > 0, gen, nil)
	if _, err := fw.Write(w); err != nil {
		return err
	}
	return gen.err
}

// featureGenerator feeds features to the writer. The first encoding error
// ends generation and is reported by Write.
type featureGenerator struct {
	features []*geojson.Feature
	cols     []column
	index    int
	err      error
}

func (g *featureGenerator) Generate() *writer.Feature {
	if g.err != nil || g.index >= len(g.features) {
		return nil
	}
	f := g.features[g.index]
	g.index++

	builder := flatbuffers.NewBuilder(1024)
	geom, err := geometryToFGB(f.Geometry, builder)
	if err != nil {
		g.err = err
		return nil
	}

	feature := writer.NewFeature(builder)
	feature.SetGeometry(geom)

	props, err := encodeProperties(f.Properties, g.cols)
	if err != nil {
		g.err = err
		return nil
	}
	if len(props) > 0 {
		feature.SetProperties(props)
	}
	return feature
}
