package shapefile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb/geojson"
	vector "github.com/tingold/orb-vector"
)

// Write stores features as a shapefile at path, replacing the .shp, .shx,
// .dbf, .cpg and .prj siblings. The files are built in a scratch directory
// under tempDir and then copied into place, so path may be a /vsimem path.
func Write(path, tempDir string, schema *vector.Schema, features []*geojson.Feature, encodingName, wkt string) error {
	if schema == nil {
		return fmt.Errorf("%w: no schema", vector.ErrSchema)
	}
	t, err := shapeType(schema.Geometry)
	if err != nil {
		return err
	}
	enc, label, err := lookupEncoding(encodingName)
	if err != nil {
		return err
	}
	fields := make([]shp.Field, len(schema.Properties))
	for i, p := range schema.Properties {
		if fields[i], err = dbfField(p); err != nil {
			return err
		}
	}

	dir, err := os.MkdirTemp(tempDir, "shapefile-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	tmp := filepath.Join(dir, "layer"+extSHP)
	w, err := shp.Create(tmp, t)
	if err != nil {
		return err
	}
	if err := w.SetFields(fields); err != nil {
		w.Close()
		return err
	}

	encoder := enc.NewEncoder()
	for row, f := range features {
		s, err := shapeFromGeometry(f.Geometry, t)
		if err != nil {
			w.Close()
			return fmt.Errorf("feature %d: %w", row, err)
		}
		w.Write(s)

		for i, p := range schema.Properties {
			v, err := encodeValue(f.Properties[p.Name], p.Type)
			if err != nil {
				w.Close()
				return fmt.Errorf("feature %d: %w", row, err)
			}
			if str, ok := v.(string); ok && str != "" {
				if v, err = encoder.String(str); err != nil {
					w.Close()
					return fmt.Errorf("%w: feature %d: %w", ErrEncoding, row, err)
				}
			}
			if err := w.WriteAttribute(row, i, v); err != nil {
				w.Close()
				return fmt.Errorf("feature %d: %w", row, err)
			}
		}
	}
	w.Close()

	for _, ext := range []string{extSHP, extSHX, extDBF} {
		data, err := os.ReadFile(filepath.Join(dir, "layer"+ext))
		if err != nil {
			return err
		}
		if err := vector.WriteFile(vector.SiblingPath(path, ext), data); err != nil {
			return err
		}
	}
	if err := vector.WriteFile(vector.SiblingPath(path, extCPG), []byte(strings.ToUpper(label))); err != nil {
		return err
	}
	if wkt != "" {
		if err := vector.WriteFile(vector.SiblingPath(path, extPRJ), []byte(wkt)); err != nil {
			return err
		}
	}
	return nil
}
