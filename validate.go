package vector

import (
	"strings"

	"github.com/paulmach/orb/geojson"
)

// ValidateRecord compares rec to the collection's schema. Only the set of
// property keys is compared, not the types of the values.
func (c *Collection) ValidateRecord(rec *geojson.Feature) bool {
	if rec == nil {
		return false
	}
	s, err := c.Schema()
	if err != nil {
		return false
	}
	return samePropertyKeys(rec, s) && c.ValidateRecordGeometry(rec)
}

// ValidateRecordGeometry compares the geometry type of rec to the
// collection's schema. A record without geometry is accepted.
//
// Shapefiles mix single and multi part lines and polygons under one reported
// layer type, so for that driver a leading "Multi" is ignored on both sides.
func (c *Collection) ValidateRecordGeometry(rec *geojson.Feature) bool {
	if rec == nil {
		return false
	}
	if rec.Geometry == nil {
		return true
	}
	s, err := c.Schema()
	if err != nil {
		return false
	}
	return geometryCompatible(c.Driver(), s.Geometry, GeometryType(rec.Geometry))
}

func geometryCompatible(driver, schemaType, recType string) bool {
	schemaType = strings.TrimPrefix(schemaType, "3D ")
	if multiPartAliasDrivers[driver] && !strings.Contains(recType, "Point") {
		return strings.TrimPrefix(recType, "Multi") == strings.TrimPrefix(schemaType, "Multi")
	}
	return recType == schemaType
}

func samePropertyKeys(rec *geojson.Feature, s *Schema) bool {
	if len(rec.Properties) != len(s.Properties) {
		return false
	}
	for _, p := range s.Properties {
		if _, ok := rec.Properties[p.Name]; !ok {
			return false
		}
	}
	return true
}
