package vector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Property is one attribute column of a schema.
type Property struct {
	Name string
	Type string // "str:80", "int", "float:24.15", "bool", "date", "time", "datetime"
}

// Schema describes the records of a dataset.
//
// Properties follows the order of fields in the data file. A nil Properties
// means the schema lacks a property mapping; an empty non-nil slice means the
// dataset has no attribute columns.
type Schema struct {
	Geometry   string
	Properties []Property
}

// Names returns the property names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Properties))
	for i, p := range s.Properties {
		names[i] = p.Name
	}
	return names
}

// Lookup returns the declared type of the named property.
func (s *Schema) Lookup(name string) (string, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Type, true
		}
	}
	return "", false
}

// Clone returns a deep copy of s.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	c := &Schema{Geometry: s.Geometry}
	if s.Properties != nil {
		c.Properties = append(make([]Property, 0, len(s.Properties)), s.Properties...)
	}
	return c
}

// FieldType splits a property type such as "float:24.15" into its base name,
// width and precision. Missing parts are returned as zero.
func FieldType(t string) (base string, width, precision int) {
	base, rest, ok := strings.Cut(t, ":")
	if !ok {
		return base, 0, 0
	}
	w, p, _ := strings.Cut(rest, ".")
	width, _ = strconv.Atoi(w)
	precision, _ = strconv.Atoi(p)
	return base, width, precision
}

// FormatFieldType is the inverse of FieldType.
func FormatFieldType(base string, width, precision int) string {
	switch {
	case width > 0 && precision > 0:
		return fmt.Sprintf("%s:%d.%d", base, width, precision)
	case width > 0:
		return fmt.Sprintf("%s:%d", base, width)
	default:
		return base
	}
}

// GeometryType returns the GeoJSON type name of g, or "" for nil.
func GeometryType(g orb.Geometry) string {
	if g == nil {
		return ""
	}
	return g.GeoJSONType()
}
