// Package flatgeobuf implements the "FlatGeobuf" vector driver. Datasets are
// read through the file's packed R-tree index and written back in full, with
// an index, when a writing session syncs.
package flatgeobuf

import (
	"errors"
)

// DriverName is the name the driver registers under.
const DriverName = "FlatGeobuf"

// Common errors returned by this package.
var (
	ErrNullGeometry    = errors.New("flatgeobuf: null geometries are not supported")
	ErrUnsupportedType = errors.New("flatgeobuf: unsupported geometry type")
	ErrInvalidData     = errors.New("flatgeobuf: invalid data")
	ErrNoIndex         = errors.New("flatgeobuf: file has no spatial index")
	ErrInvalidColumn   = errors.New("flatgeobuf: invalid column type")
)

// magic is the file signature; the fourth byte is the major version.
var magic = []byte{0x66, 0x67, 0x62, 0x03}

// CRS is the coordinate reference system stored in a file header.
type CRS struct {
	Code        int    // EPSG code, 0 if unknown
	Name        string // CRS name
	Description string // Holds the WKT definition when written by this package
}

// Options configures Write.
type Options struct {
	Name         string // Layer name
	Description  string // Layer description
	IncludeIndex bool   // Include the packed R-tree; required for reading back
	CRS          *CRS   // Coordinate reference system (optional)
}

// DefaultOptions returns default options for writing FlatGeobuf files.
func DefaultOptions() *Options {
	return &Options{
		IncludeIndex: true,
	}
}

// ColumnInfo describes a property column in a FlatGeobuf file.
type ColumnInfo struct {
	Name     string // Column name
	Type     string // Column type ("Bool", "Int", "Long", "Double", "String", "Json", etc.)
	Nullable bool   // Whether the column can contain null values
}

// Header contains metadata about a FlatGeobuf file.
type Header struct {
	Name          string       // Layer name
	Description   string       // Layer description
	GeometryType  string       // Geometry type ("Point", "Polygon", "Unknown", etc.)
	FeaturesCount uint64       // Number of features in the file
	Envelope      [4]float64   // Bounding box [minX, minY, maxX, maxY]
	HasEnvelope   bool         // Whether Envelope was present in the file
	CRS           *CRS         // Coordinate reference system
	HasIndex      bool         // Whether the file has a spatial index
	Columns       []ColumnInfo // Property column schema
}
