// Package shapefile implements the "ESRI Shapefile" vector driver on top of
// github.com/jonas-p/go-shp.
//
// A dataset is a .shp file plus its .shx, .dbf, .prj and .cpg siblings.
// Attribute strings are decoded with the charset named by the .cpg file, or
// ISO-8859-1 when there is none. Lines and polygons are stored as multi part
// shapes: single part shapes are read back as LineString and Polygon, several
// parts as MultiLineString and MultiPolygon, and the layer reports the single
// part type for both.
package shapefile

import (
	"errors"
)

// DriverName is the name the driver registers under.
const DriverName = "ESRI Shapefile"

// DefaultEncoding is the attribute encoding assumed without a .cpg file.
const DefaultEncoding = "iso-8859-1"

// Errors returned by the driver.
var (
	ErrInvalidData     = errors.New("shapefile: invalid data")
	ErrUnsupportedType = errors.New("shapefile: unsupported type")
	ErrEncoding        = errors.New("shapefile: unknown encoding")
	ErrNullGeometry    = errors.New("shapefile: null geometry not supported")
)

// magic is the big-endian file code at the start of .shp and .shx files.
var magic = []byte{0x00, 0x00, 0x27, 0x0a}

// Sibling file extensions.
const (
	extSHP = ".shp"
	extSHX = ".shx"
	extDBF = ".dbf"
	extPRJ = ".prj"
	extCPG = ".cpg"
)

// Default field widths used when a schema type carries none.
const (
	defaultStrWidth   = 80
	defaultIntWidth   = 18
	defaultFloatWidth = 24
	defaultFloatPrec  = 15
	maxFieldName      = 10
)
