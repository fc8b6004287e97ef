// Package vector provides file-like access to vector geospatial datasets.
// A Collection wraps one open driver session (GeoJSON, FlatGeobuf, ESRI Shapefile,
// GeoPackage, in-memory) and exposes its features as orb geojson.Feature values.
//
// Drivers live in subpackages and register themselves on import:
//
//	import _ "github.com/tingold/orb-vector/driver/all"
package vector

import (
	"errors"
)

// Common errors returned by this package.
var (
	ErrInvalidArgument  = errors.New("vector: invalid argument")
	ErrDriver           = errors.New("vector: driver error")
	ErrSchema           = errors.New("vector: schema error")
	ErrCRS              = errors.New("vector: crs error")
	ErrClosed           = errors.New("vector: I/O operation on closed collection")
	ErrNotReadable      = errors.New("vector: collection not open for reading")
	ErrNotWritable      = errors.New("vector: collection not open for writing")
	ErrBBoxAndMask      = errors.New("vector: mask and bbox can not be set together")
	ErrCountUnsupported = errors.New("vector: layer does not support counting")
	ErrNotFound         = errors.New("vector: feature not found")
	ErrVirtualFile      = errors.New("vector: virtual file error")
)

// Mode is the access mode of a collection.
type Mode string

// Access modes.
const (
	ModeRead   Mode = "r"
	ModeAppend Mode = "a"
	ModeWrite  Mode = "w"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeRead || m == ModeAppend || m == ModeWrite
}

// Writable reports whether m permits writing records.
func (m Mode) Writable() bool {
	return m == ModeAppend || m == ModeWrite
}

// Options configures Open.
type Options struct {
	Driver         string            // Driver name; required in write mode
	Schema         *Schema           // Required in write mode
	CRS            string            // Proj-style CRS, e.g. "+init=epsg:4326"
	CRSWKT         string            // Well-Known Text CRS; takes precedence over CRS
	Encoding       string            // Attribute encoding; defaults to the session's
	Layer          string            // Layer name
	LayerIndex     int               // Layer index, read and append only
	VSI            string            // Virtual filesystem scheme ("zip", "tar", "gzip")
	Archive        string            // Archive path used with VSI
	EnabledDrivers []string          // Restricts driver probing in read and append mode
	LayerOptions   map[string]string // Driver specific creation/open options
	Env            *Env              // Runtime context; DefaultEnv() when nil
}

// DefaultOptions returns default options for opening a collection.
func DefaultOptions() *Options {
	return &Options{}
}

// Meta describes a collection: its driver, schema and CRS.
type Meta struct {
	Driver string
	Schema Schema
	CRS    string
	CRSWKT string
}
