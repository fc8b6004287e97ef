package vector

import (
	"sort"
	"strings"
)

// supportedDrivers maps driver names to the modes this package allows them
// to be opened in. A driver may be listed here and still be unavailable if
// no implementation has been registered.
var supportedDrivers = map[string]string{
	"ESRI Shapefile": "raw",
	"FlatGeobuf":     "raw",
	"GeoJSON":        "raw",
	"GPKG":           "rw",
	"Memory":         "raw",
}

// driverAliases are accepted in write mode in place of the canonical name.
var driverAliases = map[string]string{
	"Shapefile": "ESRI Shapefile",
}

// multiPartAliasDrivers lists drivers that report one geometry type for a
// layer mixing single and multi part geometries, and accept either on write.
// Add a driver here only after observing that behavior.
var multiPartAliasDrivers = map[string]bool{
	"ESRI Shapefile": true,
}

// SupportedModes returns the mode letters permitted for driver, or "" if the
// driver is not supported.
func SupportedModes(driver string) string {
	return supportedDrivers[driver]
}

// SupportsMode reports whether driver may be opened in mode.
func SupportsMode(driver string, mode Mode) bool {
	modes, ok := supportedDrivers[driver]
	return ok && strings.Contains(modes, string(mode))
}

// SupportedDrivers returns the names in the support table, sorted.
func SupportedDrivers() []string {
	names := make([]string, 0, len(supportedDrivers))
	for name := range supportedDrivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func canonicalDriver(name string) string {
	if alias, ok := driverAliases[name]; ok {
		return alias
	}
	return name
}
