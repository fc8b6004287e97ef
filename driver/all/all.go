// Package all registers every vector driver.
//
//	import _ "github.com/tingold/orb-vector/driver/all"
package all

import (
	_ "github.com/tingold/orb-vector/driver/flatgeobuf"
	_ "github.com/tingold/orb-vector/driver/geojson"
	_ "github.com/tingold/orb-vector/driver/gpkg"
	_ "github.com/tingold/orb-vector/driver/shapefile"
)
