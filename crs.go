package vector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// WGS84WKT is the WKT definition of EPSG:4326.
const WGS84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AXIS["Latitude",NORTH],AXIS["Longitude",EAST],AUTHORITY["EPSG","4326"]]`

// WebMercatorWKT is the WKT definition of EPSG:3857.
const WebMercatorWKT = `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],EXTENSION["PROJ4","+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +wktext +no_defs"],AUTHORITY["EPSG","3857"]]`

var knownWKT = map[int]string{
	4326: WGS84WKT,
	3857: WebMercatorWKT,
}

var (
	initRe      = regexp.MustCompile(`(?i)(?:\+init=)?epsg:(\d+)`)
	authorityRe = regexp.MustCompile(`(?i)(?:AUTHORITY\["EPSG",\s*"(\d+)"\]|ID\["EPSG",\s*(\d+)\])\s*\]\s*$`)
)

// ValidCRS reports whether crs carries recognizable projection parameters.
func ValidCRS(crs string) bool {
	return strings.Contains(crs, "init") || strings.Contains(crs, "proj") ||
		strings.Contains(strings.ToLower(crs), "epsg")
}

// FromEPSG returns the proj-style CRS string for an EPSG code.
func FromEPSG(code int) string {
	return fmt.Sprintf("+init=epsg:%d", code)
}

// EPSGCode extracts an EPSG code from a proj-style CRS string such as
// "+init=epsg:4326" or "EPSG:4326".
func EPSGCode(crs string) (int, bool) {
	m := initRe.FindStringSubmatch(crs)
	if m == nil {
		return 0, false
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return code, true
}

// EPSGFromWKT extracts the top-level EPSG authority code from a WKT string.
func EPSGFromWKT(wkt string) (int, bool) {
	m := authorityRe.FindStringSubmatch(strings.TrimSpace(wkt))
	if m == nil {
		return 0, false
	}
	s := m[1]
	if s == "" {
		s = m[2]
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return code, true
}

// WKTForEPSG returns a WKT definition for the handful of codes known to this
// package. Drivers fall back to an empty WKT for anything else.
func WKTForEPSG(code int) (string, bool) {
	wkt, ok := knownWKT[code]
	return wkt, ok
}

// ResolveCRS fills in whichever of crs or wkt is missing when it can be
// derived from the other.
func ResolveCRS(crs, wkt string) (string, string) {
	if crs == "" && wkt != "" {
		if code, ok := EPSGFromWKT(wkt); ok {
			crs = FromEPSG(code)
		}
	}
	if wkt == "" && crs != "" {
		if code, ok := EPSGCode(crs); ok {
			wkt, _ = WKTForEPSG(code)
		}
	}
	return crs, wkt
}
