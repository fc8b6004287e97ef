package vector

import "testing"

func TestEPSGCode(t *testing.T) {
	for crs, want := range map[string]int{
		"+init=epsg:4326": 4326,
		"EPSG:3857":       3857,
		"epsg:2193":       2193,
	} {
		got, ok := EPSGCode(crs)
		if !ok || got != want {
			t.Errorf("EPSGCode(%q) = %d, %v, want %d", crs, got, ok, want)
		}
	}
	if _, ok := EPSGCode("+proj=longlat +datum=WGS84"); ok {
		t.Error("expected no code for a proj4 string")
	}
}

func TestEPSGFromWKT(t *testing.T) {
	if code, ok := EPSGFromWKT(WGS84WKT); !ok || code != 4326 {
		t.Errorf("expected 4326, got %d, %v", code, ok)
	}
	// the projected CRS code, not the nested geographic one
	if code, ok := EPSGFromWKT(WebMercatorWKT); !ok || code != 3857 {
		t.Errorf("expected 3857, got %d, %v", code, ok)
	}
	if code, ok := EPSGFromWKT(`GEOGCRS["NZGD2000",ID["EPSG",4167]]`); !ok || code != 4167 {
		t.Errorf("expected 4167 from a WKT2 ID, got %d, %v", code, ok)
	}
	if _, ok := EPSGFromWKT(`LOCAL_CS["arbitrary"]`); ok {
		t.Error("expected no code for a local CRS")
	}
}

func TestResolveCRS(t *testing.T) {
	crs, wkt := ResolveCRS("+init=epsg:4326", "")
	if crs != "+init=epsg:4326" || wkt != WGS84WKT {
		t.Errorf("unexpected resolution %q, %q", crs, wkt)
	}
	crs, wkt = ResolveCRS("", WebMercatorWKT)
	if crs != "+init=epsg:3857" || wkt != WebMercatorWKT {
		t.Errorf("unexpected resolution %q, %q", crs, wkt)
	}
	// unknown codes keep an empty WKT
	if _, wkt := ResolveCRS("+init=epsg:2193", ""); wkt != "" {
		t.Errorf("expected empty WKT, got %q", wkt)
	}
	if crs, wkt := ResolveCRS("", ""); crs != "" || wkt != "" {
		t.Errorf("expected nothing, got %q, %q", crs, wkt)
	}
}

func TestValidCRS(t *testing.T) {
	for crs, want := range map[string]bool{
		"+init=epsg:4326":            true,
		"+proj=longlat +datum=WGS84": true,
		"EPSG:4326":                  true,
		"wgs84":                      false,
	} {
		if got := ValidCRS(crs); got != want {
			t.Errorf("ValidCRS(%q) = %v, want %v", crs, got, want)
		}
	}
}
