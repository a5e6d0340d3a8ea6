package geo

import (
	"math"

	"github.com/golang/geo/s2"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Map positions arrive as WGS84 (EPSG:4326) degrees. The canvas keeps a
// Web-Mercator (EPSG:3857) projection next to them for tile rendering.

// Valid reports whether lat/lng are finite and inside the WGS84 range.
func Valid(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return s2.LatLngFromDegrees(lat, lng).IsValid()
}

// Point builds a 2D point with X=longitude, Y=latitude.
func Point(lat, lng float64) geom.Point {
	pt, _ := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: lng, Y: lat},
		Type: geom.DimXY,
	})
	return pt
}

// MaxMercatorLatitude is the latitude limit of the Web Mercator square.
const MaxMercatorLatitude = 85.05112878

// Mercator projects a WGS84 position to EPSG:3857 metres. Latitudes beyond
// the projection's limit are clamped.
func Mercator(lat, lng float64) (x, y float64) {
	lat = max(-MaxMercatorLatitude, min(MaxMercatorLatitude, lat))
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ = f(lng, lat, 0)
	return x, y
}
