package export

import (
	"context"
	"fmt"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/mapmark/mapmark/internal/geo"
)

// GeoJSON exports every record as a Point feature carrying the same
// properties as the JSON document.
func (e *Exporter) GeoJSON(ctx context.Context) (geom.GeoJSONFeatureCollection, error) {
	records, err := e.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("export geojson: %w", err)
	}

	fc := make(geom.GeoJSONFeatureCollection, 0, len(records))
	for _, a := range records {
		m := Project(a)
		fc = append(fc, geom.GeoJSONFeature{
			Geometry:   geo.Point(a.Latitude, a.Longitude).AsGeometry(),
			ID:         m.ID,
			Properties: properties(m),
		})
	}
	return fc, nil
}

func properties(m Marker) map[string]any {
	return map[string]any{
		"name":        m.Name,
		"description": m.Description,
		"person":      m.Person,
		"timestamp":   m.Timestamp,
		"hasImage":    m.HasImage,
		"hasVideo":    m.HasVideo,
	}
}
