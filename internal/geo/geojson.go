// Package geo renders incidents as GeoJSON.
package geo

import (
	geojson "github.com/paulmach/go.geojson"

	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

func ToFeatureCollection(incidents []models.Incident) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(incidents))

	for i := range incidents {
		fc.AddFeature(ToFeature(&incidents[i]))
	}
	return fc
}

// ToFeature renders an incident as a GeoJSON point. Coordinates are
// [longitude, latitude], the reverse of storage order.
func ToFeature(inc *models.Incident) *geojson.Feature {
	f := geojson.NewPointFeature([]float64{inc.Longitude, inc.Latitude})
	f.ID = inc.ID
	f.Properties = map[string]any{
		"id":             inc.ID,
		"status":         string(inc.Status),
		"fire_type":      inc.FireType,
		"intensity":      inc.Intensity,
		"size_hectares":  inc.SizeHectares,
		"confidence":     inc.Confidence,
		"fuel_type":      inc.FuelType,
		"terrain_type":   inc.TerrainType,
		"slope_degrees":  inc.SlopeDegrees,
		"temperature_c":  inc.TemperatureC,
		"humidity_pct":   inc.HumidityPct,
		"wind_speed_kmh": inc.WindSpeedKmh,
		"wind_direction": inc.WindDirection,
		"wind_type":      inc.WindType,
		"agency":         inc.Agency,
		"response_level": inc.ResponseLevel,
		"resources_on_site": map[string]any{
			"firefighters": inc.Firefighters,
			"vehicles":     inc.Vehicles,
			"aircraft":     inc.Aircraft,
		},
		"evacuation_status":         inc.EvacuationStatus,
		"district":                  inc.District,
		"nearest_settlement":        inc.NearestSettlement,
		"distance_to_settlement_km": inc.DistanceToSettlementKm,
		"risk_to_settlements":       string(inc.RiskToSettlements),
		"reporter_name":             inc.ReporterName,
		"reporter_contact":          inc.ReporterContact,
		"detected_at":               inc.DetectedAt,
		"last_update":               inc.LastUpdate,
	}
	return f
}
