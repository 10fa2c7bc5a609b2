package models

// CreateIncidentRequest carries the full attribute set for a new incident.
// Only Latitude and Longitude are required; every nil field takes its
// documented default.
type CreateIncidentRequest struct {
	Latitude  *float64        `json:"latitude" validate:"required,lat"`
	Longitude *float64        `json:"longitude" validate:"required,lng"`
	Status    *IncidentStatus `json:"status" validate:"omitempty,oneof=active controlled threat"`

	FireType      *string  `json:"fire_type" validate:"omitempty,max=64"`
	Intensity     *string  `json:"intensity" validate:"omitempty,max=64"`
	SizeHectares  *float64 `json:"size_hectares" validate:"omitempty,min=0"`
	Confidence    *int     `json:"confidence" validate:"omitempty,min=0,max=100"`
	FuelType      *string  `json:"fuel_type" validate:"omitempty,max=64"`
	TerrainType   *string  `json:"terrain_type" validate:"omitempty,max=64"`
	SlopeDegrees  *float64 `json:"slope_degrees" validate:"omitempty,min=0,max=90"`
	TemperatureC  *float64 `json:"temperature_c" validate:"omitempty,min=-90,max=70"`
	HumidityPct   *float64 `json:"humidity_pct" validate:"omitempty,min=0,max=100"`
	WindSpeedKmh  *float64 `json:"wind_speed_kmh" validate:"omitempty,min=0"`
	WindDirection *string  `json:"wind_direction" validate:"omitempty,max=16"`
	WindType      *string  `json:"wind_type" validate:"omitempty,max=64"`

	Agency           *string `json:"agency" validate:"omitempty,max=128"`
	ResponseLevel    *string `json:"response_level" validate:"omitempty,max=64"`
	Firefighters     *int    `json:"firefighters" validate:"omitempty,min=0"`
	Vehicles         *int    `json:"vehicles" validate:"omitempty,min=0"`
	Aircraft         *int    `json:"aircraft" validate:"omitempty,min=0"`
	EvacuationStatus *string `json:"evacuation_status" validate:"omitempty,max=64"`

	District               *string         `json:"district" validate:"omitempty,max=128"`
	NearestSettlement      *string         `json:"nearest_settlement" validate:"omitempty,max=128"`
	DistanceToSettlementKm *float64        `json:"distance_to_settlement_km" validate:"omitempty,min=0"`
	RiskToSettlements      *SettlementRisk `json:"risk_to_settlements" validate:"omitempty,oneof=low medium high"`

	ReporterName    *string `json:"reporter_name" validate:"omitempty,max=128"`
	ReporterContact *string `json:"reporter_contact" validate:"omitempty,max=128"`
}

// IncidentPatch lists every attribute that may change after creation.
// Identity, position and detection time have no slot here, so clients
// can not touch them; unknown JSON keys are dropped on decode.
type IncidentPatch struct {
	Status *IncidentStatus `json:"status" validate:"omitempty,oneof=active controlled threat"`

	FireType      *string  `json:"fire_type" validate:"omitempty,max=64"`
	Intensity     *string  `json:"intensity" validate:"omitempty,max=64"`
	SizeHectares  *float64 `json:"size_hectares" validate:"omitempty,min=0"`
	Confidence    *int     `json:"confidence" validate:"omitempty,min=0,max=100"`
	FuelType      *string  `json:"fuel_type" validate:"omitempty,max=64"`
	TerrainType   *string  `json:"terrain_type" validate:"omitempty,max=64"`
	SlopeDegrees  *float64 `json:"slope_degrees" validate:"omitempty,min=0,max=90"`
	TemperatureC  *float64 `json:"temperature_c" validate:"omitempty,min=-90,max=70"`
	HumidityPct   *float64 `json:"humidity_pct" validate:"omitempty,min=0,max=100"`
	WindSpeedKmh  *float64 `json:"wind_speed_kmh" validate:"omitempty,min=0"`
	WindDirection *string  `json:"wind_direction" validate:"omitempty,max=16"`
	WindType      *string  `json:"wind_type" validate:"omitempty,max=64"`

	Agency           *string `json:"agency" validate:"omitempty,max=128"`
	ResponseLevel    *string `json:"response_level" validate:"omitempty,max=64"`
	Firefighters     *int    `json:"firefighters" validate:"omitempty,min=0"`
	Vehicles         *int    `json:"vehicles" validate:"omitempty,min=0"`
	Aircraft         *int    `json:"aircraft" validate:"omitempty,min=0"`
	EvacuationStatus *string `json:"evacuation_status" validate:"omitempty,max=64"`

	District               *string         `json:"district" validate:"omitempty,max=128"`
	NearestSettlement      *string         `json:"nearest_settlement" validate:"omitempty,max=128"`
	DistanceToSettlementKm *float64        `json:"distance_to_settlement_km" validate:"omitempty,min=0"`
	RiskToSettlements      *SettlementRisk `json:"risk_to_settlements" validate:"omitempty,oneof=low medium high"`

	// Reporter fields are the only nullable columns; an explicit null clears them.
	ReporterName    NullableString `json:"reporter_name" validate:"omitempty,max=128"`
	ReporterContact NullableString `json:"reporter_contact" validate:"omitempty,max=128"`
}
