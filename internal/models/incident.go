package models

import "time"

type IncidentStatus string

const (
	IncidentStatusActive     IncidentStatus = "active"
	IncidentStatusControlled IncidentStatus = "controlled"
	IncidentStatusThreat     IncidentStatus = "threat"
)

func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentStatusActive, IncidentStatusControlled, IncidentStatusThreat:
		return true
	}
	return false
}

type SettlementRisk string

const (
	SettlementRiskLow    SettlementRisk = "low"
	SettlementRiskMedium SettlementRisk = "medium"
	SettlementRiskHigh   SettlementRisk = "high"
)

func (r SettlementRisk) Valid() bool {
	switch r {
	case SettlementRiskLow, SettlementRiskMedium, SettlementRiskHigh:
		return true
	}
	return false
}

// Incident is one tracked fire. Latitude, Longitude and DetectedAt never
// change after creation.
type Incident struct {
	ID        int64
	Latitude  float64
	Longitude float64
	Status    IncidentStatus

	// Fire and environment
	FireType      string
	Intensity     string
	SizeHectares  float64
	Confidence    int // 0-100
	FuelType      string
	TerrainType   string
	SlopeDegrees  float64
	TemperatureC  float64
	HumidityPct   float64
	WindSpeedKmh  float64
	WindDirection string
	WindType      string

	// Response
	Agency           string
	ResponseLevel    string
	Firefighters     int
	Vehicles         int
	Aircraft         int
	EvacuationStatus string

	// Locality
	District               string
	NearestSettlement      string
	DistanceToSettlementKm float64
	RiskToSettlements      SettlementRisk

	ReporterName    *string
	ReporterContact *string

	DetectedAt time.Time
	LastUpdate time.Time
}

// Defaults applied on creation for attributes the caller left out.
const (
	DefaultFireType         = "wildfire"
	DefaultIntensity        = "moderate"
	DefaultConfidence       = 50
	DefaultUnknown          = "unknown"
	DefaultAgency           = "unassigned"
	DefaultResponseLevel    = "initial"
	DefaultEvacuationStatus = "none"
)

func (i *Incident) Coordinates() Coordinates {
	return Coordinates{
		Latitude:  i.Latitude,
		Longitude: i.Longitude,
	}
}

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

type IncidentEventType string

const (
	IncidentCreated IncidentEventType = "created"
	IncidentUpdated IncidentEventType = "updated"
	IncidentDeleted IncidentEventType = "deleted"
	IncidentCleared IncidentEventType = "cleared"
)

// IncidentEvent describes one committed change to the incident table.
// Incident is nil for deletions; Count is set for clears.
type IncidentEvent struct {
	Type       IncidentEventType
	IncidentID int64
	Incident   *Incident
	Count      int64
	OccurredAt time.Time
}
