package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/go-wildfire-alerts/internal/apperr"
	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

const incidentColumns = `id, latitude, longitude, status,
	fire_type, intensity, size_hectares, confidence, fuel_type, terrain_type, slope_degrees,
	temperature_c, humidity_pct, wind_speed_kmh, wind_direction, wind_type,
	agency, response_level, firefighters, vehicles, aircraft, evacuation_status,
	district, nearest_settlement, distance_to_settlement_km, risk_to_settlements,
	reporter_name, reporter_contact, detected_at, last_update`

const insertIncident = `
	INSERT INTO incidents (
		latitude, longitude, status,
		fire_type, intensity, size_hectares, confidence, fuel_type, terrain_type, slope_degrees,
		temperature_c, humidity_pct, wind_speed_kmh, wind_direction, wind_type,
		agency, response_level, firefighters, vehicles, aircraft, evacuation_status,
		district, nearest_settlement, distance_to_settlement_km, risk_to_settlements,
		reporter_name, reporter_contact, detected_at, last_update
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *DB) CreateIncident(ctx context.Context, inc *models.Incident) error {
	const op = "repository.CreateIncident"

	err := s.db.QueryRowContext(ctx, s.rebind(insertIncident),
		inc.Latitude, inc.Longitude, string(inc.Status),
		inc.FireType, inc.Intensity, inc.SizeHectares, inc.Confidence, inc.FuelType, inc.TerrainType, inc.SlopeDegrees,
		inc.TemperatureC, inc.HumidityPct, inc.WindSpeedKmh, inc.WindDirection, inc.WindType,
		inc.Agency, inc.ResponseLevel, inc.Firefighters, inc.Vehicles, inc.Aircraft, inc.EvacuationStatus,
		inc.District, inc.NearestSettlement, inc.DistanceToSettlementKm, string(inc.RiskToSettlements),
		nullString(inc.ReporterName), nullString(inc.ReporterContact), inc.DetectedAt, inc.LastUpdate,
	).Scan(&inc.ID)
	return wrapError(ctx, op, err)
}

func (s *DB) GetIncident(ctx context.Context, id int64) (*models.Incident, error) {
	const op = "repository.GetIncident"

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`), id)
	inc, err := scanIncident(row)
	if err != nil {
		return nil, wrapError(ctx, op, err)
	}
	return inc, nil
}

func (s *DB) ListIncidents(ctx context.Context, f IncidentFilter) ([]models.Incident, error) {
	const op = "repository.ListIncidents"

	query := `SELECT ` + incidentColumns + ` FROM incidents`
	var args []any
	if f.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*f.Status))
	}
	query += ` ORDER BY detected_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, wrapError(ctx, op, err)
	}
	defer rows.Close()

	incidents := make([]models.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, wrapError(ctx, op, err)
		}
		incidents = append(incidents, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(ctx, op, err)
	}
	return incidents, nil
}

func (s *DB) UpdateIncident(ctx context.Context, id int64, patch models.IncidentPatch, updatedAt time.Time) (*models.Incident, error) {
	const op = "repository.UpdateIncident"

	cols, args := patchAssignments(patch)
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s: %w", op, &apperr.ValidationError{Message: "no valid fields to update"})
	}
	cols = append(cols, "last_update")
	args = append(args, updatedAt)

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	args = append(args, id)
	query := `UPDATE incidents SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapError(ctx, op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, wrapError(ctx, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, wrapError(ctx, op, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}

	row := tx.QueryRowContext(ctx, s.rebind(`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`), id)
	inc, err := scanIncident(row)
	if err != nil {
		return nil, wrapError(ctx, op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapError(ctx, op, err)
	}
	return inc, nil
}

func (s *DB) DeleteIncident(ctx context.Context, id int64) error {
	const op = "repository.DeleteIncident"

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM incidents WHERE id = ?`), id)
	if err != nil {
		return wrapError(ctx, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapError(ctx, op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return nil
}

func (s *DB) DeleteAllIncidents(ctx context.Context) (int64, error) {
	const op = "repository.DeleteAllIncidents"

	res, err := s.db.ExecContext(ctx, `DELETE FROM incidents`)
	if err != nil {
		return 0, wrapError(ctx, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapError(ctx, op, err)
	}
	return n, nil
}

// patchAssignments maps each set field of the patch to its column. This is
// the only place that decides which columns an update may write.
func patchAssignments(p models.IncidentPatch) ([]string, []any) {
	var (
		cols []string
		args []any
	)
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}

	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.FireType != nil {
		add("fire_type", *p.FireType)
	}
	if p.Intensity != nil {
		add("intensity", *p.Intensity)
	}
	if p.SizeHectares != nil {
		add("size_hectares", *p.SizeHectares)
	}
	if p.Confidence != nil {
		add("confidence", *p.Confidence)
	}
	if p.FuelType != nil {
		add("fuel_type", *p.FuelType)
	}
	if p.TerrainType != nil {
		add("terrain_type", *p.TerrainType)
	}
	if p.SlopeDegrees != nil {
		add("slope_degrees", *p.SlopeDegrees)
	}
	if p.TemperatureC != nil {
		add("temperature_c", *p.TemperatureC)
	}
	if p.HumidityPct != nil {
		add("humidity_pct", *p.HumidityPct)
	}
	if p.WindSpeedKmh != nil {
		add("wind_speed_kmh", *p.WindSpeedKmh)
	}
	if p.WindDirection != nil {
		add("wind_direction", *p.WindDirection)
	}
	if p.WindType != nil {
		add("wind_type", *p.WindType)
	}
	if p.Agency != nil {
		add("agency", *p.Agency)
	}
	if p.ResponseLevel != nil {
		add("response_level", *p.ResponseLevel)
	}
	if p.Firefighters != nil {
		add("firefighters", *p.Firefighters)
	}
	if p.Vehicles != nil {
		add("vehicles", *p.Vehicles)
	}
	if p.Aircraft != nil {
		add("aircraft", *p.Aircraft)
	}
	if p.EvacuationStatus != nil {
		add("evacuation_status", *p.EvacuationStatus)
	}
	if p.District != nil {
		add("district", *p.District)
	}
	if p.NearestSettlement != nil {
		add("nearest_settlement", *p.NearestSettlement)
	}
	if p.DistanceToSettlementKm != nil {
		add("distance_to_settlement_km", *p.DistanceToSettlementKm)
	}
	if p.RiskToSettlements != nil {
		add("risk_to_settlements", string(*p.RiskToSettlements))
	}
	if p.ReporterName.Set {
		add("reporter_name", nullString(p.ReporterName.Ptr()))
	}
	if p.ReporterContact.Set {
		add("reporter_contact", nullString(p.ReporterContact.Ptr()))
	}
	return cols, args
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var (
		inc                     models.Incident
		status, risk            string
		reporterName, reporterC sql.NullString
	)
	err := row.Scan(
		&inc.ID, &inc.Latitude, &inc.Longitude, &status,
		&inc.FireType, &inc.Intensity, &inc.SizeHectares, &inc.Confidence, &inc.FuelType, &inc.TerrainType, &inc.SlopeDegrees,
		&inc.TemperatureC, &inc.HumidityPct, &inc.WindSpeedKmh, &inc.WindDirection, &inc.WindType,
		&inc.Agency, &inc.ResponseLevel, &inc.Firefighters, &inc.Vehicles, &inc.Aircraft, &inc.EvacuationStatus,
		&inc.District, &inc.NearestSettlement, &inc.DistanceToSettlementKm, &risk,
		&reporterName, &reporterC, &inc.DetectedAt, &inc.LastUpdate,
	)
	if err != nil {
		return nil, err
	}
	inc.Status = models.IncidentStatus(status)
	inc.RiskToSettlements = models.SettlementRisk(risk)
	if reporterName.Valid {
		inc.ReporterName = &reporterName.String
	}
	if reporterC.Valid {
		inc.ReporterContact = &reporterC.String
	}
	inc.DetectedAt = inc.DetectedAt.UTC()
	inc.LastUpdate = inc.LastUpdate.UTC()
	return &inc, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
