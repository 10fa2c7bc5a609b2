// Package incident holds the incident store: validation, defaults and
// partial-update rules in front of the persistence layer.
package incident

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-wildfire-alerts/internal/apperr"
	"github.com/mr1hm/go-wildfire-alerts/internal/models"
	"github.com/mr1hm/go-wildfire-alerts/internal/repository"
	"github.com/mr1hm/go-wildfire-alerts/internal/validation"
)

// EventSink receives every committed change. Broadcast must not block.
type EventSink interface {
	Broadcast(ev *models.IncidentEvent)
}

type Store struct {
	repo     repository.IncidentRepository
	clock    clockwork.Clock
	events   EventSink
	validate *validator.Validate
}

// NewStore builds a Store. A nil clock means wall time; events may be nil.
func NewStore(repo repository.IncidentRepository, clock clockwork.Clock, events EventSink) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		repo:     repo,
		clock:    clock,
		events:   events,
		validate: validation.New(),
	}
}

type ListFilter struct {
	Status *models.IncidentStatus
}

func (s *Store) Create(ctx context.Context, req models.CreateIncidentRequest) (*models.Incident, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("incident.Create: %w", validation.ToError(err))
	}

	now := s.now()
	inc := newIncident(req, now)
	if err := s.repo.CreateIncident(ctx, inc); err != nil {
		return nil, err
	}

	slog.Info("incident created", "id", inc.ID, "status", inc.Status, "lat", inc.Latitude, "lng", inc.Longitude)
	s.emit(&models.IncidentEvent{Type: models.IncidentCreated, IncidentID: inc.ID, Incident: inc, OccurredAt: now})
	return inc, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*models.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]models.Incident, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, apperr.Invalid("status", "must be one of [active controlled threat], got %s", *f.Status)
	}
	return s.repo.ListIncidents(ctx, repository.IncidentFilter{Status: f.Status})
}

// Update applies the set fields of patch and refreshes last_update. The
// whole patch is rejected if any field is invalid.
func (s *Store) Update(ctx context.Context, id int64, patch models.IncidentPatch) (*models.Incident, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, fmt.Errorf("incident.Update: %w", validation.ToError(err))
	}
	if patch == (models.IncidentPatch{}) {
		return nil, &apperr.ValidationError{Message: "no valid fields to update"}
	}

	now := s.now()
	inc, err := s.repo.UpdateIncident(ctx, id, patch, now)
	if err != nil {
		return nil, err
	}

	slog.Info("incident updated", "id", id, "status", inc.Status)
	s.emit(&models.IncidentEvent{Type: models.IncidentUpdated, IncidentID: id, Incident: inc, OccurredAt: now})
	return inc, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteIncident(ctx, id); err != nil {
		return err
	}

	slog.Info("incident deleted", "id", id)
	s.emit(&models.IncidentEvent{Type: models.IncidentDeleted, IncidentID: id, OccurredAt: s.now()})
	return nil
}

// DeleteAll removes every incident and reports how many were removed.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteAllIncidents(ctx)
	if err != nil {
		return 0, err
	}

	slog.Info("incidents cleared", "count", n)
	s.emit(&models.IncidentEvent{Type: models.IncidentCleared, Count: n, OccurredAt: s.now()})
	return n, nil
}

// now is truncated to microseconds so values survive a Postgres round trip unchanged.
func (s *Store) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func (s *Store) emit(ev *models.IncidentEvent) {
	if s.events != nil {
		s.events.Broadcast(ev)
	}
}

func newIncident(req models.CreateIncidentRequest, now time.Time) *models.Incident {
	return &models.Incident{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Status:    orDefault(req.Status, models.IncidentStatusActive),

		FireType:      orDefault(req.FireType, models.DefaultFireType),
		Intensity:     orDefault(req.Intensity, models.DefaultIntensity),
		SizeHectares:  orDefault(req.SizeHectares, 0),
		Confidence:    orDefault(req.Confidence, models.DefaultConfidence),
		FuelType:      orDefault(req.FuelType, models.DefaultUnknown),
		TerrainType:   orDefault(req.TerrainType, models.DefaultUnknown),
		SlopeDegrees:  orDefault(req.SlopeDegrees, 0),
		TemperatureC:  orDefault(req.TemperatureC, 0),
		HumidityPct:   orDefault(req.HumidityPct, 0),
		WindSpeedKmh:  orDefault(req.WindSpeedKmh, 0),
		WindDirection: orDefault(req.WindDirection, models.DefaultUnknown),
		WindType:      orDefault(req.WindType, models.DefaultUnknown),

		Agency:           orDefault(req.Agency, models.DefaultAgency),
		ResponseLevel:    orDefault(req.ResponseLevel, models.DefaultResponseLevel),
		Firefighters:     orDefault(req.Firefighters, 0),
		Vehicles:         orDefault(req.Vehicles, 0),
		Aircraft:         orDefault(req.Aircraft, 0),
		EvacuationStatus: orDefault(req.EvacuationStatus, models.DefaultEvacuationStatus),

		District:               orDefault(req.District, ""),
		NearestSettlement:      orDefault(req.NearestSettlement, ""),
		DistanceToSettlementKm: orDefault(req.DistanceToSettlementKm, 0),
		RiskToSettlements:      orDefault(req.RiskToSettlements, models.SettlementRiskLow),

		ReporterName:    req.ReporterName,
		ReporterContact: req.ReporterContact,

		DetectedAt: now,
		LastUpdate: now,
	}
}

func orDefault[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}
