package repository

import (
	"context"
	"time"

	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

type IncidentFilter struct {
	Status *models.IncidentStatus
}

type IncidentRepository interface {
	// CreateIncident inserts inc and sets inc.ID to the generated identity.
	CreateIncident(ctx context.Context, inc *models.Incident) error
	GetIncident(ctx context.Context, id int64) (*models.Incident, error)
	// ListIncidents returns matches ordered by detection time, newest first.
	ListIncidents(ctx context.Context, f IncidentFilter) ([]models.Incident, error)
	UpdateIncident(ctx context.Context, id int64, patch models.IncidentPatch, updatedAt time.Time) (*models.Incident, error)
	DeleteIncident(ctx context.Context, id int64) error
	DeleteAllIncidents(ctx context.Context) (int64, error)
}

// SessionStore persists opaque session blobs for stateful channels.
type SessionStore interface {
	// LoadSession returns nil data and no error when nothing is stored.
	LoadSession(ctx context.Context, channel string) ([]byte, error)
	SaveSession(ctx context.Context, channel string, data []byte) error
	DeleteSession(ctx context.Context, channel string) error
}
