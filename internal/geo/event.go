package geo

import (
	"time"

	geojson "github.com/paulmach/go.geojson"

	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

// EventMessage is the wire form of an incident change, shared by the live
// stream and the Kafka publisher.
type EventMessage struct {
	Type       models.IncidentEventType `json:"type"`
	IncidentID int64                    `json:"incident_id,omitempty"`
	Count      int64                    `json:"count,omitempty"`
	OccurredAt time.Time                `json:"occurred_at"`
	Incident   *geojson.Feature         `json:"incident,omitempty"`
}

func ToEventMessage(ev *models.IncidentEvent) EventMessage {
	msg := EventMessage{
		Type:       ev.Type,
		IncidentID: ev.IncidentID,
		Count:      ev.Count,
		OccurredAt: ev.OccurredAt.UTC(),
	}
	if ev.Incident != nil {
		msg.Incident = ToFeature(ev.Incident)
	}
	return msg
}
