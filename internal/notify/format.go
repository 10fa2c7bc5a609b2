package notify

import (
	"fmt"
	"strings"

	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

const mapsURL = "https://www.google.com/maps?q=%.6f,%.6f"

// Format renders the alert text: the caller's message, then the fire
// location if one was given, then the numbered evacuation points in input
// order. Coordinates are always printed with six decimals.
func Format(req models.AlertRequest) string {
	var b strings.Builder
	b.WriteString(req.Message)

	if req.Location != nil {
		p := *req.Location
		b.WriteString("\n\nFire location:\n")
		fmt.Fprintf(&b, "%.6f, %.6f\n", p.Lat(), p.Lng())
		fmt.Fprintf(&b, mapsURL, p.Lat(), p.Lng())
	}

	if len(req.EvacuationPoints) > 0 {
		b.WriteString("\n\nEvacuation points:")
		for i, p := range req.EvacuationPoints {
			fmt.Fprintf(&b, "\n%d. %.6f, %.6f\n   ", i+1, p.Lat(), p.Lng())
			fmt.Fprintf(&b, mapsURL, p.Lat(), p.Lng())
		}
	}

	return b.String()
}

// MapLink returns the map URL used for a single coordinate pair.
func MapLink(p models.LatLng) string {
	return fmt.Sprintf(mapsURL, p.Lat(), p.Lng())
}
