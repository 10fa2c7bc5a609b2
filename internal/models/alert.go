package models

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// LatLng is a coordinate pair as sent by clients: [latitude, longitude].
type LatLng [2]float64

func (p LatLng) Lat() float64 { return p[0] }
func (p LatLng) Lng() float64 { return p[1] }

var latLngType = reflect.TypeOf(LatLng{})

// UnmarshalJSON accepts exactly two numbers. encoding/json would otherwise
// zero-fill a short array and drop the tail of a long one.
func (p *LatLng) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return &json.UnmarshalTypeError{Value: "non-numeric pair", Type: latLngType}
	}
	if len(raw) != 2 {
		return &json.UnmarshalTypeError{Value: fmt.Sprintf("array of %d numbers", len(raw)), Type: latLngType}
	}
	p[0], p[1] = raw[0], raw[1]
	return nil
}

// IsLatLngType reports whether t is the coordinate pair type, so callers can
// phrase decode errors for it.
func IsLatLngType(t reflect.Type) bool { return t == latLngType }

// Destination selects a recipient on channels that support more than one.
type Destination struct {
	Contact     string `json:"contact,omitempty"`
	ChannelID   string `json:"channel_id,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
}

func (d Destination) IsZero() bool {
	return d == Destination{}
}

type Attachment struct {
	Filename string `json:"filename" validate:"required,max=255"`
	MimeType string `json:"mime_type" validate:"required"`
	Data     []byte `json:"data" validate:"required"` // base64 in JSON
}

// AlertRequest is an evacuation alert to relay. It is never persisted.
type AlertRequest struct {
	Message          string      `json:"message" validate:"required"`
	EvacuationPoints []LatLng    `json:"evacuation_points" validate:"dive,latlng"`
	Location         *LatLng     `json:"location,omitempty" validate:"omitempty,latlng"`
	Destination      Destination `json:"destination"`
	Attachment       *Attachment `json:"attachment,omitempty" validate:"omitempty"`
}
