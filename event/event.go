// Package event distributes measurement and progress events from running
// scenarios to in-process subscribers and, through Hub, to WebSocket
// dashboard clients.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeMeasurement = "measurement"
	TypeProgress    = "progress"
	TypeError       = "error"
)

// Measurement is one published reading.
type Measurement struct {
	Value     float64 `json:"value"`
	ValueType string  `json:"value_type"`
	ValueUnit string  `json:"value_unit"`
}

// Event is one published scenario event. Owner names the producing device.
type Event struct {
	ID           uuid.UUID     `json:"id"`
	Type         string        `json:"type"`
	Owner        string        `json:"owner"`
	Timestamp    time.Time     `json:"timestamp"`
	Message      string        `json:"message,omitempty"`
	Measurements []Measurement `json:"measurements,omitempty"`
}

// NewMeasurement builds a measurement event owned by owner.
func NewMeasurement(owner string, measurements ...Measurement) Event {
	return Event{
		ID:           uuid.New(),
		Type:         TypeMeasurement,
		Owner:        owner,
		Timestamp:    time.Now().UTC(),
		Measurements: measurements,
	}
}

// NewProgress builds a progress event owned by owner.
func NewProgress(owner, message string) Event {
	return Event{
		ID:        uuid.New(),
		Type:      TypeProgress,
		Owner:     owner,
		Timestamp: time.Now().UTC(),
		Message:   message,
	}
}

// NewError builds an error event owned by owner.
func NewError(owner, message string) Event {
	return Event{
		ID:        uuid.New(),
		Type:      TypeError,
		Owner:     owner,
		Timestamp: time.Now().UTC(),
		Message:   message,
	}
}
