// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventFocuserConnected    EventType = "FOCUSER_CONNECTED"
	EventFocuserDisconnected EventType = "FOCUSER_DISCONNECTED"
	EventFocuserError        EventType = "FOCUSER_ERROR"
	EventPositionChanged     EventType = "POSITION_CHANGED"
	EventPowerChanged        EventType = "POWER_CHANGED"
	EventDiscoveryCompleted  EventType = "DISCOVERY_COMPLETED"
)

// FocuserEvent represents an event in the system
type FocuserEvent struct {
	ID        uuid.UUID              `json:"id"`
	EventType EventType              `json:"event_type"`
	Port      string                 `json:"port,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Severity  string                 `json:"severity"` // INFO, WARNING, ERROR
}

// NewFocuserEvent creates an event stamped with a fresh id and the current time
func NewFocuserEvent(eventType EventType, port, source string, data map[string]interface{}) FocuserEvent {
	severity := "INFO"
	if eventType == EventFocuserError {
		severity = "ERROR"
	}
	return FocuserEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Port:      port,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
		Severity:  severity,
	}
}
