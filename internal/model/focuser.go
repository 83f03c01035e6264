// internal/model/focuser.go
package model

import (
	"fmt"
	"time"
)

// MaxPosition is the exclusive upper bound of the focuser travel in steps
const MaxPosition = 65000

// Position is an absolute focuser position in motor steps, in [0, MaxPosition)
type Position int

// Valid reports whether the position lies inside the focuser travel
func (p Position) Valid() bool {
	return p >= 0 && p < MaxPosition
}

// PowerChannel indexes one of the four remote power outputs, zero based
type PowerChannel int

const (
	PowerChannel1 PowerChannel = iota
	PowerChannel2
	PowerChannel3
	PowerChannel4
)

// PowerChannelCount is the number of remote power outputs on the controller
const PowerChannelCount = 4

// Valid reports whether the channel names one of the four outputs
func (c PowerChannel) Valid() bool {
	return c >= PowerChannel1 && c <= PowerChannel4
}

// String returns the one based channel label used by the controller documentation
func (c PowerChannel) String() string {
	return fmt.Sprintf("channel %d", int(c)+1)
}

// PowerState holds the on/off state of the four remote power outputs
type PowerState struct {
	Channel1 bool `json:"channel_1"`
	Channel2 bool `json:"channel_2"`
	Channel3 bool `json:"channel_3"`
	Channel4 bool `json:"channel_4"`
}

// Get returns the state of a single channel. Invalid channels read as off.
func (s PowerState) Get(ch PowerChannel) bool {
	switch ch {
	case PowerChannel1:
		return s.Channel1
	case PowerChannel2:
		return s.Channel2
	case PowerChannel3:
		return s.Channel3
	case PowerChannel4:
		return s.Channel4
	default:
		return false
	}
}

// With returns a copy of the state with one channel changed
func (s PowerState) With(ch PowerChannel, on bool) PowerState {
	switch ch {
	case PowerChannel1:
		s.Channel1 = on
	case PowerChannel2:
		s.Channel2 = on
	case PowerChannel3:
		s.Channel3 = on
	case PowerChannel4:
		s.Channel4 = on
	}
	return s
}

// Channels returns the states in channel order
func (s PowerState) Channels() [PowerChannelCount]bool {
	return [PowerChannelCount]bool{s.Channel1, s.Channel2, s.Channel3, s.Channel4}
}

// ConnectionState is the lifecycle state of a focuser connection
type ConnectionState string

const (
	ConnectionStateClosed ConnectionState = "CLOSED"
	ConnectionStateOpen   ConnectionState = "OPEN"
	ConnectionStateReady  ConnectionState = "READY"
)

// FocuserStatus is the last known view of the active focuser
type FocuserStatus struct {
	Port      string          `json:"port,omitempty"`
	State     ConnectionState `json:"state"`
	Version   string          `json:"version,omitempty"`
	Position  *Position       `json:"position,omitempty"`
	Power     *PowerState     `json:"power,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DiscoveredFocuser describes a port that answered the identity probe
type DiscoveredFocuser struct {
	Port         string `json:"port"`
	Version      string `json:"version"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}
