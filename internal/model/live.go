package model

import "time"

// LocationUpdate is pushed by the live channel (locationUpdated)
type LocationUpdate struct {
	ChildID   ChildRef `json:"childId"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Battery   float64  `json:"battery"`
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
}

// StatusChange is pushed when a child goes online or offline (childStatusChanged)
type StatusChange struct {
	ChildID   ChildRef `json:"childId"`
	Online    bool     `json:"online"`
	Timestamp string   `json:"timestamp"`
}

// PanicAlert is pushed when a child triggers an emergency signal
type PanicAlert struct {
	ChildID   ChildRef `json:"childId"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Timestamp string   `json:"timestamp"`
}

// LiveChild is the last known live state of a child
type LiveChild struct {
	ChildID     ChildRef  `json:"childId"`
	Name        string    `json:"name,omitempty"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	HasLocation bool      `json:"hasLocation"`
	Battery     *float64  `json:"battery,omitempty"`
	Status      string    `json:"status"`
	Online      bool      `json:"online"`
	Timestamp   string    `json:"timestamp,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Zone event types
const (
	ZoneEnter = "enter"
	ZoneExit  = "exit"
)

// ZoneEvent is raised when a child crosses a safe zone boundary
type ZoneEvent struct {
	ChildID   ChildRef `json:"childId"`
	ZoneID    int64    `json:"zoneId"`
	ZoneName  string   `json:"zoneName"`
	Type      string   `json:"type"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Timestamp string   `json:"timestamp"`
}
