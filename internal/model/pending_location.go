package model

import "time"

// PendingLocation is a location record waiting to be synced in a batch
type PendingLocation struct {
	ID         string    `json:"id" gorm:"type:uuid;primaryKey"`
	ChildID    int64     `json:"child_id" gorm:"not null;index"`
	CapturedAt time.Time `json:"captured_at" gorm:"not null"`
	Latitude   float64   `json:"latitude" gorm:"not null"`
	Longitude  float64   `json:"longitude" gorm:"not null"`
	Attempts   int       `json:"attempts" gorm:"not null;default:0"`
	LastError  string    `json:"last_error"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName overrides the default table name
func (PendingLocation) TableName() string {
	return "pending_locations"
}

// ToRequest converts the row into the sync payload. Every queued record
// was captured without connectivity.
func (p *PendingLocation) ToRequest() CreateLocationRecordRequest {
	return CreateLocationRecordRequest{
		CapturedAt: p.CapturedAt,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Offline:    true,
	}
}
