package model

import (
	"fmt"
	"time"
)

// LocationRecord is a historical GPS point of a child (registro)
type LocationRecord struct {
	ID int64 `json:"id"`
	// CapturedAt is the capture time on the device
	CapturedAt time.Time `json:"hora"`
	Latitude   float64   `json:"latitud"`
	Longitude  float64   `json:"longitud"`
	ChildID    int64     `json:"hijoId"`
	// Offline is set when the point was captured without connectivity
	Offline bool `json:"fueOffline"`
	// CreatedAt is the insertion time on the server
	CreatedAt time.Time `json:"creadoEn"`
}

// CreateLocationRecordRequest represents a single new record
type CreateLocationRecordRequest struct {
	CapturedAt time.Time `json:"hora"`
	Latitude   float64   `json:"latitud"`
	Longitude  float64   `json:"longitud"`
	Offline    bool      `json:"fueOffline"`
}

// Validate checks the coordinate ranges
func (r *CreateLocationRecordRequest) Validate() error {
	if r.Latitude < -90 || r.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %v", r.Latitude)
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %v", r.Longitude)
	}
	if r.CapturedAt.IsZero() {
		return fmt.Errorf("capture time is required")
	}
	return nil
}

// SyncLocationRecordsRequest is the batch of records captured offline
type SyncLocationRecordsRequest struct {
	Records []CreateLocationRecordRequest `json:"registros"`
}

// HistoryFilter bounds a history query; zero values are omitted
type HistoryFilter struct {
	Start time.Time
	End   time.Time
}

// DateRange is the span covered by a set of records
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// HistoryStats aggregates a set of location records
type HistoryStats struct {
	TotalRecords   int       `json:"totalRecords"`
	OnlineRecords  int       `json:"onlineRecords"`
	OfflineRecords int       `json:"offlineRecords"`
	DateRange      DateRange `json:"dateRange"`
	// Distance is the travelled distance in meters
	Distance int64 `json:"distance"`
}
