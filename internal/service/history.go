package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"geografica/internal/geo"
	"geografica/internal/model"
)

// RangePreset selects the period of a history query
type RangePreset string

// Range presets
const (
	RangeToday     RangePreset = "today"
	RangeYesterday RangePreset = "yesterday"
	RangeWeek      RangePreset = "week"
	RangeMonth     RangePreset = "month"
	RangeCustom    RangePreset = "custom"
)

// ParseRangePreset validates a preset name; empty means today
func ParseRangePreset(s string) (RangePreset, error) {
	switch p := RangePreset(s); p {
	case "":
		return RangeToday, nil
	case RangeToday, RangeYesterday, RangeWeek, RangeMonth, RangeCustom:
		return p, nil
	default:
		return "", fmt.Errorf("unknown range: %s", s)
	}
}

// RangeFor computes the bounds of a preset relative to now, using the
// local midnight of now's location for day boundaries.
func RangeFor(preset RangePreset, now time.Time, custom model.HistoryFilter) (model.HistoryFilter, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch preset {
	case RangeToday:
		return model.HistoryFilter{Start: midnight, End: midnight.AddDate(0, 0, 1)}, nil
	case RangeYesterday:
		return model.HistoryFilter{Start: midnight.AddDate(0, 0, -1), End: midnight}, nil
	case RangeWeek:
		return model.HistoryFilter{Start: now.AddDate(0, 0, -7), End: now}, nil
	case RangeMonth:
		return model.HistoryFilter{Start: now.AddDate(0, -1, 0), End: now}, nil
	case RangeCustom:
		if !custom.Start.IsZero() && !custom.End.IsZero() && custom.End.Before(custom.Start) {
			return model.HistoryFilter{}, fmt.Errorf("range end is before its start")
		}
		return custom, nil
	default:
		return model.HistoryFilter{}, fmt.Errorf("unknown range: %s", preset)
	}
}

// CalculateStats aggregates location records. An empty input yields zero
// counts with a range collapsed on now.
func CalculateStats(records []model.LocationRecord, now time.Time) model.HistoryStats {
	if len(records) == 0 {
		return model.HistoryStats{DateRange: model.DateRange{Start: now, End: now}}
	}

	stats := model.HistoryStats{TotalRecords: len(records)}
	for _, r := range records {
		if r.Offline {
			stats.OfflineRecords++
		} else {
			stats.OnlineRecords++
		}
	}

	sorted := make([]model.LocationRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CapturedAt.Before(sorted[j].CapturedAt)
	})

	stats.DateRange = model.DateRange{
		Start: sorted[0].CapturedAt,
		End:   sorted[len(sorted)-1].CapturedAt,
	}

	points := make([]geo.Point, len(sorted))
	for i, r := range sorted {
		points[i] = geo.Point{Lat: r.Latitude, Lon: r.Longitude}
	}
	stats.Distance = int64(math.Round(geo.PathLength(points)))

	return stats
}

// HistoryLister fetches filtered location records
type HistoryLister interface {
	List(ctx context.Context, childID int64, filter model.HistoryFilter) ([]model.LocationRecord, error)
}

// HistoryResult is a history query with its aggregate
type HistoryResult struct {
	Range   model.HistoryFilter    `json:"range"`
	Records []model.LocationRecord `json:"records"`
	Stats   model.HistoryStats     `json:"stats"`
}

// HistoryService answers range queries over a child's location history
type HistoryService struct {
	lister HistoryLister
	logger *zap.Logger
	now    func() time.Time
}

// NewHistoryService creates a history service
func NewHistoryService(lister HistoryLister, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{lister: lister, logger: logger, now: time.Now}
}

// Fetch resolves the preset, lists the records and aggregates them
func (s *HistoryService) Fetch(ctx context.Context, childID int64, preset RangePreset, custom model.HistoryFilter) (*HistoryResult, error) {
	now := s.now()
	filter, err := RangeFor(preset, now, custom)
	if err != nil {
		return nil, err
	}

	records, err := s.lister.List(ctx, childID, filter)
	if err != nil {
		return nil, err
	}

	result := &HistoryResult{
		Range:   filter,
		Records: records,
		Stats:   CalculateStats(records, now),
	}
	s.logger.Debug("History fetched",
		zap.Int64("child_id", childID),
		zap.String("range", string(preset)),
		zap.Int("records", len(records)),
		zap.Int64("distance_m", result.Stats.Distance),
	)
	return result, nil
}

// Today returns the records captured since local midnight
func (s *HistoryService) Today(ctx context.Context, childID int64) (*HistoryResult, error) {
	return s.Fetch(ctx, childID, RangeToday, model.HistoryFilter{})
}

// Yesterday returns the records of the previous local day
func (s *HistoryService) Yesterday(ctx context.Context, childID int64) (*HistoryResult, error) {
	return s.Fetch(ctx, childID, RangeYesterday, model.HistoryFilter{})
}

// Week returns the records of the last seven days
func (s *HistoryService) Week(ctx context.Context, childID int64) (*HistoryResult, error) {
	return s.Fetch(ctx, childID, RangeWeek, model.HistoryFilter{})
}

// Month returns the records of the last month
func (s *HistoryService) Month(ctx context.Context, childID int64) (*HistoryResult, error) {
	return s.Fetch(ctx, childID, RangeMonth, model.HistoryFilter{})
}
