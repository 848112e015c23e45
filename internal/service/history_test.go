package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"geografica/internal/model"
)

func record(at time.Time, lat, lng float64, offline bool) model.LocationRecord {
	return model.LocationRecord{CapturedAt: at, Latitude: lat, Longitude: lng, Offline: offline}
}

func TestCalculateStats_Empty(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	stats := CalculateStats(nil, now)

	assert.Equal(t, 0, stats.TotalRecords)
	assert.Equal(t, int64(0), stats.Distance)
	assert.Equal(t, now, stats.DateRange.Start)
	assert.Equal(t, now, stats.DateRange.End)
}

func TestCalculateStats_SingleRecord(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	stats := CalculateStats([]model.LocationRecord{record(at, 1, 1, true)}, time.Now())

	assert.Equal(t, 1, stats.TotalRecords)
	assert.Equal(t, 0, stats.OnlineRecords)
	assert.Equal(t, 1, stats.OfflineRecords)
	assert.Equal(t, int64(0), stats.Distance)
	assert.Equal(t, at, stats.DateRange.Start)
	assert.Equal(t, at, stats.DateRange.End)
}

func TestCalculateStats_SortsByCaptureTime(t *testing.T) {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	records := []model.LocationRecord{
		record(base.Add(2*time.Hour), 0, 2, false),
		record(base, 0, 0, false),
		record(base.Add(time.Hour), 0, 1, true),
	}

	stats := CalculateStats(records, time.Now())

	assert.Equal(t, 3, stats.TotalRecords)
	assert.Equal(t, 2, stats.OnlineRecords)
	assert.Equal(t, 1, stats.OfflineRecords)
	assert.Equal(t, base, stats.DateRange.Start)
	assert.Equal(t, base.Add(2*time.Hour), stats.DateRange.End)
	// two one-degree hops along the equator
	assert.Equal(t, int64(222390), stats.Distance)

	// input order is untouched
	assert.Equal(t, base.Add(2*time.Hour), records[0].CapturedAt)
}

func TestCalculateStats_UnsortedInputDistance(t *testing.T) {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	// in input order the path would zig-zag 0 -> 2 -> 1
	records := []model.LocationRecord{
		record(base, 0, 0, false),
		record(base.Add(2*time.Hour), 0, 1, false),
		record(base.Add(time.Hour), 0, 2, false),
	}

	stats := CalculateStats(records, time.Now())
	assert.Equal(t, int64(222390), stats.Distance)
}

func TestParseRangePreset(t *testing.T) {
	p, err := ParseRangePreset("")
	require.NoError(t, err)
	assert.Equal(t, RangeToday, p)

	p, err = ParseRangePreset("week")
	require.NoError(t, err)
	assert.Equal(t, RangeWeek, p)

	_, err = ParseRangePreset("decade")
	assert.Error(t, err)
}

func TestRangeFor(t *testing.T) {
	loc := time.FixedZone("BOT", -4*3600)
	now := time.Date(2024, 3, 31, 15, 30, 0, 0, loc)
	midnight := time.Date(2024, 3, 31, 0, 0, 0, 0, loc)

	tests := []struct {
		preset RangePreset
		start  time.Time
		end    time.Time
	}{
		{RangeToday, midnight, midnight.AddDate(0, 0, 1)},
		{RangeYesterday, midnight.AddDate(0, 0, -1), midnight},
		{RangeWeek, time.Date(2024, 3, 24, 15, 30, 0, 0, loc), now},
		{RangeMonth, time.Date(2024, 3, 2, 15, 30, 0, 0, loc), now},
	}

	for _, tt := range tests {
		t.Run(string(tt.preset), func(t *testing.T) {
			f, err := RangeFor(tt.preset, now, model.HistoryFilter{})
			require.NoError(t, err)
			assert.True(t, tt.start.Equal(f.Start), "start %s", f.Start)
			assert.True(t, tt.end.Equal(f.End), "end %s", f.End)
		})
	}
}

func TestRangeFor_Custom(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Hour)

	f, err := RangeFor(RangeCustom, now, model.HistoryFilter{Start: start})
	require.NoError(t, err)
	assert.Equal(t, start, f.Start)
	assert.True(t, f.End.IsZero())

	_, err = RangeFor(RangeCustom, now, model.HistoryFilter{Start: now, End: start})
	assert.Error(t, err)

	_, err = RangeFor("decade", now, model.HistoryFilter{})
	assert.Error(t, err)
}

type fakeLister struct {
	filter  model.HistoryFilter
	childID int64
	records []model.LocationRecord
	err     error
}

func (f *fakeLister) List(_ context.Context, childID int64, filter model.HistoryFilter) ([]model.LocationRecord, error) {
	f.childID = childID
	f.filter = filter
	return f.records, f.err
}

func TestHistoryService_Fetch(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{records: []model.LocationRecord{
		record(now.Add(-2*time.Hour), 0, 0, false),
		record(now.Add(-time.Hour), 0, 1, true),
	}}
	svc := NewHistoryService(lister, zap.NewNop())
	svc.now = func() time.Time { return now }

	result, err := svc.Today(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), lister.childID)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), lister.filter.Start)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), lister.filter.End)
	assert.Len(t, result.Records, 2)
	assert.Equal(t, int64(111195), result.Stats.Distance)
	assert.Equal(t, 1, result.Stats.OfflineRecords)

	_, err = svc.Yesterday(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), lister.filter.Start)

	lister.err = errors.New("boom")
	_, err = svc.Week(context.Background(), 9)
	assert.Error(t, err)
}
