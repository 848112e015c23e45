package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"geografica/internal/model"
	"geografica/internal/pubsub"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// fakeSource stands in for the live channel
type fakeSource struct {
	locations *pubsub.Broadcaster[model.LocationUpdate]
	statuses  *pubsub.Broadcaster[model.StatusChange]
	panics    *pubsub.Broadcaster[model.PanicAlert]
	conn      *pubsub.Broadcaster[bool]
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		locations: pubsub.NewBroadcaster[model.LocationUpdate]("locations", nil),
		statuses:  pubsub.NewBroadcaster[model.StatusChange]("statuses", nil),
		panics:    pubsub.NewBroadcaster[model.PanicAlert]("panics", nil),
		conn:      pubsub.NewBehavior("conn", false, nil),
	}
}

func (f *fakeSource) Locations() *pubsub.Broadcaster[model.LocationUpdate] { return f.locations }
func (f *fakeSource) Statuses() *pubsub.Broadcaster[model.StatusChange]    { return f.statuses }
func (f *fakeSource) PanicAlerts() *pubsub.Broadcaster[model.PanicAlert]   { return f.panics }
func (f *fakeSource) ConnectionStatus() *pubsub.Broadcaster[bool]          { return f.conn }

func floatPtr(v float64) *float64 { return &v }

func TestLiveTracker_SeedAndUpdates(t *testing.T) {
	ctx := context.Background()
	tracker := NewLiveTracker(nil, "geo", time.Minute, zap.NewNop())

	tracker.Seed([]model.Child{
		{ID: 2, Name: "Leo", Latitude: floatPtr(-17.7), Longitude: floatPtr(-63.1), Status: model.ChildOnline},
		{ID: 10, Name: "Mia"},
	})

	snap := tracker.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, model.ChildRef("2"), snap[0].ChildID)
	assert.Equal(t, model.ChildRef("10"), snap[1].ChildID)
	assert.True(t, snap[0].HasLocation)
	assert.True(t, snap[0].Online)
	assert.False(t, snap[1].HasLocation)

	tracker.ApplyLocation(ctx, model.LocationUpdate{ChildID: "10", Lat: 1, Lng: 2, Battery: 55, Status: model.ChildOnline, Timestamp: "t1"})
	entry, ok := tracker.Get("10")
	require.True(t, ok)
	assert.Equal(t, "Mia", entry.Name)
	assert.True(t, entry.HasLocation)
	assert.True(t, entry.Online)
	require.NotNil(t, entry.Battery)
	assert.InDelta(t, 55, *entry.Battery, 1e-9)

	tracker.ApplyStatus(ctx, model.StatusChange{ChildID: "10", Online: false})
	entry, _ = tracker.Get("10")
	assert.False(t, entry.Online)
	assert.Equal(t, model.ChildOffline, entry.Status)
	assert.InDelta(t, 1, entry.Lat, 1e-9)

	// a seed after live data only refreshes the name
	tracker.Seed([]model.Child{{ID: 10, Name: "Mía"}})
	entry, _ = tracker.Get("10")
	assert.Equal(t, "Mía", entry.Name)
	assert.True(t, entry.HasLocation)

	// unknown children get an entry from their first event
	tracker.ApplyLocation(ctx, model.LocationUpdate{ChildID: "99", Lat: 3, Lng: 4})
	_, ok = tracker.Get("99")
	assert.True(t, ok)

	tracker.Reset()
	assert.Empty(t, tracker.Snapshot())
}

func TestLiveTracker_LastDeliveredWins(t *testing.T) {
	ctx := context.Background()
	tracker := NewLiveTracker(nil, "geo", time.Minute, nil)

	tracker.ApplyLocation(ctx, model.LocationUpdate{ChildID: "1", Lat: 5, Timestamp: "2024-03-01T10:05:00Z"})
	tracker.ApplyLocation(ctx, model.LocationUpdate{ChildID: "1", Lat: 4, Timestamp: "2024-03-01T10:00:00Z"})
	tracker.ApplyLocation(ctx, model.LocationUpdate{ChildID: "1", Lat: 4, Timestamp: "2024-03-01T10:00:00Z"})

	entry, _ := tracker.Get("1")
	assert.InDelta(t, 4, entry.Lat, 1e-9)
	assert.Equal(t, "2024-03-01T10:00:00Z", entry.Timestamp)
}

func TestLiveTracker_ShadowRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)

	tracker := NewLiveTracker(client, "geo", 10*time.Minute, zap.NewNop())
	tracker.Seed([]model.Child{{ID: 4, Name: "Leo"}})
	tracker.ApplyLocation(ctx, model.LocationUpdate{ChildID: "4", Lat: -17.78, Lng: -63.18, Battery: 80, Status: model.ChildOnline})

	require.True(t, mr.Exists("geo:live:4"))
	assert.Equal(t, "-17.78", mr.HGet("geo:live:4", "lat"))
	assert.Equal(t, "Leo", mr.HGet("geo:live:4", "name"))
	assert.Equal(t, 10*time.Minute, mr.TTL("geo:live:4"))

	restored := NewLiveTracker(client, "geo", 10*time.Minute, zap.NewNop())
	n, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entry, ok := restored.Get("4")
	require.True(t, ok)
	assert.Equal(t, "Leo", entry.Name)
	assert.InDelta(t, -63.18, entry.Lng, 1e-9)
	assert.True(t, entry.Online)
	require.NotNil(t, entry.Battery)
	assert.InDelta(t, 80, *entry.Battery, 1e-9)

	mr.FastForward(11 * time.Minute)
	expired := NewLiveTracker(client, "geo", 10*time.Minute, zap.NewNop())
	n, err = expired.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLiveTracker_Attach(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newFakeSource()
	tracker := NewLiveTracker(nil, "geo", time.Minute, zap.NewNop())
	tracker.Attach(ctx, src)

	// subscriptions are registered synchronously by Attach
	src.conn.Publish(true)
	src.locations.Publish(model.LocationUpdate{ChildID: "3", Lat: 1, Lng: 1})
	src.statuses.Publish(model.StatusChange{ChildID: "3", Online: false})

	assert.Eventually(t, func() bool {
		entry, ok := tracker.Get("3")
		return ok && entry.HasLocation && entry.Status == model.ChildOffline && tracker.Connected()
	}, time.Second, 10*time.Millisecond)
}
