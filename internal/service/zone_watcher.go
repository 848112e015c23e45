package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"geografica/internal/model"
	"geografica/internal/pubsub"
)

// ZoneLister loads the guardian's safe zones
type ZoneLister interface {
	List(ctx context.Context) ([]model.SafeZone, error)
}

type zoneStateKey struct {
	childID int64
	zoneID  int64
}

// ZoneWatcher raises enter and exit events when a child crosses the
// boundary of a safe zone it is assigned to. The first position seen for
// a (child, zone) pair only records the state.
type ZoneWatcher struct {
	zones  ZoneLister
	logger *zap.Logger

	mu     sync.Mutex
	list   []model.SafeZone
	inside map[zoneStateKey]bool

	events *pubsub.Broadcaster[model.ZoneEvent]
}

// NewZoneWatcher creates a zone watcher
func NewZoneWatcher(zones ZoneLister, logger *zap.Logger) *ZoneWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZoneWatcher{
		zones:  zones,
		logger: logger,
		inside: make(map[zoneStateKey]bool),
		events: pubsub.NewBroadcaster[model.ZoneEvent]("zone_events", logger),
	}
}

// Events streams zone transitions
func (w *ZoneWatcher) Events() *pubsub.Broadcaster[model.ZoneEvent] {
	return w.events
}

// Attach evaluates every location update until ctx ends
func (w *ZoneWatcher) Attach(ctx context.Context, src LiveSource) {
	Forward(ctx, src.Locations(), func(u model.LocationUpdate) { w.Check(u) })
}

// Refresh reloads the zones from the API
func (w *ZoneWatcher) Refresh(ctx context.Context) error {
	zones, err := w.zones.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load safe zones: %w", err)
	}
	w.SetZones(zones)
	w.logger.Info("Safe zones loaded", zap.Int("zones", len(zones)))
	return nil
}

// SetZones replaces the watched zones. State of zones and assignments
// that no longer exist is dropped.
func (w *ZoneWatcher) SetZones(zones []model.SafeZone) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.list = make([]model.SafeZone, len(zones))
	copy(w.list, zones)

	valid := make(map[zoneStateKey]bool)
	for _, z := range zones {
		for _, c := range z.Children {
			valid[zoneStateKey{childID: c.ID, zoneID: z.ID}] = true
		}
	}
	for key := range w.inside {
		if !valid[key] {
			delete(w.inside, key)
		}
	}
}

// Zones returns the watched zones
func (w *ZoneWatcher) Zones() []model.SafeZone {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.SafeZone, len(w.list))
	copy(out, w.list)
	return out
}

// Reset drops zones and state, used on logout
func (w *ZoneWatcher) Reset() {
	w.mu.Lock()
	w.list = nil
	w.inside = make(map[zoneStateKey]bool)
	w.mu.Unlock()
}

// Check evaluates a location update and publishes the resulting events
func (w *ZoneWatcher) Check(u model.LocationUpdate) []model.ZoneEvent {
	childID, err := strconv.ParseInt(u.ChildID.String(), 10, 64)
	if err != nil {
		return nil
	}

	var events []model.ZoneEvent

	w.mu.Lock()
	for i := range w.list {
		zone := &w.list[i]
		if !zone.HasChild(childID) {
			continue
		}

		isInside := zone.Polygon.Contains(u.Lat, u.Lng)
		key := zoneStateKey{childID: childID, zoneID: zone.ID}
		wasInside, known := w.inside[key]
		w.inside[key] = isInside

		if !known || wasInside == isInside {
			continue
		}

		eventType := model.ZoneExit
		if isInside {
			eventType = model.ZoneEnter
		}
		events = append(events, model.ZoneEvent{
			ChildID:   u.ChildID,
			ZoneID:    zone.ID,
			ZoneName:  zone.Name,
			Type:      eventType,
			Lat:       u.Lat,
			Lng:       u.Lng,
			Timestamp: u.Timestamp,
		})
	}
	w.mu.Unlock()

	for _, ev := range events {
		w.logger.Info("Safe zone transition",
			zap.String("child_id", ev.ChildID.String()),
			zap.Int64("zone_id", ev.ZoneID),
			zap.String("zone_name", ev.ZoneName),
			zap.String("type", ev.Type),
		)
		w.events.Publish(ev)
	}
	return events
}
