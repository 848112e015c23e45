package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"geografica/internal/model"
)

// LiveTracker keeps the last known live state of every followed child.
// Events overwrite entries in delivery order; nothing is reordered.
type LiveTracker struct {
	redis     *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	children map[model.ChildRef]*model.LiveChild
	alive    bool
}

// NewLiveTracker creates a tracker. redisClient may be nil, in which case
// no shadow copy is written.
func NewLiveTracker(redisClient *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *LiveTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveTracker{
		redis:     redisClient,
		keyPrefix: prefix + ":live:",
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		children:  make(map[model.ChildRef]*model.LiveChild),
	}
}

// Attach consumes the live streams until ctx ends
func (t *LiveTracker) Attach(ctx context.Context, src LiveSource) {
	Forward(ctx, src.Locations(), func(u model.LocationUpdate) { t.ApplyLocation(ctx, u) })
	Forward(ctx, src.Statuses(), func(s model.StatusChange) { t.ApplyStatus(ctx, s) })
	Forward(ctx, src.PanicAlerts(), t.ApplyPanic)
	Forward(ctx, src.ConnectionStatus(), t.SetConnected)
}

// Seed loads the children known from the REST API. Live data already
// received is kept; only the name is refreshed.
func (t *LiveTracker) Seed(children []model.Child) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range children {
		ref := model.RefFromID(c.ID)
		entry, ok := t.children[ref]
		if ok {
			entry.Name = c.Name
			continue
		}

		entry = &model.LiveChild{ChildID: ref, Name: c.Name, Status: c.Status, Battery: c.Battery}
		if c.Latitude != nil && c.Longitude != nil {
			entry.Lat = *c.Latitude
			entry.Lng = *c.Longitude
			entry.HasLocation = true
		}
		entry.Online = c.Status == model.ChildOnline
		if c.LastConnection != nil {
			entry.UpdatedAt = *c.LastConnection
		}
		t.children[ref] = entry
	}
}

// ApplyLocation records a locationUpdated event
func (t *LiveTracker) ApplyLocation(ctx context.Context, u model.LocationUpdate) {
	if u.ChildID == "" {
		return
	}
	battery := u.Battery

	t.mu.Lock()
	entry := t.entryLocked(u.ChildID)
	entry.Lat = u.Lat
	entry.Lng = u.Lng
	entry.HasLocation = true
	entry.Battery = &battery
	if u.Status != "" {
		entry.Status = u.Status
	}
	entry.Online = entry.Status != model.ChildOffline
	entry.Timestamp = u.Timestamp
	entry.UpdatedAt = t.now()
	snapshot := *entry
	t.mu.Unlock()

	t.writeShadow(ctx, snapshot)
}

// ApplyStatus records a childStatusChanged event. Only the online flag
// and status change.
func (t *LiveTracker) ApplyStatus(ctx context.Context, s model.StatusChange) {
	if s.ChildID == "" {
		return
	}

	t.mu.Lock()
	entry := t.entryLocked(s.ChildID)
	entry.Online = s.Online
	if s.Online {
		entry.Status = model.ChildOnline
	} else {
		entry.Status = model.ChildOffline
	}
	entry.UpdatedAt = t.now()
	snapshot := *entry
	t.mu.Unlock()

	t.writeShadow(ctx, snapshot)
}

// ApplyPanic logs a panic alert
func (t *LiveTracker) ApplyPanic(a model.PanicAlert) {
	t.mu.RLock()
	name := ""
	if entry, ok := t.children[a.ChildID]; ok {
		name = entry.Name
	}
	t.mu.RUnlock()

	t.logger.Warn("Panic alert received",
		zap.String("child_id", a.ChildID.String()),
		zap.String("child_name", name),
		zap.Float64("lat", a.Lat),
		zap.Float64("lng", a.Lng),
		zap.String("timestamp", a.Timestamp),
	)
}

// SetConnected records the channel state
func (t *LiveTracker) SetConnected(alive bool) {
	t.mu.Lock()
	t.alive = alive
	t.mu.Unlock()
}

// Connected reports the last known channel state
func (t *LiveTracker) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// Get returns a copy of one entry
func (t *LiveTracker) Get(childID model.ChildRef) (model.LiveChild, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.children[childID]
	if !ok {
		return model.LiveChild{}, false
	}
	return *entry, true
}

// Snapshot returns a copy of all entries ordered by child ID
func (t *LiveTracker) Snapshot() []model.LiveChild {
	t.mu.RLock()
	out := make([]model.LiveChild, 0, len(t.children))
	for _, entry := range t.children {
		out = append(out, *entry)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, errA := strconv.ParseInt(out[i].ChildID.String(), 10, 64)
		b, errB := strconv.ParseInt(out[j].ChildID.String(), 10, 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return out[i].ChildID < out[j].ChildID
	})
	return out
}

// Reset forgets every entry, used on logout
func (t *LiveTracker) Reset() {
	t.mu.Lock()
	t.children = make(map[model.ChildRef]*model.LiveChild)
	t.alive = false
	t.mu.Unlock()
}

func (t *LiveTracker) entryLocked(ref model.ChildRef) *model.LiveChild {
	entry, ok := t.children[ref]
	if !ok {
		entry = &model.LiveChild{ChildID: ref}
		t.children[ref] = entry
	}
	return entry
}

func (t *LiveTracker) shadowKey(ref model.ChildRef) string {
	return t.keyPrefix + ref.String()
}

func (t *LiveTracker) writeShadow(ctx context.Context, entry model.LiveChild) {
	if t.redis == nil {
		return
	}

	fields := map[string]interface{}{
		"name":         entry.Name,
		"status":       entry.Status,
		"online":       strconv.FormatBool(entry.Online),
		"has_location": strconv.FormatBool(entry.HasLocation),
		"lat":          strconv.FormatFloat(entry.Lat, 'f', -1, 64),
		"lng":          strconv.FormatFloat(entry.Lng, 'f', -1, 64),
		"timestamp":    entry.Timestamp,
		"updated_at":   entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if entry.Battery != nil {
		fields["battery"] = strconv.FormatFloat(*entry.Battery, 'f', -1, 64)
	}

	key := t.shadowKey(entry.ChildID)
	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if t.ttl > 0 {
		pipe.Expire(ctx, key, t.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("Failed to write live shadow", zap.String("key", key), zap.Error(err))
	}
}

// Restore reloads the shadow entries that have not expired yet. Entries
// already present in memory win.
func (t *LiveTracker) Restore(ctx context.Context) (int, error) {
	if t.redis == nil {
		return 0, nil
	}

	restored := 0
	iter := t.redis.Scan(ctx, 0, t.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := t.redis.HGetAll(ctx, key).Result()
		if err != nil {
			return restored, fmt.Errorf("failed to read live shadow %s: %w", key, err)
		}
		if len(data) == 0 {
			continue
		}

		entry := parseShadow(model.ChildRef(strings.TrimPrefix(key, t.keyPrefix)), data)

		t.mu.Lock()
		if _, ok := t.children[entry.ChildID]; !ok {
			t.children[entry.ChildID] = &entry
			restored++
		}
		t.mu.Unlock()
	}
	if err := iter.Err(); err != nil {
		return restored, fmt.Errorf("failed to scan live shadows: %w", err)
	}
	return restored, nil
}

func parseShadow(ref model.ChildRef, data map[string]string) model.LiveChild {
	entry := model.LiveChild{
		ChildID:   ref,
		Name:      data["name"],
		Status:    data["status"],
		Timestamp: data["timestamp"],
	}
	entry.Online, _ = strconv.ParseBool(data["online"])
	entry.HasLocation, _ = strconv.ParseBool(data["has_location"])
	entry.Lat, _ = strconv.ParseFloat(data["lat"], 64)
	entry.Lng, _ = strconv.ParseFloat(data["lng"], 64)
	if v, ok := data["battery"]; ok {
		if battery, err := strconv.ParseFloat(v, 64); err == nil {
			entry.Battery = &battery
		}
	}
	entry.UpdatedAt, _ = time.Parse(time.RFC3339Nano, data["updated_at"])
	return entry
}
