package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"geografica/internal/model"
)

// Publisher is the subset of *nats.Conn used by the bridge
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Event kinds, used as the second subject token
const (
	KindLocation = "location"
	KindStatus   = "status"
	KindPanic    = "panic"
	KindZone     = "zone"
)

// EventBridge republishes live events on NATS as
// <prefix>.<kind>.<childId>
type EventBridge struct {
	pub    Publisher
	prefix string
	logger *zap.Logger
}

// NewEventBridge creates a bridge
func NewEventBridge(pub Publisher, prefix string, logger *zap.Logger) *EventBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBridge{pub: pub, prefix: prefix, logger: logger}
}

// Attach forwards the live and zone streams until ctx ends
func (b *EventBridge) Attach(ctx context.Context, src LiveSource, zones *ZoneWatcher) {
	Forward(ctx, src.Locations(), func(u model.LocationUpdate) { b.publish(KindLocation, u.ChildID, u) })
	Forward(ctx, src.Statuses(), func(s model.StatusChange) { b.publish(KindStatus, s.ChildID, s) })
	Forward(ctx, src.PanicAlerts(), func(a model.PanicAlert) { b.publish(KindPanic, a.ChildID, a) })
	if zones != nil {
		Forward(ctx, zones.Events(), func(e model.ZoneEvent) { b.publish(KindZone, e.ChildID, e) })
	}
}

// Subject builds the subject of an event
func (b *EventBridge) Subject(kind string, childID model.ChildRef) string {
	return fmt.Sprintf("%s.%s.%s", b.prefix, kind, childID)
}

func (b *EventBridge) publish(kind string, childID model.ChildRef, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("Failed to marshal bridge event", zap.String("kind", kind), zap.Error(err))
		return
	}

	subject := b.Subject(kind, childID)
	if err := b.pub.Publish(subject, data); err != nil {
		b.logger.Warn("Failed to publish bridge event", zap.String("subject", subject), zap.Error(err))
	}
}
