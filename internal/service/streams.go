package service

import (
	"context"

	"geografica/internal/model"
	"geografica/internal/pubsub"
)

// LiveSource is the set of streams produced by the live channel
type LiveSource interface {
	Locations() *pubsub.Broadcaster[model.LocationUpdate]
	Statuses() *pubsub.Broadcaster[model.StatusChange]
	PanicAlerts() *pubsub.Broadcaster[model.PanicAlert]
	ConnectionStatus() *pubsub.Broadcaster[bool]
}

// Forward subscribes to b and calls fn for every value until ctx ends or
// the broadcaster closes.
func Forward[T any](ctx context.Context, b *pubsub.Broadcaster[T], fn func(T)) {
	ch, cancel := b.Subscribe(pubsub.DefaultBuffer)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				fn(v)
			}
		}
	}()
}
