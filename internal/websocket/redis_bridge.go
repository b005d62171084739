package websocket

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"veilchat/internal/events"
)

// Subscriber delivers raw payloads published on matching channels.
type Subscriber interface {
	Subscribe(ctx context.Context, patterns []string, handler func(channel string, payload []byte)) error
}

// RedisBridge feeds pub/sub traffic back into this instance's sockets:
// device-addressed events go through the presence registry, everything else
// through channel subscriptions.
type RedisBridge struct {
	subscriber Subscriber
	hub        *Hub
}

func NewRedisBridge(subscriber Subscriber, hub *Hub) *RedisBridge {
	return &RedisBridge{subscriber: subscriber, hub: hub}
}

func (b *RedisBridge) Run(ctx context.Context) error {
	return b.subscriber.Subscribe(ctx, []string{"channel:*"}, func(channel string, payload []byte) {
		if strings.HasPrefix(channel, events.ChannelPrefixDevice) {
			deviceID, err := uuid.Parse(strings.TrimPrefix(channel, events.ChannelPrefixDevice))
			if err != nil {
				return
			}
			b.hub.Registry().SendToDevice(deviceID, payload)
			return
		}
		b.hub.Broadcast(channel, payload)
	})
}
