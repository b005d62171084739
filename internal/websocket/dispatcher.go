package websocket

import (
	"context"

	"github.com/google/uuid"

	"veilchat/internal/domain/chat"
	"veilchat/internal/events"
	"veilchat/pkg/logger"
)

// Publisher pushes an encoded event to a named pub/sub channel. Satisfied by
// the redis publisher.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Dispatcher implements the relay's delivery surface. With a publisher
// configured, events transit redis pub/sub and every instance's bridge
// delivers to its local sockets; without one, delivery is in-process only.
type Dispatcher struct {
	hub       *Hub
	publisher Publisher
	logger    *logger.Logger
}

func NewDispatcher(hub *Hub, publisher Publisher, l *logger.Logger) *Dispatcher {
	return &Dispatcher{hub: hub, publisher: publisher, logger: l}
}

func (d *Dispatcher) BroadcastToChannel(ctx context.Context, target chat.ChannelRef, env events.Envelope) {
	d.dispatch(ctx, target.Channel(), env)
}

func (d *Dispatcher) SendToDevice(ctx context.Context, deviceID uuid.UUID, env events.Envelope) {
	channel := events.ChannelPrefixDevice + deviceID.String()
	if d.publisher != nil {
		d.publish(ctx, channel, env)
		return
	}
	d.hub.Registry().SendToDevice(deviceID, env.Encode())
}

// BroadcastPresence pushes the online-set event to every connected client.
func (d *Dispatcher) BroadcastPresence(ctx context.Context, env events.Envelope) {
	d.dispatch(ctx, events.ChannelBroadcast, env)
}

func (d *Dispatcher) dispatch(ctx context.Context, channel string, env events.Envelope) {
	if d.publisher != nil {
		d.publish(ctx, channel, env)
		return
	}
	d.hub.Broadcast(channel, env.Encode())
}

func (d *Dispatcher) publish(ctx context.Context, channel string, env events.Envelope) {
	if err := d.publisher.Publish(ctx, channel, env.Encode()); err != nil && d.logger != nil {
		d.logger.Errorf("publish to %s failed: %s", channel, err.Error())
	}
}
