package websocket

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"veilchat/internal/domain/chat"
	"veilchat/internal/events"
	"veilchat/internal/presence"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{messages: make(map[string][][]byte)}
}

func (p *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[channel] = append(p.messages[channel], payload)
	return nil
}

func (p *fakePublisher) count(channel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages[channel])
}

func mustEnvelope(t *testing.T, eventType, channel string) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(eventType, channel, map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}

func TestDispatcherPublishesChannelEvents(t *testing.T) {
	publisher := newFakePublisher()
	hub := NewHub(presence.NewRegistry())
	d := NewDispatcher(hub, publisher, nil)

	target := chat.RoomRef(uuid.New())
	d.BroadcastToChannel(context.Background(), target, mustEnvelope(t, events.EventTypeMessageCreated, target.Channel()))

	if publisher.count(target.Channel()) != 1 {
		t.Fatalf("expected 1 publish on %s", target.Channel())
	}
}

func TestDispatcherPublishesDeviceEvents(t *testing.T) {
	publisher := newFakePublisher()
	hub := NewHub(presence.NewRegistry())
	d := NewDispatcher(hub, publisher, nil)

	deviceID := uuid.New()
	d.SendToDevice(context.Background(), deviceID, mustEnvelope(t, events.EventTypeMessageReceived, ""))

	channel := events.ChannelPrefixDevice + deviceID.String()
	if publisher.count(channel) != 1 {
		t.Fatalf("expected 1 publish on %s", channel)
	}
}

func TestDispatcherFallsBackToLocalDelivery(t *testing.T) {
	registry := presence.NewRegistry()
	hub := NewHub(registry)
	d := NewDispatcher(hub, nil, nil)

	deviceID := uuid.New()
	conn := &recordingConn{}
	registry.Register(uuid.New(), deviceID, conn)

	d.SendToDevice(context.Background(), deviceID, mustEnvelope(t, events.EventTypeMessageReceived, ""))

	if conn.count() != 1 {
		t.Fatalf("expected local delivery without a publisher, got %d", conn.count())
	}
}

type recordingConn struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *recordingConn) SendMessage(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
}

func (c *recordingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}
