package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"veilchat/internal/presence"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestDetachClearsPresenceImmediately(t *testing.T) {
	registry := presence.NewRegistry()
	hub := NewHub(registry)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	userID := uuid.New()
	client := NewClient(nil, userID, uuid.New())

	hub.Register(client)
	waitFor(t, func() bool { return registry.IsUserOnline(userID) },
		"client never showed up in the registry")

	// On disconnect the handler reads presence right after detaching; the
	// registry must already report the connection gone at that point.
	hub.Detach(client)
	if registry.IsUserOnline(userID) {
		t.Fatal("registry still reports the user online after Detach")
	}

	waitFor(t, func() bool { return hub.GetClientCount() == 0 },
		"hub never removed the detached client")
}

func TestDetachLastOfSeveralConnections(t *testing.T) {
	registry := presence.NewRegistry()
	hub := NewHub(registry)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	userID := uuid.New()
	first := NewClient(nil, userID, uuid.New())
	second := NewClient(nil, userID, uuid.New())

	hub.Register(first)
	hub.Register(second)
	waitFor(t, func() bool { return hub.GetClientCount() == 2 },
		"clients never registered")

	hub.Detach(first)
	if !registry.IsUserOnline(userID) {
		t.Fatal("user went offline while a second connection is still live")
	}

	hub.Detach(second)
	if registry.IsUserOnline(userID) {
		t.Fatal("registry still reports the user online after the last Detach")
	}
}
