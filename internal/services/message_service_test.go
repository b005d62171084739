package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"veilchat/internal/domain/chat"
	"veilchat/internal/events"
	"veilchat/internal/repository"
	"veilchat/internal/services"
	veilchat_errors "veilchat/pkg/errors"
)

// recordingBroadcaster captures fan-out instead of pushing to sockets.
type recordingBroadcaster struct {
	mu      sync.Mutex
	channel []events.Envelope
	device  map[uuid.UUID][]events.Envelope
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{device: make(map[uuid.UUID][]events.Envelope)}
}

func (r *recordingBroadcaster) BroadcastToChannel(_ context.Context, _ chat.ChannelRef, env events.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channel = append(r.channel, env)
}

func (r *recordingBroadcaster) SendToDevice(_ context.Context, deviceID uuid.UUID, env events.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.device[deviceID] = append(r.device[deviceID], env)
}

func (r *recordingBroadcaster) channelEvents(eventType string) []events.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Envelope
	for _, env := range r.channel {
		if env.EventType == eventType {
			out = append(out, env)
		}
	}
	return out
}

func (r *recordingBroadcaster) deviceEvents(deviceID uuid.UUID) []events.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Envelope(nil), r.device[deviceID]...)
}

type messageTestEnv struct {
	db       *gorm.DB
	keys     *services.KeysService
	chat     *services.ChatService
	messages *services.MessageService
	recorder *recordingBroadcaster
}

func setupMessageEnv(t *testing.T) *messageTestEnv {
	t.Helper()
	db := openTestDB(t)
	recorder := newRecordingBroadcaster()
	chatService := services.NewChatService(repository.NewChatRepository(db), testDBTimeout)
	return &messageTestEnv{
		db:       db,
		keys:     services.NewKeysService(repository.NewKeysRepository(db), testDBTimeout),
		chat:     chatService,
		messages: services.NewMessageService(repository.NewMessageRepository(db), chatService, recorder, 20, testDBTimeout),
		recorder: recorder,
	}
}

// connectionPair sets up two users with one device each and a pairwise
// connection between them.
func (e *messageTestEnv) connectionPair(t *testing.T) (alice, bob uuid.UUID, aliceDev, bobDev uuid.UUID, conn chat.Connection) {
	t.Helper()
	alice, bob = uuid.New(), uuid.New()

	aliceDevice := registerTestDevice(t, e.keys, alice, "alice-phone")
	bobDevice := registerTestDevice(t, e.keys, bob, "bob-phone")

	conn, err := e.chat.Connect(context.Background(), alice, bob)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return alice, bob, aliceDevice.ID, bobDevice.ID, conn
}

func sendTestMessage(t *testing.T, env *messageTestEnv, sender, senderDev, targetID uuid.UUID, body string, recipients ...uuid.UUID) chat.Message {
	t.Helper()
	in := services.SendMessageInput{
		TargetID:       targetID,
		SenderDeviceID: senderDev,
		Ciphertext:     []byte(body),
	}
	for _, dev := range recipients {
		in.WrappedKeys = append(in.WrappedKeys, services.WrappedKeyInput{
			DeviceID:     dev,
			EncryptedKey: []byte("key-for-" + dev.String()),
		})
	}
	msg, err := env.messages.Send(context.Background(), sender, in)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return msg
}

func TestSendDeliversOnlyOwnWrappedKey(t *testing.T) {
	env := setupMessageEnv(t)
	alice, _, aliceDev, bobDev, conn := env.connectionPair(t)

	msg := sendTestMessage(t, env, alice, aliceDev, conn.ID, "ciphertext-1", aliceDev, bobDev)

	created := env.recorder.channelEvents(events.EventTypeMessageCreated)
	if len(created) != 1 {
		t.Fatalf("expected 1 channel event, got %d", len(created))
	}

	for _, dev := range []uuid.UUID{aliceDev, bobDev} {
		envs := env.recorder.deviceEvents(dev)
		if len(envs) != 1 {
			t.Fatalf("expected 1 payload for device %s, got %d", dev, len(envs))
		}
		var payload services.DevicePayload
		if err := json.Unmarshal(envs[0].Payload, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.MessageID != msg.ID {
			t.Fatalf("payload for wrong message: %+v", payload)
		}
		if string(payload.EncryptedKey) != "key-for-"+dev.String() {
			t.Fatalf("device %s received a foreign wrapped key", dev)
		}
		if string(payload.Ciphertext) != "ciphertext-1" {
			t.Fatalf("payload missing ciphertext")
		}
	}
}

func TestSendValidation(t *testing.T) {
	env := setupMessageEnv(t)
	alice, _, aliceDev, bobDev, conn := env.connectionPair(t)

	// No wrapped keys.
	if _, err := env.messages.Send(context.Background(), alice, services.SendMessageInput{
		TargetID:       conn.ID,
		SenderDeviceID: aliceDev,
		Ciphertext:     []byte("x"),
	}); !errors.Is(err, veilchat_errors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without wrapped keys, got %v", err)
	}

	// No ciphertext.
	if _, err := env.messages.Send(context.Background(), alice, services.SendMessageInput{
		TargetID:       conn.ID,
		SenderDeviceID: aliceDev,
		WrappedKeys:    []services.WrappedKeyInput{{DeviceID: bobDev, EncryptedKey: []byte("k")}},
	}); !errors.Is(err, veilchat_errors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without ciphertext, got %v", err)
	}

	// Unknown target.
	if _, err := env.messages.Send(context.Background(), alice, services.SendMessageInput{
		TargetID:       uuid.New(),
		SenderDeviceID: aliceDev,
		Ciphertext:     []byte("x"),
		WrappedKeys:    []services.WrappedKeyInput{{DeviceID: bobDev, EncryptedKey: []byte("k")}},
	}); !errors.Is(err, veilchat_errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown target, got %v", err)
	}

	// Outsider on someone else's connection.
	if _, err := env.messages.Send(context.Background(), uuid.New(), services.SendMessageInput{
		TargetID:       conn.ID,
		SenderDeviceID: aliceDev,
		Ciphertext:     []byte("x"),
		WrappedKeys:    []services.WrappedKeyInput{{DeviceID: bobDev, EncryptedKey: []byte("k")}},
	}); !errors.Is(err, veilchat_errors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for outsider, got %v", err)
	}

	// Nothing persisted by any of the rejected sends.
	var count int64
	if err := env.db.Model(&chat.Message{}).Count(&count).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected sends must not persist messages, found %d", count)
	}
}

func TestHistoryVisibilityByDevice(t *testing.T) {
	env := setupMessageEnv(t)
	alice, bob, aliceDev, bobDev, conn := env.connectionPair(t)

	msg := sendTestMessage(t, env, alice, aliceDev, conn.ID, "before-late-device", aliceDev, bobDev)

	// A device registered after the send has no wrapped key for it.
	lateDevice := registerTestDevice(t, env.keys, bob, "bob-tablet")

	forLate, err := env.messages.History(context.Background(), bob, conn.ID, lateDevice.ID, nil, 10)
	if err != nil {
		t.Fatalf("history for late device: %v", err)
	}
	if len(forLate) != 0 {
		t.Fatalf("late device must not see earlier messages, got %d", len(forLate))
	}

	forBob, err := env.messages.History(context.Background(), bob, conn.ID, bobDev, nil, 10)
	if err != nil {
		t.Fatalf("history for bob: %v", err)
	}
	if len(forBob) != 1 || forBob[0].ID != msg.ID {
		t.Fatalf("expected the message for bob's original device, got %d", len(forBob))
	}
	if len(forBob[0].WrappedKeys) != 1 || forBob[0].WrappedKeys[0].DeviceID != bobDev {
		t.Fatalf("history must carry only the requesting device's wrapped key")
	}

	// The sender sees their own messages from any of their devices.
	senderLate := registerTestDevice(t, env.keys, alice, "alice-tablet")
	forSender, err := env.messages.History(context.Background(), alice, conn.ID, senderLate.ID, nil, 10)
	if err != nil {
		t.Fatalf("history for sender: %v", err)
	}
	if len(forSender) != 1 {
		t.Fatalf("sender must see own message regardless of device, got %d", len(forSender))
	}
}

func TestHistoryPagination(t *testing.T) {
	env := setupMessageEnv(t)
	alice, _, aliceDev, bobDev, conn := env.connectionPair(t)

	var ids []uuid.UUID
	for _, body := range []string{"m1", "m2", "m3"} {
		msg := sendTestMessage(t, env, alice, aliceDev, conn.ID, body, aliceDev, bobDev)
		ids = append(ids, msg.ID)
	}

	page1, err := env.messages.History(context.Background(), alice, conn.ID, aliceDev, nil, 2)
	if err != nil {
		t.Fatalf("page1: %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("expected 2 messages on page 1, got %d", len(page1))
	}
	if page1[0].ID != ids[2] || page1[1].ID != ids[1] {
		t.Fatalf("expected newest-first ordering")
	}

	cursor := page1[len(page1)-1].ID
	page2, err := env.messages.History(context.Background(), alice, conn.ID, aliceDev, &cursor, 2)
	if err != nil {
		t.Fatalf("page2: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != ids[0] {
		t.Fatalf("expected the oldest message on page 2, got %d", len(page2))
	}

	cursor = page2[0].ID
	page3, err := env.messages.History(context.Background(), alice, conn.ID, aliceDev, &cursor, 2)
	if err != nil {
		t.Fatalf("page3: %v", err)
	}
	if len(page3) != 0 {
		t.Fatalf("expected empty final page, got %d", len(page3))
	}
}

func TestHistoryRequiresDevice(t *testing.T) {
	env := setupMessageEnv(t)
	alice, _, _, _, conn := env.connectionPair(t)

	if _, err := env.messages.History(context.Background(), alice, conn.ID, uuid.Nil, nil, 10); !errors.Is(err, veilchat_errors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without device, got %v", err)
	}
}

func TestMarkSeenIdempotent(t *testing.T) {
	env := setupMessageEnv(t)
	alice, bob, aliceDev, bobDev, conn := env.connectionPair(t)

	msg := sendTestMessage(t, env, alice, aliceDev, conn.ID, "see me", aliceDev, bobDev)

	first, err := env.messages.MarkSeen(context.Background(), msg.ID, bob)
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}

	seenEvents := env.recorder.channelEvents(events.EventTypeMessageSeen)
	if len(seenEvents) != 1 {
		t.Fatalf("expected 1 seen broadcast, got %d", len(seenEvents))
	}
	var seenPayload services.MessageSeenEvent
	if err := json.Unmarshal(seenEvents[0].Payload, &seenPayload); err != nil {
		t.Fatalf("decode seen payload: %v", err)
	}
	if seenPayload.MessageID != msg.ID || seenPayload.UserID != bob {
		t.Fatalf("unexpected seen payload: %+v", seenPayload)
	}

	second, err := env.messages.MarkSeen(context.Background(), msg.ID, bob)
	if err != nil {
		t.Fatalf("repeat mark seen: %v", err)
	}
	if !second.SeenAt.Equal(first.SeenAt) {
		t.Fatalf("repeat must return the original marker")
	}
	if got := len(env.recorder.channelEvents(events.EventTypeMessageSeen)); got != 1 {
		t.Fatalf("repeat must not broadcast again, got %d events", got)
	}
}

func TestRoomMessaging(t *testing.T) {
	env := setupMessageEnv(t)
	alice, bob := uuid.New(), uuid.New()
	aliceDev := registerTestDevice(t, env.keys, alice, "alice-phone")
	bobDev := registerTestDevice(t, env.keys, bob, "bob-phone")

	room, err := env.chat.CreateRoom(context.Background(), alice, "ops", true, []services.RoomMemberInput{
		{UserID: bob, Envelope: &services.KeyEnvelope{EncryptedRoomKey: []byte("wrapped-room-key")}},
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	msg := sendTestMessage(t, env, alice, aliceDev.ID, room.ID, "room msg", aliceDev.ID, bobDev.ID)
	if !msg.RoomID.Valid || msg.RoomID.UUID != room.ID {
		t.Fatalf("message not bound to room: %+v", msg)
	}

	// Non-member cannot read or send.
	outsider := uuid.New()
	if _, err := env.messages.History(context.Background(), outsider, room.ID, bobDev.ID, nil, 10); !errors.Is(err, veilchat_errors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for outsider history, got %v", err)
	}

	history, err := env.messages.History(context.Background(), bob, room.ID, bobDev.ID, nil, 10)
	if err != nil {
		t.Fatalf("room history: %v", err)
	}
	if len(history) != 1 || history[0].ID != msg.ID {
		t.Fatalf("expected the room message in member history")
	}
}
