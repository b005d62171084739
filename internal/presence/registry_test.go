package presence_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"

	"veilchat/internal/presence"
)

type fakeConn struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *fakeConn) SendMessage(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func TestSendToDeviceTargetsOnlyThatDevice(t *testing.T) {
	reg := presence.NewRegistry()
	userID := uuid.New()
	devA, devB := uuid.New(), uuid.New()

	connA := &fakeConn{}
	connB := &fakeConn{}
	reg.Register(userID, devA, connA)
	reg.Register(userID, devB, connB)

	if n := reg.SendToDevice(devA, []byte("hello")); n != 1 {
		t.Fatalf("expected 1 connection reached, got %d", n)
	}
	if connA.count() != 1 {
		t.Fatalf("device A connection did not receive the payload")
	}
	if connB.count() != 0 {
		t.Fatalf("device B connection must not receive device A's payload")
	}
}

func TestSendToUserReachesAllDevices(t *testing.T) {
	reg := presence.NewRegistry()
	userID := uuid.New()

	connA := &fakeConn{}
	connB := &fakeConn{}
	reg.Register(userID, uuid.New(), connA)
	reg.Register(userID, uuid.New(), connB)

	if n := reg.SendToUser(userID, []byte("ping")); n != 2 {
		t.Fatalf("expected 2 connections reached, got %d", n)
	}
	if connA.count() != 1 || connB.count() != 1 {
		t.Fatalf("all of the user's connections must receive the payload")
	}
}

func TestSendToOfflineDevice(t *testing.T) {
	reg := presence.NewRegistry()

	if n := reg.SendToDevice(uuid.New(), []byte("nobody home")); n != 0 {
		t.Fatalf("expected 0 connections for unknown device, got %d", n)
	}
}

func TestUnregisterCleansUp(t *testing.T) {
	reg := presence.NewRegistry()
	userID := uuid.New()
	deviceID := uuid.New()

	first := &fakeConn{}
	second := &fakeConn{}
	reg.Register(userID, deviceID, first)
	reg.Register(userID, deviceID, second)

	reg.Unregister(userID, deviceID, first)
	if !reg.IsDeviceOnline(deviceID) {
		t.Fatalf("device with a remaining connection must stay online")
	}
	if !reg.IsUserOnline(userID) {
		t.Fatalf("user with a remaining connection must stay online")
	}

	reg.Unregister(userID, deviceID, second)
	if reg.IsDeviceOnline(deviceID) {
		t.Fatalf("device with no connections must be offline")
	}
	if reg.IsUserOnline(userID) {
		t.Fatalf("user with no connections must be offline")
	}
	if users := reg.OnlineUsers(); len(users) != 0 {
		t.Fatalf("expected empty online set, got %v", users)
	}
}

func TestOnlineUsersStableOrder(t *testing.T) {
	reg := presence.NewRegistry()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		reg.Register(id, uuid.New(), &fakeConn{})
	}

	first := reg.OnlineUsers()
	second := reg.OnlineUsers()
	if len(first) != len(ids) {
		t.Fatalf("expected %d online users, got %d", len(ids), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("online user order must be stable")
		}
	}
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	reg := presence.NewRegistry()
	userID := uuid.New()

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deviceID := uuid.New()
			conn := &fakeConn{}
			reg.Register(userID, deviceID, conn)
			reg.SendToDevice(deviceID, []byte("probe"))
			reg.SendToUser(userID, []byte("probe"))
			reg.Unregister(userID, deviceID, conn)
		}()
	}
	wg.Wait()

	if reg.IsUserOnline(userID) {
		t.Fatalf("expected no connections after churn")
	}
}
