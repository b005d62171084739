package presence

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Conn is a live connection handle the registry can push payloads to.
// Sends are best-effort: a handle backed by a full or closed socket drops
// the payload.
type Conn interface {
	SendMessage(payload []byte)
}

// Registry tracks which device is reachable on which live connection. It is
// the only shared mutable state in the presence subsystem; all access goes
// through the mutex. Lifecycle is process uptime, entries are removed one by
// one on disconnect.
type Registry struct {
	mu       sync.RWMutex
	byDevice map[uuid.UUID]map[Conn]struct{}
	byUser   map[uuid.UUID]map[Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byDevice: make(map[uuid.UUID]map[Conn]struct{}),
		byUser:   make(map[uuid.UUID]map[Conn]struct{}),
	}
}

// Register binds a connection to its authenticated user and device.
func (r *Registry) Register(userID, deviceID uuid.UUID, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byDevice[deviceID] == nil {
		r.byDevice[deviceID] = make(map[Conn]struct{})
	}
	r.byDevice[deviceID][c] = struct{}{}

	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[Conn]struct{})
	}
	r.byUser[userID][c] = struct{}{}
}

// Unregister removes one connection; empty sets are deleted so the maps do
// not grow with churn.
func (r *Registry) Unregister(userID, deviceID uuid.UUID, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conns, ok := r.byDevice[deviceID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.byDevice, deviceID)
		}
	}
	if conns, ok := r.byUser[userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// SendToDevice pushes a payload to every live connection of one device and
// reports how many connections it reached. An offline device reaches zero
// connections; the caller relies on history for catch-up.
func (r *Registry) SendToDevice(deviceID uuid.UUID, payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byDevice[deviceID]
	for c := range conns {
		c.SendMessage(payload)
	}
	return len(conns)
}

// SendToUser pushes a payload to every live connection of a user.
func (r *Registry) SendToUser(userID uuid.UUID, payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	for c := range conns {
		c.SendMessage(payload)
	}
	return len(conns)
}

// OnlineUsers returns the ids of users with at least one live connection,
// in stable order.
func (r *Registry) OnlineUsers() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]uuid.UUID, 0, len(r.byUser))
	for id := range r.byUser {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].String() < users[j].String()
	})
	return users
}

// IsDeviceOnline reports whether the device has any live connection.
func (r *Registry) IsDeviceOnline(deviceID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byDevice[deviceID]) > 0
}

// IsUserOnline reports whether the user has any live connection on any
// device.
func (r *Registry) IsUserOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}
