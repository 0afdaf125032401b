package core

import (
	"sort"
	"sync"
)

// RoomInfo is a read-only view of an active room.
type RoomInfo struct {
	Name  string
	Users []string
}

// Registry owns room membership: room -> clients, client -> room and
// user -> client. A room entry exists iff it has at least one member.
// All methods are safe for concurrent use; no I/O happens under the lock.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	clients map[*Client]string
	users   map[string]*Client

	onChange func(sessions, rooms int)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		clients: make(map[*Client]string),
		users:   make(map[string]*Client),
	}
}

// OnChange installs a callback invoked (under the lock) after every membership
// change with the new connection and room counts. Used for gauges.
func (r *Registry) OnChange(fn func(sessions, rooms int)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Join registers c under roomID. It fails with ErrAlreadyJoined if c is
// already registered or another live connection holds c.UserID.
func (r *Registry) Join(c *Client, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; ok {
		return ErrAlreadyJoined
	}
	if holder, ok := r.users[c.UserID]; ok && holder != c {
		return ErrAlreadyJoined
	}

	room, ok := r.rooms[roomID]
	if !ok {
		room = NewRoom(roomID)
		r.rooms[roomID] = room
	}
	room.AddClient(c)
	r.clients[c] = roomID
	r.users[c.UserID] = c
	r.changed()
	return nil
}

// Leave removes c from its room and returns the room name.
// Leaving an unregistered connection returns ErrNotFound and changes nothing.
func (r *Registry) Leave(c *Client) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.clients[c]
	if !ok {
		return "", ErrNotFound
	}
	r.removeLocked(c, roomID)
	r.changed()
	return roomID, nil
}

// Evict removes the given clients if they are still members of roomID and
// returns the ones actually removed. Clients that already left are skipped.
func (r *Registry) Evict(roomID string, clients ...*Client) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []*Client
	for _, c := range clients {
		if current, ok := r.clients[c]; !ok || current != roomID {
			continue
		}
		r.removeLocked(c, roomID)
		evicted = append(evicted, c)
	}
	if len(evicted) > 0 {
		r.changed()
	}
	return evicted
}

func (r *Registry) removeLocked(c *Client, roomID string) {
	if room, ok := r.rooms[roomID]; ok {
		room.RemoveClient(c)
		if room.Empty() {
			delete(r.rooms, roomID)
		}
	}
	delete(r.clients, c)
	if r.users[c.UserID] == c {
		delete(r.users, c.UserID)
	}
}

func (r *Registry) changed() {
	if r.onChange != nil {
		r.onChange(len(r.clients), len(r.rooms))
	}
}

// MembersOf returns a snapshot of the members of roomID; empty for unknown rooms.
func (r *Registry) MembersOf(roomID string) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return []*Client{}
	}
	return room.Members()
}

// RoomOf returns the room c is registered in.
func (r *Registry) RoomOf(c *Client) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.clients[c]
	return roomID, ok
}

// UserClient returns the live connection registered for userID.
func (r *Registry) UserClient(userID string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.users[userID]
	return c, ok
}

// HasRoom reports whether roomID currently has members.
func (r *Registry) HasRoom(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.rooms[roomID]
	return ok
}

// Rooms lists active rooms with their members' user IDs, sorted by name.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.Lock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for name, room := range r.rooms {
		info := RoomInfo{Name: name, Users: make([]string, 0, len(room.clients))}
		for c := range room.clients {
			info.Users = append(info.Users, c.UserID)
		}
		sort.Strings(info.Users)
		out = append(out, info)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
